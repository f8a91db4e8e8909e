//go:build !windows

package launcher

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-inferiors/internal/config"
	"github.com/ctagard/dap-inferiors/internal/errors"
	"github.com/ctagard/dap-inferiors/internal/pathutil"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

type fixture struct {
	dir      string
	debugger string
	program  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{
		dir:      dir,
		debugger: writeScript(t, dir, "gdb", "exit 0\n"),
		program:  writeScript(t, dir, "a.out", "exit 0\n"),
	}
}

func (f fixture) launcher(t *testing.T, runScript string, mutate ...func(*Config)) *Launcher {
	t.Helper()
	cfg := Config{
		RunScript:           runScript,
		DefaultDebuggerPath: f.debugger,
		BareDebuggerName:    "gdb",
		StartTimeout:        5 * time.Second,
		DialTimeout:         2 * time.Second,
		Readiness: config.ReadinessConfig{
			Mode:         config.ReadinessSocketPath,
			ReadyLiteral: "DAP server ready",
			Endpoint:     "127.0.0.1:4711",
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	l := New(cfg, pathutil.NewOSValidator(), logr.Discard())
	t.Cleanup(l.Dispose)
	return l
}

func TestLaunchResolvesOnSocketPathLine(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "echo starting\necho 'SOCKET_PATH=/tmp/adapter.sock  '\nsleep 30\n")
	l := f.launcher(t, script)

	conn, err := l.Launch(context.Background(), LaunchConfig{ProgramPath: f.program})
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Network: "unix", Address: "/tmp/adapter.sock"}, conn.Endpoint())
	assert.Positive(t, conn.Pid())

	active, ok := l.Active()
	require.True(t, ok)
	assert.Same(t, conn, active)
}

func TestLaunchPassesDebuggerAndProgramAsArguments(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "echo \"SOCKET_PATH=$1|$2\"\nsleep 30\n")
	l := f.launcher(t, script)

	conn, err := l.Launch(context.Background(), LaunchConfig{DebuggerPath: "gdb", ProgramPath: f.program})
	require.NoError(t, err)
	assert.Equal(t, "gdb|"+f.program, conn.Endpoint().Address)
}

func TestLaunchUsesDefaultDebuggerWhenEmpty(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "echo \"SOCKET_PATH=$1\"\nsleep 30\n")
	l := f.launcher(t, script)

	conn, err := l.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)
	assert.Equal(t, f.debugger, conn.Endpoint().Address)
}

func TestLaunchReadyLineMode(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "echo 'gdb adapter: DAP server ready'\nsleep 30\n")
	l := f.launcher(t, script, func(c *Config) {
		c.Readiness.Mode = config.ReadinessReadyLine
		c.Readiness.Endpoint = "127.0.0.1:9999"
	})

	conn, err := l.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Network: "tcp", Address: "127.0.0.1:9999"}, conn.Endpoint())
}

func TestLaunchFailsWhenAdapterExitsFirst(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "echo 'cannot start' >&2\nexit 3\n")
	l := f.launcher(t, script)

	conn, err := l.Launch(context.Background(), LaunchConfig{})
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.True(t, errors.HasCode(err, errors.CodeAdapterExited))
	assert.Contains(t, err.Error(), "exited with code 3")

	_, ok := l.Active()
	assert.False(t, ok)
}

func TestLaunchFailsWhenAdapterExitsLeavingChildOnStdout(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "sleep 3 &\nexit 7\n")
	l := f.launcher(t, script, func(c *Config) { c.StartTimeout = 2 * time.Second })

	start := time.Now()
	conn, err := l.Launch(context.Background(), LaunchConfig{})
	require.Error(t, err)
	assert.Nil(t, conn)
	assert.True(t, errors.HasCode(err, errors.CodeAdapterExited), "got %v", err)
	assert.Contains(t, err.Error(), "exited with code 7")
	assert.Less(t, time.Since(start), time.Second)

	_, ok := l.Active()
	assert.False(t, ok)
}

func TestLaunchReadyThenExitStillResolves(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "echo SOCKET_PATH=/tmp/gone.sock\nexit 0\n")
	l := f.launcher(t, script)

	conn, err := l.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/gone.sock", conn.Endpoint().Address)

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("exit was not observed")
	}
	code, exited := conn.ExitCode()
	assert.True(t, exited)
	assert.Equal(t, 0, code)
}

func TestLaunchTimesOut(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "echo 'still booting'\nsleep 30\n")
	l := f.launcher(t, script, func(c *Config) { c.StartTimeout = 200 * time.Millisecond })

	start := time.Now()
	_, err := l.Launch(context.Background(), LaunchConfig{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)

	_, ok := l.Active()
	assert.False(t, ok)

	// The slot was released, so the next launch gets its own chance.
	_, err = l.Launch(context.Background(), LaunchConfig{})
	assert.True(t, errors.HasCode(err, errors.CodeTimeout))
}

func TestLaunchRejectsSecondClient(t *testing.T) {
	f := newFixture(t)
	marker := filepath.Join(f.dir, "spawned")
	script := writeScript(t, f.dir, "run_debug_adapter", "echo x >> '"+marker+"'\necho SOCKET_PATH=/tmp/one.sock\nsleep 30\n")
	l := f.launcher(t, script)

	first, err := l.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)

	_, err = l.Launch(context.Background(), LaunchConfig{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeAlreadyRunning))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(data), "second launch must not spawn")

	require.NoError(t, first.Close())
	_, err = l.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)
}

func TestLaunchValidatesBeforeSpawning(t *testing.T) {
	f := newFixture(t)
	marker := filepath.Join(f.dir, "spawned")
	script := writeScript(t, f.dir, "run_debug_adapter", "touch '"+marker+"'\necho SOCKET_PATH=/tmp/x.sock\nsleep 30\n")

	tests := []struct {
		name   string
		script string
		lc     LaunchConfig
	}{
		{name: "missing debugger", script: script, lc: LaunchConfig{DebuggerPath: filepath.Join(f.dir, "nope")}},
		{name: "debugger is a directory", script: script, lc: LaunchConfig{DebuggerPath: f.dir}},
		{name: "missing program", script: script, lc: LaunchConfig{ProgramPath: filepath.Join(f.dir, "missing")}},
		{name: "missing run script", script: filepath.Join(f.dir, "bin", "run_debug_adapter"), lc: LaunchConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := f.launcher(t, tt.script)
			_, err := l.Launch(context.Background(), tt.lc)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.CodeInvalidConfiguration), "got %v", err)
			_, statErr := os.Stat(marker)
			assert.True(t, os.IsNotExist(statErr), "adapter must not be spawned")
		})
	}
}

func TestLaunchHonorsContextCancellation(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "sleep 30\n")
	l := f.launcher(t, script)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := l.Launch(ctx, LaunchConfig{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := l.Active()
	assert.False(t, ok)
}

func TestDisposeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	script := writeScript(t, f.dir, "run_debug_adapter", "echo SOCKET_PATH=/tmp/d.sock\nsleep 30\n")
	l := f.launcher(t, script)

	l.Dispose()

	conn, err := l.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)

	l.Dispose()
	l.Dispose()

	select {
	case <-conn.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("adapter was not terminated")
	}
	_, ok := l.Active()
	assert.False(t, ok)
	assert.NoError(t, conn.Close())
}

func TestDialConnectsToAnnouncedEndpoint(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			defer c.Close()
			time.Sleep(time.Second)
		}
	}()

	script := writeScript(t, f.dir, "run_debug_adapter", "echo 'DAP server ready'\nsleep 30\n")
	l := f.launcher(t, script, func(c *Config) {
		c.Readiness.Mode = config.ReadinessReadyLine
		c.Readiness.Endpoint = ln.Addr().String()
	})

	conn, err := l.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)

	transport, err := conn.Dial(context.Background())
	require.NoError(t, err)
	assert.NoError(t, transport.Close())
}

func TestDialFailsAfterTimeout(t *testing.T) {
	f := newFixture(t)
	sock := filepath.Join(f.dir, "never.sock")
	script := writeScript(t, f.dir, "run_debug_adapter", "echo SOCKET_PATH="+sock+"\nsleep 30\n")
	l := f.launcher(t, script, func(c *Config) { c.DialTimeout = 300 * time.Millisecond })

	conn, err := l.Launch(context.Background(), LaunchConfig{})
	require.NoError(t, err)

	_, err = conn.Dial(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeAdapterConnectFailed), "got %v", err)
}
