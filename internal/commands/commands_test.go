package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dap-inferiors/internal/config"
	"github.com/ctagard/dap-inferiors/internal/launchconfig"
	"github.com/ctagard/dap-inferiors/internal/launcher"
	"github.com/ctagard/dap-inferiors/internal/version"
)

func TestVersionCommand(t *testing.T) {
	root, err := NewRootCmd()
	require.NoError(t, err)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "dap-inferiors "+version.Version)
}

func TestServeFlagsOverrideConfig(t *testing.T) {
	cmd, err := NewServeCommand()
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--adapter-path", "/opt/adapter", "--start-timeout", "4", "--mcp-listen", "127.0.0.1:9000"}))

	v := config.NewViper()
	for key, name := range flagBindings {
		require.NoError(t, v.BindPFlag(key, cmd.Flags().Lookup(name)))
	}
	cfg, err := loadConfig(v, "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/opt/adapter", config.RunScriptRelPath), cfg.RunScriptPath())
	assert.Equal(t, 4*time.Second, cfg.StartTimeout())
	assert.Equal(t, "127.0.0.1:9000", cfg.MCP.Listen)
	assert.Equal(t, config.ReadinessSocketPath, cfg.Adapter.Readiness.Mode)
}

func TestLoadConfigRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("adapter:\n  readiness:\n    mode: smoke-signal\n"), 0o600))

	_, err := loadConfig(config.NewViper(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smoke-signal")
}

func TestLaunchTarget(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/ws/.vscode", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/ws/.vscode/launch.json", []byte(`{
		"configurations": [
			{"name": "server", "request": "launch", "program": "${workspaceFolder}/server", "gdbPath": "/opt/gdb/bin/gdb"}
		]
	}`), 0o644))
	loader := launchconfig.NewLoader(fs)

	opts := serveOptions{gdbPath: "gdb", program: "/bin/true"}
	lc, err := opts.launchTarget(loader)
	require.NoError(t, err)
	assert.Equal(t, launcher.LaunchConfig{DebuggerPath: "gdb", ProgramPath: "/bin/true"}, lc)

	opts = serveOptions{launchConfig: "server", workspace: "/ws", gdbPath: "gdb"}
	lc, err = opts.launchTarget(loader)
	require.NoError(t, err)
	assert.Equal(t, launcher.LaunchConfig{DebuggerPath: "gdb", ProgramPath: "/ws/server"}, lc)

	opts = serveOptions{launchConfig: "client", workspace: "/ws"}
	_, err = opts.launchTarget(loader)
	assert.Error(t, err)
}
