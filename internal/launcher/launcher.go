// Package launcher starts the debug adapter process and waits until it is ready.
//
// The adapter is spawned as <runScript> <debuggerPath> <programPath>. Its
// stdout is watched for a readiness line; whichever happens first of
// readiness, process exit or the start timeout decides the launch. Only one
// adapter may be live at a time, since it accepts a single client connection.
package launcher

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/sourcegraph/conc"

	"github.com/ctagard/dap-inferiors/internal/config"
	"github.com/ctagard/dap-inferiors/internal/errors"
	"github.com/ctagard/dap-inferiors/internal/pathutil"
)

const (
	maxOutputLine = 1024 * 1024

	// outputDrainDelay bounds how long output is read after the adapter exits.
	outputDrainDelay = 250 * time.Millisecond
)

// Config is the launcher's view of the server configuration.
type Config struct {
	RunScript           string
	DefaultDebuggerPath string
	BareDebuggerName    string
	StartTimeout        time.Duration
	DialTimeout         time.Duration
	Readiness           config.ReadinessConfig
}

// ConfigFrom extracts the launcher settings from the server configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		RunScript:           cfg.RunScriptPath(),
		DefaultDebuggerPath: cfg.Debugger.DefaultPath,
		BareDebuggerName:    cfg.Debugger.BareName,
		StartTimeout:        cfg.StartTimeout(),
		DialTimeout:         cfg.DialTimeout(),
		Readiness:           cfg.Adapter.Readiness,
	}
}

// LaunchConfig holds the per-session launch inputs.
type LaunchConfig struct {
	// DebuggerPath is the native debugger; empty means the configured default.
	DebuggerPath string
	// ProgramPath is the program to debug; empty is allowed and skips validation.
	ProgramPath string
}

// Launcher owns the single adapter slot.
type Launcher struct {
	cfg       Config
	validator *pathutil.Validator
	log       logr.Logger
	outputLog logr.Logger

	mu   sync.Mutex
	slot *Connection
}

// New creates a launcher with an empty adapter slot.
func New(cfg Config, validator *pathutil.Validator, log logr.Logger) *Launcher {
	return &Launcher{
		cfg:       cfg,
		validator: validator,
		log:       log,
		outputLog: log.WithName("adapter"),
	}
}

// Launch validates the inputs, spawns the adapter and waits for readiness.
// Nothing is spawned when validation fails or another adapter is live.
func (l *Launcher) Launch(ctx context.Context, lc LaunchConfig) (*Connection, error) {
	debugger := lc.DebuggerPath
	if debugger == "" {
		debugger = l.cfg.DefaultDebuggerPath
	}
	if !l.validator.IsExecutableRef(debugger, l.cfg.BareDebuggerName) {
		return nil, errors.InvalidConfiguration("debugger path", debugger,
			"must be an existing file or the bare name "+l.cfg.BareDebuggerName)
	}
	if lc.ProgramPath != "" && !l.validator.IsRegularFile(lc.ProgramPath) {
		return nil, errors.InvalidConfiguration("program path", lc.ProgramPath, "must be an existing file")
	}
	if !l.validator.IsRegularFile(l.cfg.RunScript) {
		return nil, errors.InvalidConfiguration("adapter run script", l.cfg.RunScript,
			"must be an existing file; set adapter.install_path")
	}
	matcher, err := newReadinessMatcher(l.cfg.Readiness)
	if err != nil {
		return nil, errors.InvalidConfiguration("adapter readiness", string(l.cfg.Readiness.Mode), err.Error())
	}

	conn := &Connection{
		launcher:    l,
		done:        make(chan struct{}),
		dialTimeout: l.cfg.DialTimeout,
		log:         l.log,
	}
	if err := l.reserve(conn); err != nil {
		return nil, err
	}

	cmd := exec.Command(l.cfg.RunScript, debugger, lc.ProgramPath)
	setProcAttr(cmd)
	// The pipes are ours rather than exec's so that Wait returns when the
	// adapter exits, even if a child it started still holds its output.
	stdout, stderr, err := l.start(cmd)
	if err != nil {
		l.release(conn)
		return nil, errors.AdapterSpawnFailed(l.cfg.RunScript, err)
	}
	conn.started(cmd)
	pid := cmd.Process.Pid
	l.log.Info("Started debug adapter", "pid", pid, "debugger", debugger, "program", lc.ProgramPath)

	readyCh := make(chan Endpoint, 1)
	exitCh := make(chan int, 1)

	pumps := conc.NewWaitGroup()
	pumps.Go(func() {
		l.pumpOutput(stdout, "stdout", func(line string) {
			if ep, ok := matcher.Match(line); ok {
				select {
				case readyCh <- ep:
				default:
				}
			}
		})
	})
	pumps.Go(func() {
		l.pumpOutput(stderr, "stderr", nil)
	})

	go func() {
		code := exitCodeOf(cmd, cmd.Wait())
		l.drainOutput(pumps, stdout, stderr)
		l.log.Info("Debug adapter exited", "pid", pid, "exitCode", code)
		l.release(conn)
		conn.markExited(code)
		exitCh <- code
	}()

	timer := time.NewTimer(l.cfg.StartTimeout)
	defer timer.Stop()

	select {
	case ep := <-readyCh:
		return l.ready(conn, ep), nil
	case code := <-exitCh:
		// Output written before the exit has been drained by now, so a
		// readiness line printed just before exiting is already delivered.
		select {
		case ep := <-readyCh:
			return l.ready(conn, ep), nil
		default:
		}
		return nil, errors.AdapterExited(code)
	case <-timer.C:
		l.abort(conn)
		return nil, errors.Timeout("debug adapter to be ready", int(l.cfg.StartTimeout/time.Second))
	case <-ctx.Done():
		l.abort(conn)
		return nil, ctx.Err()
	}
}

func (l *Launcher) ready(conn *Connection, ep Endpoint) *Connection {
	conn.setEndpoint(ep)
	l.log.Info("Debug adapter is ready", "pid", conn.Pid(), "endpoint", ep.String())
	return conn
}

func (l *Launcher) abort(conn *Connection) {
	conn.mu.Lock()
	cmd := conn.cmd
	conn.mu.Unlock()
	if err := killProcessGroup(cmd); err != nil {
		l.log.Error(err, "Failed to kill debug adapter", "pid", conn.Pid())
	}
	l.release(conn)
}

func (l *Launcher) reserve(conn *Connection) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slot != nil {
		return errors.AlreadyRunning(l.slot.Pid())
	}
	l.slot = conn
	return nil
}

// release frees the slot if conn still holds it.
func (l *Launcher) release(conn *Connection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slot == conn {
		l.slot = nil
	}
}

// Active returns the live adapter connection, if any.
func (l *Launcher) Active() (*Connection, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slot == nil || !l.slot.isReady() {
		return nil, false
	}
	return l.slot, true
}

// Dispose terminates the live adapter, if any. Safe to call repeatedly.
func (l *Launcher) Dispose() {
	l.mu.Lock()
	conn := l.slot
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// start spawns cmd with stdout and stderr connected to fresh pipes and returns
// their read ends.
func (l *Launcher) start(cmd *exec.Cmd) (stdout, stderr *os.File, err error) {
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}
	stderr, stderrW, err := os.Pipe()
	if err != nil {
		_ = stdout.Close()
		_ = stdoutW.Close()
		return nil, nil, err
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	err = cmd.Start()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	if err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, nil, err
	}
	return stdout, stderr, nil
}

// drainOutput waits for the output pumps to reach EOF after the adapter has
// exited. Pipes still held open by leftover children are closed after
// outputDrainDelay.
func (l *Launcher) drainOutput(pumps *conc.WaitGroup, pipes ...*os.File) {
	drained := make(chan struct{})
	go func() {
		pumps.Wait()
		close(drained)
	}()

	timer := time.NewTimer(outputDrainDelay)
	defer timer.Stop()
	select {
	case <-drained:
	case <-timer.C:
		l.log.V(1).Info("Adapter output still open after exit, closing it")
	}
	for _, p := range pipes {
		_ = p.Close()
	}
	<-drained
}

func (l *Launcher) pumpOutput(r io.Reader, stream string, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxOutputLine)
	for scanner.Scan() {
		line := scanner.Text()
		l.outputLog.Info(line, "stream", stream)
		if onLine != nil {
			onLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		l.outputLog.V(1).Info("Stopped reading adapter output", "stream", stream, "error", err.Error())
		// Keep draining so the adapter never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}
