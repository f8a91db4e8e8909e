// Package tracker follows one debug session's protocol traffic, infers its
// lifecycle and drives the adapter's process requests at the right moments.
//
// State changes are computed by the pure Transition function; Tracker only
// executes the commands it returns. Round trips run off the caller's
// goroutine so observing a message never blocks the relay, and every failure
// is logged instead of propagated.
package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	internaldap "github.com/ctagard/dap-inferiors/internal/dap"
	"github.com/ctagard/dap-inferiors/internal/errors"
	"github.com/ctagard/dap-inferiors/internal/processes"
)

// ProcessExitedMessage is shown to the user when a debuggee terminates.
const ProcessExitedMessage = "The debugged process has terminated. See logs for more info."

const launchProgressTitle = "Launching debug session"

// Severity of a user notification.
type Severity string

const SeverityWarning Severity = "warning"

// Frontend is the IDE side of the session as seen by the tracker.
type Frontend interface {
	Notify(severity Severity, message string)
	StartProgress(id, title string, requestSeq int)
	EndProgress(id, message string)
	// StopSession ends the debug session from this side.
	StopSession(reason string)
}

// Inferiors is the subset of the adapter's custom requests the tracker issues.
// *dap.InferiorClient implements it.
type Inferiors interface {
	ListProcesses(ctx context.Context) (*internaldap.ProcessListBody, error)
	ContinueAfterProcessExit(ctx context.Context) (bool, error)
	HandleNewProcess(ctx context.Context, spawnerPid *int, program string) (*internaldap.ProcessListBody, error)
}

// Options configures a Tracker.
type Options struct {
	// Program is the session's configured program path, passed to handleNewProcess.
	Program string
	// RequestTimeout bounds each custom request round trip; zero means no limit.
	RequestTimeout time.Duration
}

// Tracker executes lifecycle commands for one session.
type Tracker struct {
	registry  *processes.Registry
	inferiors Inferiors
	frontend  Frontend
	opts      Options
	log       logr.Logger
	msgLog    logr.Logger

	mu         sync.Mutex
	lc         Lifecycle
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc

	work *conc.WaitGroup
}

// New creates a tracker that keeps registry in step with the session traffic.
func New(registry *processes.Registry, inferiors Inferiors, frontend Frontend, opts Options, log logr.Logger) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		registry:  registry,
		inferiors: inferiors,
		frontend:  frontend,
		opts:      opts,
		log:       log,
		msgLog:    log.WithName("messages"),
		lc:        Initial(),
		ctx:       ctx,
		cancel:    cancel,
		work:      conc.NewWaitGroup(),
	}
}

// Observe feeds one relayed message to the tracker. It matches the proxy's
// Observer signature and never panics or blocks on a round trip.
func (t *Tracker) Observe(msg dap.Message, direction internaldap.Direction) {
	t.msgLog.V(2).Info(direction.Arrow()+" "+internaldap.Command(msg),
		"direction", direction.String(), "seq", msg.GetSeq())

	t.mu.Lock()
	prev := t.lc.Phase
	next, cmds := Transition(t.lc, msg, direction)
	t.lc = next
	gen, ctx := t.generation, t.ctx
	t.mu.Unlock()

	if next.Phase != prev {
		t.log.V(1).Info("Session phase changed", "from", prev.String(), "to", next.Phase.String())
	}
	for _, cmd := range cmds {
		t.execute(ctx, gen, cmd)
	}
}

// Lifecycle returns a copy of the current lifecycle.
func (t *Tracker) Lifecycle() Lifecycle {
	t.mu.Lock()
	defer t.mu.Unlock()
	lc := t.lc
	lc.SpawnerPid = copyPid(lc.SpawnerPid)
	return lc
}

// Terminate resets the lifecycle and clears the process set. Results of
// round trips still in flight are discarded.
func (t *Tracker) Terminate() {
	t.mu.Lock()
	next, cmds := Reset(t.lc)
	t.lc = next
	t.generation++
	t.cancel()
	t.ctx, t.cancel = context.WithCancel(context.Background())
	gen, ctx := t.generation, t.ctx
	t.mu.Unlock()

	t.log.Info("Debug session terminated, lifecycle reset")
	for _, cmd := range cmds {
		t.execute(ctx, gen, cmd)
	}
}

// Wait blocks until all background round trips have finished.
func (t *Tracker) Wait() {
	t.work.Wait()
}

// Close cancels in-flight round trips and waits for them.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.generation++
	t.cancel()
	t.mu.Unlock()
	t.work.Wait()
}

func (t *Tracker) execute(ctx context.Context, gen uint64, cmd Command) {
	switch c := cmd.(type) {
	case StartLaunchProgress:
		t.frontend.StartProgress(c.ProgressID, launchProgressTitle, c.RequestSeq)
	case EndLaunchProgress:
		t.frontend.EndProgress(c.ProgressID, c.Message)
	case PopulateProcesses:
		t.goSafe("populate processes", func() { t.populate(ctx, gen) })
	case HandleExitedProcess:
		t.goSafe("handle exited process", func() { t.handleExited(ctx, gen, c.Pid) })
	case HandleNewProcess:
		t.goSafe("handle new process", func() { t.handleNew(ctx, gen, c.SpawnerPid) })
	case ClearProcesses:
		// Waits for any in-flight mutation, which was just cancelled.
		if err := t.registry.Exclusive(context.Background(), func(context.Context) error {
			t.registry.Clear()
			return nil
		}); err != nil {
			t.log.Error(err, "Failed to clear processes")
		}
	default:
		t.log.Info("Ignoring unknown command", "command", fmt.Sprintf("%T", cmd))
	}
}

func (t *Tracker) goSafe(what string, fn func()) {
	t.work.Go(func() {
		if r := panics.Try(fn); r != nil {
			t.log.Error(r.AsError(), "Recovered from panic", "task", what)
		}
	})
}

func (t *Tracker) current(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation == gen
}

func (t *Tracker) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.opts.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.opts.RequestTimeout)
}

// applyList runs fetch under the registry's exclusive token and applies its
// result, unless the session was reset in the meantime.
func (t *Tracker) applyList(ctx context.Context, gen uint64, command string,
	fetch func(ctx context.Context) (*internaldap.ProcessListBody, error)) error {
	return t.registry.Exclusive(ctx, func(ctx context.Context) error {
		rctx, cancel := t.requestContext(ctx)
		defer cancel()

		body, err := fetch(rctx)
		if err != nil {
			return err
		}
		if body.Processes == nil {
			return errors.ProtocolRequestFailed(command, fmt.Errorf("response carries no process list"))
		}
		if !t.current(gen) {
			t.log.V(1).Info("Discarding process list from a previous session", "command", command)
			return nil
		}
		view := t.registry.ApplyAutomaticPopulation(body.Processes, body.Current())
		t.log.Info("Updated processes", "command", command, "count", len(view.Processes))
		return nil
	})
}

func (t *Tracker) populate(ctx context.Context, gen uint64) {
	err := t.applyList(ctx, gen, internaldap.CommandListProcesses, t.inferiors.ListProcesses)
	if err != nil {
		t.log.Error(err, "Failed to fetch processes")
	}
}

func (t *Tracker) handleExited(ctx context.Context, gen uint64, pid int) {
	t.log.Info("Process exited", "pid", pid)
	t.frontend.Notify(SeverityWarning, ProcessExitedMessage)

	rctx, cancel := t.requestContext(ctx)
	cont, err := t.inferiors.ContinueAfterProcessExit(rctx)
	cancel()
	if err != nil {
		t.log.Error(err, "Error handling exitedProcess", "pid", pid)
		return
	}
	if !t.current(gen) {
		return
	}
	if cont {
		t.populate(ctx, gen)
		return
	}
	t.log.Info("Adapter does not continue after process exit, stopping session", "pid", pid)
	t.frontend.StopSession(fmt.Sprintf("debugged process %d exited", pid))
}

func (t *Tracker) handleNew(ctx context.Context, gen uint64, spawnerPid *int) {
	err := t.applyList(ctx, gen, internaldap.CommandHandleNewProcess, func(ctx context.Context) (*internaldap.ProcessListBody, error) {
		return t.inferiors.HandleNewProcess(ctx, spawnerPid, t.opts.Program)
	})
	if err != nil {
		t.log.Error(err, "Failed to handle new process")
	}
}
