// Package session binds one IDE connection to one launched debug adapter.
//
// A Session relays DAP traffic through a proxy, lets the protocol tracker
// follow it, and owns the session's process registry. The Manager keeps the
// sessions a presentation collaborator can look at.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	internaldap "github.com/ctagard/dap-inferiors/internal/dap"
	"github.com/ctagard/dap-inferiors/internal/errors"
	"github.com/ctagard/dap-inferiors/internal/processes"
	"github.com/ctagard/dap-inferiors/internal/tracker"
	"github.com/ctagard/dap-inferiors/pkg/types"
)

// Session represents an active debug session
type Session struct {
	ID           string
	DebuggerPath string
	Program      string
	AdapterPid   int
	Endpoint     string
	CreatedAt    time.Time

	proxy      *internaldap.Proxy
	tracker    *tracker.Tracker
	registry   *processes.Registry
	reconciler *processes.Reconciler
	log        logr.Logger

	unsubscribe func()

	mu     sync.RWMutex
	status types.SessionStatus
}

type sessionOptions struct {
	ID             string
	DebuggerPath   string
	Program        string
	AdapterPid     int
	Endpoint       string
	RequestTimeout time.Duration
}

func newSession(ide, adapter *internaldap.Transport, opts sessionOptions, log logr.Logger) *Session {
	log = log.WithValues("session", opts.ID)
	s := &Session{
		ID:           opts.ID,
		DebuggerPath: opts.DebuggerPath,
		Program:      opts.Program,
		AdapterPid:   opts.AdapterPid,
		Endpoint:     opts.Endpoint,
		CreatedAt:    time.Now(),
		registry:     processes.NewRegistry(log.WithName("processes")),
		log:          log,
		status:       types.SessionStatusInitializing,
	}

	s.proxy = internaldap.NewProxy(ide, adapter, internaldap.ProxyConfig{
		Observer:       s.observe,
		RequestTimeout: opts.RequestTimeout,
		Logger:         log.WithName("proxy"),
	})
	inferiors := internaldap.NewInferiorClient(s.proxy)
	s.tracker = tracker.New(s.registry, inferiors, s, tracker.Options{
		Program:        opts.Program,
		RequestTimeout: opts.RequestTimeout,
	}, log.WithName("tracker"))
	s.reconciler = processes.NewReconciler(s.registry, inferiors, log.WithName("reconciler"))

	s.unsubscribe = s.registry.Subscribe(func(view types.ProcessView) {
		s.log.V(1).Info("Process view changed", "hasProcesses", view.HasProcesses,
			"visible", len(view.Visible()), "activePid", view.ActivePid)
	})
	return s
}

func (s *Session) observe(msg dap.Message, direction internaldap.Direction) {
	s.tracker.Observe(msg, direction)
}

// run relays traffic until either peer goes away or ctx is done, then resets
// the tracker. adapterDone, when non-nil, stops the relay once the adapter
// process has exited.
func (s *Session) run(ctx context.Context, adapterDone <-chan struct{}) error {
	s.setStatus(types.SessionStatusRunning)
	s.log.Info("Debug session started", "endpoint", s.Endpoint, "adapterPid", s.AdapterPid)

	go func() {
		select {
		case <-adapterDone:
			s.log.Info("Debug adapter exited, stopping session")
			s.proxy.Stop()
		case <-s.proxy.Done():
		}
	}()

	err := s.proxy.Run(ctx)

	s.tracker.Terminate()
	s.tracker.Close()
	s.unsubscribe()
	s.setStatus(types.SessionStatusTerminated)
	if err != nil {
		s.log.Error(err, "Debug session ended with error")
	} else {
		s.log.Info("Debug session ended")
	}
	return err
}

// Stop ends the relay; run returns once both peers are closed.
func (s *Session) Stop() {
	s.proxy.Stop()
}

// Status returns the current session status
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(status types.SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Info returns what is known about the session
func (s *Session) Info() types.SessionInfo {
	lc := s.tracker.Lifecycle()
	return types.SessionInfo{
		SessionID:    s.ID,
		Status:       s.Status(),
		Phase:        lc.Phase.String(),
		SpawnerPid:   lc.SpawnerPid,
		AdapterPid:   s.AdapterPid,
		Endpoint:     s.Endpoint,
		DebuggerPath: s.DebuggerPath,
		Program:      s.Program,
	}
}

// Processes returns the current process view
func (s *Session) Processes() types.ProcessView {
	return s.registry.View()
}

// RefreshProcesses asks the adapter for its processes, lets prompter choose
// the visible set and applies the acknowledged changes.
func (s *Session) RefreshProcesses(ctx context.Context, prompter processes.Prompter) (processes.Result, error) {
	if s.Status() == types.SessionStatusTerminated {
		return processes.Result{}, errors.SessionNotFound(s.ID)
	}
	return s.reconciler.Refresh(ctx, prompter)
}

// SelectInferior makes pid the adapter's current inferior.
func (s *Session) SelectInferior(ctx context.Context, pid int) (types.ProcessView, error) {
	if s.Status() == types.SessionStatusTerminated {
		return types.ProcessView{}, errors.SessionNotFound(s.ID)
	}
	return s.reconciler.SelectInferior(ctx, pid)
}

// Notify shows message to the user as an important output event.
func (s *Session) Notify(severity tracker.Severity, message string) {
	ev := &dap.OutputEvent{
		Event: internaldap.NewEvent("output"),
		Body:  dap.OutputEventBody{Category: "important", Output: message + "\n"},
	}
	s.emit(ev, "severity", string(severity))
}

func (s *Session) StartProgress(id, title string, requestSeq int) {
	ev := &dap.ProgressStartEvent{
		Event: internaldap.NewEvent("progressStart"),
		Body:  dap.ProgressStartEventBody{ProgressId: id, Title: title, RequestId: requestSeq},
	}
	s.emit(ev, "progressId", id)
}

func (s *Session) EndProgress(id, message string) {
	ev := &dap.ProgressEndEvent{
		Event: internaldap.NewEvent("progressEnd"),
		Body:  dap.ProgressEndEventBody{ProgressId: id, Message: message},
	}
	s.emit(ev, "progressId", id)
}

// StopSession tells the IDE the debuggee is gone; the IDE then disconnects.
func (s *Session) StopSession(reason string) {
	s.log.Info("Stopping debug session", "reason", reason)
	s.emit(&dap.TerminatedEvent{Event: internaldap.NewEvent("terminated")}, "reason", reason)
}

func (s *Session) emit(ev dap.Message, keysAndValues ...interface{}) {
	if err := s.proxy.EmitEvent(ev); err != nil {
		s.log.V(1).Info("Dropping event for closed session",
			append([]interface{}{"event", internaldap.Command(ev), "error", err.Error()}, keysAndValues...)...)
	}
}
