package session

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	internaldap "github.com/ctagard/dap-inferiors/internal/dap"
	"github.com/ctagard/dap-inferiors/internal/errors"
	"github.com/ctagard/dap-inferiors/internal/launcher"
)

// ErrManagerClosed is returned by Serve after Close.
var ErrManagerClosed = stderrors.New("session manager is closed")

// Options configures a Manager.
type Options struct {
	// RequestTimeout bounds each custom request round trip.
	RequestTimeout time.Duration
}

// Manager manages debug sessions. The launcher holds a single adapter slot, so
// at most one session runs at a time.
type Manager struct {
	launcher *launcher.Launcher
	opts     Options
	log      logr.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	activeID string
	closed   bool
	serving  sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a new session manager
func NewManager(l *launcher.Launcher, opts Options, log logr.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		launcher: l,
		opts:     opts,
		log:      log,
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Serve runs one debug session for the IDE speaking on ide: it launches the
// adapter, connects to it and relays traffic until either side goes away.
// ide is closed when Serve returns.
func (m *Manager) Serve(ctx context.Context, ide *internaldap.Transport, lc launcher.LaunchConfig) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = ide.Close()
		return ErrManagerClosed
	}
	m.serving.Add(1)
	m.mu.Unlock()
	defer m.serving.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	conn, err := m.launcher.Launch(ctx, lc)
	if err != nil {
		m.log.Error(err, "Failed to launch debug adapter", "program", lc.ProgramPath)
		_ = ide.Close()
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			m.log.Error(err, "Failed to dispose debug adapter", "pid", conn.Pid())
		}
	}()

	adapter, err := conn.Dial(ctx)
	if err != nil {
		m.log.Error(err, "Failed to connect to debug adapter", "endpoint", conn.Endpoint().String())
		_ = ide.Close()
		return err
	}

	s := newSession(ide, adapter, sessionOptions{
		ID:             uuid.New().String(),
		DebuggerPath:   lc.DebuggerPath,
		Program:        lc.ProgramPath,
		AdapterPid:     conn.Pid(),
		Endpoint:       conn.Endpoint().String(),
		RequestTimeout: m.opts.RequestTimeout,
	}, m.log)

	m.add(s)
	defer m.remove(s.ID)

	return s.run(ctx, conn.Done())
}

func (m *Manager) add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.activeID = s.ID
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	if m.activeID == id {
		m.activeID = ""
	}
}

// Get retrieves a session by ID
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return s, nil
}

// Active returns the session the process view belongs to.
func (m *Manager) Active() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[m.activeID]
	if !ok {
		return nil, errors.NoActiveSession()
	}
	return s, nil
}

// Lookup returns the session with id, or the active one when id is empty.
func (m *Manager) Lookup(id string) (*Session, error) {
	if id == "" {
		return m.Active()
	}
	return m.Get(id)
}

// List returns all sessions, oldest first
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Terminate stops a session. Its Serve call returns once cleanup is done.
func (m *Manager) Terminate(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Stop()
	return nil
}

// Close stops every session, waits for them to finish and disposes the
// adapter slot.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	m.cancel()
	for _, s := range sessions {
		s.Stop()
	}
	m.serving.Wait()
	m.launcher.Dispose()
}
