// Package types defines shared data types used across dap-inferiors.
//
// This package provides type definitions for:
//   - DebugProcess: a debuggee process known to the adapter and its selection state
//   - ProcessView: the read model handed to presentation collaborators
//   - SessionStatus: debug session states (initializing, running, terminated)
//   - SessionInfo: what is known about a debug session and its adapter
//
// These types are used throughout the codebase to maintain type safety
// and provide clear contracts between components.
package types

// DebugProcess is one inferior in the session's process set.
type DebugProcess struct {
	Pid  int    `json:"pid"`
	Name string `json:"name"`
	// Selected marks the process as part of the visible/attached set.
	Selected bool `json:"selected"`
}

// ProcessView is a snapshot of the process set.
type ProcessView struct {
	Processes []DebugProcess `json:"processes"`
	// ActivePid is the current inferior, nil when there is none.
	ActivePid    *int `json:"activePid"`
	HasProcesses bool `json:"hasProcesses"`
}

// Visible returns the selected processes, in set order.
func (v ProcessView) Visible() []DebugProcess {
	visible := make([]DebugProcess, 0, len(v.Processes))
	for _, p := range v.Processes {
		if p.Selected {
			visible = append(visible, p)
		}
	}
	return visible
}

// Active returns the active process entry, if any.
func (v ProcessView) Active() (DebugProcess, bool) {
	if v.ActivePid == nil {
		return DebugProcess{}, false
	}
	for _, p := range v.Processes {
		if p.Pid == *v.ActivePid {
			return p, true
		}
	}
	return DebugProcess{}, false
}

// SessionStatus represents the status of a debug session
type SessionStatus string

const (
	SessionStatusInitializing SessionStatus = "initializing"
	SessionStatusRunning      SessionStatus = "running"
	SessionStatusTerminated   SessionStatus = "terminated"
)

// SessionInfo represents information about a debug session
type SessionInfo struct {
	SessionID string        `json:"sessionId"`
	Status    SessionStatus `json:"status"`
	// Phase is the lifecycle phase inferred from protocol traffic.
	Phase        string `json:"phase"`
	SpawnerPid   *int   `json:"spawnerPid,omitempty"`
	AdapterPid   int    `json:"adapterPid,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	DebuggerPath string `json:"debuggerPath,omitempty"`
	Program      string `json:"program,omitempty"`
}
