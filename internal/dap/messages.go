package dap

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
)

// Custom commands understood by the multi-inferior gdb adapter.
const (
	CommandListProcesses            = "listProcesses"
	CommandContinueAfterProcessExit = "continueAfterProcessExit"
	CommandHandleNewProcess         = "handleNewProcess"
	CommandSelectInferior           = "selectInferior"
	CommandAddInferiors             = "addInferiors"
	CommandDetachInferiors          = "detachInferiors"

	EventExitedProcess = "exitedProcess"
	EventNewProcess    = "newProcess"
)

// PidKind tells how a polymorphic pid field was populated.
type PidKind int

const (
	// PidAbsent means the field did not appear in the body.
	PidAbsent PidKind = iota
	// PidNone means the adapter sent null or "none".
	PidNone
	// PidNumber means the adapter sent a pid.
	PidNumber
)

// OptionalPid is a pid field that the adapter may omit, set to a number,
// or set explicitly to null / "none".
type OptionalPid struct {
	Kind PidKind
	Pid  int
}

// PidOf returns an OptionalPid holding pid.
func PidOf(pid int) OptionalPid {
	return OptionalPid{Kind: PidNumber, Pid: pid}
}

// Get returns the pid and whether one is present.
func (p OptionalPid) Get() (int, bool) {
	return p.Pid, p.Kind == PidNumber
}

// ParseOptionalPid interprets a raw JSON value. Numeric strings are accepted
// as pids; any other string is treated as "none".
func ParseOptionalPid(raw json.RawMessage) OptionalPid {
	if len(raw) == 0 {
		return OptionalPid{Kind: PidAbsent}
	}
	r := gjson.ParseBytes(raw)
	switch r.Type {
	case gjson.Number:
		return PidOf(int(r.Int()))
	case gjson.String:
		if n, err := strconv.Atoi(strings.TrimSpace(r.String())); err == nil {
			return PidOf(n)
		}
		return OptionalPid{Kind: PidNone}
	default:
		return OptionalPid{Kind: PidNone}
	}
}

// ProcessInfo is a process entry as reported by the adapter.
type ProcessInfo struct {
	Pid  int    `json:"pid"`
	Name string `json:"name"`
}

// --- launch ---

// LaunchResponseBody carries the adapter's spawner pid, when the debuggee is
// started through a helper process.
type LaunchResponseBody struct {
	SpawnerPid *int `json:"spawnerPid,omitempty"`
}

// LaunchResponse replaces go-dap's body-less launch response so spawnerPid survives decoding.
type LaunchResponse struct {
	dap.Response
	Body LaunchResponseBody `json:"body"`
}

// --- listProcesses ---

type ListProcessesRequest struct {
	dap.Request
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ProcessListBody is returned by listProcesses and handleNewProcess.
type ProcessListBody struct {
	// Processes is nil when the adapter did not send a process array.
	Processes      []ProcessInfo   `json:"processes"`
	CurrentProcess json.RawMessage `json:"currentProcess,omitempty"`
}

// Current returns the adapter's current process.
func (b ProcessListBody) Current() OptionalPid {
	return ParseOptionalPid(b.CurrentProcess)
}

type ListProcessesResponse struct {
	dap.Response
	Body ProcessListBody `json:"body"`
}

// --- continueAfterProcessExit ---

type ContinueAfterProcessExitRequest struct {
	dap.Request
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ContinueAfterProcessExitResponseBody struct {
	Continue bool `json:"continue"`
}

type ContinueAfterProcessExitResponse struct {
	dap.Response
	Body ContinueAfterProcessExitResponseBody `json:"body"`
}

// --- handleNewProcess ---

type HandleNewProcessArguments struct {
	SpawnerPid *int   `json:"spawnerPid,omitempty"`
	Program    string `json:"program"`
}

type HandleNewProcessRequest struct {
	dap.Request
	Arguments HandleNewProcessArguments `json:"arguments"`
}

type HandleNewProcessResponse struct {
	dap.Response
	Body ProcessListBody `json:"body"`
}

// --- selectInferior ---

type SelectInferiorArguments struct {
	Pid int `json:"pid"`
}

type SelectInferiorRequest struct {
	dap.Request
	Arguments SelectInferiorArguments `json:"arguments"`
}

type SelectInferiorResponse struct {
	dap.Response
}

// --- addInferiors / detachInferiors ---

type InferiorsArguments struct {
	Pids []int `json:"pids"`
}

type AddInferiorsRequest struct {
	dap.Request
	Arguments InferiorsArguments `json:"arguments"`
}

type AddInferiorsResponse struct {
	dap.Response
}

type DetachInferiorsRequest struct {
	dap.Request
	Arguments InferiorsArguments `json:"arguments"`
}

type DetachInferiorsResponseBody struct {
	NewCurrentPid json.RawMessage `json:"newCurrentPid,omitempty"`
}

// CurrentPid returns the pid the adapter switched to after detaching.
func (b DetachInferiorsResponseBody) CurrentPid() OptionalPid {
	return ParseOptionalPid(b.NewCurrentPid)
}

type DetachInferiorsResponse struct {
	dap.Response
	Body DetachInferiorsResponseBody `json:"body"`
}

// --- events ---

type ExitedProcessEventBody struct {
	Pid int `json:"pid"`
}

type ExitedProcessEvent struct {
	dap.Event
	Body ExitedProcessEventBody `json:"body"`
}

// NewProcessEvent keeps its body opaque; the adapter resolves the details in handleNewProcess.
type NewProcessEvent struct {
	dap.Event
	Body json.RawMessage `json:"body,omitempty"`
}

// --- messages go-dap does not know ---

// UnknownRequest is a request with a command go-dap cannot decode.
type UnknownRequest struct {
	dap.Request
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// UnknownResponse is a response to a command go-dap cannot decode.
type UnknownResponse struct {
	dap.Response
	Body json.RawMessage `json:"body,omitempty"`
}

// UnknownEvent is an event go-dap cannot decode.
type UnknownEvent struct {
	dap.Event
	Body json.RawMessage `json:"body,omitempty"`
}

// newRequest fills the common request header; seq is assigned when the frame is sent.
func newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Type: "request"},
		Command:         command,
	}
}

// NewEvent fills the common event header.
func NewEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           event,
	}
}
