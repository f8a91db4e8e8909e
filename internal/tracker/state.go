package tracker

import (
	"strconv"

	"github.com/google/go-dap"

	internaldap "github.com/ctagard/dap-inferiors/internal/dap"
)

// Phase is the session lifecycle as inferred from protocol traffic.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLaunchPending
	PhaseLaunched
	PhaseAttached
	PhasePopulatedOnce
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLaunchPending:
		return "launch-pending"
	case PhaseLaunched:
		return "launched"
	case PhaseAttached:
		return "attached"
	case PhasePopulatedOnce:
		return "populated"
	default:
		return "unknown"
	}
}

// Lifecycle is everything the tracker remembers about one session.
type Lifecycle struct {
	Phase               Phase
	Attached            bool
	ListProcessesCalled bool
	// SpawnerPid is the helper process that starts the debuggee, when the adapter reports one.
	SpawnerPid             *int
	LaunchedWithoutSpawner bool

	// ProgressSupported mirrors the IDE's supportsProgressReporting capability.
	ProgressSupported bool
	// LaunchProgressID is the progress indicator open for a pending launch.
	LaunchProgressID string
}

// Initial returns the lifecycle of a fresh session.
func Initial() Lifecycle {
	return Lifecycle{Phase: PhaseIdle}
}

// Launched reports whether a launch request has succeeded in this session.
func (lc Lifecycle) Launched() bool {
	return lc.SpawnerPid != nil || lc.LaunchedWithoutSpawner
}

// Command is a side effect requested by Transition.
type Command interface {
	isCommand()
}

// StartLaunchProgress opens the "launching" indicator.
type StartLaunchProgress struct {
	ProgressID string
	RequestSeq int
}

// EndLaunchProgress closes the "launching" indicator.
type EndLaunchProgress struct {
	ProgressID string
	Success    bool
	Message    string
}

// PopulateProcesses fetches the process list and applies it automatically.
type PopulateProcesses struct{}

// HandleExitedProcess reacts to a debuggee exit.
type HandleExitedProcess struct {
	Pid int
}

// HandleNewProcess asks the adapter to take over a newly spawned process.
type HandleNewProcess struct {
	SpawnerPid *int
}

// ClearProcesses empties the process set.
type ClearProcesses struct{}

func (StartLaunchProgress) isCommand() {}
func (EndLaunchProgress) isCommand()   {}
func (PopulateProcesses) isCommand()   {}
func (HandleExitedProcess) isCommand() {}
func (HandleNewProcess) isCommand()    {}
func (ClearProcesses) isCommand()      {}

// Transition computes the lifecycle after msg travelled in direction and the
// side effects that follow from it. It never performs I/O.
func Transition(lc Lifecycle, msg dap.Message, direction internaldap.Direction) (Lifecycle, []Command) {
	if direction == internaldap.Upstream {
		return upstream(lc, msg)
	}
	return downstream(lc, msg)
}

// Reset returns the lifecycle to its initial state once the session ends.
// The IDE's progress capability outlives the session reset.
func Reset(lc Lifecycle) (Lifecycle, []Command) {
	next := Initial()
	next.ProgressSupported = lc.ProgressSupported
	return next, []Command{ClearProcesses{}}
}

func upstream(lc Lifecycle, msg dap.Message) (Lifecycle, []Command) {
	switch req := msg.(type) {
	case *dap.InitializeRequest:
		lc.ProgressSupported = req.Arguments.SupportsProgressReporting
		return lc, nil
	case *dap.LaunchRequest:
		lc.Phase = PhaseLaunchPending
		if !lc.ProgressSupported {
			return lc, nil
		}
		lc.LaunchProgressID = "launch-" + strconv.Itoa(req.Seq)
		return lc, []Command{StartLaunchProgress{ProgressID: lc.LaunchProgressID, RequestSeq: req.Seq}}
	}
	return lc, nil
}

func downstream(lc Lifecycle, msg dap.Message) (Lifecycle, []Command) {
	switch ev := msg.(type) {
	case *internaldap.ExitedProcessEvent:
		return lc, []Command{HandleExitedProcess{Pid: ev.Body.Pid}}
	case *internaldap.NewProcessEvent:
		return lc, []Command{HandleNewProcess{SpawnerPid: copyPid(lc.SpawnerPid)}}
	}

	rm, ok := msg.(dap.ResponseMessage)
	if !ok {
		return lc, nil
	}
	resp := rm.GetResponse()

	switch resp.Command {
	case "launch":
		return launchResponse(lc, msg, resp)
	case "attach":
		if resp.Success {
			lc.Attached = true
			if lc.Phase != PhasePopulatedOnce {
				lc.Phase = PhaseAttached
			}
		}
		return lc, nil
	case "stackTrace":
		if !resp.Success || lc.ListProcessesCalled {
			return lc, nil
		}
		if !lc.Attached && !lc.Launched() {
			return lc, nil
		}
		lc.ListProcessesCalled = true
		lc.Phase = PhasePopulatedOnce
		return lc, []Command{PopulateProcesses{}}
	}
	return lc, nil
}

func launchResponse(lc Lifecycle, msg dap.Message, resp *dap.Response) (Lifecycle, []Command) {
	var cmds []Command
	if lc.LaunchProgressID != "" {
		end := EndLaunchProgress{ProgressID: lc.LaunchProgressID, Success: resp.Success}
		if !resp.Success {
			end.Message = internaldap.ErrorText(msg)
		}
		cmds = append(cmds, end)
		lc.LaunchProgressID = ""
	}

	if !resp.Success {
		if lc.Phase == PhaseLaunchPending {
			lc.Phase = PhaseIdle
		}
		return lc, cmds
	}

	if lr, ok := msg.(*internaldap.LaunchResponse); ok && lr.Body.SpawnerPid != nil {
		lc.SpawnerPid = copyPid(lr.Body.SpawnerPid)
		lc.LaunchedWithoutSpawner = false
	} else {
		lc.SpawnerPid = nil
		lc.LaunchedWithoutSpawner = true
	}
	if lc.Phase == PhaseIdle || lc.Phase == PhaseLaunchPending {
		lc.Phase = PhaseLaunched
	}
	return lc, cmds
}

func copyPid(pid *int) *int {
	if pid == nil {
		return nil
	}
	v := *pid
	return &v
}
