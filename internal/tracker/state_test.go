package tracker

import (
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldap "github.com/ctagard/dap-inferiors/internal/dap"
)

func decode(t *testing.T, raw string) dap.Message {
	t.Helper()
	msg, err := internaldap.DecodeMessage([]byte(raw))
	require.NoError(t, err)
	return msg
}

const (
	initializeWithProgress = `{"seq":1,"type":"request","command":"initialize","arguments":{"adapterID":"gdb","supportsProgressReporting":true}}`
	launchRequest          = `{"seq":2,"type":"request","command":"launch","arguments":{"program":"/bin/true"}}`
	launchWithSpawner      = `{"seq":3,"type":"response","request_seq":2,"success":true,"command":"launch","body":{"spawnerPid":42}}`
	launchWithoutSpawner   = `{"seq":3,"type":"response","request_seq":2,"success":true,"command":"launch"}`
	launchFailed           = `{"seq":3,"type":"response","request_seq":2,"success":false,"command":"launch","message":"no gdb"}`
	attachResponse         = `{"seq":4,"type":"response","request_seq":2,"success":true,"command":"attach"}`
	attachFailed           = `{"seq":4,"type":"response","request_seq":2,"success":false,"command":"attach","message":"denied"}`
	stackTraceResponse     = `{"seq":5,"type":"response","request_seq":4,"success":true,"command":"stackTrace","body":{"stackFrames":[],"totalFrames":0}}`
	exitedProcessEvent     = `{"seq":6,"type":"event","event":"exitedProcess","body":{"pid":2}}`
	newProcessEvent        = `{"seq":7,"type":"event","event":"newProcess","body":{"pid":77}}`
)

type step struct {
	raw       string
	direction internaldap.Direction
}

func run(t *testing.T, lc Lifecycle, steps ...step) (Lifecycle, []Command) {
	t.Helper()
	var all []Command
	for _, s := range steps {
		var cmds []Command
		lc, cmds = Transition(lc, decode(t, s.raw), s.direction)
		all = append(all, cmds...)
	}
	return lc, all
}

func up(raw string) step   { return step{raw, internaldap.Upstream} }
func down(raw string) step { return step{raw, internaldap.Downstream} }

func TestLaunchWithSpawnerPopulatesOnce(t *testing.T) {
	lc, cmds := run(t, Initial(),
		up(initializeWithProgress),
		up(launchRequest),
		down(launchWithSpawner),
		down(stackTraceResponse),
		down(stackTraceResponse),
	)

	assert.Equal(t, []Command{
		StartLaunchProgress{ProgressID: "launch-2", RequestSeq: 2},
		EndLaunchProgress{ProgressID: "launch-2", Success: true},
		PopulateProcesses{},
	}, cmds)
	require.NotNil(t, lc.SpawnerPid)
	assert.Equal(t, 42, *lc.SpawnerPid)
	assert.False(t, lc.LaunchedWithoutSpawner)
	assert.True(t, lc.ListProcessesCalled)
	assert.Equal(t, PhasePopulatedOnce, lc.Phase)
	assert.Empty(t, lc.LaunchProgressID)
}

func TestLaunchPhases(t *testing.T) {
	lc, _ := run(t, Initial(), up(launchRequest))
	assert.Equal(t, PhaseLaunchPending, lc.Phase)

	lc, _ = run(t, lc, down(launchWithoutSpawner))
	assert.Equal(t, PhaseLaunched, lc.Phase)
	assert.True(t, lc.LaunchedWithoutSpawner)
	assert.Nil(t, lc.SpawnerPid)
}

func TestLaunchWithoutProgressSupportOpensNoIndicator(t *testing.T) {
	_, cmds := run(t, Initial(), up(launchRequest), down(launchWithoutSpawner))
	assert.Empty(t, cmds)
}

func TestFailedLaunchEndsProgressAndReturnsToIdle(t *testing.T) {
	lc, cmds := run(t, Initial(), up(initializeWithProgress), up(launchRequest), down(launchFailed), down(stackTraceResponse))

	assert.Equal(t, []Command{
		StartLaunchProgress{ProgressID: "launch-2", RequestSeq: 2},
		EndLaunchProgress{ProgressID: "launch-2", Success: false, Message: "no gdb"},
	}, cmds)
	assert.Equal(t, PhaseIdle, lc.Phase)
	assert.False(t, lc.ListProcessesCalled)
}

func TestStackTraceBeforeLaunchOrAttachIsIgnored(t *testing.T) {
	lc, cmds := run(t, Initial(), down(stackTraceResponse))
	assert.Empty(t, cmds)
	assert.False(t, lc.ListProcessesCalled)
}

func TestAttachEnablesPopulation(t *testing.T) {
	lc, cmds := run(t, Initial(), down(attachFailed), down(stackTraceResponse))
	assert.Empty(t, cmds)
	assert.False(t, lc.Attached)

	lc, cmds = run(t, lc, down(attachResponse))
	assert.Empty(t, cmds)
	assert.True(t, lc.Attached)
	assert.Equal(t, PhaseAttached, lc.Phase)

	lc, cmds = run(t, lc, down(stackTraceResponse))
	assert.Equal(t, []Command{PopulateProcesses{}}, cmds)
	assert.Equal(t, PhasePopulatedOnce, lc.Phase)
}

func TestUpstreamStackTraceDoesNotCount(t *testing.T) {
	lc, _ := run(t, Initial(), down(attachResponse))
	_, cmds := run(t, lc, up(`{"seq":9,"type":"request","command":"stackTrace","arguments":{"threadId":1}}`))
	assert.Empty(t, cmds)
}

func TestProcessEvents(t *testing.T) {
	lc, _ := run(t, Initial(), up(launchRequest), down(launchWithSpawner), down(stackTraceResponse))

	_, cmds := run(t, lc, down(exitedProcessEvent))
	assert.Equal(t, []Command{HandleExitedProcess{Pid: 2}}, cmds)

	// newProcess is handled even after population already happened.
	_, cmds = run(t, lc, down(newProcessEvent))
	require.Len(t, cmds, 1)
	np := cmds[0].(HandleNewProcess)
	require.NotNil(t, np.SpawnerPid)
	assert.Equal(t, 42, *np.SpawnerPid)
}

func TestResetClearsLifecycle(t *testing.T) {
	lc, _ := run(t, Initial(), up(initializeWithProgress), down(attachResponse), up(launchRequest), down(launchWithSpawner), down(stackTraceResponse))

	lc, cmds := Reset(lc)
	assert.Equal(t, []Command{ClearProcesses{}}, cmds)
	assert.Equal(t, PhaseIdle, lc.Phase)
	assert.False(t, lc.Attached)
	assert.False(t, lc.ListProcessesCalled)
	assert.Nil(t, lc.SpawnerPid)
	assert.False(t, lc.LaunchedWithoutSpawner)
	assert.True(t, lc.ProgressSupported)
}
