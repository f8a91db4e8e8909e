package processes

import (
	"sort"

	"github.com/ctagard/dap-inferiors/internal/dap"
	"github.com/ctagard/dap-inferiors/pkg/types"
)

// Delta is the attach/detach work needed to move between two selections.
type Delta struct {
	ToAdd    []int `json:"toAdd"`
	ToDetach []int `json:"toDetach"`
}

// Empty reports whether there is nothing to add or detach.
func (d Delta) Empty() bool {
	return len(d.ToAdd) == 0 && len(d.ToDetach) == 0
}

// DiffSelection compares the selected pids of baseline and updated.
// Both slices in the result are sorted and free of duplicates.
func DiffSelection(baseline, updated []types.DebugProcess) Delta {
	before := selectedPids(baseline)
	after := selectedPids(updated)

	delta := Delta{ToAdd: []int{}, ToDetach: []int{}}
	for pid := range after {
		if _, ok := before[pid]; !ok {
			delta.ToAdd = append(delta.ToAdd, pid)
		}
	}
	for pid := range before {
		if _, ok := after[pid]; !ok {
			delta.ToDetach = append(delta.ToDetach, pid)
		}
	}
	sort.Ints(delta.ToAdd)
	sort.Ints(delta.ToDetach)
	return delta
}

func selectedPids(set []types.DebugProcess) map[int]struct{} {
	pids := make(map[int]struct{}, len(set))
	for _, p := range set {
		if p.Selected {
			pids[p.Pid] = struct{}{}
		}
	}
	return pids
}

// ResolveActive picks the active pid after a reconciliation. The adapter's
// newCurrentPid from a detach wins; an explicit null or "none" there, or a pid
// that is not in set, means no active process. Otherwise the snapshot's currentProcess is used when it
// is still in set. There is no fallback to an arbitrary entry.
func ResolveActive(set []types.DebugProcess, detached *dap.DetachInferiorsResponseBody, snapshotCurrent dap.OptionalPid) *int {
	if detached != nil {
		current := detached.CurrentPid()
		switch current.Kind {
		case dap.PidNone:
			return nil
		case dap.PidNumber:
			if indexOf(set, current.Pid) < 0 {
				return nil
			}
			pid := current.Pid
			return &pid
		}
	}
	if pid, ok := snapshotCurrent.Get(); ok && indexOf(set, pid) >= 0 {
		return &pid
	}
	return nil
}
