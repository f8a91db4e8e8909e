// Package processes holds the session's inferior set and reconciles user
// selections against what the adapter reports.
package processes

import (
	"context"
	"sync"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-inferiors/internal/dap"
	"github.com/ctagard/dap-inferiors/pkg/types"
)

// Observer is called with a fresh view after every change to the set.
type Observer func(types.ProcessView)

// Registry is the authoritative process set of one session.
type Registry struct {
	log logr.Logger

	mu        sync.Mutex
	procs     []types.DebugProcess
	activePid *int
	observers map[int]Observer
	nextID    int

	exclusive *exclusiveLock
}

// NewRegistry creates an empty registry.
func NewRegistry(log logr.Logger) *Registry {
	return &Registry{
		log:       log,
		observers: make(map[int]Observer),
		exclusive: newExclusiveLock(),
	}
}

// ApplyAdapterSnapshot replaces the set with the adapter's list. Surviving
// pids keep their selection, new pids start unselected. The active process
// is the one matching current, or the first entry.
func (r *Registry) ApplyAdapterSnapshot(list []dap.ProcessInfo, current dap.OptionalPid) types.ProcessView {
	return r.applySnapshot(list, current, false)
}

// ApplyAutomaticPopulation is ApplyAdapterSnapshot followed by selecting the
// active process, so the current inferior is visible without user action.
func (r *Registry) ApplyAutomaticPopulation(list []dap.ProcessInfo, current dap.OptionalPid) types.ProcessView {
	return r.applySnapshot(list, current, true)
}

func (r *Registry) applySnapshot(list []dap.ProcessInfo, current dap.OptionalPid, selectActive bool) types.ProcessView {
	r.mu.Lock()
	procs := mergeSnapshot(r.procs, list)
	active := activeFor(procs, current)
	if selectActive && active != nil {
		setSelected(procs, *active, true)
	}
	r.procs = procs
	r.activePid = active
	view := r.viewLocked()
	r.mu.Unlock()

	r.log.V(1).Info("Applied adapter process snapshot", "count", len(procs),
		"activePid", pidValue(active), "selectActive", selectActive)
	r.notify(view)
	return view
}

// MergeForUserPrompt merges list with the current selection state without
// touching the registry. baseline is the merged set before the current
// process is force-selected; merged is what the user is shown.
func (r *Registry) MergeForUserPrompt(list []dap.ProcessInfo, current dap.OptionalPid) (merged, baseline []types.DebugProcess) {
	r.mu.Lock()
	baseline = mergeSnapshot(r.procs, list)
	r.mu.Unlock()

	merged = cloneSet(baseline)
	if pid, ok := current.Get(); ok {
		setSelected(merged, pid, true)
	}
	return merged, baseline
}

// Commit replaces the set and the active pid as decided by the caller.
func (r *Registry) Commit(set []types.DebugProcess, active *int) types.ProcessView {
	r.mu.Lock()
	r.procs = dedupe(cloneSet(set))
	r.activePid = copyPid(active)
	view := r.viewLocked()
	r.mu.Unlock()

	r.notify(view)
	return view
}

// SetActive makes pid the active process. It reports false when pid is not in the set.
func (r *Registry) SetActive(pid int) (types.ProcessView, bool) {
	r.mu.Lock()
	if indexOf(r.procs, pid) < 0 {
		view := r.viewLocked()
		r.mu.Unlock()
		return view, false
	}
	r.activePid = &pid
	view := r.viewLocked()
	r.mu.Unlock()

	r.notify(view)
	return view, true
}

// Clear empties the set and drops the active process.
func (r *Registry) Clear() types.ProcessView {
	r.mu.Lock()
	r.procs = nil
	r.activePid = nil
	view := r.viewLocked()
	r.mu.Unlock()

	r.log.V(1).Info("Cleared processes")
	r.notify(view)
	return view
}

// View returns a copy of the current state.
func (r *Registry) View() types.ProcessView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

// Subscribe registers fn for change notifications. The returned func unsubscribes.
func (r *Registry) Subscribe(fn Observer) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.observers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

// Exclusive runs fn while holding the registry's exclusive token, so that a
// request round trip and the mutation depending on it are not interleaved
// with another such sequence.
func (r *Registry) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := r.exclusive.Lock(ctx); err != nil {
		return err
	}
	defer r.exclusive.Unlock()
	return fn(ctx)
}

func (r *Registry) viewLocked() types.ProcessView {
	return types.ProcessView{
		Processes:    cloneSet(r.procs),
		ActivePid:    copyPid(r.activePid),
		HasProcesses: len(r.procs) > 0,
	}
}

func (r *Registry) notify(view types.ProcessView) {
	r.mu.Lock()
	observers := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		observers = append(observers, o)
	}
	r.mu.Unlock()

	for _, o := range observers {
		o(view)
	}
}

// mergeSnapshot builds the set for list, carrying selection over from prior.
// Duplicate pids in list keep their first occurrence.
func mergeSnapshot(prior []types.DebugProcess, list []dap.ProcessInfo) []types.DebugProcess {
	selected := make(map[int]bool, len(prior))
	for _, p := range prior {
		selected[p.Pid] = p.Selected
	}

	seen := make(map[int]struct{}, len(list))
	merged := make([]types.DebugProcess, 0, len(list))
	for _, info := range list {
		if _, dup := seen[info.Pid]; dup {
			continue
		}
		seen[info.Pid] = struct{}{}
		merged = append(merged, types.DebugProcess{
			Pid:      info.Pid,
			Name:     info.Name,
			Selected: selected[info.Pid],
		})
	}
	return merged
}

// activeFor picks the process matching current, falling back to the first entry.
func activeFor(set []types.DebugProcess, current dap.OptionalPid) *int {
	if pid, ok := current.Get(); ok && indexOf(set, pid) >= 0 {
		return &pid
	}
	if len(set) == 0 {
		return nil
	}
	first := set[0].Pid
	return &first
}

func dedupe(set []types.DebugProcess) []types.DebugProcess {
	seen := make(map[int]struct{}, len(set))
	out := set[:0]
	for _, p := range set {
		if _, dup := seen[p.Pid]; dup {
			continue
		}
		seen[p.Pid] = struct{}{}
		out = append(out, p)
	}
	return out
}

func setSelected(set []types.DebugProcess, pid int, selected bool) {
	if i := indexOf(set, pid); i >= 0 {
		set[i].Selected = selected
	}
}

func indexOf(set []types.DebugProcess, pid int) int {
	for i, p := range set {
		if p.Pid == pid {
			return i
		}
	}
	return -1
}

func cloneSet(set []types.DebugProcess) []types.DebugProcess {
	if set == nil {
		return []types.DebugProcess{}
	}
	return append(make([]types.DebugProcess, 0, len(set)), set...)
}

func copyPid(pid *int) *int {
	if pid == nil {
		return nil
	}
	v := *pid
	return &v
}

func pidValue(pid *int) interface{} {
	if pid == nil {
		return nil
	}
	return *pid
}
