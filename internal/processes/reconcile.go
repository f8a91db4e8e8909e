package processes

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/ctagard/dap-inferiors/internal/dap"
	"github.com/ctagard/dap-inferiors/internal/errors"
	"github.com/ctagard/dap-inferiors/pkg/types"
)

// Inferiors is the subset of the adapter's custom requests the reconciler needs.
// *dap.InferiorClient implements it.
type Inferiors interface {
	ListProcesses(ctx context.Context) (*dap.ProcessListBody, error)
	SelectInferior(ctx context.Context, pid int) error
	AddInferiors(ctx context.Context, pids []int) error
	DetachInferiors(ctx context.Context, pids []int) (*dap.DetachInferiorsResponseBody, error)
}

// Prompter asks the user which processes should be visible.
// candidates arrive with the current selection pre-checked. ok is false when
// the user cancelled.
type Prompter interface {
	PromptSelection(ctx context.Context, candidates []types.DebugProcess) (selected []int, ok bool, err error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, candidates []types.DebugProcess) ([]int, bool, error)

func (f PrompterFunc) PromptSelection(ctx context.Context, candidates []types.DebugProcess) ([]int, bool, error) {
	return f(ctx, candidates)
}

// Result describes the outcome of a refresh.
type Result struct {
	Cancelled bool `json:"cancelled"`
	// Candidates is what the user was shown.
	Candidates []types.DebugProcess `json:"candidates"`
	Delta      Delta                `json:"delta"`
	View       types.ProcessView    `json:"view"`
	// Warnings lists add/detach round trips the adapter rejected.
	Warnings []string `json:"warnings,omitempty"`
}

// Reconciler runs user-driven refreshes of a Registry against the adapter.
type Reconciler struct {
	registry  *Registry
	inferiors Inferiors
	log       logr.Logger
}

// NewReconciler creates a reconciler for registry.
func NewReconciler(registry *Registry, inferiors Inferiors, log logr.Logger) *Reconciler {
	return &Reconciler{registry: registry, inferiors: inferiors, log: log}
}

// Refresh fetches the adapter's processes, lets the user choose the visible
// ones and sends the resulting addInferiors/detachInferiors requests. Only
// acknowledged changes reach the registry; a cancelled prompt changes nothing.
func (r *Reconciler) Refresh(ctx context.Context, prompter Prompter) (Result, error) {
	var result Result
	err := r.registry.Exclusive(ctx, func(ctx context.Context) error {
		body, err := r.inferiors.ListProcesses(ctx)
		if err != nil {
			return err
		}
		if body.Processes == nil {
			return errors.ProtocolRequestFailed(dap.CommandListProcesses, fmt.Errorf("response carries no process list"))
		}

		merged, baseline := r.registry.MergeForUserPrompt(body.Processes, body.Current())
		result.Candidates = merged

		selected, ok, err := prompter.PromptSelection(ctx, cloneSet(merged))
		if err != nil {
			return err
		}
		if !ok {
			r.log.V(1).Info("Process selection cancelled")
			result.Cancelled = true
			result.View = r.registry.View()
			return nil
		}

		updated := applySelection(merged, selected)
		delta := DiffSelection(baseline, updated)
		result.Delta = delta
		if delta.Empty() {
			r.log.V(1).Info("Process selection unchanged")
		}

		final := cloneSet(baseline)
		if len(delta.ToAdd) > 0 {
			if err := r.inferiors.AddInferiors(ctx, delta.ToAdd); err != nil {
				r.log.Error(err, "Adapter rejected addInferiors", "pids", delta.ToAdd)
				result.Warnings = append(result.Warnings, err.Error())
			} else {
				for _, pid := range delta.ToAdd {
					setSelected(final, pid, true)
				}
			}
		}

		var detached *dap.DetachInferiorsResponseBody
		if len(delta.ToDetach) > 0 {
			resp, err := r.inferiors.DetachInferiors(ctx, delta.ToDetach)
			if err != nil {
				r.log.Error(err, "Adapter rejected detachInferiors", "pids", delta.ToDetach)
				result.Warnings = append(result.Warnings, err.Error())
			} else {
				detached = resp
				for _, pid := range delta.ToDetach {
					setSelected(final, pid, false)
				}
			}
		}

		active := ResolveActive(final, detached, body.Current())
		result.View = r.registry.Commit(final, active)
		r.log.Info("Reconciled process selection",
			"added", delta.ToAdd, "detached", delta.ToDetach, "activePid", pidValue(active))
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// SelectInferior makes pid the adapter's current inferior and records it as active.
func (r *Reconciler) SelectInferior(ctx context.Context, pid int) (types.ProcessView, error) {
	var view types.ProcessView
	err := r.registry.Exclusive(ctx, func(ctx context.Context) error {
		current := r.registry.View()
		if indexOf(current.Processes, pid) < 0 {
			return errors.InvalidParameter("pid", pid, "a pid from the current process list")
		}
		if err := r.inferiors.SelectInferior(ctx, pid); err != nil {
			return err
		}
		view, _ = r.registry.SetActive(pid)
		return nil
	})
	return view, err
}

// applySelection returns a copy of candidates with exactly the given pids selected.
// Pids that are not candidates are ignored.
func applySelection(candidates []types.DebugProcess, selected []int) []types.DebugProcess {
	chosen := make(map[int]struct{}, len(selected))
	for _, pid := range selected {
		chosen[pid] = struct{}{}
	}
	updated := cloneSet(candidates)
	for i := range updated {
		_, ok := chosen[updated[i].Pid]
		updated[i].Selected = ok
	}
	return updated
}
