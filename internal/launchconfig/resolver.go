package launchconfig

import (
	"fmt"

	"github.com/ctagard/dap-inferiors/internal/errors"
)

// Target is what a debug session needs from a launch configuration.
type Target struct {
	Name         string
	DebuggerPath string
	Program      string
}

// ResolveTarget resolves the debugger and program of cfg. An empty value is
// kept empty so the launcher can apply its defaults.
func ResolveTarget(cfg *DebugConfiguration, ctx *ResolutionContext) (Target, error) {
	if cfg == nil {
		return Target{}, fmt.Errorf("configuration is nil")
	}
	if cfg.Request != "" && cfg.Request != "launch" && cfg.Request != "attach" {
		return Target{}, errors.ConfigInvalid(cfg.Name, fmt.Sprintf("request must be 'launch' or 'attach', got %q", cfg.Request))
	}

	debugger, err := ResolveVariables(cfg.DebuggerPath(), ctx)
	if err != nil {
		return Target{}, errors.ConfigInvalid(cfg.Name, fmt.Sprintf("failed to resolve gdbPath: %v", err))
	}
	program, err := ResolveVariables(cfg.Program, ctx)
	if err != nil {
		return Target{}, errors.ConfigInvalid(cfg.Name, fmt.Sprintf("failed to resolve program: %v", err))
	}

	return Target{Name: cfg.Name, DebuggerPath: debugger, Program: program}, nil
}

// Resolve discovers launch.json from workspace, picks the named configuration
// and resolves its target.
func (l *Loader) Resolve(workspace, name string) (Target, error) {
	lj, path, err := l.LoadAndDiscover(workspace)
	if err != nil {
		return Target{}, err
	}
	cfg, err := FindConfiguration(lj, name)
	if err != nil {
		return Target{}, err
	}
	return ResolveTarget(cfg, &ResolutionContext{WorkspaceFolder: GetWorkspaceFolder(path)})
}
