// Package launchconfig reads the debugger and program of a gdb debug session
// from a VS Code launch.json.
package launchconfig

import (
	"encoding/json"
)

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
}

// DebugConfiguration represents a single debug configuration in launch.json.
type DebugConfiguration struct {
	Type    string `json:"type"`
	Request string `json:"request"`
	Name    string `json:"name"`

	Program string `json:"program,omitempty"`
	Cwd     string `json:"cwd,omitempty"`

	// GdbPath is the native debugger the adapter drives.
	GdbPath string `json:"gdbPath,omitempty"`
	// MIDebuggerPath is the cppdbg spelling of GdbPath.
	MIDebuggerPath string `json:"miDebuggerPath,omitempty"`

	// Extra holds every property not listed above.
	Extra map[string]interface{} `json:"-"`
}

var knownFields = map[string]bool{
	"type": true, "request": true, "name": true,
	"program": true, "cwd": true,
	"gdbPath": true, "miDebuggerPath": true,
}

// UnmarshalJSON implements custom unmarshaling to capture unknown fields.
func (c *DebugConfiguration) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type Alias DebugConfiguration
	var alias Alias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*c = DebugConfiguration(alias)

	c.Extra = make(map[string]interface{})
	for key, value := range raw {
		if knownFields[key] {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(value, &v); err != nil {
			return err
		}
		c.Extra[key] = v
	}
	return nil
}

// DebuggerPath returns the configured debugger, preferring gdbPath.
func (c *DebugConfiguration) DebuggerPath() string {
	if c.GdbPath != "" {
		return c.GdbPath
	}
	return c.MIDebuggerPath
}

// ResolutionContext provides context for variable resolution.
type ResolutionContext struct {
	WorkspaceFolder string            // Root folder of the workspace
	EnvOverrides    map[string]string // Override environment variables
}
