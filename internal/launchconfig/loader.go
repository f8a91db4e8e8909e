package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ctagard/dap-inferiors/internal/errors"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// Loader finds and reads launch.json files.
type Loader struct {
	fs afero.Fs
}

// NewLoader creates a loader reading from fs.
func NewLoader(fs afero.Fs) *Loader {
	return &Loader{fs: fs}
}

// NewOSLoader reads from the real filesystem.
func NewOSLoader() *Loader {
	return NewLoader(afero.NewOsFs())
}

// LoadFromPath loads a launch.json file from an explicit path.
// Comments and trailing commas are accepted, as VS Code does.
func (l *Loader) LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}

	var lj LaunchJSON
	if err := json.Unmarshal(standardize(data), &lj); err != nil {
		return nil, fmt.Errorf("failed to parse launch.json: %w", err)
	}
	return &lj, nil
}

// Discover searches for a .vscode/launch.json file starting from the given path
// and walking up the directory tree until found or reaching the root.
func (l *Loader) Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	info, err := l.fs.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	current := absPath
	for {
		launchPath := filepath.Join(current, VSCodeDirName, LaunchJSONFileName)
		if _, err := l.fs.Stat(launchPath); err == nil {
			return launchPath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
}

// LoadAndDiscover finds a launch.json from the start path and loads it.
func (l *Loader) LoadAndDiscover(startPath string) (*LaunchJSON, string, error) {
	path, err := l.Discover(startPath)
	if err != nil {
		return nil, "", err
	}

	lj, err := l.LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}
	return lj, path, nil
}

// FindConfiguration finds a configuration by name in the LaunchJSON.
func FindConfiguration(lj *LaunchJSON, name string) (*DebugConfiguration, error) {
	for i := range lj.Configurations {
		if lj.Configurations[i].Name == name {
			return &lj.Configurations[i], nil
		}
	}
	return nil, errors.ConfigNotFound(name, ListConfigurationNames(lj))
}

// ListConfigurationNames returns a list of all configuration names.
func ListConfigurationNames(lj *LaunchJSON) []string {
	names := make([]string, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		names[i] = cfg.Name
	}
	return names
}

// GetWorkspaceFolder derives the workspace folder from the launch.json path.
// The workspace folder is the parent of the .vscode directory.
func GetWorkspaceFolder(launchJSONPath string) string {
	return filepath.Dir(filepath.Dir(launchJSONPath))
}

// standardize turns JSON with comments and trailing commas into plain JSON.
func standardize(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch c {
			case '\\':
				if i+1 < len(data) {
					i++
					out = append(out, data[i])
				}
			case '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			i += 2
			for i+1 < len(data) && !(data[i] == '*' && data[i+1] == '/') {
				i++
			}
			i++
		case c == '}' || c == ']':
			out = trimTrailingComma(out)
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func trimTrailingComma(out []byte) []byte {
	j := len(out) - 1
	for j >= 0 && (out[j] == ' ' || out[j] == '\t' || out[j] == '\n' || out[j] == '\r') {
		j--
	}
	if j >= 0 && out[j] == ',' {
		return append(out[:j], out[j+1:]...)
	}
	return out
}
