// Package pathutil validates debugger and program paths before anything is spawned.
package pathutil

import (
	"github.com/spf13/afero"
)

// Validator answers file predicates against a filesystem.
type Validator struct {
	fs afero.Fs
}

// NewValidator creates a validator over fs.
func NewValidator(fs afero.Fs) *Validator {
	return &Validator{fs: fs}
}

// NewOSValidator validates against the real filesystem.
func NewOSValidator() *Validator {
	return NewValidator(afero.NewOsFs())
}

// IsRegularFile reports whether path names an existing regular file.
// Symlinks are followed.
func (v *Validator) IsRegularFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := v.fs.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

// IsExecutableRef reports whether path is either the bare executable name
// (left for PATH resolution by the adapter) or an existing regular file.
func (v *Validator) IsExecutableRef(path, bareName string) bool {
	if bareName != "" && path == bareName {
		return true
	}
	return v.IsRegularFile(path)
}
