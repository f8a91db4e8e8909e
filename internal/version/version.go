// Package version provides version information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of dap-inferiors
const Version = "0.1.0"

// Commit is set at build time with -ldflags "-X .../internal/version.Commit=<sha>".
var Commit = "unknown"

// String returns the version line printed by the version command
func String() string {
	return fmt.Sprintf("dap-inferiors %s (commit %s, %s %s/%s)", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
