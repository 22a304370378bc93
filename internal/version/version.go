// Package version carries build metadata injected via ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Implementation is the program name reported in user agents.
const Implementation = "rollstat"

// Build-time variables injected via ldflags.
var (
	Release   = "dev"
	GitCommit = "unknown"
	GOOS      = runtime.GOOS
	GOARCH    = runtime.GOARCH
)

// Full returns the version string in the format "release (commit)".
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Release, GitCommit)
}

// FullWithPlatform returns the version string with platform information.
func FullWithPlatform() string {
	return fmt.Sprintf("%s (commit: %s, %s/%s)", Release, GitCommit, GOOS, GOARCH)
}

// UserAgent returns the User-Agent sent by outbound exporters.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s/%s)", Implementation, Release, GOOS, GOARCH)
}
