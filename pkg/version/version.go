// Package version provides build version information for the consensus binary.
package version

import "fmt"

// Build information variables, set at build time via ldflags.
// Example: go build -ldflags "-X consensus/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version (e.g., "v1.2.3" or "dev" for development builds).
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the build information on one line.
func String() string {
	return fmt.Sprintf("consensus %s (commit %s, built %s)", Version, Commit, Date)
}
