// Package buildinfo exposes compile-time metadata of the bridge binary.
package buildinfo

import "fmt"

// Overridden via ldflags during release builds.
var (
	// Version is the semantic version or git describe output of the binary.
	Version = "dev"

	// Commit is the git commit SHA baked into the binary.
	Commit = "none"

	// BuildDate records when the binary was built in UTC.
	BuildDate = "unknown"
)

// String renders the metadata for the startup banner and the health endpoint.
func String() string {
	return fmt.Sprintf("Version: %s, Commit: %s, BuiltAt: %s", Version, Commit, BuildDate)
}
