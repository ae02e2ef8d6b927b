// Package build holds build-time metadata injected via -ldflags.
package build

var (
	// Version is the release version, overridden at build time.
	Version = "dev"

	// Commit is the git commit hash, overridden at build time.
	Commit = ""
)
