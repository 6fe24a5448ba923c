// Package version reports the build stamped in by the linker, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/lpi-control/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build for logs, e.g. "v0.3.0 (abc1234, 2026-03-01T12:00:00Z)".
func String() string {
	sha := GitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return fmt.Sprintf("%s (%s, %s)", Version, sha, BuildTime)
}
