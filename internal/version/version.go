// Package version carries build metadata set with -ldflags, for example
//
//	go build -ldflags "-X github.com/banshee-data/boxtrack/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	// Version is the release version.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for -version output and logs.
func String() string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("boxtrack %s (%s, built %s)", Version, sha, BuildTime)
}
