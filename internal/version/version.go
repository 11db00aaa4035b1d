// Package appversion provides build version information injected via ldflags.
//
// All variables are set at build time:
//
//	-ldflags="-X github.com/dantte-lp/counterd/internal/version.Version=v0.3.0
//	          -X github.com/dantte-lp/counterd/internal/version.GitCommit=abc1234
//	          -X github.com/dantte-lp/counterd/internal/version.BuildDate=2026-10-01T12:00:00Z"
package appversion

import "fmt"

// Version is the semantic version (e.g., "v0.3.0" or "dev").
var Version = "dev"

// GitCommit is the short git commit hash at build time.
var GitCommit = "unknown"

// BuildDate is the RFC 3339 build timestamp.
var BuildDate = "unknown"

// Info is the build information of one binary, shaped for structured output.
type Info struct {
	Binary    string `json:"binary"     yaml:"binary"`
	Version   string `json:"version"    yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

// Get returns the build information for binary.
func Get(binary string) Info {
	return Info{
		Binary:    binary,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}
}

// Full returns a human-readable multi-line version string.
func Full(binary string) string {
	i := Get(binary)
	return fmt.Sprintf("%s %s\n  commit:  %s\n  built:   %s", i.Binary, i.Version, i.GitCommit, i.BuildDate)
}
