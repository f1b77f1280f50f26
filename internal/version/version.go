// Package version holds build metadata injected with -ldflags -X.
package version

import (
	"fmt"
	"runtime"
)

// Set via -ldflags "-X github.com/smazurov/v4l2cam/internal/version.Version=..." at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	BuildID   = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	BuildID   string `json:"build_id"`
	GoVersion string `json:"go_version"`
	Compiler  string `json:"compiler"`
	Platform  string `json:"platform"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns the application version string.
func String() string {
	return Version
}

// Long returns the version line printed by --version.
func Long() string {
	info := Get()
	if info.GitCommit == "unknown" {
		return fmt.Sprintf("%s (%s, %s)", info.Version, info.GoVersion, info.Platform)
	}
	return fmt.Sprintf("%s (commit %s, built %s, %s, %s)",
		info.Version, info.GitCommit, info.BuildDate, info.GoVersion, info.Platform)
}
