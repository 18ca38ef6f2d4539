// Package version carries build metadata stamped in by the linker.
package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/parley/internal/version.Version=0.3.0
//	  -X github.com/soyeahso/parley/internal/version.Commit=$(git rev-parse HEAD)
//	  -X github.com/soyeahso/parley/internal/version.Date=$(date -u +%F)"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// BuildInfo is the machine-readable form of the build metadata.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
}

// Get returns the build metadata.
func Get() BuildInfo {
	return BuildInfo{
		Version: Version,
		Commit:  short(Commit),
		Date:    Date,
		Go:      runtime.Version(),
	}
}

// Info returns a one-line version string for humans.
func Info() string {
	return fmt.Sprintf("parley %s (%s, built %s, %s %s/%s)",
		Version, short(Commit), Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
