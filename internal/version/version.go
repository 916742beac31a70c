// Package version provides build-time version information.
// These variables are set at build time using ldflags:
//
//	go build -ldflags "-X github.com/leadgrid/leadgrid-api/internal/version.Version=1.0.0 ..."
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "0.0.0-dev"

	// Commit is the git commit SHA
	Commit = "unknown"

	// Date is the build date in RFC3339 format
	Date = "unknown"
)

// Info holds all version information.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the version info.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String returns a human-readable version string.
func (i Info) String() string {
	return fmt.Sprintf("%s (%s) built %s", i.Version, i.Commit, i.Date)
}
