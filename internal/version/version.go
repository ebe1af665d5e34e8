// Package version exposes build metadata injected at link time.
package version

import "runtime"

// Set via -ldflags "-X .../internal/version.Version=... -X .../internal/version.Commit=..."
var (
	Version = "dev"
	Commit  = "unknown"
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
	}
}
