// Package version reports build information. The variables are set with
// -ldflags "-X github.com/r9s-ai/cardq/internal/version.Version=...".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = ""
	BuildDate = ""
)

type Info struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
}

// Get returns the build information, falling back to the VCS revision
// embedded by the Go toolchain when Commit was not set at link time.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
	if info.Commit == "" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					info.Commit = s.Value
				}
			}
		}
	}
	return info
}

func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if commit == "" {
		commit = "unknown"
	}
	s := fmt.Sprintf("cardq %s (commit %s, %s)", i.Version, commit, i.GoVersion)
	if i.BuildDate != "" {
		s += " built " + i.BuildDate
	}
	return s
}
