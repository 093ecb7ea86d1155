// Package version holds build metadata stamped in with -ldflags.
package version

import (
	"runtime/debug"
	"time"
)

var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
}

// Resolve fills the gaps ldflags left. Without a stamped version the module
// version from the build info is used, then the build time, then "devel".
func Resolve() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
	}
	bi, ok := debug.ReadBuildInfo()
	if ok {
		info.GoVersion = bi.GoVersion
		if info.Commit == "" {
			for _, s := range bi.Settings {
				if s.Key == "vcs.revision" {
					info.Commit = s.Value
				}
			}
		}
	}
	switch {
	case info.Version != "":
	case ok && bi.Main.Version != "" && bi.Main.Version != "(devel)":
		info.Version = bi.Main.Version
	case info.BuildTime != "":
		info.Version = info.BuildTime
	default:
		info.Version = "devel"
	}
	if info.BuildTime != "" {
		if t, err := time.Parse(time.RFC3339, info.BuildTime); err == nil {
			info.BuildTime = t.UTC().Format(time.RFC3339)
		}
	}
	return info
}

func String() string {
	info := Resolve()
	if info.Commit == "" {
		return info.Version
	}
	return info.Version + " (" + shortCommit(info.Commit) + ")"
}

func shortCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}
