package app

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Build-time variables set via ldflags, e.g.
//
//	-X github.com/tejashwikalptaru/tubetune/internal/app.Version=v1.0.0
//
// Whatever is left at its default is filled from the build info the Go toolchain embeds.
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitTag    = ""
	BuildTime = "unknown"
)

// VersionInfo contains version information for the application.
type VersionInfo struct {
	Version   string
	GitCommit string
	GitTag    string
	BuildTime string
	GoVersion string
	Modified  bool
}

// GetVersionInfo returns the current version information.
func GetVersionInfo() VersionInfo {
	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		GitTag:    GitTag,
		BuildTime: BuildTime,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withBuildInfo(bi)
	}
	return info
}

// withBuildInfo fills the fields ldflags left at their defaults from the module version
// and the vcs.* settings stamped by `go build`.
func (v VersionInfo) withBuildInfo(bi *debug.BuildInfo) VersionInfo {
	v.GoVersion = bi.GoVersion
	if v.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		v.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if v.GitCommit == "unknown" {
				v.GitCommit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if v.BuildTime == "unknown" {
				v.BuildTime = s.Value
			}
		case "vcs.modified":
			v.Modified = s.Value == "true"
		}
	}
	return v
}

// FullString returns a detailed version string for logging.
func (v VersionInfo) FullString() string {
	version := v.Version
	if v.GitTag != "" {
		version = v.GitTag
	}
	commit := v.GitCommit
	if v.Modified {
		commit += "-dirty"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "TubeTune %s (commit: %s, built: %s", version, commit, v.BuildTime)
	if v.GoVersion != "" {
		fmt.Fprintf(&b, ", %s", v.GoVersion)
	}
	b.WriteString(")")
	return b.String()
}
