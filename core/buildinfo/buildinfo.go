// Package buildinfo reports which build of the bot is running.
//
// Values are stamped with -ldflags, for example
//
//	-X 'github.com/m3rciful/walletbot/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/walletbot/core/buildinfo.Commit=abcdef0'
//
// Unstamped builds fall back to the VCS data recorded by the Go toolchain.
package buildinfo

import (
	"runtime/debug"
	"sync"
)

// Stamped at link time; Get fills what is left empty.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Info is the resolved build identity.
type Info struct {
	Version string
	Commit  string
	Date    string
	Dirty   bool
}

var (
	resolveOnce sync.Once
	resolved    Info
)

// Get returns the stamped values completed from debug.ReadBuildInfo.
func Get() Info {
	resolveOnce.Do(func() {
		resolved = Info{Version: Version, Commit: Commit, Date: Date}
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		resolved = fromSettings(resolved, bi.Settings)
	})
	return resolved
}

func fromSettings(info Info, settings []debug.BuildSetting) Info {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		}
	}
	if info.Commit == "" {
		info.Commit = "local"
	}
	return info
}
