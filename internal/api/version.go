package api

import (
	"runtime/debug"
	"sync"

	"github.com/MJE43/baccarat-roads/internal/scan"
)

// Release builds may override these with -ldflags "-X". Otherwise the
// commit and time come from the VCS stamp the go tool embeds.
var (
	EngineVersion = scan.EngineVersion
	GitCommit     = ""
	BuildTime     = ""
)

var versionInfo = sync.OnceValue(func() VersionInfo {
	info := VersionInfo{
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, kv := range bi.Settings {
		switch kv.Key {
		case "vcs.revision":
			if info.GitCommit == "" {
				info.GitCommit = kv.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = kv.Value
			}
		case "vcs.modified":
			info.Dirty = kv.Value == "true"
		}
	}
	return info
})

// GetVersionInfo reports the engine version and build provenance.
func GetVersionInfo() VersionInfo { return versionInfo() }
