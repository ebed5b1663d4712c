package config

// Build metadata injected at compile time:
//
//	go build -ldflags "-X powersched/internal/config.version=1.2.3 \
//	    -X powersched/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X powersched/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Local builds without ldflags keep the defaults below.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo snapshots the linker-injected build metadata.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
