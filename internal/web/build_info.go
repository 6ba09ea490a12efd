// internal/web/build_info.go
package web

import (
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// BuildInfo holds build-time information
type BuildInfo struct {
	Version    string   `json:"version"`
	GitCommit  string   `json:"git_commit"`
	BuildTime  string   `json:"build_time"`
	GoVersion  string   `json:"go_version"`
	GoOS       string   `json:"go_os"`
	GoArch     string   `json:"go_arch"`
	Modified   bool     `json:"modified"`
	ModuleInfo []Module `json:"modules"`
}

type Module struct {
	Path    string `json:"path"`
	Version string `json:"version"`
	Sum     string `json:"sum,omitempty"`
	Replace string `json:"replace,omitempty"`
}

// Set at build time with -ldflags "-X camwatch/internal/web.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// ReadBuildInfo merges the ldflags values with what the Go toolchain embeds.
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:    Version,
		GitCommit:  GitCommit,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		GoOS:       runtime.GOOS,
		GoArch:     runtime.GOARCH,
		ModuleInfo: []Module{},
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
			}
		case "vcs.time":
			if info.BuildTime == "unknown" {
				info.BuildTime = setting.Value
			}
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		}
	}
	for _, dep := range bi.Deps {
		m := Module{Path: dep.Path, Version: dep.Version, Sum: dep.Sum}
		if dep.Replace != nil {
			m.Replace = dep.Replace.Path + "@" + dep.Replace.Version
		}
		info.ModuleInfo = append(info.ModuleInfo, m)
	}
	return info
}

// GET /api/build
func (s *Server) getBuildInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": ReadBuildInfo()})
}
