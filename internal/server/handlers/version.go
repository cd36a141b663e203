package handlers

import (
	"net/http"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"
)

// AppName is reported by the version endpoint.
const AppName = "simplescraper"

// BuildInfo is the metadata injected through ldflags.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"git_commit"`
	Date    string `json:"build_date"`
}

var (
	buildMu sync.RWMutex
	build   = BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown"}
)

// SetVersionInfo records build metadata. Empty values keep the previous ones.
func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	if version != "" {
		build.Version = version
	}
	if commit != "" {
		build.Commit = commit
	}
	if buildDate != "" {
		build.Date = buildDate
	}
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Name         string            `json:"name"`
	Build        BuildInfo         `json:"build"`
	GoVersion    string            `json:"go_version"`
	Platform     string            `json:"platform"`
	Dependencies map[string]string `json:"dependencies"`
}

// CurrentVersion assembles the version report shared by the endpoint and the CLI.
func CurrentVersion() VersionResponse {
	buildMu.RLock()
	info := build
	buildMu.RUnlock()

	deps := crucible.GetVersion()
	return VersionResponse{
		Name:      AppName,
		Build:     info,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Dependencies: map[string]string{
			"gofulmen": deps.Gofulmen,
			"crucible": deps.Crucible,
		},
	}
}

func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CurrentVersion())
}
