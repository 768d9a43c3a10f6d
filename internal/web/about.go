package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"

	"papi-ng/internal/ingest"
)

// AboutResponse identifies the running binary.
type AboutResponse struct {
	Service   string   `json:"service"`
	NowUTC    string   `json:"now_utc"`
	GoVersion string   `json:"go_version"`
	Sources   []string `json:"sources"`
	Module    string   `json:"module,omitempty"`
	Version   string   `json:"version,omitempty"`
	Revision  string   `json:"revision,omitempty"`
	Modified  bool     `json:"modified,omitempty"`
	BuiltUTC  string   `json:"built_utc,omitempty"`
}

func aboutFromBuildInfo(bi *debug.BuildInfo, resp *AboutResponse) {
	if bi == nil {
		return
	}
	resp.Module = bi.Main.Path
	resp.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			resp.Revision = s.Value
		case "vcs.modified":
			resp.Modified = s.Value == "true"
		case "vcs.time":
			resp.BuiltUTC = s.Value
		}
	}
}

func AboutHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		resp := AboutResponse{
			Service:   serviceName,
			NowUTC:    time.Now().UTC().Format(time.RFC3339),
			GoVersion: runtime.Version(),
			Sources:   ingest.Names(),
		}
		if bi, ok := debug.ReadBuildInfo(); ok {
			aboutFromBuildInfo(bi, &resp)
		}
		writeJSON(w, resp)
	})
}
