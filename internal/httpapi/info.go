package httpapi

import (
	"net/http"
	"runtime"
	"time"
)

// BuildInfo describes the compiled binary.
type BuildInfo struct {
	Version  string
	Revision string
	BuiltAt  time.Time
}

type infoResponse struct {
	Version   string  `json:"version"`
	Revision  string  `json:"rev"`
	BuiltAt   string  `json:"built_at,omitempty"`
	Go        string  `json:"go"`
	StartedAt string  `json:"started_at"`
	Uptime    float64 `json:"uptime_seconds"`
	Clients   int     `json:"ws_clients"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	resp := infoResponse{
		Version:   s.opts.Build.Version,
		Revision:  s.opts.Build.Revision,
		Go:        runtime.Version(),
		StartedAt: s.startedAt.UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startedAt).Seconds(),
	}
	if !s.opts.Build.BuiltAt.IsZero() {
		resp.BuiltAt = s.opts.Build.BuiltAt.UTC().Format(time.RFC3339)
	}
	s.mu.Lock()
	resp.Clients = len(s.clients)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}
