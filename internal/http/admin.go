// Package httpadmin exposes operator endpoints next to the read API.
package httpadmin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/you/social-pulse/internal/core"
)

// Runner executes the pipeline for one run date.
type Runner interface {
	Run(ctx context.Context, date core.RunDate) (core.RunReport, error)
}

type Server struct {
	runner Runner
	today  func() core.RunDate
}

// New returns admin handlers. today supplies the run date when a request
// does not name one.
func New(runner Runner, today func() core.RunDate) *Server {
	if today == nil {
		today = func() core.RunDate { return core.RunDateOf(time.Now()) }
	}
	return &Server{runner: runner, today: today}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/run", s.handleRun)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	date := s.today()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := core.ParseRunDate(raw)
		if err != nil {
			http.Error(w, "date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = d
	}

	report, err := s.runner.Run(r.Context(), date)
	status := http.StatusOK
	if err != nil {
		if errors.Is(err, context.Canceled) {
			http.Error(w, "run canceled", http.StatusServiceUnavailable)
			return
		}
		status = http.StatusInternalServerError
		if report.ID == "" {
			http.Error(w, "run failed: "+err.Error(), status)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(report)
}
