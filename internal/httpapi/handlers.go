package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/you/social-pulse/internal/core"
)

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	posts, err := s.store.ListPosts(r.Context(), filters)
	if err != nil {
		s.storeError(w, "/posts", err)
		return
	}
	if posts == nil {
		posts = []core.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	filters, err := FiltersFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	count, err := s.store.CountPosts(r.Context(), filters)
	if err != nil {
		s.storeError(w, "/count", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	date, ok := requireDate(w, r)
	if !ok {
		return
	}
	rows, err := s.store.LoadDaily(r.Context(), date)
	if err != nil {
		s.storeError(w, "/daily", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "rows": rows})
}

func (s *Server) handleRolling(w http.ResponseWriter, r *http.Request) {
	date, ok := requireDate(w, r)
	if !ok {
		return
	}
	window, rows, err := s.store.LoadRolling(r.Context(), date)
	if err != nil {
		s.storeError(w, "/rolling", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_date": date, "window": window, "rows": rows})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	date, ok := requireDate(w, r)
	if !ok {
		return
	}
	ranking, err := s.store.LoadRanking(r.Context(), date)
	if err != nil {
		s.storeError(w, "/top", err)
		return
	}
	if raw := r.URL.Query().Get("platform"); raw != "" {
		platform, ok := normalizePlatform(raw)
		if !ok || platform == "" {
			http.Error(w, errBadPlatform.Error(), http.StatusBadRequest)
			return
		}
		for _, top := range ranking.ByPlatform {
			if string(top.Platform) == platform {
				writeJSON(w, http.StatusOK, top)
				return
			}
		}
		http.Error(w, "no ranking for platform", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	var date core.RunDate
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := core.ParseRunDate(raw)
		if err != nil {
			http.Error(w, errBadDate.Error(), http.StatusBadRequest)
			return
		}
		date = d
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), date, limit)
	if err != nil {
		s.storeError(w, "/runs", err)
		return
	}
	if runs == nil {
		runs = []core.RunReport{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func requireDate(w http.ResponseWriter, r *http.Request) (core.RunDate, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return "", false
	}
	d, err := core.ParseRunDate(raw)
	if err != nil {
		http.Error(w, errBadDate.Error(), http.StatusBadRequest)
		return "", false
	}
	return d, true
}

// storeError maps missing data to 404 and everything else to 500.
func (s *Server) storeError(w http.ResponseWriter, route string, err error) {
	if errors.Is(err, core.ErrNoData) {
		http.Error(w, "no data for date", http.StatusNotFound)
		return
	}
	s.metrics.IncStoreErrors(route)
	log.Printf("httpapi: %s: %v", route, err)
	http.Error(w, "store error", http.StatusInternalServerError)
}
