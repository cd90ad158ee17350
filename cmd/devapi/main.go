package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/you/social-pulse/internal/analytics"
	"github.com/you/social-pulse/internal/core"
	"github.com/you/social-pulse/internal/httpapi"
	"github.com/you/social-pulse/internal/pipeline"
	"github.com/you/social-pulse/internal/rawdata"
	"github.com/you/social-pulse/internal/store"
)

// emitReq drops raw records for one platform and date, then reruns the
// pipeline for that date.
type emitReq struct {
	Platform string `json:"platform"`
	RunDate  string `json:"run_date,omitempty"`
	Records  []any  `json:"records"`
}

func main() {
	var (
		addr   string
		sqlite string
		raw    string
	)

	flag.StringVar(&addr, "addr", ":8765", "HTTP listen address")
	flag.StringVar(&sqlite, "db", "devapi.db", "SQLite database path")
	flag.StringVar(&raw, "raw-dir", "devapi-raw", "Raw file root")
	flag.Parse()

	s, err := store.OpenSQLite(sqlite)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()
	if err := s.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}

	rawDir := rawdata.New(raw)
	pipe, err := pipeline.New(pipeline.Deps{
		Store:   s,
		Raw:     rawDir,
		Metrics: pipeline.NewMetrics(prometheus.NewRegistry()),
	}, pipeline.Options{Analytics: analytics.DefaultOptions()})
	if err != nil {
		log.Fatalf("pipeline: %v", err)
	}

	api := httpapi.New(s, httpapi.Options{Addr: addr, EnableMetrics: true, EnableAccessLog: true})
	pipe.SetBroadcaster(api)

	log.Printf("devapi listening on %s (db=%s raw=%s)", addr, sqlite, raw)

	api.Mux().HandleFunc("POST /emit", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var req emitReq
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.Platform == "" || len(req.Records) == 0 {
			http.Error(w, "platform and records required", http.StatusBadRequest)
			return
		}
		date := core.RunDateOf(time.Now())
		if req.RunDate != "" {
			d, err := core.ParseRunDate(req.RunDate)
			if err != nil {
				http.Error(w, "run_date must be YYYY-MM-DD", http.StatusBadRequest)
				return
			}
			date = d
		}

		path, err := rawDir.Save(core.Platform(req.Platform), date, req.Records)
		if err != nil {
			http.Error(w, "save failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		report, err := pipe.Run(r.Context(), date)
		if err != nil {
			http.Error(w, "run failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "file": path, "report": report})
	})

	if err := api.Start(); err != nil {
		log.Fatal(err)
	}
}
