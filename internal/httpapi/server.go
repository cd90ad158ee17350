// Package httpapi serves read access to unified posts and analytics outputs
// and streams run reports over WebSocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/you/social-pulse/internal/core"
)

type Store interface {
	Ping() error
	CountPosts(ctx context.Context, filters Filters) (int64, error)
	ListPosts(ctx context.Context, filters Filters) ([]core.Post, error)
	LoadDaily(ctx context.Context, date core.RunDate) ([]core.DailyMetrics, error)
	LoadRolling(ctx context.Context, runDate core.RunDate) (int, []core.RollingAverage, error)
	LoadRanking(ctx context.Context, runDate core.RunDate) (core.Ranking, error)
	ListRuns(ctx context.Context, date core.RunDate, limit int) ([]core.RunReport, error)
}

type Options struct {
	Addr            string
	CORSOrigins     []string
	RateLimitRPS    int
	RateLimitBurst  int
	EnableMetrics   bool
	EnableAccessLog bool
	EnablePprof     bool
	Build           BuildInfo
	ConfigSnapshot  any
}

type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	store      Store
	opts       Options
	metrics    *Metrics
	limiter    *ipRateLimiter
	cors       *corsPolicy
	startedAt  time.Time

	mu      sync.Mutex
	clients map[chan core.RunReport]struct{}
	closed  bool
}

func New(store Store, opts Options) *Server {
	srv := &Server{
		store:     store,
		opts:      opts,
		mux:       http.NewServeMux(),
		metrics:   newMetrics(),
		limiter:   newIPRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst),
		cors:      newCORSPolicy(opts.CORSOrigins),
		clients:   make(map[chan core.RunReport]struct{}),
		startedAt: time.Now(),
	}

	srv.handle("/healthz", srv.handleHealthz)
	srv.handle("/info", srv.handleInfo)
	srv.handle("/config", srv.handleConfig)
	srv.handle("/posts", srv.handlePosts)
	srv.handle("/count", srv.handleCount)
	srv.handle("/daily", srv.handleDaily)
	srv.handle("/rolling", srv.handleRolling)
	srv.handle("/top", srv.handleTop)
	srv.handle("/runs", srv.handleRuns)
	srv.handle("/ws", srv.handleWS)
	if opts.EnableMetrics {
		srv.mux.Handle("/metrics", srv.metrics.Handler())
	}
	if opts.EnablePprof {
		srv.mux.HandleFunc("/debug/pprof/", pprof.Index)
		srv.mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		srv.mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		srv.mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		srv.mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv
}

// Mux exposes the router so other packages can register routes.
func (s *Server) Mux() *http.ServeMux { return s.mux }

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics { return s.metrics }

// handle registers h behind the read-only middleware stack.
func (s *Server) handle(route string, h http.HandlerFunc) {
	s.mux.Handle(route, chain(h,
		s.observe(route),
		s.cors.wrap,
		s.rateLimit,
		readOnly,
		compress,
	))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.store.Ping(); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	if s.opts.ConfigSnapshot == nil {
		http.NotFound(w, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.ConfigSnapshot)
}

// BroadcastRun delivers a run report to every connected stream client.
// Slow clients miss reports rather than block the pipeline.
func (s *Server) BroadcastRun(report core.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.clients {
		select {
		case ch <- report:
		default:
			s.metrics.IncBroadcastDrops()
		}
	}
}

func (s *Server) subscribe() (chan core.RunReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	ch := make(chan core.RunReport, 16)
	s.clients[ch] = struct{}{}
	return ch, true
}

func (s *Server) unsubscribe(ch chan core.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[ch]; ok {
		delete(s.clients, ch)
	}
}

func (s *Server) Start() error {
	log.Printf("http api listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
		delete(s.clients, ch)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
