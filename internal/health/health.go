// Package health runs the small HTTP sidecar: a liveness page for the
// hosting platform's port probe plus the Prometheus scrape endpoint.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Config struct {
	// Addr is the listen address, e.g. ":10000". Empty disables the
	// server entirely.
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type Service struct {
	mu  sync.Mutex
	log zerolog.Logger
	cfg Config

	ln  net.Listener
	srv *http.Server

	started time.Time
}

func New(cfg Config, log zerolog.Logger) *Service {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	return &Service{
		log: log.With().Str("comp", "health").Logger(),
		cfg: cfg,
	}
}

func (s *Service) Enabled() bool { return s.cfg.Addr != "" }

// Start binds the listener and serves in a background goroutine. A
// bind failure is returned so the caller can decide whether the
// process should come up without its port.
func (s *Service) Start(ctx context.Context, reg *prometheus.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Enabled() || s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("health listen on %s: %w", s.cfg.Addr, err)
	}

	s.started = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("health server stopped with error")
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("health server started")
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		_ = srv.Close()
	}
	s.log.Info().Msg("health server stopped")
}

// Addr returns the bound address, useful when Addr was ":0".
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Service) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Motivation Bot</title></head>
<body>
<h1>🤖 Motivation bot is running</h1>
<p>✅ Status: <strong>Active</strong></p>
<p>⏱ Uptime: %s</p>
</body>
</html>
`, time.Since(s.startedAt()).Round(time.Second))
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","uptime_seconds":%d}`+"\n",
		int64(time.Since(s.startedAt()).Seconds()))
}

func (s *Service) startedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
