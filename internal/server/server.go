// Package server exposes the spectrogram pipeline and the classifier to
// the browser over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/sonogram/internal/classify"
	"github.com/linuxmatters/sonogram/internal/config"
	"github.com/linuxmatters/sonogram/internal/observe"
	"github.com/linuxmatters/sonogram/internal/pipeline"
)

// Server is the HTTP front end. Create it with New and start it with Run
// or Serve.
type Server struct {
	cfg        config.ServerConfig
	pipeline   *pipeline.Pipeline
	classifier classify.Classifier
	sessions   *sessionStore
	metrics    *observe.Metrics
	logger     *slog.Logger
	handler    http.Handler
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics records request and session metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New wires the routes.
func New(cfg config.ServerConfig, p *pipeline.Pipeline, c classify.Classifier, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		pipeline:   p,
		classifier: c,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.cfg.MaxUploadBytes <= 0 {
		s.cfg.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	if s.cfg.ShutdownTimeout <= 0 {
		s.cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}

	if s.cfg.SessionIdleTimeout == 0 {
		s.cfg.SessionIdleTimeout = config.DefaultSessionIdle
	}
	if s.cfg.MaxSessions <= 0 {
		s.cfg.MaxSessions = config.DefaultMaxSessions
	}

	s.sessions = newSessionStore(s.cfg.MaxSessions, func() *pipeline.Session {
		return pipeline.NewSession(p,
			pipeline.WithSessionMetrics(s.metrics),
			pipeline.WithSessionLogger(s.logger),
		)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/spectrogram", s.handleSpectrogram)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/sessions/{id}/file", s.handleSessionFile)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleSessionGet)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleSessionDelete)
	mux.Handle("GET /metrics", promhttp.Handler())

	newHealth(Checker{Name: "classifier", Check: c.Health}).register(mux)

	s.handler = cors(observe.Middleware(s.metrics, s.logger)(mux))
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully and closes every session.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if idle := s.cfg.SessionIdleTimeout; idle > 0 {
		g.Go(func() error {
			s.expireSessions(gctx, idle)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()

		s.logger.Info("shutting down", "timeout", s.cfg.ShutdownTimeout)
		err := srv.Shutdown(shutdownCtx)
		s.sessions.closeAll()
		return err
	})

	return g.Wait()
}

// expireSessions sweeps idle sessions until ctx is done.
func (s *Server) expireSessions(ctx context.Context, idle time.Duration) {
	ticker := time.NewTicker(max(idle/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.expire(idle); n > 0 {
				s.logger.Debug("expired idle sessions", "count", n, "idle", idle)
			}
		}
	}
}

// cors allows any origin, matching the browser front end's dev setup.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		h.Set("Access-Control-Allow-Methods", "GET,PUT,POST,DELETE,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
