// Package server exposes the bounty ledger over HTTP: the four transactional
// operations inbound, and the read-only queries collaborators use to fetch
// prices, nonces, and confirmations.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/ledger"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/metrics"
	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/nonce"
)

type Server struct {
	log       *slog.Logger
	cfg       Config
	store     *ledger.Store
	allocator *nonce.Allocator
	clock     clockwork.Clock
	router    *chi.Mux
	httpSrv   *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		log:       cfg.Logger,
		cfg:       cfg,
		store:     cfg.Store,
		allocator: cfg.Allocator,
		clock:     cfg.Clock,
		router:    chi.NewRouter(),
	}
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	metrics.BuildInfo.WithLabelValues(cfg.VersionInfo.Version, cfg.VersionInfo.Commit, cfg.VersionInfo.Date).Set(1)
	return s, nil
}

// Router returns the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	s.router.Get("/readyz", s.handleReadyz)
	s.router.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.cfg.VersionInfo)
	})
	s.router.Handle("/metrics", promhttp.Handler())

	limiter := newRateLimiter(s.cfg.RateLimitPerMinute, s.cfg.RateLimitBurst)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/tiers/{tierID}", s.handleGetTier)
		r.Get("/tiers/{tierID}/price", s.handleGetPrice)
		r.Get("/tiers/{tierID}/entries/{payer}/{nonce}", s.handleGetEntry)
		r.Get("/tiers/{tierID}/receipts", s.handleListReceipts)
		r.Get("/payers/{payer}/nonce", s.handleNextNonce)
		r.Get("/accounts/{address}", s.handleGetAccount)

		r.Group(func(r chi.Router) {
			r.Use(limiter.middleware)
			r.Post("/tiers", s.handleInitialize)
			r.Post("/tiers/{tierID}/entries", s.handleProcessEntry)
			r.Post("/tiers/{tierID}/settlement", s.handleSettle)
			r.Post("/tiers/{tierID}/recovery", s.handleRecover)
		})
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.cfg.Pool.Ping(ctx); err != nil {
		s.log.Error("server: readiness ping failed", "error", err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready\n"))
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()
	s.log.Info("server: http listening", "address", s.cfg.ListenAddr)

	if s.cfg.MonitorInterval > 0 {
		g.Go(func() error {
			s.runStaleTierMonitor(ctx)
			return nil
		})
	}

	g.Go(func() error {
		select {
		case <-ctx.Done():
			s.log.Info("server: stopping", "reason", ctx.Err())
		case err := <-serveErrCh:
			return err
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
