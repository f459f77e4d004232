// CLAUDE:SUMMARY Hub orchestrator — store, trace ingest, middleware stack, chi route table.
// Package synchub is the authoritative sync service for device mark sets.
//
// Devices enroll under an account, open JWT sessions, and push revisioned
// mark sets per document identity. Conflicts resolve by revision number:
// higher wins, and a deletion (empty set) at a higher revision survives.
// The hub also ingests trace batches from devices, serves its cache
// database for snapshot mirroring, and fires an HMAC-signed webhook on
// every accepted revision.
//
// Usage:
//
//	hub, err := synchub.New(cfg, logger)
//	defer hub.Close()
//	http.ListenAndServe(cfg.Addr, hub.Router())
package synchub

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bakharlabs/blurshield/auth"
	"github.com/bakharlabs/blurshield/guard"
	"github.com/bakharlabs/blurshield/synchub/internal/store"
	"github.com/bakharlabs/blurshield/trace"
)

// Hub is the sync service.
type Hub struct {
	config   *Config
	store    *store.Store
	traces   *trace.Store
	notifier *Notifier
	limiter  *RateLimiter
	maint    *Maintenance
	logger   *slog.Logger
	done     chan struct{}
}

// New creates a Hub: opens the database, initialises the trace store and
// builds the middleware state. Call Router for the HTTP surface and Close
// on shutdown.
func New(cfg *Config, logger *slog.Logger) (*Hub, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := guard.ValidateSecret([]byte(cfg.JWTSecret)); err != nil {
		return nil, fmt.Errorf("synchub: jwt secret: %w", err)
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	traces := trace.NewStore(s.DB)
	if err := traces.Init(); err != nil {
		s.Close()
		return nil, fmt.Errorf("synchub: trace store: %w", err)
	}

	notifier, err := NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	h := &Hub{
		config:   cfg,
		store:    s,
		traces:   traces,
		notifier: notifier,
		limiter:  NewRateLimiter(s.DB, "/healthz"),
		maint:    NewMaintenance(s.DB, "/healthz"),
		logger:   logger,
		done:     make(chan struct{}),
	}
	h.limiter.StartReloader(h.done)
	h.maint.StartReloader(h.done)
	return h, nil
}

// Store returns the underlying store for direct access (testing, admin).
func (h *Hub) Store() *store.Store {
	return h.store
}

// Close stops background reloaders, flushes the trace store and closes the
// database.
func (h *Hub) Close() error {
	close(h.done)
	h.traces.Close()
	return h.store.Close()
}

// Router builds the hub's HTTP surface with the full middleware stack.
func (h *Hub) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.maint.Middleware)
	r.Use(securityHeaders)
	r.Use(maxBody(h.config.MaxBody))
	r.Use(h.limiter.Middleware)
	r.Use(auth.Middleware([]byte(h.config.JWTSecret)))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts", h.handleCreateAccount)
		r.Post("/devices", h.handleEnrollDevice)
		r.Post("/sessions", h.handleCreateSession)
		r.Post("/traces", trace.IngestHandler(h.traces))

		r.Group(func(r chi.Router) {
			r.Use(auth.Require)
			r.Get("/marks", h.handleGetMarks)
			r.Put("/marks", h.handlePutMarks)
			r.Get("/identities", h.handleListIdentities)
			r.Get("/snapshot", h.handleSnapshot)
		})
	})

	return r
}
