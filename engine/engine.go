// CLAUDE:SUMMARY Engine orchestrator — wires persistence tiers, registry, watcher, exporter; owns document sessions.
// Package engine is the mark persistence and restoration engine: it owns one
// scheduler-backed session per open document and wires the collaborators
// around it — the three-tier persistence gateway, the per-origin activation
// registry, the external-change watcher, the restoration coordinator, and
// the markdown exporter.
//
// Usage:
//
//	e, err := engine.New(cfg, logger)
//	defer e.Close()
//	e.Start(ctx)
//	srv := bridge.NewServer(bridge.Config{Handler: e.Handler()})
//	e.RegisterMCP(mcpServer)
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bakharlabs/blurshield/bridge"
	"github.com/bakharlabs/blurshield/docregistry"
	"github.com/bakharlabs/blurshield/effect"
	"github.com/bakharlabs/blurshield/export"
	"github.com/bakharlabs/blurshield/locator"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/mode"
	"github.com/bakharlabs/blurshield/outbox"
	"github.com/bakharlabs/blurshield/page"
	"github.com/bakharlabs/blurshield/persist"
	"github.com/bakharlabs/blurshield/restore"
	"github.com/bakharlabs/blurshield/rules"
	"github.com/bakharlabs/blurshield/trace"
	"github.com/bakharlabs/blurshield/watch"
)

// ErrNotActivated means the origin registry declined activation for the
// document; no session is opened.
var ErrNotActivated = errors.New("engine: origin not activated")

// ErrNoSession means no live session exists for the identity.
var ErrNoSession = errors.New("engine: no session for identity")

// ErrSessionClosed is returned by session calls after Close.
var ErrSessionClosed = errors.New("engine: session closed")

// mirrorPullTimeout bounds the startup cache warm.
const mirrorPullTimeout = 60 * time.Second

// DocSource fetches and parses the document for a URL. The bridge handler
// uses it to open sessions lazily when a host connects for an identity the
// engine has not seen.
type DocSource func(ctx context.Context, rawURL string) (*page.Doc, error)

// Engine owns the sessions and the shared collaborators. Collaborators are
// concurrency-safe or stateless; everything per-document lives inside the
// session and is touched only by its scheduler goroutine.
type Engine struct {
	cfg      *Config
	logger   *slog.Logger
	cache    *persist.Cache
	gateway  *persist.Gateway
	registry *docregistry.Registry
	applier  *effect.Applier
	synth    *locator.Synthesizer
	coord    *restore.Coordinator
	exporter *export.Exporter
	traces   *trace.Store
	watcher  *watch.Watcher
	source   DocSource

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an Engine: opens (or warms) the cache, the registry, the
// outbox, and builds the gateway and coordinator around them.
func New(cfg *Config, logger *slog.Logger) (*Engine, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := openCache(cfg, logger)
	if err != nil {
		return nil, err
	}

	traces := trace.NewStore(cache.DB())
	if err := traces.Init(); err != nil {
		cache.Close()
		return nil, fmt.Errorf("trace store: %w", err)
	}
	trace.SetStore(traces)

	q := outbox.New(cache.DB(), outbox.Options{Queue: "remote_save", Logger: logger})
	if err := q.EnsureTable(context.Background()); err != nil {
		cache.Close()
		return nil, fmt.Errorf("outbox: %w", err)
	}

	gwCfg := persist.Config{
		Cache:    cache,
		Outbox:   q,
		Debounce: cfg.SaveDebounce,
		Logger:   logger,
	}
	if cfg.ExtDir != "" {
		ext, err := persist.OpenExtStore(cfg.ExtDir, cfg.ExtQuota)
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("ext store: %w", err)
		}
		gwCfg.Ext = ext
	}
	if cfg.Hub.BaseURL != "" {
		gwCfg.Remote = persist.NewRemote(cfg.Hub.BaseURL, cfg.Hub.Token, nil)
	}

	registry, err := docregistry.New(&docregistry.Config{DBPath: cfg.RegistryDB}, logger)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("registry: %w", err)
	}

	applier := effect.New(effect.Config{})
	gateway := persist.NewGateway(gwCfg)

	e := &Engine{
		cfg:      cfg,
		logger:   logger,
		cache:    cache,
		gateway:  gateway,
		registry: registry,
		applier:  applier,
		synth:    locator.NewSynthesizer(locator.Config{}),
		exporter: export.New(logger),
		traces:   traces,
		sessions: make(map[string]*Session),
	}
	e.coord = restore.New(restore.Config{
		Applier: applier,
		Save:    gateway.SaveShadow,
		Logger:  logger,
	})
	e.watcher = watch.New(cache.DB(), watch.Options{
		Interval: cfg.WatchInterval,
		Detector: watch.MarkSets(),
		Logger:   logger,
	})
	return e, nil
}

// openCache opens the local cache, optionally warming it from the hub's
// snapshot endpoint first. A failed warm is downgraded to a plain open: a
// stale cache beats no cache.
func openCache(cfg *Config, logger *slog.Logger) (*persist.Cache, error) {
	if cfg.Hub.WarmCache && cfg.Hub.BaseURL != "" && cfg.Hub.Token != "" {
		m := persist.NewMirror(cfg.Hub.BaseURL, cfg.Hub.Token, cfg.Hub.MirrorPath, nil)
		ctx, cancel := context.WithTimeout(context.Background(), mirrorPullTimeout)
		defer cancel()
		cache, err := m.Pull(ctx)
		if err == nil {
			logger.Info("engine: cache warmed from hub", "path", cfg.Hub.MirrorPath)
			return cache, nil
		}
		logger.Warn("engine: cache warm failed, opening local", "error", err)
	}
	cache, err := persist.OpenCache(cfg.CacheDB)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return cache, nil
}

// SetDocSource installs the document fetcher the bridge handler uses for
// lazy session opens. Without one, hosts must connect for documents the
// engine already has sessions for.
func (e *Engine) SetDocSource(src DocSource) { e.source = src }

// Start launches the background loops: outbox retry against the hub and the
// external-change watcher that triggers restoration passes when the cache
// changes under the engine.
func (e *Engine) Start(ctx context.Context) {
	go e.gateway.RunRetry(ctx)
	go e.watcher.OnChange(ctx, e.repassAll)
	e.logger.Info("engine: started", "cache", e.cfg.CacheDB)
}

// repassAll schedules an external-sync pass on every live session. Fired by
// the watcher when a mark set changes outside the session's own writes
// (remote sync arrival, another device via the hub). Syncs are idempotent:
// a session's own saves land in the cache first, so reloading after one is
// a no-op and the cycle converges.
func (e *Engine) repassAll() error {
	e.mu.Lock()
	sessions := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()
	for _, s := range sessions {
		s.do(s.externalSync)
	}
	return nil
}

// OpenSession opens a session for the parsed document. The origin registry
// is consulted first; a declined origin returns ErrNotActivated unwrapped
// so callers can treat it as "stay dormant" rather than failure. An
// existing session for the same identity is superseded.
func (e *Engine) OpenSession(ctx context.Context, doc *page.Doc) (*Session, error) {
	identity, err := page.Identity(doc.URL)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	if e.registry != nil {
		ok, err := e.registry.ShouldActivate(ctx, doc.URL, nil)
		if err != nil {
			e.logger.Warn("engine: activation check failed, staying dormant",
				"identity", identity, "error", err)
			return nil, ErrNotActivated
		}
		if !ok {
			return nil, ErrNotActivated
		}
	}

	s := &Session{
		engine:   e,
		identity: identity,
		doc:      doc,
		set:      mark.NewSet(identity),
		tasks:    make(chan func(context.Context), 64),
		done:     make(chan struct{}),
	}

	policy, err := rules.NewTierPolicy(rules.TierConfig{
		Tier:       e.cfg.Tier.Name,
		CreateExpr: e.cfg.Tier.CreateExpr,
		AddExpr:    e.cfg.Tier.AddExpr,
		Counts:     func() mark.Summary { return s.set.Summary() },
		Logger:     e.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("tier policy: %w", err)
	}

	s.machine = mode.New(mode.Config{
		Applier:     e.applier,
		Synthesizer: e.synth,
		Capability:  policy,
		MaxRegion:   e.maxRegionPolicy(),
		Save:        e.gateway.SaveShadow,
		Notify: func(old, next mode.State) {
			s.push(bridge.NewNotification(bridge.TypeModeChanged, &bridge.ModeChangedPayload{
				From: string(old), To: string(next),
			}))
		},
		Logger: e.logger,
	})

	e.mu.Lock()
	if old := e.sessions[identity]; old != nil {
		old.Close()
	}
	e.sessions[identity] = s
	e.mu.Unlock()

	go s.run()
	s.start()
	return s, nil
}

// maxRegionPolicy builds the drawn-region size gate from config. Nil means
// unbounded, which is what the mode machine expects for "no maximum".
func (e *Engine) maxRegionPolicy() func(mark.Region) bool {
	w, h := e.cfg.MaxRegionWidth, e.cfg.MaxRegionHeight
	if w <= 0 && h <= 0 {
		return nil
	}
	return func(r mark.Region) bool {
		if w > 0 && r.Width > w {
			return false
		}
		if h > 0 && r.Height > h {
			return false
		}
		return true
	}
}

// Session returns the live session for identity, or nil.
func (e *Engine) Session(identity string) *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[identity]
}

// remapSession moves s from oldIdentity to newIdentity in the session map.
// Called from s's scheduler during rekey.
func (e *Engine) remapSession(s *Session, oldIdentity, newIdentity string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sessions[oldIdentity] == s {
		delete(e.sessions, oldIdentity)
	}
	if old := e.sessions[newIdentity]; old != nil && old != s {
		old.Close()
	}
	e.sessions[newIdentity] = s
}

// CloseSession closes and forgets the session for identity.
func (e *Engine) CloseSession(identity string) {
	e.mu.Lock()
	s := e.sessions[identity]
	delete(e.sessions, identity)
	e.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

// Registry exposes the origin registry (MCP wiring, admin).
func (e *Engine) Registry() *docregistry.Registry { return e.registry }

// Close shuts down every session and the shared collaborators. The gateway
// is closed without flushing; callers that need the outer tiers current
// should flush per identity first.
func (e *Engine) Close() error {
	e.mu.Lock()
	for id, s := range e.sessions {
		s.Close()
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	e.gateway.Close()
	e.traces.Close()
	if e.registry != nil {
		e.registry.Close()
	}
	return e.cache.Close()
}
