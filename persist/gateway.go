package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/outbox"
	"github.com/bakharlabs/blurshield/trace"
)

// Config configures a Gateway. Cache is required; Ext, Remote and Outbox are
// optional tiers that degrade gracefully when absent.
type Config struct {
	Cache  *Cache
	Ext    Tier
	Remote RemoteTier
	// Outbox queues failed remote saves for bounded retry. Nil means remote
	// failures surface to the caller instead.
	Outbox *outbox.Q
	// Debounce is how long SaveShadow waits before flushing to the outer
	// tiers. Default: 2s.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (c *Config) applyDefaults() {
	if c.Debounce <= 0 {
		c.Debounce = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Gateway reconciles the three tiers. Every write lands in the cache first
// (the shadow copy), then drains outward on a per-identity debounce; reads
// prefer the hub when signed in and fall back locally.
type Gateway struct {
	cfg Config

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// NewGateway creates a Gateway. Config.Cache must be non-nil.
func NewGateway(cfg Config) *Gateway {
	cfg.applyDefaults()
	return &Gateway{cfg: cfg, timers: make(map[string]*time.Timer)}
}

// Close cancels all pending debounced flushes without running them. Callers
// that need the writes should Flush explicitly first.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
	return nil
}

// Load resolves the mark set for identity across the tiers and reports which
// tier served it ("remote", "cache" or "ext"). A signed-in hub with a
// non-empty set wins outright. Otherwise the cache is used; when the cache
// holds strictly more marks than the extension store, the store is resynced
// from the cache so the two converge. An empty cache falls through to the
// extension store.
func (g *Gateway) Load(ctx context.Context, identity string) ([]*mark.Mark, string, error) {
	if g.cfg.Remote != nil && g.cfg.Remote.SignedIn() {
		remote, err := g.cfg.Remote.Load(ctx, identity)
		if err != nil {
			g.cfg.Logger.Warn("persist: remote load failed, using local tiers",
				"identity", identity, "error", err)
			trace.Emit(&trace.Event{Kind: trace.EventPersist, Identity: identity,
				Detail: "remote_load", Error: err.Error()})
		} else if len(remote) > 0 {
			// Keep the shadow current with what the hub decided.
			if err := g.cfg.Cache.Save(ctx, identity, remote); err != nil {
				g.cfg.Logger.Warn("persist: cache shadow of remote set failed",
					"identity", identity, "error", err)
			}
			trace.Emit(&trace.Event{Kind: trace.EventPersist, Identity: identity, Detail: "remote"})
			return remote, "remote", nil
		}
	}

	cached, err := g.cfg.Cache.Load(ctx, identity)
	if err != nil {
		return nil, "", fmt.Errorf("load %q: %w", identity, err)
	}

	var ext []*mark.Mark
	if g.cfg.Ext != nil {
		ext, err = g.cfg.Ext.Load(ctx, identity)
		if err != nil {
			g.cfg.Logger.Warn("persist: ext load failed", "identity", identity, "error", err)
			ext = nil
		}
		if len(cached) > len(ext) {
			if err := g.cfg.Ext.Save(ctx, identity, cached); err != nil {
				g.cfg.Logger.Warn("persist: ext resync failed", "identity", identity, "error", err)
			}
		}
	}

	if len(cached) == 0 && len(ext) > 0 {
		if err := g.cfg.Cache.Save(ctx, identity, ext); err != nil {
			g.cfg.Logger.Warn("persist: cache backfill failed", "identity", identity, "error", err)
		}
		trace.Emit(&trace.Event{Kind: trace.EventPersist, Identity: identity, Detail: "ext"})
		return ext, "ext", nil
	}

	trace.Emit(&trace.Event{Kind: trace.EventPersist, Identity: identity, Detail: "cache"})
	return cached, "cache", nil
}

// SaveShadow writes the set to the cache immediately and arms (or re-arms)
// the identity's debounce timer so the outer tiers get one flush per burst
// of edits instead of one per keystroke.
func (g *Gateway) SaveShadow(ctx context.Context, identity string, marks []*mark.Mark) error {
	if err := g.cfg.Cache.Save(ctx, identity, marks); err != nil {
		return fmt.Errorf("shadow %q: %w", identity, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	if t, ok := g.timers[identity]; ok {
		t.Stop()
	}
	g.timers[identity] = time.AfterFunc(g.cfg.Debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := g.Flush(ctx, identity); err != nil {
			g.cfg.Logger.Warn("persist: debounced flush failed", "identity", identity, "error", err)
		}
	})
	return nil
}

// Flush pushes the cached set for identity to the extension store and the
// hub now, cancelling any pending debounce. queued reports that the remote
// save failed and was handed to the outbox for retry; err carries failures
// that were not queued (the extension store's quota refusal among them).
func (g *Gateway) Flush(ctx context.Context, identity string) (queued bool, err error) {
	g.mu.Lock()
	if t, ok := g.timers[identity]; ok {
		t.Stop()
		delete(g.timers, identity)
	}
	g.mu.Unlock()

	marks, err := g.cfg.Cache.Load(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("flush %q: %w", identity, err)
	}

	if g.cfg.Ext != nil {
		if extErr := g.cfg.Ext.Save(ctx, identity, marks); extErr != nil {
			trace.Emit(&trace.Event{Kind: trace.EventPersist, Identity: identity,
				Detail: "ext_save", Error: extErr.Error()})
			err = extErr
		}
	}

	if g.cfg.Remote != nil && g.cfg.Remote.SignedIn() {
		if remErr := g.cfg.Remote.Save(ctx, identity, marks); remErr != nil {
			trace.Emit(&trace.Event{Kind: trace.EventPersist, Identity: identity,
				Detail: "remote_save", Error: remErr.Error()})
			if g.cfg.Outbox != nil {
				if qErr := g.queueRemoteSave(ctx, identity, marks); qErr == nil {
					queued = true
					g.cfg.Logger.Info("persist: remote save queued for retry", "identity", identity)
				} else if err == nil {
					err = fmt.Errorf("queue remote save: %w", qErr)
				}
			} else if err == nil {
				err = remErr
			}
		}
	}
	return queued, err
}

// retryJob is the outbox payload for a failed remote save.
type retryJob struct {
	Identity string `json:"identity"`
	Payload  []byte `json:"payload"`
}

func (g *Gateway) queueRemoteSave(ctx context.Context, identity string, marks []*mark.Mark) error {
	payload, err := mark.Marshal(marks)
	if err != nil {
		return err
	}
	body, err := json.Marshal(retryJob{Identity: identity, Payload: payload})
	if err != nil {
		return err
	}
	// One job per identity: a newer set replaces the queued one, so retries
	// never push stale marks over fresh ones.
	return g.cfg.Outbox.Publish(ctx, "remote-save:"+identity, body)
}

// RunRetry drains the outbox against the hub. It blocks until ctx is
// cancelled and is a no-op without both an outbox and a remote tier.
func (g *Gateway) RunRetry(ctx context.Context) {
	if g.cfg.Outbox == nil || g.cfg.Remote == nil {
		return
	}
	g.cfg.Outbox.Run(ctx, func(ctx context.Context, job *outbox.Job) error {
		var rj retryJob
		if err := json.Unmarshal(job.Payload, &rj); err != nil {
			return fmt.Errorf("decode retry job %q: %w", job.ID, err)
		}
		marks, err := mark.Unmarshal(rj.Payload)
		if err != nil {
			return fmt.Errorf("decode retry set %q: %w", job.ID, err)
		}
		if !g.cfg.Remote.SignedIn() {
			return fmt.Errorf("retry %q: not signed in", rj.Identity)
		}
		if err := g.cfg.Remote.Save(ctx, rj.Identity, marks); err != nil {
			return err
		}
		trace.Emit(&trace.Event{Kind: trace.EventPersist, Identity: rj.Identity, Detail: "remote_retry"})
		return nil
	})
}
