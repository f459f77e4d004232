// CLAUDE:SUMMARY Main docregistry orchestrator — per-origin activation policy, pass reporting, degraded detection.
// Package docregistry tracks per-origin policy and restoration health.
//
// One row per scheme://host origin: an auto-activation expression decides
// whether shielding engages when a page from that origin loads, and an
// exponential moving average over restoration passes measures how reliably
// the origin's marks survive reloads. Origins whose rate sinks below a
// threshold are flagged degraded so their locator strategy can be reviewed.
//
// Usage:
//
//	r, err := docregistry.New(cfg, logger)
//	defer r.Close()
//	r.RegisterMCP(mcpServer)
//	ok, _ := r.ShouldActivate(ctx, pageURL, map[string]any{"visits": 7})
package docregistry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bakharlabs/blurshield/docregistry/internal/store"
	"github.com/bakharlabs/blurshield/idgen"
	"github.com/bakharlabs/blurshield/page"
	"github.com/bakharlabs/blurshield/restore"
	"github.com/bakharlabs/blurshield/rules"
)

// Origin is one per-origin policy row.
type Origin = store.Origin

// PassReport is one recorded restoration pass that lost or failed marks.
type PassReport = store.PassReport

// Registry is the main docregistry orchestrator.
type Registry struct {
	store      *store.Store
	activation *rules.Activation
	logger     *slog.Logger
	config     *Config
}

// New creates a Registry instance. Opens the SQLite database and initialises the schema.
func New(cfg *Config, logger *slog.Logger) (*Registry, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	return &Registry{
		store:      s,
		activation: rules.NewActivation(logger),
		logger:     logger,
		config:     cfg,
	}, nil
}

// Close shuts down the registry and closes the database.
func (r *Registry) Close() error {
	return r.store.Close()
}

// Store returns the underlying store for direct access (testing, admin).
func (r *Registry) Store() *store.Store {
	return r.store
}

// --- Activation ---

// ShouldActivate decides whether shielding engages for a page URL. The
// origin's stored expression (or the configured default) is evaluated with
// the origin's restoration stats plus any caller-supplied environment.
// Unknown origins activate per the default expression.
func (r *Registry) ShouldActivate(ctx context.Context, rawURL string, extra map[string]any) (bool, error) {
	origin, err := page.Origin(rawURL)
	if err != nil {
		return false, err
	}

	o, err := r.store.GetOrigin(ctx, origin)
	if err != nil {
		return false, err
	}

	expression := r.config.DefaultExpr
	env := map[string]any{
		"success_rate": 1.0,
		"total_passes": 0,
		"degraded":     false,
	}
	if o != nil {
		if o.ActivationExpr != "" {
			expression = o.ActivationExpr
		}
		env["success_rate"] = o.SuccessRate
		env["total_passes"] = o.TotalPasses
		env["degraded"] = r.isDegraded(o)
	}
	for k, v := range extra {
		env[k] = v
	}

	return r.activation.ShouldActivate(expression, origin, env)
}

// Activation returns the stored expression for an origin ("" when unset).
func (r *Registry) Activation(ctx context.Context, rawURL string) (string, error) {
	origin, err := page.Origin(rawURL)
	if err != nil {
		return "", err
	}
	o, err := r.store.GetOrigin(ctx, origin)
	if err != nil {
		return "", err
	}
	if o == nil {
		return "", nil
	}
	return o.ActivationExpr, nil
}

// SetActivation stores an activation expression for a page's origin. The
// expression is compile-checked before it is written; a bad one is rejected
// with rules.ErrBadExpression.
func (r *Registry) SetActivation(ctx context.Context, rawURL, expression string) error {
	origin, err := page.Origin(rawURL)
	if err != nil {
		return err
	}
	if err := rules.Validate(expression); err != nil {
		return err
	}
	if err := r.store.SetActivation(ctx, origin, expression); err != nil {
		return err
	}
	r.logger.Info("docregistry: activation updated", "origin", origin, "expression", expression)
	return nil
}

// --- Pass reporting ---

// ReportPass folds a restoration pass into the origin's health stats. Lossy
// passes (dead or failed marks) also leave a pass report row. A pass over an
// empty mark set teaches nothing and is ignored.
func (r *Registry) ReportPass(ctx context.Context, rawURL string, rep *restore.Report) error {
	origin, err := page.Origin(rawURL)
	if err != nil {
		return err
	}

	restored := rep.Applied + rep.Present
	dead := len(rep.Dead)
	total := restored + rep.Failed + dead
	if total == 0 {
		return nil
	}
	rate := float64(restored) / float64(total)

	if err := r.store.RecordPass(ctx, origin, restored, dead, rate); err != nil {
		return fmt.Errorf("docregistry: record pass: %w", err)
	}

	if dead > 0 || rep.Failed > 0 {
		report := &store.PassReport{
			ID:         idgen.New(),
			Origin:     origin,
			Applied:    rep.Applied,
			Present:    rep.Present,
			Failed:     rep.Failed,
			Dead:       dead,
			DeadIDs:    rep.Dead,
			DurationMS: rep.Duration.Milliseconds(),
		}
		if err := r.store.InsertPassReport(ctx, report); err != nil {
			return fmt.Errorf("docregistry: insert report: %w", err)
		}
	}

	o, err := r.store.GetOrigin(ctx, origin)
	if err == nil && o != nil && r.isDegraded(o) {
		r.logger.Warn("docregistry: origin degraded",
			"origin", origin, "success_rate", o.SuccessRate, "total_passes", o.TotalPasses)
	}
	return nil
}

func (r *Registry) isDegraded(o *Origin) bool {
	return o.SuccessRate < r.config.DegradedThreshold && o.TotalPasses >= r.config.MinPasses
}

// --- Inspection ---

// ListOrigins returns tracked origins, best success rate first.
func (r *Registry) ListOrigins(ctx context.Context, limit int) ([]*Origin, error) {
	return r.store.ListOrigins(ctx, limit)
}

// Degraded returns origins whose restoration health fell below the threshold.
func (r *Registry) Degraded(ctx context.Context) ([]*Origin, error) {
	return r.store.DegradedOrigins(ctx, r.config.DegradedThreshold, r.config.MinPasses)
}

// RecentReports returns the newest lossy-pass reports for a page's origin.
func (r *Registry) RecentReports(ctx context.Context, rawURL string, limit int) ([]*PassReport, error) {
	origin, err := page.Origin(rawURL)
	if err != nil {
		return nil, err
	}
	return r.store.RecentReports(ctx, origin, limit)
}

// Stats holds registry statistics.
type Stats struct {
	Origins  int `json:"origins"`
	Degraded int `json:"degraded"`
	Reports  int `json:"reports"`
}

// Stats returns registry statistics.
func (r *Registry) Stats(ctx context.Context) (*Stats, error) {
	origins, err := r.store.CountOrigins(ctx)
	if err != nil {
		return nil, err
	}
	degraded, err := r.Degraded(ctx)
	if err != nil {
		return nil, err
	}
	reports, err := r.store.CountReports(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Origins:  origins,
		Degraded: len(degraded),
		Reports:  reports,
	}, nil
}
