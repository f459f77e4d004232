// CLAUDE:SUMMARY Expr-based policy: tier capability gating and per-origin activation rules.
// Package rules evaluates the engine's policy expressions. Two concerns live
// here: the capability collaborator consulted before a mark is committed
// (tier gating), and the per-origin activation policy the registry applies
// when a document session starts. Both are expr-lang expressions compiled
// once and cached, so policy is data, not code.
package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/bakharlabs/blurshield/mark"
)

// ErrBadExpression is returned when a policy expression fails to compile.
var ErrBadExpression = errors.New("rules: bad expression")

// Account tiers. The hub stamps one of these into the session token; the
// engine feeds it to the policy environment.
const (
	TierFree = "free"
	TierPlus = "plus"
	TierPro  = "pro"
)

// Default gating expressions. Free accounts get point marks with a small
// ceiling; plus unlocks every kind with a generous ceiling; pro is
// unbounded.
const (
	DefaultCreateExpr = `tier in ["plus", "pro"] or kind == "point"`
	DefaultAddExpr    = `tier == "pro" or (tier == "plus" and total < 200) or total < 10`
)

// Capability is the collaborator the mode machine consults before it commits
// a new mark. false blocks creation and surfaces an upgrade affordance; it
// never removes anything already marked.
type Capability interface {
	CanCreateMark(kind mark.Kind) bool
	CanAddMark() bool
}

// TierConfig configures a TierPolicy.
type TierConfig struct {
	// Tier is the account tier evaluated against the expressions.
	// Default: TierFree.
	Tier string
	// CreateExpr gates mark kinds; environment: tier, kind.
	// Default: DefaultCreateExpr.
	CreateExpr string
	// AddExpr gates set growth; environment: tier, total, point_marks,
	// region_marks, text_marks. Default: DefaultAddExpr.
	AddExpr string
	// Counts supplies the current mark-count summary. Required.
	Counts func() mark.Summary
	Logger *slog.Logger
}

func (c *TierConfig) applyDefaults() {
	if c.Tier == "" {
		c.Tier = TierFree
	}
	if c.CreateExpr == "" {
		c.CreateExpr = DefaultCreateExpr
	}
	if c.AddExpr == "" {
		c.AddExpr = DefaultAddExpr
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// TierPolicy is the expr-backed Capability. Expressions are compiled once at
// construction; evaluation failures fail closed.
type TierPolicy struct {
	cfg    TierConfig
	create *vm.Program
	add    *vm.Program
}

// NewTierPolicy compiles the configured expressions. Config.Counts must be
// non-nil.
func NewTierPolicy(cfg TierConfig) (*TierPolicy, error) {
	cfg.applyDefaults()
	if cfg.Counts == nil {
		return nil, fmt.Errorf("%w: TierConfig.Counts is required", ErrBadExpression)
	}
	create, err := compileBool(cfg.CreateExpr)
	if err != nil {
		return nil, err
	}
	add, err := compileBool(cfg.AddExpr)
	if err != nil {
		return nil, err
	}
	return &TierPolicy{cfg: cfg, create: create, add: add}, nil
}

// CanCreateMark reports whether the tier may create a mark of kind.
func (p *TierPolicy) CanCreateMark(kind mark.Kind) bool {
	return p.run(p.create, map[string]any{
		"tier": p.cfg.Tier,
		"kind": string(kind),
	})
}

// CanAddMark reports whether the set may grow past its current size.
func (p *TierPolicy) CanAddMark() bool {
	s := p.cfg.Counts()
	return p.run(p.add, map[string]any{
		"tier":         p.cfg.Tier,
		"total":        s.Total,
		"point_marks":  s.PointMarks,
		"region_marks": s.RegionMarks,
		"text_marks":   s.TextMarks,
	})
}

func (p *TierPolicy) run(program *vm.Program, env map[string]any) bool {
	out, err := expr.Run(program, env)
	if err != nil {
		p.cfg.Logger.Warn("rules: policy evaluation failed, denying", "error", err)
		return false
	}
	ok, _ := out.(bool)
	return ok
}

// Validate checks that expression compiles as a boolean expression without
// evaluating it. An empty expression is valid ("always activate").
func Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := compileBool(expression)
	return err
}

func compileBool(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrBadExpression, expression, err)
	}
	return program, nil
}

// Activation evaluates per-origin auto-activation expressions. Programs are
// compiled on first use and cached per expression text, so the registry can
// store one expression per origin without paying compilation on every page
// load.
type Activation struct {
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewActivation creates an Activation. logger may be nil.
func NewActivation(logger *slog.Logger) *Activation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activation{logger: logger, cache: make(map[string]*vm.Program)}
}

// ShouldActivate evaluates expression against the origin and any extra
// environment the caller supplies (restoration stats, visit counts). An
// empty expression means "always activate". Evaluation failures fail
// closed.
func (a *Activation) ShouldActivate(expression, origin string, extra map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}
	program, err := a.program(expression)
	if err != nil {
		return false, err
	}
	env := map[string]any{"origin": origin}
	for k, v := range extra {
		env[k] = v
	}
	out, err := expr.Run(program, env)
	if err != nil {
		a.logger.Warn("rules: activation evaluation failed, denying",
			"origin", origin, "error", err)
		return false, fmt.Errorf("%w: %q: %w", ErrBadExpression, expression, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

func (a *Activation) program(expression string) (*vm.Program, error) {
	a.mu.RLock()
	program, ok := a.cache[expression]
	a.mu.RUnlock()
	if ok {
		return program, nil
	}
	program, err := compileBool(expression)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.cache[expression] = program
	a.mu.Unlock()
	return program, nil
}
