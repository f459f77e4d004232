package rules

import (
	"errors"
	"testing"

	"github.com/bakharlabs/blurshield/mark"
)

func policyFor(t *testing.T, tier string, s mark.Summary) *TierPolicy {
	t.Helper()
	p, err := NewTierPolicy(TierConfig{
		Tier:   tier,
		Counts: func() mark.Summary { return s },
	})
	if err != nil {
		t.Fatalf("NewTierPolicy: %v", err)
	}
	return p
}

func TestTierPolicyCreateGating(t *testing.T) {
	tests := []struct {
		tier string
		kind mark.Kind
		want bool
	}{
		{TierFree, mark.KindPoint, true},
		{TierFree, mark.KindRegion, false},
		{TierFree, mark.KindText, false},
		{TierPlus, mark.KindRegion, true},
		{TierPlus, mark.KindText, true},
		{TierPro, mark.KindText, true},
	}
	for _, tt := range tests {
		p := policyFor(t, tt.tier, mark.Summary{})
		if got := p.CanCreateMark(tt.kind); got != tt.want {
			t.Errorf("CanCreateMark(%s, %s) = %v, want %v", tt.tier, tt.kind, got, tt.want)
		}
	}
}

func TestTierPolicyAddCeilings(t *testing.T) {
	tests := []struct {
		tier  string
		total int
		want  bool
	}{
		{TierFree, 9, true},
		{TierFree, 10, false},
		{TierPlus, 199, true},
		{TierPlus, 200, false},
		{TierPro, 100000, true},
	}
	for _, tt := range tests {
		p := policyFor(t, tt.tier, mark.Summary{Total: tt.total})
		if got := p.CanAddMark(); got != tt.want {
			t.Errorf("CanAddMark(%s, total=%d) = %v, want %v", tt.tier, tt.total, got, tt.want)
		}
	}
}

func TestTierPolicyCustomExpression(t *testing.T) {
	p, err := NewTierPolicy(TierConfig{
		Tier:       TierFree,
		CreateExpr: `kind != "region"`,
		AddExpr:    `text_marks < 2`,
		Counts:     func() mark.Summary { return mark.Summary{TextMarks: 2, Total: 2} },
	})
	if err != nil {
		t.Fatalf("NewTierPolicy: %v", err)
	}
	if !p.CanCreateMark(mark.KindText) {
		t.Error("custom create expression denied text")
	}
	if p.CanCreateMark(mark.KindRegion) {
		t.Error("custom create expression allowed region")
	}
	if p.CanAddMark() {
		t.Error("custom add expression allowed growth at the ceiling")
	}
}

func TestTierPolicyRejectsBadExpression(t *testing.T) {
	_, err := NewTierPolicy(TierConfig{
		CreateExpr: `tier ==`,
		Counts:     func() mark.Summary { return mark.Summary{} },
	})
	if !errors.Is(err, ErrBadExpression) {
		t.Errorf("NewTierPolicy = %v, want ErrBadExpression", err)
	}
}

func TestTierPolicyRequiresCounts(t *testing.T) {
	if _, err := NewTierPolicy(TierConfig{}); err == nil {
		t.Error("NewTierPolicy accepted a nil Counts supplier")
	}
}

func TestActivation(t *testing.T) {
	a := NewActivation(nil)

	tests := []struct {
		name   string
		expr   string
		origin string
		extra  map[string]any
		want   bool
	}{
		{"empty always activates", "", "https://example.com", nil, true},
		{"origin match", `origin == "https://bank.example"`, "https://bank.example", nil, true},
		{"origin mismatch", `origin == "https://bank.example"`, "https://other.example", nil, false},
		{"stat threshold", `resolve_rate >= 0.8`, "https://example.com",
			map[string]any{"resolve_rate": 0.95}, true},
		{"stat below threshold", `resolve_rate >= 0.8`, "https://example.com",
			map[string]any{"resolve_rate": 0.4}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.ShouldActivate(tt.expr, tt.origin, tt.extra)
			if err != nil {
				t.Fatalf("ShouldActivate: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldActivate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActivationBadExpression(t *testing.T) {
	a := NewActivation(nil)
	if _, err := a.ShouldActivate(`origin ==`, "https://example.com", nil); !errors.Is(err, ErrBadExpression) {
		t.Errorf("ShouldActivate = %v, want ErrBadExpression", err)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(""); err != nil {
		t.Errorf("Validate(empty) = %v, want nil", err)
	}
	if err := Validate(`visits > 3 and not degraded`); err != nil {
		t.Errorf("Validate(good) = %v, want nil", err)
	}
	if err := Validate(`visits >`); !errors.Is(err, ErrBadExpression) {
		t.Errorf("Validate(bad) = %v, want ErrBadExpression", err)
	}
}

func TestActivationCachesPrograms(t *testing.T) {
	a := NewActivation(nil)
	const e = `origin != ""`
	if _, err := a.ShouldActivate(e, "https://a.example", nil); err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	a.mu.RLock()
	_, cached := a.cache[e]
	a.mu.RUnlock()
	if !cached {
		t.Error("program not cached after first evaluation")
	}
}
