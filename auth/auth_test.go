package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bakharlabs/blurshield/guard"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken(testSecret, &Claims{
		AccountID: "acct-1",
		DeviceID:  "dev-1",
		Tier:      "plus",
	}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(testSecret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.AccountID != "acct-1" || claims.DeviceID != "dev-1" || claims.Tier != "plus" {
		t.Errorf("claims: %+v", claims)
	}
}

func TestGenerateTokenRejectsShortSecret(t *testing.T) {
	_, err := GenerateToken([]byte("short"), &Claims{AccountID: "a"}, time.Hour)
	if !errors.Is(err, guard.ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken(testSecret, &Claims{AccountID: "a", Tier: "free"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	other := []byte("ffffffffffffffffffffffffffffffff")
	if _, err := ValidateToken(other, token); err == nil {
		t.Fatal("token validated under wrong secret")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken(testSecret, &Claims{AccountID: "a", Tier: "free"}, -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := ValidateToken(testSecret, token); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestMiddlewareAndRequire(t *testing.T) {
	token, err := GenerateToken(testSecret, &Claims{AccountID: "acct-1", Tier: "pro"}, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var seen *Claims
	handler := Middleware(testSecret)(Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaims(r.Context())
	})))

	// No token → 401, inner handler never runs.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/marks", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", rec.Code)
	}
	if seen != nil {
		t.Error("handler ran without claims")
	}

	// Garbage token → still 401.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/marks", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", rec.Code)
	}

	// Valid token → claims in context.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/v1/marks", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status %d, want 200", rec.Code)
	}
	if seen == nil || seen.AccountID != "acct-1" {
		t.Errorf("claims: %+v", seen)
	}
}
