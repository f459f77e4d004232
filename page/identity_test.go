package page_test

import (
	"testing"

	"github.com/bakharlabs/blurshield/page"
)

func TestIdentityNormalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/Article/", "https://example.com/Article"},
		{"https://example.com:443/a", "https://example.com/a"},
		{"http://example.com:80/a", "http://example.com/a"},
		{"http://example.com:8080/a", "http://example.com:8080/a"},
		{"https://example.com/a?page=2#frag", "https://example.com/a"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com/deep/path///", "https://example.com/deep/path"},
	}
	for _, tt := range tests {
		got, err := page.Identity(tt.in)
		if err != nil {
			t.Errorf("Identity(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Identity(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIdentitySameKeyAcrossVariants(t *testing.T) {
	a, err := page.Identity("https://news.example.com/story/42?utm=x#top")
	if err != nil {
		t.Fatal(err)
	}
	b, err := page.Identity("https://NEWS.example.com/story/42")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("variants key differently: %q vs %q", a, b)
	}
}

func TestOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM/Article/page?q=1", "https://example.com"},
		{"http://example.com:8080/a", "http://example.com:8080"},
		{"https://example.com:443/", "https://example.com"},
	}
	for _, tt := range tests {
		got, err := page.Origin(tt.in)
		if err != nil {
			t.Errorf("Origin(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Origin(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIdentityRejectsNonHTTP(t *testing.T) {
	for _, in := range []string{"ftp://example.com/x", "javascript:void(0)", "about:blank", "not a url"} {
		if _, err := page.Identity(in); err == nil {
			t.Errorf("Identity(%q): expected error", in)
		}
	}
}
