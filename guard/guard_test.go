package guard_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/bakharlabs/blurshield/guard"
)

func TestValidateSecret(t *testing.T) {
	if err := guard.ValidateSecret([]byte("short")); !errors.Is(err, guard.ErrSecretTooShort) {
		t.Fatalf("short secret: got %v, want ErrSecretTooShort", err)
	}
	if err := guard.ValidateSecret([]byte(strings.Repeat("x", 32))); err != nil {
		t.Fatalf("32-byte secret: %v", err)
	}
}

func TestSafePath(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"snap.html", true},
		{"sub/dir/page.html", true},
		{"../etc/passwd", false},
		{"sub/../../escape", false},
		{"..", false},
	}
	for _, tt := range tests {
		_, err := guard.SafePath("/var/lib/blurshield", tt.input)
		if tt.ok && err != nil {
			t.Errorf("SafePath(%q): unexpected error %v", tt.input, err)
		}
		if !tt.ok && !errors.Is(err, guard.ErrPathTraversal) {
			t.Errorf("SafePath(%q): got %v, want ErrPathTraversal", tt.input, err)
		}
	}
}

func TestValidateOrigin(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://example.com/article", true},
		{"http://intranet.local/wiki", true},
		{"http://10.0.0.5/dashboard", true}, // private hosts are valid identities
		{"ftp://example.com/file", false},
		{"javascript:alert(1)", false},
		{"https://", false},
	}
	for _, tt := range tests {
		err := guard.ValidateOrigin(tt.url)
		if tt.ok && err != nil {
			t.Errorf("ValidateOrigin(%q): unexpected error %v", tt.url, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ValidateOrigin(%q): expected error", tt.url)
		}
	}
}

func TestValidateURLRejectsPrivate(t *testing.T) {
	tests := []string{
		"http://127.0.0.1/hook",
		"http://10.1.2.3/hook",
		"http://192.168.1.1/hook",
		"http://169.254.169.254/latest/meta-data",
	}
	for _, u := range tests {
		if err := guard.ValidateURL(u); !errors.Is(err, guard.ErrPrivateTarget) {
			t.Errorf("ValidateURL(%q): got %v, want ErrPrivateTarget", u, err)
		}
	}
}

func TestValidateURLScheme(t *testing.T) {
	if err := guard.ValidateURL("gopher://example.com"); !errors.Is(err, guard.ErrUnsafeScheme) {
		t.Fatalf("got %v, want ErrUnsafeScheme", err)
	}
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"mk_0192", "doc-abc.v2", "A1_b2-c3"}
	for _, s := range valid {
		if err := guard.ValidateIdentifier(s); err != nil {
			t.Errorf("ValidateIdentifier(%q): %v", s, err)
		}
	}
	invalid := []string{"", "has space", "semi;colon", "slash/path", strings.Repeat("a", 257)}
	for _, s := range invalid {
		if err := guard.ValidateIdentifier(s); err == nil {
			t.Errorf("ValidateIdentifier(%q): expected error", s)
		}
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := guard.LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}

	_, err = guard.LimitedReadAll(strings.NewReader(strings.Repeat("x", 100)), 10)
	if err == nil {
		t.Fatal("expected error when limit exceeded")
	}
}
