// CLAUDE:SUMMARY Live page capture: HTTP fast path with rod+stealth escalation, sanitized snapshots.
// Package grab captures real pages into sanitized snapshots for the audit
// pipeline. Acquisition is tiered: a plain HTTP GET first (covers static
// sites), escalating to a stealth headless browser when the fetched HTML is
// too thin to be the real document. Snapshots are sanitized before they
// leave this package; scripts and event handlers never reach the auditors.
package grab

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bakharlabs/blurshield/page"
)

// ErrCaptureFailed wraps every acquisition failure.
var ErrCaptureFailed = errors.New("grab: capture failed")

// maxBody caps one fetched document.
const maxBody = 10 << 20

// minSufficientText is the rendered-text threshold below which an HTTP
// fetch is assumed to be a JS shell and capture escalates to the browser.
const minSufficientText = 200

// Snapshot is one captured, sanitized page.
type Snapshot struct {
	URL        string    `json:"url"`
	Identity   string    `json:"identity"`
	HTML       []byte    `json:"-"`
	SHA256     string    `json:"sha256"`
	CapturedAt time.Time `json:"captured_at"`
	// Browser reports whether the capture escalated past plain HTTP.
	Browser bool `json:"browser"`
}

// Config configures a Grabber.
type Config struct {
	// UserAgent for the HTTP path.
	UserAgent string
	// Timeout bounds one acquisition, either path.
	Timeout time.Duration
	// ForceBrowser skips the HTTP attempt entirely.
	ForceBrowser bool
	// RemoteURL is the websocket URL of an external Chrome instance.
	// Empty launches a local one on first browser capture.
	RemoteURL string
	Client    *http.Client
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; BlurShield/1.0)"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Grabber captures pages. The browser is launched lazily and reused across
// captures; Close tears it down.
type Grabber struct {
	cfg       Config
	sanitizer *page.Sanitizer
	browser   *browserSession
}

// New creates a Grabber.
func New(cfg Config) *Grabber {
	cfg.defaults()
	return &Grabber{cfg: cfg, sanitizer: page.NewSanitizer()}
}

// Capture acquires rawURL and returns a sanitized snapshot. The HTTP path
// runs first unless ForceBrowser is set; a thin result escalates.
func (g *Grabber) Capture(ctx context.Context, rawURL string) (*Snapshot, error) {
	identity, err := page.Identity(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	var raw []byte
	browser := false
	if !g.cfg.ForceBrowser {
		raw, err = g.fetch(ctx, rawURL)
		if err != nil {
			g.cfg.Logger.Warn("grab: http fetch failed, escalating",
				"url", rawURL, "error", err)
			raw = nil
		}
	}
	if raw == nil || !sufficient(raw) {
		raw, err = g.captureBrowser(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
		}
		browser = true
	}

	clean := g.sanitizer.CleanBytes(raw)
	sum := sha256.Sum256(clean)
	snap := &Snapshot{
		URL:        rawURL,
		Identity:   identity,
		HTML:       clean,
		SHA256:     hex.EncodeToString(sum[:]),
		CapturedAt: time.Now().UTC(),
		Browser:    browser,
	}
	g.cfg.Logger.Info("grab: captured", "url", rawURL,
		"size", len(clean), "browser", browser)
	return snap, nil
}

// fetch is the HTTP acquisition path.
func (g *Grabber) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("grab: new request: %w", err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := g.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grab: do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grab: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("grab: read body: %w", err)
	}
	return body, nil
}

// sufficient reports whether the HTML carries enough rendered text to be
// the real document rather than a JS shell.
func sufficient(raw []byte) bool {
	doc, err := page.ParseString(string(raw), "")
	if err != nil {
		return false
	}
	text := strings.Join(strings.Fields(page.TextContent(doc.Body())), " ")
	return len(text) >= minSufficientText
}

// Close shuts the browser down, if one was launched.
func (g *Grabber) Close() error {
	if g.browser != nil {
		return g.browser.close()
	}
	return nil
}
