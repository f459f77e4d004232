// CLAUDE:SUMMARY Stealth headless browser path: lazy Chrome launch, navigate, serialize the live DOM.
package grab

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// browserSession holds one connected Chrome. Launched on the first
// escalated capture and reused until Close.
type browserSession struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
}

func (g *Grabber) session() (*browserSession, error) {
	if g.browser != nil {
		return g.browser, nil
	}

	wsURL := g.cfg.RemoteURL
	var lnch *launcher.Launcher
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("grab: launch chrome: %w", err)
		}
		wsURL = u
		lnch = l
		g.cfg.Logger.Info("grab: launched local chrome")
	} else {
		g.cfg.Logger.Info("grab: connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("grab: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		g.cfg.Logger.Warn("grab: ignore cert errors failed", "error", err)
	}

	g.browser = &browserSession{browser: b, lnch: lnch}
	return g.browser, nil
}

// captureBrowser opens a stealth tab, navigates, waits for load, and
// serializes the live DOM.
func (g *Grabber) captureBrowser(ctx context.Context, rawURL string) ([]byte, error) {
	sess, err := g.session()
	if err != nil {
		return nil, err
	}

	p, err := stealth.Page(sess.browser)
	if err != nil {
		return nil, fmt.Errorf("grab: stealth tab: %w", err)
	}
	defer p.Close()

	navCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	if err := p.Context(navCtx).Navigate(rawURL); err != nil {
		return nil, fmt.Errorf("grab: navigate %s: %w", rawURL, err)
	}
	if err := p.Context(navCtx).WaitLoad(); err != nil {
		g.cfg.Logger.Warn("grab: wait load timeout", "url", rawURL, "error", err)
	}

	res, err := p.Context(navCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("grab: serialize DOM: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

func (s *browserSession) close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
	return err
}
