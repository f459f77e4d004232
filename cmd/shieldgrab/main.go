// CLAUDE:SUMMARY CLI entry point for shieldgrab — capture pages into snapshot archives and audit mark resolution.
// Command shieldgrab captures live pages into a snapshot archive and audits
// how well stored marks still resolve against them.
//
// Usage:
//
//	shieldgrab -out snaps.zip https://a.example/x https://b.example/y
//	shieldgrab -out snaps.zip -hub https://hub:8443 -token T urls...
//	shieldgrab -audit snaps.zip
//	shieldgrab -audit snaps.zip -json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bakharlabs/blurshield/grab"
	"github.com/bakharlabs/blurshield/mark"
	"github.com/bakharlabs/blurshield/persist"
	"github.com/bakharlabs/blurshield/snapaudit"
)

func main() {
	outPath := flag.String("out", "", "write captured snapshots to this archive")
	auditPath := flag.String("audit", "", "audit an existing archive and exit")
	hubURL := flag.String("hub", "", "hub base URL for fetching stored marks")
	token := flag.String("token", "", "hub bearer token")
	browser := flag.Bool("browser", false, "skip the HTTP path, always capture via the browser")
	asJSON := flag.Bool("json", false, "emit the audit report as JSON")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch {
	case *auditPath != "":
		err = runAudit(ctx, *auditPath, *asJSON)
	case *outPath != "" && flag.NArg() > 0:
		err = runCapture(ctx, logger, *outPath, *hubURL, *token, *browser, flag.Args())
	default:
		fmt.Fprintln(os.Stderr, "usage: shieldgrab -out <archive> [-hub <url> -token <t>] <url>... | -audit <archive> [-json]")
		os.Exit(1)
	}
	if err != nil {
		logger.Error("shieldgrab: fatal", "error", err)
		os.Exit(1)
	}
}

func runCapture(ctx context.Context, logger *slog.Logger, outPath, hubURL, token string, browser bool, urls []string) error {
	g := grab.New(grab.Config{ForceBrowser: browser, Logger: logger})
	defer g.Close()

	var remote *persist.Remote
	if hubURL != "" {
		remote = persist.NewRemote(hubURL, token, nil)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	w := grab.NewWriter(f)

	for _, u := range urls {
		snap, err := g.Capture(ctx, u)
		if err != nil {
			logger.Warn("shieldgrab: capture failed", "url", u, "error", err)
			continue
		}
		var marks []*mark.Mark
		if remote != nil {
			marks, err = remote.Load(ctx, snap.Identity)
			if err != nil {
				logger.Warn("shieldgrab: marks fetch failed", "identity", snap.Identity, "error", err)
			}
		}
		if err := w.Add(snap, marks); err != nil {
			return err
		}
		logger.Info("shieldgrab: archived", "url", u, "marks", len(marks), "browser", snap.Browser)
	}
	return w.Close()
}

func runAudit(ctx context.Context, path string, asJSON bool) error {
	rep, err := snapaudit.New(snapaudit.Config{}).Audit(ctx, path)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	rep.WriteText(os.Stdout)
	return nil
}
