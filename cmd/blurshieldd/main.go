// CLAUDE:SUMMARY CLI entry point for blurshieldd — the mark persistence engine daemon: websocket bridge + MCP.
// Command blurshieldd runs the mark persistence and restoration engine.
//
// Usage:
//
//	blurshieldd -config blurshield.yaml      # run with config file
//	blurshieldd -cache blurshield.db         # run with defaults
//	blurshieldd -cache blurshield.db -mcp    # also serve MCP tools on stdio
//	blurshieldd -cache blurshield.db -tls    # self-signed TLS on the bridge
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	_ "modernc.org/sqlite"

	"github.com/bakharlabs/blurshield/bridge"
	"github.com/bakharlabs/blurshield/chassis"
	"github.com/bakharlabs/blurshield/engine"
	"github.com/bakharlabs/blurshield/grab"
	"github.com/bakharlabs/blurshield/page"
)

func main() {
	configPath := flag.String("config", "", "path to blurshield.yaml config file")
	cachePath := flag.String("cache", "", "path to the SQLite mark cache")
	addr := flag.String("addr", ":8377", "bridge listen address")
	useTLS := flag.Bool("tls", false, "serve the bridge over self-signed TLS")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio")
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

	if err := run(ctx, logger, *configPath, *cachePath, *addr, *useTLS, *serveMCP); err != nil {
		logger.Error("blurshieldd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, cachePath, addr string, useTLS, serveMCP bool) error {
	cfg, err := resolveConfig(configPath, cachePath)
	if err != nil {
		return err
	}

	e, err := engine.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer e.Close()

	// The engine mirrors documents the hosts are looking at; when a host
	// connects for a page the engine has never seen, it grabs its own
	// sanitized copy.
	grabber := grab.New(grab.Config{Logger: logger})
	defer grabber.Close()
	e.SetDocSource(func(ctx context.Context, rawURL string) (*page.Doc, error) {
		snap, err := grabber.Capture(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		return page.ParseString(string(snap.HTML), rawURL)
	})

	e.Start(ctx)

	if serveMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "blurshield",
			Version: "1.0.0",
		}, nil)
		e.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("blurshieldd: mcp", "error", err)
			}
		}()
	}

	bs := bridge.NewServer(bridge.Config{
		Handler:        e.Handler(),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
	defer bs.Close()

	if useTLS {
		srv, err := chassis.New(chassis.Config{Addr: addr, Handler: bs, Logger: logger})
		if err != nil {
			return err
		}
		logger.Info("blurshieldd: bridge listening", "addr", addr, "tls", true)
		return srv.Start(ctx)
	}

	httpSrv := &http.Server{Addr: addr, Handler: bs, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()
	logger.Info("blurshieldd: bridge listening", "addr", addr, "tls", false)

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	case err := <-errc:
		return err
	}
}

func resolveConfig(configPath, cachePath string) (*engine.Config, error) {
	if configPath != "" {
		return engine.LoadConfigFile(configPath)
	}

	cfg := &engine.Config{}
	if cachePath != "" {
		cfg.CacheDB = cachePath
	}
	if cfg.CacheDB == "" {
		fmt.Fprintln(os.Stderr, "usage: blurshieldd -config <file> | -cache <path> [-addr <addr>] [-mcp] [-tls]")
		os.Exit(1)
	}
	return cfg, nil
}
