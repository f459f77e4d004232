// CLAUDE:SUMMARY CLI entry point for shieldhub — the mark sync service: accounts, devices, revisioned sets.
// Command shieldhub runs the sync service devices save their mark sets to.
//
// Usage:
//
//	shieldhub -config shieldhub.yaml     # run with config file
//	shieldhub -db hub.db                 # run with defaults (JWT_SECRET env)
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

	_ "modernc.org/sqlite"

	"github.com/bakharlabs/blurshield/chassis"
	"github.com/bakharlabs/blurshield/synchub"
)

func main() {
	configPath := flag.String("config", "", "path to shieldhub.yaml config file")
	dbPath := flag.String("db", "", "path to the SQLite database")
	useTLS := flag.Bool("tls", false, "serve over self-signed TLS")
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

	if err := run(ctx, logger, *configPath, *dbPath, *useTLS); err != nil {
		logger.Error("shieldhub: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, dbPath string, useTLS bool) error {
	cfg, err := resolveConfig(configPath, dbPath)
	if err != nil {
		return err
	}

	h, err := synchub.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer h.Close()

	logger.Info("shieldhub: running", "addr", cfg.Addr, "db", cfg.DBPath, "tls", useTLS)

	if useTLS {
		srv, err := chassis.New(chassis.Config{Addr: cfg.Addr, Handler: h.Router(), Logger: logger})
		if err != nil {
			return err
		}
		return srv.Start(ctx)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutCtx)
	case err := <-errc:
		return err
	}
}

func resolveConfig(configPath, dbPath string) (*synchub.Config, error) {
	if configPath != "" {
		return synchub.LoadConfigFile(configPath)
	}

	cfg := &synchub.Config{JWTSecret: os.Getenv("JWT_SECRET")}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if cfg.DBPath == "" {
		fmt.Fprintln(os.Stderr, "usage: shieldhub -config <file> | -db <path> (JWT_SECRET env)")
		os.Exit(1)
	}
	return cfg, nil
}
