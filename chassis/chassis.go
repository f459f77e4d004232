// CLAUDE:SUMMARY Dev/test HTTPS chassis: self-signed certs, TLS 1.3 config, graceful serve loop.
// Package chassis serves an http.Handler over TLS with a generated
// certificate when none is configured. The hub and the engine's bridge both
// run behind it in development and in the integration tests; production
// deployments terminate TLS upstream and never reach the self-signed path.
package chassis

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"time"
)

// certValidity is how long a generated certificate lasts. Long enough for a
// development cycle, short enough that one leaking into production gets
// noticed.
const certValidity = 90 * 24 * time.Hour

// GenerateSelfSignedCert creates an ECDSA P-256 certificate for localhost.
func GenerateSelfSignedCert() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("chassis: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("chassis: serial: %w", err)
	}

	tmpl := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"blurshield dev"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(certValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("chassis: create certificate: %w", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, nil
}

// DevelopmentTLSConfig builds a TLS 1.3 config around a fresh self-signed
// certificate, with h2 and http/1.1 on ALPN.
func DevelopmentTLSConfig() (*tls.Config, error) {
	cert, err := GenerateSelfSignedCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8443". Required.
	Addr string
	// Handler serves every request. Required.
	Handler http.Handler
	// TLS overrides the generated development config.
	TLS    *tls.Config
	Logger *slog.Logger
}

// Server is a TLS HTTP server with a context-driven lifecycle.
type Server struct {
	addr   string
	tlsCfg *tls.Config
	srv    *http.Server
	logger *slog.Logger

	ln net.Listener
}

// New builds a Server. A nil Config.TLS gets a development config with a
// self-signed certificate.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("chassis: Addr is required")
	}
	if cfg.Handler == nil {
		return nil, errors.New("chassis: Handler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tlsCfg := cfg.TLS
	if tlsCfg == nil {
		var err error
		tlsCfg, err = DevelopmentTLSConfig()
		if err != nil {
			return nil, err
		}
		cfg.Logger.Warn("chassis: serving with a self-signed certificate")
	}
	return &Server{
		addr:   cfg.Addr,
		tlsCfg: tlsCfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
			TLSConfig:         tlsCfg,
		},
	}, nil
}

// Listen binds the address. Start calls it when needed; callers that need
// the bound port before serving (":0" in tests) call it first.
func (s *Server) Listen() error {
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("chassis: listen %s: %w", s.addr, err)
	}
	s.ln = ln
	return nil
}

// Start serves until ctx is canceled, then shuts down gracefully. Blocks.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.logger.Info("chassis: serving", "addr", s.ln.Addr().String())

	errc := make(chan error, 1)
	go func() {
		errc <- s.srv.Serve(tls.NewListener(s.ln, s.tlsCfg))
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr reports the bound address once Listen has run, the configured
// address before that.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}
