// Package transport secures accepted connections before the query handler
// sees them. The handler only ever reads and writes a net.Conn and does not
// know whether TLS is in use.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

// Wrapper upgrades a raw accepted connection
type Wrapper interface {
	Wrap(ctx context.Context, conn net.Conn) (net.Conn, error)
	Name() string
}

// Passthrough returns connections unchanged
type Passthrough struct{}

// Wrap returns conn as is
func (Passthrough) Wrap(_ context.Context, conn net.Conn) (net.Conn, error) {
	return conn, nil
}

// Name returns "plain"
func (Passthrough) Name() string { return "plain" }

// TLS performs a server-side TLS handshake bounded by HandshakeTimeout
type TLS struct {
	config           *tls.Config
	handshakeTimeout time.Duration
}

// NewTLS creates a TLS wrapper from a prepared server config
func NewTLS(cfg *tls.Config, handshakeTimeout time.Duration) *TLS {
	return &TLS{config: cfg, handshakeTimeout: handshakeTimeout}
}

// Wrap performs the handshake. On failure the connection is closed and an
// error wrapping domain.ErrTransportHandshake is returned.
func (t *TLS) Wrap(ctx context.Context, conn net.Conn) (net.Conn, error) {
	if t.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.handshakeTimeout)
		defer cancel()
	}

	tlsConn := tls.Server(conn, t.config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrTransportHandshake, err)
	}
	return tlsConn, nil
}

// Name returns "tls"
func (t *TLS) Name() string { return "tls" }

// LoadServerConfig builds a TLS server config from a PEM certificate and key
func LoadServerConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// New selects the wrapper for the security configuration
func New(cfg config.SecurityConfig) (Wrapper, error) {
	if !cfg.TLSEnabled() {
		return Passthrough{}, nil
	}
	tlsConfig, err := LoadServerConfig(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return NewTLS(tlsConfig, cfg.HandshakeTimeout), nil
}
