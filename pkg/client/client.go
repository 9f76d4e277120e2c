// Package client sends a single query to a linesearch server and decodes the
// verdict.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirosfoundation/linesearch/internal/auth"
	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

// maxResponseBytes bounds how much of a response is read
const maxResponseBytes = 256

// Options describes how a request is framed and delivered
type Options struct {
	// Mode is the server's auth mode. tolerant_none is sent like
	// shared_secret_hash.
	Mode          string
	Secret        string
	HashAlgorithm string
	// HMACIterations and KeyedDigest must match the server's
	// hmac_iterations and keyed_digest. An empty KeyedDigest means
	// prefix_sha256.
	HMACIterations int
	KeyedDigest    string

	// TLSConfig enables TLS. It is required for transport_tls.
	TLSConfig *tls.Config

	// Timeout bounds dial, write and read together. Zero means 5s.
	Timeout time.Duration
}

// Frame builds the request bytes for line under opts
func Frame(line string, opts Options) ([]byte, error) {
	switch opts.Mode {
	case "", config.AuthModeNone, config.AuthModeTransportTLS:
		return []byte(line), nil
	case config.AuthModeSharedSecretHash, config.AuthModeTolerantNone:
		digest, err := auth.SharedSecretDigest(opts.Secret, opts.HashAlgorithm)
		if err != nil {
			return nil, err
		}
		return []byte(digest + line), nil
	case config.AuthModeKeyedHMAC:
		iterations := opts.HMACIterations
		if iterations <= 0 {
			iterations = config.DefaultConfig().Security.HMACIterations
		}
		sign, err := auth.SignerFor(opts.KeyedDigest)
		if err != nil {
			return nil, err
		}
		key := auth.DeriveHMACKey(opts.Secret, iterations)
		return append(sign(key, []byte(line)), line...), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", opts.Mode)
	}
}

// Query sends line to the server at addr and returns the verdict. The busy
// response is reported as domain.VerdictInternalError.
func Query(ctx context.Context, addr, line string, opts Options) (domain.Verdict, error) {
	raw, err := Exchange(ctx, addr, line, opts)
	if err != nil {
		return domain.VerdictInternalError, err
	}
	return domain.ParseWire(raw)
}

// Exchange sends line and returns the raw response text
func Exchange(ctx context.Context, addr, line string, opts Options) (string, error) {
	if opts.Mode == config.AuthModeTransportTLS && opts.TLSConfig == nil {
		return "", fmt.Errorf("auth mode %s requires a TLS config", opts.Mode)
	}

	request, err := Frame(line, opts)
	if err != nil {
		return "", err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, addr, opts.TLSConfig)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(request); err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}

	resp, err := io.ReadAll(io.LimitReader(conn, maxResponseBytes))
	if err != nil && len(resp) == 0 {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	return string(resp), nil
}

func dial(ctx context.Context, addr string, tlsConfig *tls.Config) (net.Conn, error) {
	if tlsConfig != nil {
		d := &tls.Dialer{Config: tlsConfig}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s over TLS: %w", addr, err)
		}
		return conn, nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return conn, nil
}
