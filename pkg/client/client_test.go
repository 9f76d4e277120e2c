package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/linesearch/internal/auth"
	"github.com/sirosfoundation/linesearch/internal/corpus"
	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/internal/server"
	"github.com/sirosfoundation/linesearch/internal/transport"
	"github.com/sirosfoundation/linesearch/internal/transport/transporttest"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

func startServer(t *testing.T, sec config.SecurityConfig) string {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ReadTimeout = time.Second
	cfg.Security = sec

	authn, err := auth.New(sec)
	require.NoError(t, err)
	wrapper, err := transport.New(sec)
	require.NoError(t, err)

	srv, err := server.New(server.Options{
		Config:    cfg,
		Store:     corpus.NewSnapshot([]string{"alpha", "beta", "gamma"}),
		Auth:      authn,
		Transport: wrapper,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	go func() { _ = srv.Serve(context.Background()) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv.Addr().String()
}

func TestFrame(t *testing.T) {
	sum := sha256.Sum256([]byte("x"))
	hash := hex.EncodeToString(sum[:])

	got, err := Frame("beta", Options{Mode: config.AuthModeNone})
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))

	got, err = Frame("beta", Options{Mode: config.AuthModeSharedSecretHash, Secret: "x"})
	require.NoError(t, err)
	assert.Equal(t, hash+"beta", string(got))

	got, err = Frame("beta", Options{Mode: config.AuthModeTolerantNone, Secret: "x", HashAlgorithm: "sha256"})
	require.NoError(t, err)
	assert.Equal(t, hash+"beta", string(got))

	got, err = Frame("beta", Options{Mode: config.AuthModeKeyedHMAC, Secret: "x", HMACIterations: 1000})
	require.NoError(t, err)
	assert.Len(t, got, auth.DigestSize+len("beta"))
	assert.Equal(t, "beta", string(got[auth.DigestSize:]))
	key := auth.DeriveHMACKey("x", 1000)
	assert.Equal(t, auth.DigestPayload(key, []byte("beta")), got[:auth.DigestSize])

	got, err = Frame("beta", Options{Mode: config.AuthModeKeyedHMAC, Secret: "x", HMACIterations: 1000, KeyedDigest: config.KeyedDigestHMACSHA256})
	require.NoError(t, err)
	assert.Equal(t, auth.SignPayload(key, []byte("beta")), got[:auth.DigestSize])

	_, err = Frame("beta", Options{Mode: config.AuthModeKeyedHMAC, Secret: "x", KeyedDigest: "md5"})
	assert.Error(t, err)

	_, err = Frame("beta", Options{Mode: "kerberos"})
	assert.Error(t, err)
}

func TestQuery_Modes(t *testing.T) {
	tests := []struct {
		name string
		sec  config.SecurityConfig
		opts Options
	}{
		{
			name: "none",
			sec:  config.SecurityConfig{AuthMode: config.AuthModeNone, HashAlgorithm: "sha256"},
			opts: Options{Mode: config.AuthModeNone},
		},
		{
			name: "shared_secret_hash",
			sec:  config.SecurityConfig{AuthMode: config.AuthModeSharedSecretHash, SharedSecret: "x", HashAlgorithm: "sha256"},
			opts: Options{Mode: config.AuthModeSharedSecretHash, Secret: "x"},
		},
		{
			name: "shared_secret_hash blake3",
			sec:  config.SecurityConfig{AuthMode: config.AuthModeSharedSecretHash, SharedSecret: "x", HashAlgorithm: "blake3"},
			opts: Options{Mode: config.AuthModeSharedSecretHash, Secret: "x", HashAlgorithm: "blake3"},
		},
		{
			name: "keyed_hmac",
			sec:  config.SecurityConfig{AuthMode: config.AuthModeKeyedHMAC, SharedSecret: "x", HMACIterations: 1000},
			opts: Options{Mode: config.AuthModeKeyedHMAC, Secret: "x", HMACIterations: 1000},
		},
		{
			name: "keyed_hmac hmac_sha256",
			sec: config.SecurityConfig{
				AuthMode:       config.AuthModeKeyedHMAC,
				SharedSecret:   "x",
				HMACIterations: 1000,
				KeyedDigest:    config.KeyedDigestHMACSHA256,
			},
			opts: Options{Mode: config.AuthModeKeyedHMAC, Secret: "x", HMACIterations: 1000, KeyedDigest: config.KeyedDigestHMACSHA256},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := startServer(t, tt.sec)

			v, err := Query(context.Background(), addr, "beta", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, domain.VerdictExists, v)

			v, err = Query(context.Background(), addr, "delta", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, domain.VerdictNotFound, v)
		})
	}
}

func TestQuery_WrongSecret(t *testing.T) {
	addr := startServer(t, config.SecurityConfig{
		AuthMode:      config.AuthModeSharedSecretHash,
		SharedSecret:  "x",
		HashAlgorithm: "sha256",
	})

	v, err := Query(context.Background(), addr, "beta", Options{Mode: config.AuthModeSharedSecretHash, Secret: "y"})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictAuthFailed, v)
}

func TestQuery_TLS(t *testing.T) {
	m := transporttest.SelfSigned(t)
	addr := startServer(t, config.SecurityConfig{
		AuthMode:         config.AuthModeTransportTLS,
		HashAlgorithm:    "sha256",
		CertFile:         m.CertFile,
		KeyFile:          m.KeyFile,
		HandshakeTimeout: time.Second,
	})

	v, err := Query(context.Background(), addr, "gamma", Options{
		Mode:      config.AuthModeTransportTLS,
		TLSConfig: m.ClientConfig(t),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictExists, v)

	_, err = Query(context.Background(), addr, "gamma", Options{Mode: config.AuthModeTransportTLS})
	assert.Error(t, err, "transport_tls without a TLS config")
}

func TestQuery_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Query(context.Background(), addr, "beta", Options{Timeout: time.Second})
	assert.Error(t, err)
}
