// Package integration runs the linesearch server end to end on loopback.
package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/linesearch/internal/admin"
	"github.com/sirosfoundation/linesearch/internal/auth"
	"github.com/sirosfoundation/linesearch/internal/corpus"
	"github.com/sirosfoundation/linesearch/internal/server"
	"github.com/sirosfoundation/linesearch/internal/transport"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

// AdminToken is the bearer token of the harness admin API
const AdminToken = "integration-admin-token"

// TestHarness runs a query server, and an admin API next to it, wired the
// same way as cmd/server
type TestHarness struct {
	T          *testing.T
	Config     *config.Config
	CorpusPath string
	Logger     *zap.Logger

	Server  *server.Server
	Store   corpus.Store
	Admin   *httptest.Server
	Addr    string
	cancel  context.CancelFunc
	serveCh chan error
}

// TestHarnessOption configures the test harness
type TestHarnessOption func(*TestHarness)

// WithConfig mutates the default harness config before the server starts
func WithConfig(fn func(*config.Config)) TestHarnessOption {
	return func(h *TestHarness) {
		fn(h.Config)
	}
}

// WithSharedSecret selects shared_secret_hash auth with secret
func WithSharedSecret(secret string) TestHarnessOption {
	return WithConfig(func(cfg *config.Config) {
		cfg.Security.AuthMode = config.AuthModeSharedSecretHash
		cfg.Security.SharedSecret = secret
	})
}

// WithLivePolicy re-reads the corpus on every query
func WithLivePolicy() TestHarnessOption {
	return WithConfig(func(cfg *config.Config) {
		cfg.Corpus.RereadOnQuery = true
	})
}

// NewTestHarness writes lines to a corpus file and starts the server on an
// ephemeral loopback port
func NewTestHarness(t *testing.T, lines []string, opts ...TestHarnessOption) *TestHarness {
	t.Helper()

	logger, _ := zap.NewDevelopment()

	cfg := config.DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ReadTimeout = 200 * time.Millisecond
	cfg.Logging.Level = "debug"

	h := &TestHarness{
		T:          t,
		Config:     cfg,
		Logger:     logger,
		CorpusPath: filepath.Join(t.TempDir(), "corpus.txt"),
	}
	cfg.Corpus.Path = h.CorpusPath

	for _, opt := range opts {
		opt(h)
	}

	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	require.NoError(t, os.WriteFile(h.CorpusPath, []byte(content), 0o600))

	h.start()
	return h
}

func (h *TestHarness) start() {
	t := h.T
	cfg := h.Config

	store, err := corpus.New(cfg.Corpus)
	require.NoError(t, err)
	h.Store = store

	authn, err := auth.New(cfg.Security)
	require.NoError(t, err)

	wrapper, err := transport.New(cfg.Security)
	require.NoError(t, err)

	metrics := server.NewMetrics(prometheus.NewRegistry())
	srv, err := server.New(server.Options{
		Config:    cfg,
		Store:     store,
		Auth:      authn,
		Transport: wrapper,
		Metrics:   metrics,
		Logger:    h.Logger,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	h.Server = srv
	h.Addr = srv.Addr().String()

	adminSrv, err := admin.New(admin.Options{
		Token:     AdminToken,
		Store:     store,
		Verdicts:  metrics,
		AuthMode:  string(authn.Mode()),
		Dispatch:  cfg.Dispatch.Strategy,
		Transport: wrapper.Name(),
		StartedAt: srv.StartedAt(),
		Logger:    h.Logger,
	})
	require.NoError(t, err)
	h.Admin = httptest.NewServer(adminSrv.Router())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.serveCh = make(chan error, 1)
	go func() { h.serveCh <- srv.Serve(ctx) }()

	t.Cleanup(h.Stop)
}

// Stop shuts the server down and waits for in-flight connections
func (h *TestHarness) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(h.T, h.Server.Shutdown(ctx))
	require.NoError(h.T, <-h.serveCh)
	h.Admin.Close()
}

// Hash returns the shared_secret_hash credential for secret
func Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Send writes request on a fresh connection and returns everything the
// server sends before closing
func (h *TestHarness) Send(request string) string {
	h.T.Helper()
	conn := h.Dial()
	defer conn.Close()

	_, err := conn.Write([]byte(request))
	require.NoError(h.T, err)
	return h.ReadAll(conn)
}

// Dial opens a raw connection to the query server
func (h *TestHarness) Dial() net.Conn {
	h.T.Helper()
	conn, err := net.DialTimeout("tcp", h.Addr, 2*time.Second)
	require.NoError(h.T, err)
	return conn
}

// ReadAll reads until the server closes conn
func (h *TestHarness) ReadAll(conn net.Conn) string {
	h.T.Helper()
	require.NoError(h.T, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	resp, err := io.ReadAll(conn)
	require.NoError(h.T, err)
	return string(resp)
}

// AppendLine appends line to the corpus file
func (h *TestHarness) AppendLine(line string) {
	h.T.Helper()
	f, err := os.OpenFile(h.CorpusPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(h.T, err)
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	require.NoError(h.T, err)
}
