package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/linesearch/internal/auth"
	"github.com/sirosfoundation/linesearch/internal/corpus"
	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/internal/transport"
)

// Limits on reading past the bounded request before close
const (
	maxDrainBytes   = 64 * 1024
	maxDrainTimeout = 250 * time.Millisecond
)

// Handler serves one query per connection: read, authenticate, search,
// respond exactly once, close.
type Handler struct {
	store     corpus.Store
	auth      auth.Authenticator
	transport transport.Wrapper
	metrics   *Metrics
	logger    *zap.Logger

	readTimeout     time.Duration
	writeTimeout    time.Duration
	maxRequestBytes int
}

// HandlerConfig carries the per-connection limits
type HandlerConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxRequestBytes int
}

// NewHandler creates a query handler. A nil transport means plain TCP and a
// nil metrics collects into an unregistered set.
func NewHandler(store corpus.Store, authn auth.Authenticator, wrapper transport.Wrapper, metrics *Metrics, cfg HandlerConfig, logger *zap.Logger) *Handler {
	if wrapper == nil {
		wrapper = transport.Passthrough{}
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = 1024
	}
	return &Handler{
		store:           store,
		auth:            authn,
		transport:       wrapper,
		metrics:         metrics,
		logger:          logger.Named("handler"),
		readTimeout:     cfg.ReadTimeout,
		writeTimeout:    cfg.WriteTimeout,
		maxRequestBytes: cfg.MaxRequestBytes,
	}
}

// Serve handles raw until the verdict has been written and the connection
// closed. It never panics on client input and always closes raw.
func (h *Handler) Serve(ctx context.Context, raw net.Conn) {
	start := time.Now()
	h.metrics.connectionOpened()
	defer h.metrics.connectionClosed()

	log := h.logger.With(
		zap.String("conn_id", uuid.NewString()),
		zap.String("remote", raw.RemoteAddr().String()),
	)
	log.Debug("Connection established")

	conn, err := h.transport.Wrap(ctx, raw)
	if err != nil {
		// the wrapper closed raw; there is no channel to answer on
		_, reason := domain.Classify(err)
		h.metrics.observe(domain.VerdictInternalError, reason, time.Since(start))
		log.Warn("Transport handshake failed", zap.Error(err))
		return
	}
	defer h.close(conn, log)

	found, err := h.query(ctx, conn, log)

	verdict, reason := domain.VerdictFor(found), "ok"
	if err != nil {
		verdict, reason = domain.Classify(err)
		switch verdict {
		case domain.VerdictAuthFailed:
			log.Warn("Authentication failed", zap.Error(err))
		case domain.VerdictTimeout:
			log.Info("Request timed out", zap.Error(err))
		case domain.VerdictInvalidInput:
			log.Info("Invalid request", zap.Error(err))
		default:
			log.Error("Request failed", zap.String("reason", reason), zap.Error(err))
		}
	}

	h.respond(conn, verdict, log)

	elapsed := time.Since(start)
	h.metrics.observe(verdict, reason, elapsed)
	log.Info("Verdict sent",
		zap.String("verdict", verdict.String()),
		zap.String("reason", reason),
		zap.Duration("duration", elapsed),
	)
}

// query runs the read, authenticate and search steps
func (h *Handler) query(ctx context.Context, conn net.Conn, log *zap.Logger) (bool, error) {
	request, err := h.readRequest(conn)
	if err != nil {
		return false, err
	}

	payload, err := h.auth.Authenticate(request)
	if err != nil {
		return false, err
	}
	if len(payload) == 0 {
		return false, fmt.Errorf("%w: empty query", domain.ErrMalformedRequest)
	}
	if !utf8.Valid(payload) {
		return false, fmt.Errorf("%w: query is not valid UTF-8", domain.ErrMalformedRequest)
	}

	line := string(payload)
	log.Debug("Query received", zap.String("query", line))

	return h.store.Exists(ctx, line)
}

// readRequest performs the single bounded read and strips the trailing pad
func (h *Handler) readRequest(conn net.Conn) ([]byte, error) {
	if h.readTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	buf := make([]byte, h.maxRequestBytes)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		switch {
		case domain.IsTimeout(err):
			return nil, fmt.Errorf("%w: no request within %s", domain.ErrTimeout, h.readTimeout)
		case errors.Is(err, io.EOF):
			return nil, fmt.Errorf("%w: empty request", domain.ErrMalformedRequest)
		default:
			return nil, fmt.Errorf("failed to read request: %w", err)
		}
	}

	if n == len(buf) {
		// the request may continue past the buffer; only pad may follow
		if overflow := h.drain(conn); overflow {
			return nil, fmt.Errorf("%w: request exceeds %d bytes", domain.ErrMalformedRequest, h.maxRequestBytes)
		}
	}

	request := StripPad(buf[:n])
	if len(request) == 0 {
		return nil, fmt.Errorf("%w: empty request", domain.ErrMalformedRequest)
	}
	return request, nil
}

// drain discards input already sent past the bounded read, waiting at most
// drainTimeout for more. It reports whether any non-pad byte was seen.
func (h *Handler) drain(conn net.Conn) bool {
	_ = conn.SetReadDeadline(time.Now().Add(h.drainTimeout()))

	overflow := false
	buf := make([]byte, 512)
	var total int64
	for total < maxDrainBytes {
		n, err := conn.Read(buf)
		total += int64(n)
		if len(StripPad(buf[:n])) > 0 {
			overflow = true
		}
		if err != nil {
			break
		}
	}
	if total >= maxDrainBytes {
		overflow = true
	}
	return overflow
}

func (h *Handler) drainTimeout() time.Duration {
	if h.readTimeout > 0 && h.readTimeout < maxDrainTimeout {
		return h.readTimeout
	}
	return maxDrainTimeout
}

// close half-closes the connection and discards unread input before closing,
// so the peer sees the verdict followed by FIN and not a reset
func (h *Handler) close(conn net.Conn, log *zap.Logger) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err == nil {
			_ = conn.SetReadDeadline(time.Now().Add(h.drainTimeout()))
			_, _ = io.CopyN(io.Discard, conn, maxDrainBytes)
		}
	}
	if err := conn.Close(); err != nil {
		log.Debug("Close failed", zap.Error(err))
	}
}

// respond writes the verdict once. Write errors are logged and dropped.
func (h *Handler) respond(conn net.Conn, v domain.Verdict, log *zap.Logger) {
	if h.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	}
	if _, err := io.WriteString(conn, v.Wire()); err != nil {
		log.Debug("Failed to write verdict", zap.String("verdict", v.String()), zap.Error(err))
	}
}

// StripPad removes trailing NUL padding and then a trailing line terminator
func StripPad(b []byte) []byte {
	b = bytes.TrimRight(b, "\x00")
	return bytes.TrimRight(b, "\r\n")
}
