package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sirosfoundation/linesearch/internal/auth"
	"github.com/sirosfoundation/linesearch/internal/corpus"
	"github.com/sirosfoundation/linesearch/internal/domain"
	"github.com/sirosfoundation/linesearch/internal/transport"
	"github.com/sirosfoundation/linesearch/pkg/config"
)

// Options wires the server's collaborators
type Options struct {
	Config    *config.Config
	Store     corpus.Store
	Auth      auth.Authenticator
	Transport transport.Wrapper // nil: plain TCP
	Metrics   *Metrics          // nil: unregistered collectors
	Logger    *zap.Logger
}

// Server accepts query connections and hands them to the dispatcher
type Server struct {
	cfg        config.ServerConfig
	logger     *zap.Logger
	handler    *Handler
	dispatcher Dispatcher
	limiter    *RateLimiter
	metrics    *Metrics
	plain      bool

	// connCtx is cancelled only when shutdown gives up waiting
	connCtx     context.Context
	cancelConns context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	serveDone chan struct{}
	closing   atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
	startedAt time.Time
}

// New creates a server. Call Listen and then Serve.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Store == nil {
		return nil, errors.New("corpus store is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("authenticator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	wrapper := opts.Transport
	if wrapper == nil {
		wrapper = transport.Passthrough{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	dispatcher, err := NewDispatcher(opts.Config.Dispatch)
	if err != nil {
		return nil, err
	}

	var limiter *RateLimiter
	if opts.Config.RateLimit.Enabled {
		limiter = NewRateLimiter(opts.Config.RateLimit)
	}

	_, plain := wrapper.(transport.Passthrough)

	s := &Server{
		cfg:        opts.Config.Server,
		logger:     logger.Named("acceptor"),
		dispatcher: dispatcher,
		limiter:    limiter,
		metrics:    metrics,
		plain:      plain,
		closed:     make(chan struct{}),
		handler: NewHandler(opts.Store, opts.Auth, wrapper, metrics, HandlerConfig{
			ReadTimeout:     opts.Config.Server.ReadTimeout,
			WriteTimeout:    opts.Config.Server.WriteTimeout,
			MaxRequestBytes: opts.Config.Server.MaxRequestBytes,
		}, logger),
	}
	s.connCtx, s.cancelConns = context.WithCancel(context.Background())
	return s, nil
}

// Listen binds the query listener. A bind failure is returned to the caller
// as fatal.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("server is already listening")
	}

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address(), err)
	}
	s.listener = ln
	s.startedAt = time.Now()
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// StartedAt returns when the listener was bound
func (s *Server) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Metrics returns the server's collectors
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Serve runs the accept loop until ctx is cancelled or Shutdown is called.
// Accept errors are logged and the loop continues.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	if ln == nil {
		s.mu.Unlock()
		return errors.New("server is not listening")
	}
	if s.serveDone != nil {
		s.mu.Unlock()
		return errors.New("server is already serving")
	}
	done := make(chan struct{})
	s.serveDone = done
	s.mu.Unlock()
	defer close(done)

	stop := context.AfterFunc(ctx, s.closeListener)
	defer stop()

	s.logger.Info("Query server listening",
		zap.String("address", ln.Addr().String()),
		zap.String("dispatch", s.dispatcher.Name()),
		zap.Bool("rate_limit", s.limiter != nil),
	)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				s.logger.Info("Listener closed, exiting accept loop")
				return nil
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Error("Error accepting connection", zap.Error(err), zap.Duration("retry_in", backoff))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
			case <-s.closed:
			case <-timer.C:
			}
			timer.Stop()
			continue
		}
		backoff = 0

		s.dispatch(conn)
	}
}

// ListenAndServe binds and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

func (s *Server) dispatch(conn net.Conn) {
	if !s.limiter.Allow(conn.RemoteAddr()) {
		s.reject(conn, "rate_limited")
		return
	}

	admitted := s.dispatcher.Dispatch(func() {
		s.handler.Serve(s.connCtx, conn)
	})
	if !admitted {
		s.reject(conn, "overloaded")
	}
}

// reject answers a connection that was not admitted and closes it
func (s *Server) reject(conn net.Conn, reason string) {
	s.metrics.connections.Inc()
	s.metrics.observe(domain.VerdictInternalError, reason, 0)
	s.logger.Warn("Connection rejected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.String("reason", reason),
	)

	if s.plain {
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_, _ = io.WriteString(conn, domain.VerdictInternalError.Wire())
	}
	_ = conn.Close()
}

func (s *Server) closeListener() {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		close(s.closed)
		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("Error closing listener", zap.Error(err))
			}
		}
	})
}

// Shutdown stops accepting and waits for in-flight connections. When ctx
// expires first, remaining handlers are cancelled and ctx's error returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeListener()

	s.mu.Lock()
	serveDone := s.serveDone
	s.mu.Unlock()

	if serveDone != nil {
		select {
		case <-serveDone:
		case <-ctx.Done():
			s.cancelConns()
			return fmt.Errorf("accept loop did not stop: %w", ctx.Err())
		}
	}

	drained := make(chan struct{})
	go func() {
		s.dispatcher.Wait()
		s.dispatcher.Close()
		close(drained)
	}()

	select {
	case <-drained:
		s.cancelConns()
		s.logger.Info("Query server stopped")
		return nil
	case <-ctx.Done():
		s.cancelConns()
		return fmt.Errorf("in-flight connections did not finish: %w", ctx.Err())
	}
}
