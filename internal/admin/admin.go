// Package admin provides the optional HTTP API next to the query listener:
// a public health check, a token-protected status endpoint and prometheus
// metrics.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sirosfoundation/linesearch/internal/corpus"
	"github.com/sirosfoundation/linesearch/pkg/logging"
	"github.com/sirosfoundation/linesearch/pkg/middleware"
)

// ServiceName is reported by /health and /admin/status
const ServiceName = "linesearch"

// StatusVersion is the version of the /admin/status document
const StatusVersion = 1

// VerdictCounter reports response totals by verdict name
type VerdictCounter interface {
	Totals() map[string]uint64
}

// Options configures the admin API
type Options struct {
	Address        string
	Token          string // generated when empty
	AllowedOrigins []string
	LoggingLevel   string

	Store     corpus.Store
	Verdicts  VerdictCounter
	Gatherer  prometheus.Gatherer // nil: prometheus.DefaultGatherer
	AuthMode  string
	Dispatch  string
	Transport string
	StartedAt time.Time

	Logger *zap.Logger
}

// StatusResponse is the /admin/status document
type StatusResponse struct {
	Status        string            `json:"status"`
	Service       string            `json:"service"`
	Version       int               `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	AuthMode      string            `json:"auth_mode"`
	Dispatch      string            `json:"dispatch"`
	Transport     string            `json:"transport"`
	LogLevel      string            `json:"log_level"`
	Corpus        corpus.Stats      `json:"corpus"`
	Verdicts      map[string]uint64 `json:"verdicts"`
}

// Server is the admin HTTP server
type Server struct {
	opts   Options
	token  string
	logger *zap.Logger
	router *gin.Engine

	httpServer *http.Server
}

// New builds the admin router. An empty token is replaced by a generated one
// which is logged once.
func New(opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("admin")

	if opts.Store == nil {
		return nil, errors.New("corpus store is required")
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}

	token := opts.Token
	if token == "" {
		var err error
		token, err = middleware.GenerateAdminToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate admin token: %w", err)
		}
		logger.Info("Generated admin API token (set LINESEARCH_ADMIN_ADMIN_TOKEN to use a fixed token)",
			zap.String("token", token))
	}

	s := &Server{opts: opts, token: token, logger: logger}
	s.router = s.buildRouter()
	return s, nil
}

// Router returns the admin router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *gin.Engine {
	if s.opts.LoggingLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(s.logger))
	if len(s.opts.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins: s.opts.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	router.GET("/health", s.health)

	protected := router.Group("/")
	protected.Use(middleware.AdminAuthMiddleware(s.token, s.logger))
	{
		protected.GET("/admin/status", s.status)
		protected.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
}

func (s *Server) status(c *gin.Context) {
	verdicts := map[string]uint64{}
	if s.opts.Verdicts != nil {
		verdicts = s.opts.Verdicts.Totals()
	}
	c.JSON(http.StatusOK, StatusResponse{
		Status:        "ok",
		Service:       ServiceName,
		Version:       StatusVersion,
		UptimeSeconds: int64(time.Since(s.opts.StartedAt).Seconds()),
		AuthMode:      s.opts.AuthMode,
		Dispatch:      s.opts.Dispatch,
		Transport:     s.opts.Transport,
		LogLevel:      logging.LevelString(logging.ParseLevel(s.opts.LoggingLevel)),
		Corpus:        s.opts.Store.Stats(),
		Verdicts:      verdicts,
	})
}

// ListenAndServe binds the admin address and serves until Shutdown or until
// ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves the admin API on ln
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	})
	defer stop()

	s.logger.Info("Admin server listening", zap.String("address", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}
