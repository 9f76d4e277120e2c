package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sirosfoundation/linesearch/internal/admin"
	"github.com/sirosfoundation/linesearch/internal/auth"
	"github.com/sirosfoundation/linesearch/internal/corpus"
	"github.com/sirosfoundation/linesearch/internal/server"
	"github.com/sirosfoundation/linesearch/internal/transport"
	"github.com/sirosfoundation/linesearch/pkg/config"
	"github.com/sirosfoundation/linesearch/pkg/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configFile := pflag.StringP("config", "c", "configs/config.yaml", "Path to configuration file")
	corpusPath := pflag.String("corpus", "", "Corpus file (overrides corpus.corpus_path)")
	port := pflag.IntP("port", "p", 0, "Query listener port (overrides server.port)")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("linesearch %s (built %s)\n", version, buildTime)
		return
	}

	// Wipe credential enclaves on exit
	defer memguard.Purge()

	cfg, err := loadConfig(*configFile, *corpusPath, *port)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting linesearch server",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server failed", zap.Error(err))
		memguard.SafeExit(1)
	}
	logger.Info("Server exited")
}

// loadConfig applies command line overrides on top of file and environment
func loadConfig(file, corpusPath string, port int) (*config.Config, error) {
	if corpusPath != "" {
		if err := os.Setenv("LINESEARCH_CORPUS_CORPUS_PATH", corpusPath); err != nil {
			return nil, err
		}
	}
	if port != 0 {
		if err := os.Setenv("LINESEARCH_SERVER_PORT", fmt.Sprint(port)); err != nil {
			return nil, err
		}
	}
	return config.Load(file)
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	store, err := corpus.New(cfg.Corpus)
	if err != nil {
		return err
	}
	stats := store.Stats()
	logger.Info("Corpus ready",
		zap.String("path", cfg.Corpus.Path),
		zap.String("policy", string(stats.Policy)),
		zap.Int("lines", stats.Lines),
		zap.String("fingerprint", stats.Fingerprint),
	)

	authn, err := auth.New(cfg.Security)
	if err != nil {
		return fmt.Errorf("failed to initialize authenticator: %w", err)
	}

	wrapper, err := transport.New(cfg.Security)
	if err != nil {
		return err
	}

	metrics := server.NewMetrics(prometheus.DefaultRegisterer)

	srv, err := server.New(server.Options{
		Config:    cfg,
		Store:     store,
		Auth:      authn,
		Transport: wrapper,
		Metrics:   metrics,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	logger.Info("Query server settings",
		zap.String("address", srv.Addr().String()),
		zap.String("auth_mode", string(authn.Mode())),
		zap.Bool("reread_on_query", cfg.Corpus.RereadOnQuery),
		zap.String("transport", wrapper.Name()),
		zap.String("dispatch", cfg.Dispatch.Strategy),
		zap.Duration("read_timeout", cfg.Server.ReadTimeout),
		zap.String("log_level", logging.LevelString(logger.Level())),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Serve(gctx)
	})

	if cfg.Admin.Port > 0 {
		adminSrv, err := admin.New(admin.Options{
			Address:        cfg.AdminAddress(),
			Token:          cfg.Admin.Token,
			AllowedOrigins: cfg.Admin.AllowedOrigins,
			LoggingLevel:   cfg.Logging.Level,
			Store:          store,
			Verdicts:       metrics,
			AuthMode:       string(authn.Mode()),
			Dispatch:       cfg.Dispatch.Strategy,
			Transport:      wrapper.Name(),
			StartedAt:      srv.StartedAt(),
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return adminSrv.ListenAndServe(gctx)
		})
	}

	// Serve returns once gctx is done; drain in-flight connections afterwards
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Query server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
