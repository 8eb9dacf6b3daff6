package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"catalog-browser-api/internal/api"
	"catalog-browser-api/internal/config"
	"catalog-browser-api/internal/controller"
	"catalog-browser-api/internal/services"
	"catalog-browser-api/internal/sparql"
	"catalog-browser-api/pkg/cache"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	os.Exit(finish(logger, run(cfg, logger)))
}

// finish logs the outcome of run and flushes the logger before the process
// exits, returning the exit code.
func finish(logger *zap.Logger, err error) int {
	code := 0
	if err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	return code
}

func run(cfg *config.Config, logger *zap.Logger) error {
	builder, err := sparql.NewBuilder(sparql.DefaultVocabulary(cfg.Namespace))
	if err != nil {
		return err
	}
	client, err := sparql.NewClient(cfg.SPARQLEndpoint, cfg.SPARQLTimeout, sparql.WithLogger(logger.Named("sparql")))
	if err != nil {
		return err
	}

	redisCache := cache.NewRedisCache(context.Background(), cache.Options{
		URL:    cfg.RedisURL,
		DB:     cfg.RedisDB,
		TTL:    cfg.CacheTTL,
		Logger: logger.Named("cache"),
	})
	defer func() { _ = redisCache.Close() }()

	catalog := services.NewCatalogService(builder, client, redisCache, logger.Named("catalog"), services.Options{
		PageSize:           cfg.PageSize,
		MaxParallelLookups: cfg.MaxParallelLookups,
		CombinedListing:    cfg.CombinedListing,
	})
	sessions := controller.NewSessions(catalog, logger.Named("session"), cfg.PageSize)
	defer sessions.CloseAll()

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Options{
		Catalog:        catalog,
		Sessions:       sessions,
		Cache:          redisCache,
		Limiter:        api.NewIPRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Logger:         logger.Named("http"),
		AllowedOrigins: cfg.AllowedOrigins,
		SettleTimeout:  cfg.SPARQLTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SPARQLTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepSessions(ctx, sessions, cfg.SessionIdleTimeout)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("sparql_endpoint", client.Endpoint()),
			zap.Int("page_size", cfg.PageSize),
			zap.Bool("cache", redisCache.IsAvailable()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	logger.Info("server exited")
	return nil
}

// sweepSessions expires idle browsing sessions until ctx is done.
func sweepSessions(ctx context.Context, sessions *controller.Sessions, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(maxIdle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(maxIdle)
		}
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
