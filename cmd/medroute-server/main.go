package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medroute/medroute/internal/config"
	"github.com/medroute/medroute/internal/domain/emergency"
	"github.com/medroute/medroute/internal/domain/facility"
	"github.com/medroute/medroute/internal/platform/auth"
	"github.com/medroute/medroute/internal/platform/db"
	"github.com/medroute/medroute/internal/platform/events"
	"github.com/medroute/medroute/internal/platform/metrics"
	"github.com/medroute/medroute/internal/platform/middleware"
	"github.com/medroute/medroute/internal/platform/validation"
	"github.com/medroute/medroute/internal/platform/websocket"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "medroute-server",
		Short:        "Emergency routing and doctor-connect API server",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(facilityCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return logger
}

// app holds the stores and sinks the HTTP server is assembled from. Tests
// swap the Postgres-backed fields for in-memory ones.
type app struct {
	directory     facility.Directory
	requests      emergency.RequestRepository
	prescriptions emergency.PrescriptionRepository
	tx            emergency.TxRunner
	pinger        db.Pinger
	pool          *pgxpool.Pool
	metrics       *metrics.Metrics
	hub           *websocket.Hub
	// publisher fans queue events out; nil means the local hub.
	publisher websocket.EventPublisher
}

func newPostgresApp(pool *pgxpool.Pool, m *metrics.Metrics, hub *websocket.Hub) *app {
	return &app{
		directory:     facility.NewDirectoryPG(pool),
		requests:      emergency.NewRequestRepoPG(pool),
		prescriptions: emergency.NewPrescriptionRepoPG(pool),
		tx:            db.NewTxRunner(pool),
		pinger:        pool,
		pool:          pool,
		metrics:       m,
		hub:           hub,
	}
}

func authMiddleware(cfg *config.Config) (echo.MiddlewareFunc, error) {
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
		Skipper:    auth.AuthSkipper,
	}
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		return auth.DevAuthMiddleware(jwtCfg), nil
	}
	return auth.JWTMiddleware(jwtCfg), nil
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

// newServer wires middleware, domain services and routes onto a fresh echo
// instance.
func newServer(cfg *config.Config, logger zerolog.Logger, a *app) (*echo.Echo, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	authMW, err := authMiddleware(cfg)
	if err != nil {
		return nil, err
	}

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(authMW)
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(a.metrics.Middleware())

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg)))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.pinger, a.pool))
	if a.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))
	}

	// Facility directory
	var cacheObserver facility.CacheObserver
	if a.metrics != nil {
		cacheObserver = a.metrics
	}
	directory := facility.NewCachedDirectory(a.directory, cfg.FacilityCacheTTL, cacheObserver)
	resolver := facility.NewResolver(directory)
	facility.NewHandler(directory, resolver).RegisterRoutes(apiV1)

	// Dispatch, queue and resolution
	svc := emergency.NewService(resolver, a.requests, a.prescriptions, a.tx, logger)
	if a.metrics != nil {
		svc.SetObserver(a.metrics)
	}
	hub := a.hub
	if hub == nil {
		hub = websocket.NewHub(logger)
	}
	if a.publisher != nil {
		svc.SetPublisher(a.publisher)
	} else {
		svc.SetPublisher(hub)
	}
	emergency.NewHandler(svc, cfg.QueueShowAll, logger).RegisterRoutes(apiV1)

	// Queue push notifications
	wsh := websocket.NewWebSocketHandler(hub, cfg.CORSOrigins...)
	wsh.SetShowAll(cfg.QueueShowAll)
	wsh.RegisterRoutes(e.Group(""))

	return e, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn().Msg(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New(version)
	}

	hub := websocket.NewHub(logger)
	a := newPostgresApp(pool, m, hub)

	// Cross-replica fan-out. Without Redis each replica only notifies its
	// own websocket clients.
	if cfg.RedisURL != "" {
		rdb, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to redis")
			return err
		}
		defer rdb.Close()

		bus := events.NewRedisBus(rdb, cfg.RedisChannel, hub, logger)
		if err := bus.Start(ctx); err != nil {
			return err
		}
		defer bus.Close()
		a.publisher = bus
		logger.Info().Str("channel", cfg.RedisChannel).Msg("queue events relayed through redis")
	}

	e, err := newServer(cfg, logger, a)
	if err != nil {
		return err
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
