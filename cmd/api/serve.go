package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	httpAdapter "github.com/lorrc/petcare-backend/internal/adapters/primary/http"
	mw "github.com/lorrc/petcare-backend/internal/adapters/primary/http/middleware"
	"github.com/lorrc/petcare-backend/internal/adapters/primary/stream"
	"github.com/lorrc/petcare-backend/internal/adapters/primary/websocket"
	"github.com/lorrc/petcare-backend/internal/adapters/secondary/postgres"
	"github.com/lorrc/petcare-backend/internal/adapters/secondary/webhook"
	"github.com/lorrc/petcare-backend/internal/auth"
	"github.com/lorrc/petcare-backend/internal/config"
	"github.com/lorrc/petcare-backend/internal/core/domain"
	"github.com/lorrc/petcare-backend/internal/core/services"
	"github.com/lorrc/petcare-backend/internal/infrastructure/logging"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP, WebSocket and stream server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return err
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})
	slog.SetDefault(logger)

	logger.Info("starting service",
		"version", version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	// 3. Initialize Database Pool
	pool, err := newPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return err
	}
	defer pool.Close()
	logger.Info("database connection established")

	// 4. Security
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.SessionTTL)
	adminSecret, err := auth.NewAdminSecret(cfg.Realtime.AdminKeyHash, cfg.Realtime.AdminKey)
	if err != nil {
		logger.Error("invalid admin key configuration", "error", err)
		return err
	}
	if !adminSecret.Enabled() {
		logger.Warn("no admin key configured, admin authentication is disabled")
	}

	// 5. Repositories (Secondary Adapters)
	txManager := postgres.NewTransactionManager(pool)
	ownerRepo := postgres.NewOwnerRepository(pool)
	petRepo := postgres.NewPetRepository(pool)
	serviceRepo := postgres.NewServiceRepository(pool)
	bookingRepo := postgres.NewBookingRepository(pool, txManager)

	// 6. Core: registry, router, dispatcher
	registry := services.NewClientRegistry(ownerRepo, bookingRepo, adminSecret, logger)
	router := services.NewEventRouter(registry, logger)
	dispatcher := services.NewRequestDispatcher(services.DispatcherDeps{
		Owners:   ownerRepo,
		Pets:     petRepo,
		Services: serviceRepo,
		Bookings: bookingRepo,
		Router:   router,
		Logger:   logger,
	})

	// 7. Realtime transports
	wsCfg := websocket.DefaultConfig()
	wsCfg.Enabled = cfg.Realtime.WebSocketEnabled
	wsCfg.SendBufferSize = cfg.Realtime.SendBufferSize
	wsCfg.PongWait = cfg.WebSocket.PongWait
	wsCfg.PingInterval = cfg.WebSocket.PingInterval
	wsCfg.MaxMessageSize = cfg.WebSocket.MaxMessageSize
	wsCfg.FrameRPS = cfg.RateLimit.FrameRPS
	wsCfg.FrameBurst = cfg.RateLimit.FrameBurst
	hub := websocket.NewHub(websocket.HubDeps{
		Registry:   registry,
		Router:     router,
		Dispatcher: dispatcher,
		Tokens:     tokenManager,
	}, wsCfg, logger)
	router.Attach(domain.TransportWebSocket, hub)

	streamCfg := stream.DefaultConfig()
	streamCfg.Enabled = cfg.Realtime.StreamEnabled
	streamCfg.SendBufferSize = cfg.Realtime.SendBufferSize
	streamCfg.KeepaliveInterval = cfg.Stream.KeepaliveInterval
	streamCfg.HeartbeatInterval = cfg.Stream.HeartbeatInterval
	broker := stream.NewBroker(registry, streamCfg, logger)
	router.Attach(domain.TransportStream, broker)

	notifier := webhook.NewNotifier(registry, webhook.Config{
		URLs:       cfg.Webhook.URLs,
		Timeout:    cfg.Webhook.Timeout,
		BufferSize: cfg.Webhook.BufferSize,
	}, logger)
	router.Attach(domain.TransportWebhook, notifier)
	if err := notifier.Start(); err != nil {
		logger.Error("failed to register webhooks", "error", err)
		return err
	}

	// 8. Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		services.RegisterMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}

	// 9. Rate Limiters
	var (
		generalRateLimiter, authRateLimiter *mw.RateLimiter
		operationRateLimiter                *mw.RateLimitByKey
	)
	if cfg.RateLimit.Enabled {
		generalRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		defer generalRateLimiter.Stop()

		authRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.AuthRPS,
			BurstSize:         cfg.RateLimit.AuthBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
		})
		defer authRateLimiter.Stop()

		operationRateLimiter = mw.NewRateLimitByKey(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)
		defer operationRateLimiter.Stop()
	}

	// 10. Handlers (Primary Adapters)
	errorHandler := httpAdapter.NewErrorHandler(logger)
	handler := httpAdapter.NewRouter(httpAdapter.RouterDeps{
		Logger:      logger,
		Tokens:      tokenManager,
		CORSOrigins: cfg.Server.CORSOrigins,
		Health: httpAdapter.NewHealthHandler(pool, version, map[string]httpAdapter.TransportCounter{
			string(domain.TransportWebSocket): hub,
			string(domain.TransportStream):    broker,
		}),
		Session:          httpAdapter.NewSessionHandler(registry, tokenManager, errorHandler, logger),
		Operations:       httpAdapter.NewOperationHandler(dispatcher, dispatcher, errorHandler, logger),
		WebSocket:        httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg, errorHandler, logger),
		Stream:           httpAdapter.NewStreamHandler(broker, errorHandler, logger),
		Admin:            httpAdapter.NewAdminHandler(registry, errorHandler, logger),
		Metrics:          metricsHandler,
		MetricsPath:      cfg.Metrics.Path,
		GeneralLimiter:   generalRateLimiter,
		AuthLimiter:      authRateLimiter,
		OperationLimiter: operationRateLimiter,
	})

	// 11. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Streams never go idle, so they are closed before the server waits
	broker.Shutdown()
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Error("websocket shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}
	if err := notifier.Stop(shutdownCtx); err != nil {
		logger.Error("webhook shutdown error", "error", err)
	}

	logger.Info("server shutdown complete")
	return nil
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}
