package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	budgetapp "github.com/gryphon/budget-core/internal/application/budget"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/auth"
	"github.com/gryphon/budget-core/internal/infrastructure/config"
	"github.com/gryphon/budget-core/internal/infrastructure/docstore"
	"github.com/gryphon/budget-core/internal/infrastructure/event"
	"github.com/gryphon/budget-core/internal/infrastructure/idempotency"
	"github.com/gryphon/budget-core/internal/infrastructure/lock"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/infrastructure/persistence"
	"github.com/gryphon/budget-core/internal/infrastructure/telemetry"
	"github.com/gryphon/budget-core/internal/interfaces/http/handler"
	"github.com/gryphon/budget-core/internal/interfaces/http/router"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

//	@title			Budget Core API
//	@version		1.0
//	@description	Department budgets, purchase order issuing and bulk expense posting

//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	log.Info("Starting budget core",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("store", cfg.Store.Backend),
		zap.String("lock", cfg.Lock.Backend),
	)
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	telemetryCfg := telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		ExportInterval:    cfg.Telemetry.ExportInterval,
	}
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetryCfg, log)
	if err != nil {
		return fmt.Errorf("tracer provider: %w", err)
	}
	defer func() { _ = tracerProvider.Shutdown(context.Background()) }()

	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetryCfg, log)
	if err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()

	checks := map[string]handler.HealthCheck{}

	docs, closeStore, err := openStore(cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeStore()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = lock.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Error("Error closing redis", zap.Error(err))
			}
		}()
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}
	var lockClient redis.UniversalClient
	if redisClient != nil {
		lockClient = redisClient
	}
	locker, err := lock.New(cfg.Lock, lockClient, log)
	if err != nil {
		return err
	}

	var idem idempotency.Store
	if redisClient != nil {
		idem = idempotency.NewRedisStore(redisClient, "")
	} else {
		mem := idempotency.NewMemoryStore(0)
		defer func() { _ = mem.Close() }()
		idem = mem
	}

	budgetMetrics, err := telemetry.NewBudgetMetrics(meterProvider.Meter("budget-core"))
	if err != nil {
		return fmt.Errorf("budget metrics: %w", err)
	}

	bus := event.NewInMemoryEventBus(log)
	bus.Subscribe(event.NewAuditLogHandler(log))
	if err := bus.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = bus.Stop(context.Background()) }()

	store := persistence.NewBudgetStore(docs)
	budgets := budgetapp.NewBudgetService(store, log)
	budgets.SetClock(time.Now, cfg.App.Location())
	activation := budgetapp.NewActivationManager(store, locker, log)
	issuer := budgetapp.NewPurchaseOrderIssuer(store, log)
	bulk := budgetapp.NewBulkExpensePoster(store, log)
	for _, svc := range []interface {
		SetEventPublisher(publisher shared.EventPublisher)
		SetBudgetMetrics(bm *telemetry.BudgetMetrics)
	}{budgets, activation, issuer, bulk} {
		svc.SetEventPublisher(bus)
		svc.SetBudgetMetrics(budgetMetrics)
	}

	var jwtService *auth.JWTService
	if cfg.JWT.Enabled {
		jwtService = auth.NewJWTService(cfg.JWT)
	} else {
		log.Warn("JWT disabled, trusting the X-Actor header")
	}

	engine, err := router.NewEngine(router.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		Logger:         log,
		Meter:          meterProvider.Meter("budget-core/http"),
		TracingEnabled: cfg.Telemetry.Enabled,
		JWTService:     jwtService,
		RequestTimeout: requestTimeout,
		Idempotency:    idem,
		IdempotencyTTL: cfg.HTTP.IdempotencyTTL,
	}, router.Handlers{
		Budget:   handler.NewBudgetHandler(budgets, activation, bulk),
		Purchase: handler.NewPurchaseHandler(budgets, issuer),
		Health:   handler.NewHealthHandler(checks),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("Server exited gracefully")
	return nil
}

// openStore builds the configured document store and registers its health check
func openStore(cfg *config.Config, log *zap.Logger, checks map[string]handler.HealthCheck) (docstore.Store, func(), error) {
	retry := docstore.RetryConfig{
		MaxAttempts:     cfg.Store.MaxAttempts,
		InitialInterval: cfg.Store.InitialInterval,
		MaxInterval:     cfg.Store.MaxInterval,
	}

	if cfg.Store.Backend == "memory" {
		log.Warn("Using the in-memory document store, data is lost on exit")
		return docstore.NewMemoryStore(
			docstore.WithMemoryRetry(retry),
			docstore.WithMemoryLogger(log),
		), func() {}, nil
	}

	db, err := persistence.NewDatabase(&cfg.Database, persistence.DatabaseOptions{
		Logger:   log,
		LogLevel: cfg.Log.Level,
		Tracing:  cfg.Telemetry.DBTraceEnabled,
	})
	if err != nil {
		return nil, nil, err
	}
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	store := docstore.NewGormStore(db.DB,
		docstore.WithGormRetry(retry),
		docstore.WithGormLogger(log),
	)
	// postgres schemas come from cmd/migrate
	if cfg.Database.Driver == "sqlite" {
		if err := store.AutoMigrate(); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to create documents table: %w", err)
		}
	}
	checks["database"] = func(ctx context.Context) error { return db.Ping() }

	return store, func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}, nil
}
