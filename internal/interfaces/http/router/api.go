package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gryphon/budget-core/internal/infrastructure/auth"
	"github.com/gryphon/budget-core/internal/infrastructure/idempotency"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/interfaces/http/handler"
	"github.com/gryphon/budget-core/internal/interfaces/http/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// HealthPath is the unauthenticated health endpoint under the API prefix
const HealthPath = "/api/v1/health"

// Config holds the engine's cross-cutting settings
type Config struct {
	ServiceName    string
	Logger         *zap.Logger
	Meter          metric.Meter // nil disables HTTP metrics
	TracingEnabled bool
	// JWTService validates bearer tokens; nil trusts the X-Actor header
	JWTService     *auth.JWTService
	RequestTimeout time.Duration
	BodyLimit      int64
	// Idempotency replays retried bulk postings and issues; nil disables it
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
}

// Handlers are the endpoint groups served by the engine
type Handlers struct {
	Budget   *handler.BudgetHandler
	Purchase *handler.PurchaseHandler
	Health   *handler.HealthHandler
}

// NewEngine builds the gin engine with the middleware chain and every
// budget API route
func NewEngine(cfg Config, h Handlers) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = middleware.DefaultBodyLimit
	}
	httpMetrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, err
	}
	middleware.SetupValidator()
	idem := middleware.Idempotency(middleware.IdempotencyConfig{
		Store:  cfg.Idempotency,
		TTL:    cfg.IdempotencyTTL,
		Logger: log,
	})

	engine := gin.New()
	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		logger.GinMiddleware(log),
		httpMetrics,
		middleware.Secure(),
		middleware.BodyLimit(bodyLimit),
		middleware.Timeout(cfg.RequestTimeout),
	)
	engine.GET("/health", h.Health.Health)

	r := NewRouter(engine)
	r.Register(NewDomainGroup("system", "").
		GET("/health", h.Health.Health).
		GET("/fiscal-year", h.Budget.FiscalYear))
	r.Register(NewDomainGroup("budgets", "/budgets").
		POST("", h.Budget.Create).
		GET("", h.Budget.List).
		POST("/expenses/bulk", idem, h.Budget.PostBulk).
		GET("/:id", h.Budget.Get).
		GET("/:id/utilization", h.Budget.Utilization).
		POST("/:id/activate", h.Budget.Activate))
	r.Register(NewDomainGroup("purchase-intents", "/purchase-intents").
		POST("", h.Purchase.SubmitIntent).
		GET("/:id", h.Purchase.GetIntent).
		POST("/:id/issue", idem, h.Purchase.Issue))
	r.Register(NewDomainGroup("purchase-orders", "/purchase-orders").
		GET("", h.Purchase.ListPurchaseOrders).
		GET("/:id", h.Purchase.GetPurchaseOrder))

	r.Setup(
		middleware.Actor(middleware.ActorConfig{
			JWTService: cfg.JWTService,
			SkipPaths:  []string{HealthPath},
			Logger:     log,
		}),
		middleware.SpanEnricher(),
	)
	return engine, nil
}
