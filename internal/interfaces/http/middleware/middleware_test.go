package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gryphon/budget-core/internal/infrastructure/auth"
	"github.com/gryphon/budget-core/internal/infrastructure/config"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("a", 300))
	w = serve(engine, req)
	assert.Len(t, w.Body.String(), MaxRequestIDLength)
}

func TestActor_Header(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID(), Actor(ActorConfig{SkipPaths: []string{"/health"}}))
	engine.GET("/whoami", func(c *gin.Context) {
		assert.Equal(t, GetActor(c), logger.GetActor(c.Request.Context()))
		c.String(http.StatusOK, GetActor(c))
	})
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(ActorHeader, "  priya ")
	w := serve(engine, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "priya", w.Body.String())

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestActor_Bearer(t *testing.T) {
	svc := auth.NewJWTService(config.JWTConfig{Enabled: true, Secret: "test-secret-key-at-least-32-chars"})
	engine := gin.New()
	engine.Use(Actor(ActorConfig{JWTService: svc}))
	engine.GET("/whoami", func(c *gin.Context) {
		require.NotNil(t, GetJWTClaims(c))
		c.String(http.StatusOK, GetActor(c))
	})

	token, err := svc.GenerateToken("u-7", "", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid token", BearerPrefix + token, http.StatusOK, "u-7"},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"empty token", BearerPrefix, http.StatusUnauthorized, ""},
		{"tampered token", BearerPrefix + token[:len(token)-2], http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			req.Header.Set(ActorHeader, "spoofed")
			w := serve(engine, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestBodyLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(BodyLimit(16))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"entries":[1,2,3,4,5]}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrCodeRequestTooLarge)

	w = serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTimeout(t *testing.T) {
	engine := gin.New()
	engine.Use(Timeout(time.Minute))
	engine.GET("/", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		c.Status(http.StatusOK)
	})
	serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestSecure(t *testing.T) {
	engine := gin.New()
	engine.Use(Secure())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	mw, err := HTTPMetrics(provider.Meter("test"))
	require.NoError(t, err)
	engine := gin.New()
	engine.Use(mw)
	engine.GET("/api/v1/budgets/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/budgets/a", nil))
	serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/budgets/b", nil))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http_server_request_total" {
				continue
			}
			found = true
			sum := m.Data.(metricdata.Sum[int64])
			require.Len(t, sum.DataPoints, 1)
			dp := sum.DataPoints[0]
			assert.Equal(t, int64(2), dp.Value)
			route, _ := dp.Attributes.Value(attribute.Key("http.route"))
			assert.Equal(t, "/api/v1/budgets/:id", route.AsString())
			status, _ := dp.Attributes.Value(attribute.Key("http.status_code"))
			assert.Equal(t, "404", status.AsString())
		}
	}
	assert.True(t, found)

	noop, err := HTTPMetrics(nil)
	require.NoError(t, err)
	assert.NotNil(t, noop)
}

func TestSpanEnricher(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		ctx, span := tp.Tracer("test").Start(c.Request.Context(), "request")
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	engine.Use(RequestID(), Actor(ActorConfig{}), SpanEnricher())
	engine.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	engine.GET("/missing", func(c *gin.Context) {
		c.Set(ErrorCodeKey, "BUDGET_NOT_FOUND")
		c.Status(http.StatusNotFound)
	})

	for _, path := range []string{"/fail", "/missing"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(RequestIDHeader, "req-9")
		req.Header.Set(ActorHeader, "cfo")
		serve(engine, req)
	}

	spans := sr.Ended()
	require.Len(t, spans, 2)
	attrs := func(s sdktrace.ReadOnlySpan) map[attribute.Key]string {
		out := map[attribute.Key]string{}
		for _, kv := range s.Attributes() {
			out[kv.Key] = kv.Value.Emit()
		}
		return out
	}

	failed := attrs(spans[0])
	assert.Equal(t, "req-9", failed["request_id"])
	assert.Equal(t, "cfo", failed["actor"])
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	missing := attrs(spans[1])
	assert.Equal(t, "BUDGET_NOT_FOUND", missing["error.code"])
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}
