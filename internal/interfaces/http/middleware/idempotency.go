package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/idempotency"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Idempotency headers
const (
	IdempotencyKeyHeader = "Idempotency-Key"
	ReplayedHeader       = "Idempotent-Replayed"
	MaxIdempotencyKeyLen = 255
)

// IdempotencyConfig holds configuration for the idempotency middleware
type IdempotencyConfig struct {
	Store  idempotency.Store
	TTL    time.Duration
	Logger *zap.Logger
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a request whose
// Idempotency-Key was already served. Keys are scoped by actor and route.
// Only 2xx responses are stored; any other outcome releases the key.
// Requests without the header pass through.
func Idempotency(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.Store == nil {
		return func(c *gin.Context) { c.Next() }
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	base := cfg.Logger
	if base == nil {
		base = zap.NewNop()
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > MaxIdempotencyKeyLen {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeBadRequest, IdempotencyKeyHeader+" is too long", GetRequestID(c)))
			return
		}

		ctx := c.Request.Context()
		log := logger.L(ctx, base)
		scoped := strings.Join([]string{GetActor(c), c.Request.Method, c.Request.URL.Path, key}, "|")

		rec, reserved, err := cfg.Store.Reserve(ctx, scoped, ttl)
		if err != nil {
			log.Error("idempotency store unavailable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeInternal, "Idempotency check failed", GetRequestID(c)))
			return
		}
		if !reserved {
			if !rec.Completed {
				c.AbortWithStatusJSON(http.StatusConflict, dto.NewErrorResponseWithRequestID(
					shared.CodeConcurrencyConflict, "A request with this idempotency key is in progress", GetRequestID(c)))
				return
			}
			log.Info("replaying idempotent response", zap.String("idempotency_key", key))
			c.Header(ReplayedHeader, "true")
			c.Data(rec.Status, rec.ContentType, rec.Body)
			c.Abort()
			return
		}

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := w.Status()
		if status < 200 || status >= 300 {
			if err := cfg.Store.Release(ctx, scoped); err != nil {
				log.Warn("failed to release idempotency key", zap.Error(err))
			}
			return
		}
		err = cfg.Store.Complete(ctx, scoped, idempotency.Record{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}, ttl)
		if err != nil && !errors.Is(err, idempotency.ErrNotReserved) {
			log.Warn("failed to store idempotent response", zap.Error(err))
		}
	}
}
