package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gryphon/budget-core/internal/domain/shared"
	"github.com/gryphon/budget-core/internal/infrastructure/auth"
	"github.com/gryphon/budget-core/internal/infrastructure/logger"
	"github.com/gryphon/budget-core/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Auth context keys and headers
const (
	JWTClaimsKey  = "jwt_claims"
	ActorKey      = "actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	// ActorHeader names the acting user when bearer tokens are disabled
	ActorHeader = "X-Actor"
)

// ActorConfig holds configuration for the actor middleware
type ActorConfig struct {
	// JWTService validates bearer tokens. Nil trusts the X-Actor header,
	// which is only acceptable for local development.
	JWTService *auth.JWTService
	// SkipPaths are paths that don't require an actor
	SkipPaths []string
	// Logger for middleware logging
	Logger *zap.Logger
}

// Actor resolves the acting user for every request and rejects requests
// that carry none. The actor is stored in the gin context and in the
// request-scoped logger.
func Actor(cfg ActorConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		var actor string
		if cfg.JWTService == nil {
			actor = strings.TrimSpace(c.GetHeader(ActorHeader))
			if actor == "" {
				abortUnauthorized(c, "Missing "+ActorHeader+" header")
				return
			}
		} else {
			claims, err := bearerClaims(c, cfg.JWTService)
			if err != nil {
				log.Warn("bearer authentication failed",
					zap.Error(err),
					zap.String("path", c.Request.URL.Path),
				)
				abortUnauthorized(c, authMessage(err))
				return
			}
			c.Set(JWTClaimsKey, claims)
			actor = claims.Actor()
		}

		c.Set(ActorKey, actor)
		c.Request = c.Request.WithContext(logger.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func bearerClaims(c *gin.Context, svc *auth.JWTService) (*auth.Claims, error) {
	header := c.GetHeader(AuthHeaderKey)
	if !strings.HasPrefix(header, BearerPrefix) {
		return nil, auth.ErrInvalidToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return svc.ValidateToken(token)
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token has expired"
	case errors.Is(err, auth.ErrTokenNotYetValid):
		return "Token is not yet valid"
	case errors.Is(err, auth.ErrMissingActor):
		return "Token names no actor"
	default:
		return "Invalid token"
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponseWithRequestID(shared.CodeUnauthorized, message, GetRequestID(c)))
}

// GetActor returns the actor resolved by the Actor middleware
func GetActor(c *gin.Context) string {
	return c.GetString(ActorKey)
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}
