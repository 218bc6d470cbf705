package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/petstore-api/internal/observability"
)

const callerKey = "auth_caller"

// Caller is the identity a single request acts as. The zero value is anonymous.
type Caller struct {
	ID string
}

// Anonymous returns the caller used when no valid token is presented.
func Anonymous() Caller {
	return Caller{}
}

// IsAnonymous reports whether the caller carries no identity.
func (c Caller) IsAnonymous() bool {
	return c.ID == ""
}

// Resolver turns an Authorization header into a Caller. It never fails:
// every problem with the token resolves to Anonymous.
type Resolver struct {
	tokens  *TokenManager
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewResolver constructs a resolver. metrics may be nil.
func NewResolver(tokens *TokenManager, logger *zap.Logger, metrics *observability.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{tokens: tokens, logger: logger, metrics: metrics}
}

// Resolve extracts and verifies a bearer token from the header value.
func (r *Resolver) Resolve(authHeader string) Caller {
	if authHeader == "" {
		r.metrics.RecordTokenResolution(observability.TokenAnonymous)
		return Anonymous()
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		r.logger.Debug("ignoring malformed authorization header")
		r.metrics.RecordTokenResolution(observability.TokenInvalid)
		return Anonymous()
	}

	claims, err := r.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		result := observability.TokenInvalid
		if errors.Is(err, jwt.ErrTokenExpired) {
			result = observability.TokenExpired
		}
		r.logger.Debug("bearer token rejected", zap.String("result", result), zap.Error(err))
		r.metrics.RecordTokenResolution(result)
		return Anonymous()
	}
	if claims.Subject == "" {
		r.logger.Debug("bearer token has no subject")
		r.metrics.RecordTokenResolution(observability.TokenInvalid)
		return Anonymous()
	}

	r.metrics.RecordTokenResolution(observability.TokenIdentified)
	return Caller{ID: claims.Subject}
}

// Middleware resolves the caller for every request and stores it on the context.
// It never rejects a request.
func (r *Resolver) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(callerKey, r.Resolve(c.Get(fiber.HeaderAuthorization)))
		return c.Next()
	}
}

// CallerFromContext returns the caller stored by Middleware, or Anonymous.
func CallerFromContext(c *fiber.Ctx) Caller {
	caller, ok := c.Locals(callerKey).(Caller)
	if !ok {
		return Anonymous()
	}
	return caller
}
