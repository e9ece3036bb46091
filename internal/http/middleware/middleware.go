// Package middleware attaches the cross-cutting fiber middleware.
package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"pdfgateway/internal/config"
	"pdfgateway/internal/domain"
	"pdfgateway/internal/infra/logging"
)

// Ops endpoints served by the healthcheck middleware.
const (
	LivenessPath  = "/ops/health"
	ReadinessPath = "/ops/ready"
)

// KeyStore validates API keys.
type KeyStore interface {
	Ready() bool
	Valid(token string) bool
	RateLimit(token string) int
}

type Deps struct {
	// Keys is nil when authentication is disabled.
	Keys  KeyStore
	Store fiber.Storage
	// Ready backs the readiness probe; nil means always ready.
	Ready func(c *fiber.Ctx) bool
}

// Register attaches global middleware to the app.
func Register(app *fiber.App, cfg config.Config, deps Deps) {
	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string { return xid.New().String() },
	}))

	hc := healthcheck.Config{
		LivenessEndpoint:  LivenessPath,
		ReadinessEndpoint: ReadinessPath,
	}
	if deps.Ready != nil {
		hc.ReadinessProbe = deps.Ready
	}
	app.Use(healthcheck.New(hc))

	if deps.Keys != nil {
		app.Use(KeyAuth(deps.Keys))
		app.Use(TokenRateLimit(RateLimitConfig{
			RateInterval:           cfg.RateLimiter.Interval,
			EnableTokenRateLimiter: true,
		}, deps.Keys, deps.Store, NewLimiterCache()))
	}

	app.Use(UserRateLimit(RateLimitConfig{
		RateInterval:      cfg.RateLimiter.Interval,
		EnableUserLimiter: cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0,
		UserLimit:         cfg.RateLimiter.UserLimit,
	}, deps.Store))

	app.Use(RequestLog())
}

// KeyAuth validates X-API-Key. Requests without the header pass through
// anonymously.
func KeyAuth(keys KeyStore) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: APIKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if !keys.Ready() {
				return false, domain.ErrTokenStoreNotReady
			}
			if !keys.Valid(key) {
				return false, domain.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may pass a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, domain.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    status,
					"message": err.Error(),
				},
			})
		},
	})
}

// RequestLog logs every request with its request id.
func RequestLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	}
}
