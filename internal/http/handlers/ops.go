package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"pdfgateway/internal/infra/logging"
)

const pingTimeout = 2 * time.Second

func (s *Service) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.engine.Ping(ctx)
}

// Ready is the readiness probe: the engine must answer its health check.
func (s *Service) Ready(c *fiber.Ctx) bool {
	if err := s.ping(c.UserContext()); err != nil {
		logging.Warn("Conversion engine not ready", "driver", s.info.Driver, "error", err)
		return false
	}
	return true
}

// HandleEngineInfo reports the configured engine and whether it is reachable.
func (s *Service) HandleEngineInfo(c *fiber.Ctx) error {
	err := s.ping(c.UserContext())
	resp := fiber.Map{
		"driver":    s.info.Driver,
		"address":   s.info.Address,
		"reachable": err == nil,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(resp)
}
