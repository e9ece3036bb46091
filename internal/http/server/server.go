// Package server assembles the fiber application.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"pdfgateway/internal/config"
	"pdfgateway/internal/domain"
	"pdfgateway/internal/http/handlers"
	"pdfgateway/internal/http/middleware"
	"pdfgateway/internal/infra/archive"
	"pdfgateway/internal/infra/cache"
	"pdfgateway/internal/infra/logging"
	"pdfgateway/internal/infra/staging"
)

type Deps struct {
	Config config.Config
	Engine domain.Engine
	Info   handlers.EngineInfo
	Stager *staging.Stager
	// Optional.
	Cache   *cache.PDFCache
	Archive archive.Archiver
	Keys    middleware.KeyStore
	Store   fiber.Storage
}

// New creates the app with middleware, routes and the JSON error envelope.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		DisableStartupMessage: true,
		BodyLimit:             d.Config.Server.BodyLimitMB * 1024 * 1024,
		ErrorHandler:          errorHandler,
	})

	svc := handlers.NewService(handlers.Deps{
		Config:  d.Config,
		Engine:  d.Engine,
		Info:    d.Info,
		Stager:  d.Stager,
		Cache:   d.Cache,
		Archive: d.Archive,
	})

	middleware.Register(app, d.Config, middleware.Deps{
		Keys:  d.Keys,
		Store: d.Store,
		Ready: svc.Ready,
	})

	svc.Register(app)
	app.Get("/ops/monitor", monitor.New(monitor.Config{Title: "pdfgateway"}))

	// Every response, 404 included, is JSON.
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg,
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID))

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}
