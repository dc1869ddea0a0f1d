package adapters

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/toyz/loom/pkg/loom"
)

// Fiber serves app from a catch-all fiber middleware
func Fiber(app *loom.Application, cfg Config) *fiber.App {
	f := fiber.New(fiber.Config{DisableStartupMessage: true})
	f.Use(recover.New())

	if cfg.Metrics != nil {
		f.Get(cfg.metricsPath(), adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	f.Use(func(c *fiber.Ctx) error {
		// fasthttp reuses its buffers once the handler returns
		out := serve(app, cfg, inbound{
			ctx:       c.UserContext(),
			method:    strings.Clone(c.Method()),
			path:      strings.Clone(c.Path()),
			rawQuery:  string(c.Request().URI().QueryString()),
			body:      append([]byte(nil), c.Body()...),
			requestID: strings.Clone(c.Get(RequestIDHeader)),
		})

		c.Set(RequestIDHeader, out.requestID)
		c.Status(out.status)
		if len(out.body) == 0 {
			return nil
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(out.body)
	})
	return f
}

// FiberHandler exposes the fiber adapter as an http.Handler
func FiberHandler(app *loom.Application, cfg Config) http.Handler {
	return adaptor.FiberApp(Fiber(app, cfg))
}
