package adapters

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/toyz/loom/pkg/loom"
)

// Echo serves app with an Echo v4 instance
func Echo(app *loom.Application, cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	if cfg.Metrics != nil {
		e.GET(cfg.metricsPath(), echo.WrapHandler(cfg.Metrics.Handler()))
	}

	handler := func(c echo.Context) error {
		req := c.Request()
		body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest)
		}

		out := serve(app, cfg, inbound{
			ctx:       req.Context(),
			method:    req.Method,
			path:      req.URL.Path,
			rawQuery:  req.URL.RawQuery,
			body:      body,
			requestID: req.Header.Get(RequestIDHeader),
		})

		c.Response().Header().Set(RequestIDHeader, out.requestID)
		if len(out.body) == 0 {
			return c.NoContent(out.status)
		}
		return c.JSONBlob(out.status, out.body)
	}
	e.Any("/", handler)
	e.Any("/*", handler)
	return e
}
