package adapters

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/toyz/loom/pkg/loom"
)

// Gin serves app from the NoRoute handler of a gin engine
func Gin(app *loom.Application, cfg Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	if cfg.Metrics != nil {
		r.GET(cfg.metricsPath(), gin.WrapH(cfg.Metrics.Handler()))
	}

	r.NoRoute(func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
		if err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		out := serve(app, cfg, inbound{
			ctx:       c.Request.Context(),
			method:    c.Request.Method,
			path:      c.Request.URL.Path,
			rawQuery:  c.Request.URL.RawQuery,
			body:      body,
			requestID: c.GetHeader(RequestIDHeader),
		})

		c.Header(RequestIDHeader, out.requestID)
		if len(out.body) == 0 {
			// written now so gin does not append its default 404 text
			c.Status(out.status)
			c.Writer.WriteHeaderNow()
			return
		}
		c.Data(out.status, "application/json", out.body)
	})
	return r
}
