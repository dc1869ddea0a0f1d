package adapters

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/toyz/loom/pkg/loom"
)

// Chi serves app from a chi router
func Chi(app *loom.Application, cfg Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if cfg.Metrics != nil {
		r.Handle(cfg.metricsPath(), cfg.Metrics.Handler())
	}
	r.Handle("/*", dispatchHandler(app, cfg))
	return r
}
