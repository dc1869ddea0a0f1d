package adapters

import (
	"github.com/gorilla/mux"

	"github.com/toyz/loom/pkg/loom"
)

// Mux serves app from a gorilla/mux router
func Mux(app *loom.Application, cfg Config) *mux.Router {
	r := mux.NewRouter()
	if cfg.Metrics != nil {
		r.Handle(cfg.metricsPath(), cfg.Metrics.Handler())
	}
	r.PathPrefix("/").Handler(dispatchHandler(app, cfg))
	return r
}
