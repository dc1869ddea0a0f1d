// Package adapters serves a booted loom.Application through an HTTP
// framework. Every adapter installs a single catch-all handler and leaves
// routing to the application's dispatcher.
package adapters

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/toyz/loom/internal/config"
	"github.com/toyz/loom/internal/dispatch"
	"github.com/toyz/loom/internal/errors"
	"github.com/toyz/loom/internal/metrics"
	"github.com/toyz/loom/internal/utils"
	"github.com/toyz/loom/pkg/loom"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// Config holds the transport options shared by every adapter
type Config struct {
	// SilentUnmatched answers unmatched requests with 200 and an empty body instead of 404
	SilentUnmatched bool

	// CORSOrigins enables CORS for the listed origins, net/http adapter only
	CORSOrigins []string

	// RateLimit is the per-client request rate, 0 disables limiting. net/http adapter only.
	RateLimit float64
	RateBurst int

	// Metrics, when set, is served at MetricsPath
	Metrics     *metrics.Collector
	MetricsPath string
}

// ConfigFrom builds an adapter Config from the environment settings
func ConfigFrom(sc config.ServerConfig, collector *metrics.Collector) Config {
	return Config{
		SilentUnmatched: sc.SilentUnmatched,
		CORSOrigins:     sc.CORSOrigins,
		RateLimit:       sc.RateLimit,
		RateBurst:       sc.RateBurst,
		Metrics:         collector,
		MetricsPath:     sc.MetricsPath,
	}
}

func (c Config) metricsPath() string {
	if c.MetricsPath == "" {
		return "/metrics"
	}
	return c.MetricsPath
}

// inbound is the framework-neutral view of a request
type inbound struct {
	ctx       context.Context
	method    string
	path      string
	rawQuery  string
	body      []byte
	requestID string
}

// outbound is what an adapter writes back
type outbound struct {
	status    int
	body      []byte
	requestID string
}

// serve dispatches one request and maps the result to a status and body
func serve(app *loom.Application, cfg Config, in inbound) outbound {
	id := in.requestID
	if id == "" {
		id = uuid.NewString()
	}
	ctx := in.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := app.Dispatch(dispatch.Request{
		Method:   in.method,
		Path:     in.path,
		RawQuery: in.rawQuery,
		Body:     in.body,
		Context:  dispatch.WithRequestID(ctx, id),
	})
	out := outbound{status: http.StatusOK, requestID: id}

	switch {
	case err != nil:
		out.status = loom.StatusFor(err)
		body, mErr := json.Marshal(loom.ErrorBody(err))
		if mErr != nil {
			app.Logger().WithError(mErr).Error("cannot encode error body")
			out.status = http.StatusInternalServerError
			return out
		}
		out.body = body

	case result.State == dispatch.StateUnmatched:
		if !cfg.SilentUnmatched {
			out.status = http.StatusNotFound
		}

	default:
		if result.Status != 0 {
			out.status = result.Status
		}
		out.body = result.Payload
	}
	return out
}

// write sends out through a plain http.ResponseWriter
func (o outbound) write(w http.ResponseWriter) {
	w.Header().Set(RequestIDHeader, o.requestID)
	if len(o.body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(o.status)
	if len(o.body) > 0 {
		_, _ = w.Write(o.body)
	}
}

// Factory builds an http.Handler for app
type Factory func(app *loom.Application, cfg Config) http.Handler

var factories = newFactoryRegistry()

func newFactoryRegistry() *utils.OrderedRegistry[string, Factory] {
	r := utils.NewOrderedRegistry[string, Factory]("adapter", "adapter name",
		utils.NonEmptyKey[Factory]("adapter name"),
		utils.UniqueKey[string, Factory]("adapter name"),
	)
	builtin := []struct {
		name    string
		factory Factory
	}{
		{"http", HTTPHandler},
		{"echo", func(app *loom.Application, cfg Config) http.Handler { return Echo(app, cfg) }},
		{"gin", func(app *loom.Application, cfg Config) http.Handler { return Gin(app, cfg) }},
		{"fiber", FiberHandler},
		{"chi", func(app *loom.Application, cfg Config) http.Handler { return Chi(app, cfg) }},
		{"mux", func(app *loom.Application, cfg Config) http.Handler { return Mux(app, cfg) }},
	}
	for _, b := range builtin {
		_ = r.Register(b.name, b.factory)
	}
	return r
}

// Register adds a named adapter factory
func Register(name string, factory Factory) error {
	return factories.Register(name, factory)
}

// Names lists the registered adapter names
func Names() []string {
	return factories.Keys()
}

// New builds the adapter registered under name
func New(name string, app *loom.Application, cfg Config) (http.Handler, error) {
	factory, err := factories.Lookup(name)
	if err != nil {
		return nil, errors.Wrap(errors.ConfigurationErrorCode, "unknown adapter", err).
			WithContext("adapter", name).
			WithSuggestion("use one of http, echo, gin, fiber, chi or mux")
	}
	return factory(app, cfg), nil
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout
func Serve(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger logrus.FieldLogger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(errors.UnknownErrorCode, "server forced to shutdown", err)
	}
	return nil
}
