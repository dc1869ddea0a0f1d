// Package loom is the public API: declare components, boot the container,
// and dispatch requests to annotated controller methods.
package loom

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/toyz/loom/internal/config"
	"github.com/toyz/loom/internal/container"
	"github.com/toyz/loom/internal/descriptor"
	"github.com/toyz/loom/internal/dispatch"
	"github.com/toyz/loom/internal/errors"
	"github.com/toyz/loom/internal/events"
	"github.com/toyz/loom/internal/metrics"
	"github.com/toyz/loom/internal/routing"
)

type (
	// Request is the transport-neutral inbound request
	Request = dispatch.Request
	// Result is the outcome of one dispatch
	Result = dispatch.Result
	// ContextRefreshed is published once Boot completes
	ContextRefreshed = events.ContextRefreshed
	// ContextClosed is published by Close
	ContextClosed = events.ContextClosed
)

// RequestID returns the id of the request being dispatched on ctx, or ""
func RequestID(ctx context.Context) string {
	return dispatch.RequestID(ctx)
}

// Option configures an Application
type Option func(*Application)

// WithLogger sets the logger used by the container, dispatcher and boot
func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Application) {
		a.logger = logger
	}
}

// WithProperties supplies named values. Earlier options win on duplicate keys.
func WithProperties(props map[string]string) Option {
	return func(a *Application) {
		a.properties = append(a.properties, props)
	}
}

// WithPropertyFiles loads named values from files at boot, see config.LoadProperties
func WithPropertyFiles(paths ...string) Option {
	return func(a *Application) {
		a.propertyFiles = append(a.propertyFiles, paths...)
	}
}

// WithMapperFactory installs the factory that builds mapper interfaces
func WithMapperFactory(factory MapperFactory) Option {
	return func(a *Application) {
		a.mappers = factory
	}
}

// WithLookupCacheTTL memoizes pattern route lookups for ttl
func WithLookupCacheTTL(ttl time.Duration) Option {
	return func(a *Application) {
		a.lookupTTL = ttl
	}
}

// WithObserver receives one notification per dispatched request
func WithObserver(observer dispatch.Observer) Option {
	return func(a *Application) {
		a.observer = observer
	}
}

// WithMetrics reports dispatch and container metrics to collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(a *Application) {
		a.metrics = collector
		a.observer = collector
	}
}

// Application owns the container, event bus and route tables of one program.
//
// Register describes declarations (phase 1). Boot resolves every component,
// compiles the controllers and freezes the route tables (phase 2). Dispatch
// is safe for concurrent use once Boot returned.
type Application struct {
	logger        logrus.FieldLogger
	properties    []map[string]string
	propertyFiles []string
	mappers       MapperFactory
	lookupTTL     time.Duration
	observer      dispatch.Observer
	metrics       *metrics.Collector

	container  *container.Container
	bus        *events.Bus
	routes     *routing.Registry
	dispatcher *dispatch.Dispatcher

	mu         sync.Mutex
	components []*descriptor.Component
	booted     bool
	closeOnce  sync.Once
}

// New creates an application
func New(opts ...Option) *Application {
	a := &Application{}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logrus.StandardLogger()
	}

	a.container = container.New(a.logger)
	a.bus = events.NewBus()
	a.routes = routing.NewRegistry()
	return a
}

// Register describes each declaration. Every problem is reported, collected
// in an errors.MultipleErrors when there is more than one.
func (a *Application) Register(decls ...Declarer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.booted {
		return errors.NewRegistrationClosedError("component", "declaration")
	}

	errs := errors.NewMultipleErrors()
	for _, d := range decls {
		component, err := descriptor.Describe(d.Declaration())
		if err != nil {
			errs.Add(err)
			continue
		}
		for _, warning := range component.Warnings {
			a.logger.WithField("component", component.Name).Warn(warning)
		}
		a.components = append(a.components, component)
	}
	return errs.ErrorOrNil()
}

// Boot resolves every declared component, in this order: configuration
// components and their beans, mappers, then everything else. It then
// compiles controller routes and publishes events.ContextRefreshed.
func (a *Application) Boot() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.booted {
		return errors.New(errors.RegistrationErrorCode, "application is already booted")
	}
	start := time.Now()

	if err := a.registerNamed(); err != nil {
		return err
	}
	a.registerBuiltins()

	for _, component := range a.components {
		a.container.Declare(component)
	}
	if err := a.registerBindings(); err != nil {
		return err
	}

	if a.mappers != nil {
		a.container.SetMapperFactory(a.mappers)
	}
	a.container.OnResolved(a.subscribeListeners)

	if err := a.resolveConfigurations(); err != nil {
		return err
	}
	for _, component := range a.components {
		if component.Roles.Has(descriptor.RoleMapper) {
			if _, err := a.container.Resolve(component.Type); err != nil {
				return err
			}
		}
	}
	for _, component := range a.components {
		if component.IsInterface() {
			continue
		}
		if _, err := a.container.Resolve(component.Type); err != nil {
			return err
		}
	}

	if err := a.compileRoutes(); err != nil {
		return err
	}
	if a.lookupTTL > 0 {
		a.routes.EnableLookupCache(a.lookupTTL)
	}
	a.routes.Freeze()
	a.dispatcher = dispatch.New(a.routes, a.logger, a.observer)
	a.booted = true

	if a.metrics != nil {
		a.metrics.SetComponents(a.container.Len())
	}
	a.logger.WithFields(logrus.Fields{
		"components": a.container.Len(),
		"routes":     a.routes.Len(),
		"elapsed":    time.Since(start).String(),
	}).Info("application booted")

	a.bus.Publish(events.ContextRefreshed{
		Components: a.container.Len(),
		Routes:     a.routes.Len(),
		At:         time.Now(),
	})
	return nil
}

func (a *Application) registerNamed() error {
	for _, props := range a.properties {
		for _, key := range config.Keys(props) {
			a.container.RegisterNamed(key, props[key])
		}
	}
	if len(a.propertyFiles) == 0 {
		return nil
	}
	props, err := config.LoadProperties(a.propertyFiles...)
	if err != nil {
		return err
	}
	for _, key := range config.Keys(props) {
		a.container.RegisterNamed(key, props[key])
	}
	return nil
}

// registerBuiltins makes the runtime itself injectable
func (a *Application) registerBuiltins() {
	a.container.RegisterInstance(reflect.TypeOf(a), a)
	a.container.RegisterInstance(reflect.TypeOf(a.bus), a.bus)
	a.container.RegisterInstance(reflect.TypeFor[logrus.FieldLogger](), a.logger)
}

// registerBindings registers explicit Implements bindings, then binds every
// interface left without a binding or default to its declared implementers
func (a *Application) registerBindings() error {
	for _, component := range a.components {
		for _, iface := range component.Implements {
			if err := a.container.RegisterImplementation(iface, component.Type); err != nil {
				return err
			}
		}
	}

	for _, iface := range a.components {
		if !iface.IsInterface() || iface.Roles.Has(descriptor.RoleMapper) || iface.Default != nil {
			continue
		}
		if _, bound := a.container.Binding(iface.Type); bound {
			continue
		}
		for _, component := range a.components {
			if component.IsInterface() || !component.Type.Implements(iface.Type) {
				continue
			}
			if err := a.container.RegisterImplementation(iface.Type, component.Type); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Application) resolveConfigurations() error {
	for _, component := range a.components {
		if !component.Roles.Has(descriptor.RoleConfiguration) {
			continue
		}
		instance, err := a.container.Resolve(component.Type)
		if err != nil {
			return err
		}
		for _, bean := range component.Beans {
			if err := a.runBean(component, instance, bean); err != nil {
				return err
			}
		}
	}
	return nil
}

// runBean calls a factory method and registers its result under the
// declared return type. The first registration for a type wins.
func (a *Application) runBean(component *descriptor.Component, instance any, bean descriptor.Bean) error {
	method := reflect.ValueOf(instance).Method(bean.Method.Index)

	args := make([]reflect.Value, len(bean.Params))
	for i, param := range bean.Params {
		arg, err := a.container.Resolve(param)
		if err != nil {
			return errors.WrapDependencyError(component.Name+"."+bean.Method.Name, param.String(), err)
		}
		args[i] = reflect.ValueOf(arg)
	}

	out := method.Call(args)
	if bean.ReturnsError {
		if errValue := out[len(out)-1]; !errValue.IsNil() {
			return errors.NewInvocationError(component.Name+"."+bean.Method.Name, errValue.Interface().(error))
		}
	}

	stored := a.container.RegisterInstance(bean.Result, out[0].Interface())
	a.logger.WithFields(logrus.Fields{
		"bean":   component.Name + "." + bean.Method.Name,
		"type":   bean.Result.String(),
		"stored": stored,
	}).Debug("registered bean")
	return nil
}

// subscribeListeners runs for every resolved component
func (a *Application) subscribeListeners(component *descriptor.Component, instance any) error {
	receiver := reflect.ValueOf(instance)
	for _, listener := range component.Listeners {
		method := receiver.Method(listener.Method.Index)
		returns := listener.Returns != nil
		a.bus.Subscribe(instance, listener.Event, func(event any) any {
			out := method.Call([]reflect.Value{reflect.ValueOf(event)})
			if !returns {
				return nil
			}
			if isNil(out[0]) {
				return nil
			}
			return out[0].Interface()
		})
		a.logger.WithFields(logrus.Fields{
			"listener": component.Name + "." + listener.Method.Name,
			"event":    listener.Event.String(),
		}).Debug("subscribed listener")
	}
	return nil
}

func (a *Application) compileRoutes() error {
	for _, component := range a.components {
		if !component.Roles.Has(descriptor.RoleController) || len(component.Routes) == 0 {
			continue
		}
		instance, err := a.container.Resolve(component.Type)
		if err != nil {
			return err
		}
		for _, route := range component.Routes {
			handler, err := dispatch.Compile(component, instance, route)
			if err != nil {
				return err
			}
			for _, template := range route.Templates {
				entry, err := a.routes.Register(routing.Spec{
					Verb:     route.Verb,
					Template: template,
					Handler:  handler.Name,
					Target:   handler,
				})
				if err != nil {
					return errors.WrapRegisterError("route", route.Verb+" "+template, err)
				}
				a.logger.WithFields(logrus.Fields{
					"route":   entry.Key,
					"kind":    entry.Kind.String(),
					"handler": handler.Name,
				}).Debug("mapped route")
			}
		}
	}
	return nil
}

// Dispatch serves one request. See dispatch.Dispatcher.Dispatch.
func (a *Application) Dispatch(req Request) (Result, error) {
	if a.dispatcher == nil {
		return Result{State: dispatch.StateNew}, errors.New(errors.RegistrationErrorCode, "application is not booted")
	}
	return a.dispatcher.Dispatch(req)
}

// Close publishes events.ContextClosed once
func (a *Application) Close() error {
	a.closeOnce.Do(func() {
		a.bus.Publish(events.ContextClosed{At: time.Now()})
		a.logger.Info("application closed")
	})
	return nil
}

// Subscribe registers a callback for events assignable to eventType
func (a *Application) Subscribe(eventType reflect.Type, callback events.Callback) func() {
	return a.bus.Subscribe(nil, eventType, callback)
}

// Publish sends event to every matching listener
func (a *Application) Publish(event any) {
	a.bus.Publish(event)
}

// Routes lists the compiled route table, exact entries first
func (a *Application) Routes() []*routing.Entry {
	return a.routes.Entries()
}

// Container exposes the underlying container
func (a *Application) Container() *container.Container {
	return a.container
}

// Logger returns the application logger
func (a *Application) Logger() logrus.FieldLogger {
	return a.logger
}

// Metrics returns the collector installed with WithMetrics, or nil
func (a *Application) Metrics() *metrics.Collector {
	return a.metrics
}

// Resolve returns the singleton of type T from app
func Resolve[T any](app *Application) (T, error) {
	return container.Resolve[T](app.container)
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
