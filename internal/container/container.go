// Package container resolves and caches singleton components described by
// the descriptor package.
package container

import (
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/toyz/loom/internal/coerce"
	"github.com/toyz/loom/internal/descriptor"
	"github.com/toyz/loom/internal/errors"
)

// Initializer is implemented by components that need a post-construction hook
type Initializer = descriptor.Initializer

// ResolvedHook runs once for every component the container constructs
type ResolvedHook func(component *descriptor.Component, instance any) error

// MapperFactory builds the implementation of a mapper interface
type MapperFactory func(iface reflect.Type) (any, error)

// construction tracks one type on the resolution stack
type construction struct {
	instance reflect.Value // set once the constructor returned
}

// pendingField is a plain field waiting for an in-flight target to finish
type pendingField struct {
	owner string
	field reflect.Value
}

// Container resolves components and caches one instance per type.
//
// Construction is serialized on one goroutine at a time. Hooks running
// inside a construction may resolve further components on the same
// goroutine; other goroutines wait until the construction finishes.
type Container struct {
	mu          sync.RWMutex
	descriptors map[reflect.Type]*descriptor.Component
	instances   map[reflect.Type]reflect.Value
	bindings    map[reflect.Type]reflect.Type
	named       map[string]string

	buildMu  sync.Mutex
	owner    atomic.Uint64 // goroutine holding buildMu, 0 when idle
	inFlight map[reflect.Type]*construction
	stack    []reflect.Type
	pending  map[reflect.Type][]pendingField

	hooks   []ResolvedHook
	mappers MapperFactory
	logger  logrus.FieldLogger
}

// New creates an empty container. A nil logger discards output.
func New(logger logrus.FieldLogger) *Container {
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}
	return &Container{
		descriptors: make(map[reflect.Type]*descriptor.Component),
		instances:   make(map[reflect.Type]reflect.Value),
		bindings:    make(map[reflect.Type]reflect.Type),
		named:       make(map[string]string),
		inFlight:    make(map[reflect.Type]*construction),
		pending:     make(map[reflect.Type][]pendingField),
		logger:      logger,
	}
}

// Declare records a descriptor. The last declaration of a type wins.
func (c *Container) Declare(component *descriptor.Component) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors[component.Type] = component
}

// Descriptor returns the declared descriptor for t
func (c *Container) Descriptor(t reflect.Type) (*descriptor.Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.descriptors[t]
	return d, ok
}

// OnResolved registers a hook that runs after each component is constructed
func (c *Container) OnResolved(hook ResolvedHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// SetMapperFactory installs the factory used for mapper interfaces
func (c *Container) SetMapperFactory(factory MapperFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mappers = factory
}

// RegisterImplementation binds an interface to a concrete type, once
func (c *Container) RegisterImplementation(iface, concrete reflect.Type) error {
	if iface.Kind() != reflect.Interface {
		return errors.NewDescriptorError(iface.String(), "cannot bind a non-interface type")
	}
	if !concrete.Implements(iface) {
		return errors.NewDescriptorError(concrete.String(), "does not implement %s", iface)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.bindings[iface]; ok {
		return errors.NewDuplicateBindingError(iface.String(), existing.String(), concrete.String())
	}
	c.bindings[iface] = concrete
	return nil
}

// Binding returns the concrete type bound to iface
func (c *Container) Binding(iface reflect.Type) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	concrete, ok := c.bindings[iface]
	return concrete, ok
}

// RegisterInstance seeds the cache. The first registration for t wins and
// later ones are ignored; the return value reports whether instance was stored.
func (c *Container) RegisterInstance(t reflect.Type, instance any) bool {
	v := reflect.ValueOf(instance)
	if !v.IsValid() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.instances[t]; exists {
		return false
	}
	c.instances[t] = v
	return true
}

// RegisterNamed seeds a named value. The first registration wins.
func (c *Container) RegisterNamed(key, value string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.named[key]; exists {
		return false
	}
	c.named[key] = value
	return true
}

// ResolveNamed returns a registered named value
func (c *Container) ResolveNamed(key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.named[key]
	if !ok {
		return "", errors.NewUnresolvedNamedValueError(key)
	}
	return value, nil
}

// Len returns the number of cached instances, counting interface aliases once
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[uintptr]struct{}, len(c.instances))
	values := 0
	for _, v := range c.instances {
		switch v.Kind() {
		case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			seen[v.Pointer()] = struct{}{}
		default:
			values++
		}
	}
	return len(seen) + values
}

// Resolve returns the singleton for t, constructing it on first use
func (c *Container) Resolve(t reflect.Type) (any, error) {
	if v, ok := c.cached(t); ok {
		return v.Interface(), nil
	}

	if !c.ownsBuild() {
		c.buildMu.Lock()
		defer c.buildMu.Unlock()
		c.owner.Store(goroutineID())
		defer c.owner.Store(0)
	}

	v, err := c.resolve(t)
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Resolve is the typed form of Container.Resolve
func Resolve[T any](c *Container) (T, error) {
	var zero T
	v, err := c.Resolve(reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.NewUnresolvedDependencyError(reflect.TypeFor[T]().String(), "resolved instance has the wrong type")
	}
	return typed, nil
}

// ownsBuild reports whether the calling goroutine holds buildMu
func (c *Container) ownsBuild() bool {
	owner := c.owner.Load()
	return owner != 0 && owner == goroutineID()
}

// resolveDeferred serves Deferred handles. A target that is still under
// construction on this goroutine is reported without being cached by the
// handle.
func (c *Container) resolveDeferred(t reflect.Type) (any, error) {
	if v, ok := c.cached(t); ok {
		return v.Interface(), nil
	}
	if c.ownsBuild() {
		if _, inFlight := c.inFlight[c.concreteOf(t)]; inFlight {
			return nil, errors.NewUnresolvedDependencyError(t.String(), "deferred reference used while its target is still being constructed; use it after the target is resolved")
		}
	}
	return c.Resolve(t)
}

func (c *Container) cached(t reflect.Type) (reflect.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.instances[t]
	return v, ok
}

func (c *Container) store(t reflect.Type, v reflect.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.instances[t]; !exists {
		c.instances[t] = v
	}
}

// concreteOf maps an interface to the type that will be constructed for it
func (c *Container) concreteOf(t reflect.Type) reflect.Type {
	if t.Kind() != reflect.Interface {
		return t
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if concrete, ok := c.bindings[t]; ok {
		return concrete
	}
	if d, ok := c.descriptors[t]; ok && d.Default != nil {
		return d.Default
	}
	return t
}

func (c *Container) resolve(t reflect.Type) (reflect.Value, error) {
	if v, ok := c.cached(t); ok {
		return v, nil
	}
	if t.Kind() == reflect.Interface {
		return c.resolveInterface(t)
	}

	if _, inFlight := c.inFlight[t]; inFlight {
		return reflect.Value{}, errors.NewCircularDependencyError(c.chain(t))
	}

	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, errors.NewUnresolvedDependencyError(t.String(), "only pointers to structs can be constructed; register an instance or a bean for this type")
	}

	component, err := c.describe(t)
	if err != nil {
		return reflect.Value{}, err
	}
	if len(component.Constructors) > 1 {
		return reflect.Value{}, errors.NewAmbiguousConstructorError(component.Name, len(component.Constructors))
	}

	state := &construction{}
	c.inFlight[t] = state
	c.stack = append(c.stack, t)
	defer func() {
		delete(c.inFlight, t)
		c.stack = c.stack[:len(c.stack)-1]
	}()

	instance, err := c.construct(component)
	if err != nil {
		delete(c.pending, t)
		return reflect.Value{}, err
	}
	state.instance = instance

	if err := c.injectFields(component, instance); err != nil {
		delete(c.pending, t)
		return reflect.Value{}, err
	}

	if component.Init != nil {
		if err := c.runInit(component, instance); err != nil {
			delete(c.pending, t)
			return reflect.Value{}, err
		}
	}

	c.store(t, instance)
	for _, p := range c.pending[t] {
		p.field.Set(instance)
		c.logger.WithFields(logrus.Fields{"owner": p.owner, "target": component.Name}).Debug("filled deferred field")
	}
	delete(c.pending, t)

	c.mu.RLock()
	hooks := append([]ResolvedHook(nil), c.hooks...)
	c.mu.RUnlock()
	for _, hook := range hooks {
		if err := hook(component, instance.Interface()); err != nil {
			return reflect.Value{}, err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"component": component.Name,
		"roles":     component.Roles.String(),
	}).Debug("resolved component")
	return instance, nil
}

func (c *Container) resolveInterface(t reflect.Type) (reflect.Value, error) {
	c.mu.RLock()
	component, declared := c.descriptors[t]
	factory := c.mappers
	c.mu.RUnlock()

	if declared && component.Roles.Has(descriptor.RoleMapper) {
		if factory == nil {
			return reflect.Value{}, errors.NewUnresolvedDependencyError(t.String(), "no mapper factory is installed and no bean provides this mapper")
		}
		impl, err := factory(t)
		if err != nil {
			return reflect.Value{}, errors.WrapDependencyError(t.String(), "mapper factory", err)
		}
		v := reflect.ValueOf(impl)
		if !v.IsValid() || !v.Type().Implements(t) {
			return reflect.Value{}, errors.NewUnresolvedDependencyError(t.String(), "mapper factory returned a value that does not implement the mapper")
		}
		c.store(t, v)
		return v, nil
	}

	concrete := c.concreteOf(t)
	if concrete == t {
		return reflect.Value{}, errors.NewUnresolvedDependencyError(t.String(), "no implementation is registered and none is marked as default")
	}

	v, err := c.resolve(concrete)
	if err != nil {
		return reflect.Value{}, err
	}
	c.store(t, v)
	return v, nil
}

// describe returns the declared descriptor or describes t on the fly
func (c *Container) describe(t reflect.Type) (*descriptor.Component, error) {
	if component, ok := c.Descriptor(t); ok {
		return component, nil
	}
	component, err := descriptor.Describe(descriptor.Declaration{Type: t})
	if err != nil {
		return nil, err
	}
	c.Declare(component)
	return component, nil
}

func (c *Container) chain(t reflect.Type) []string {
	start := 0
	for i, s := range c.stack {
		if s == t {
			start = i
			break
		}
	}
	chain := make([]string, 0, len(c.stack)-start+1)
	for _, s := range c.stack[start:] {
		chain = append(chain, s.String())
	}
	return append(chain, t.String())
}

func (c *Container) construct(component *descriptor.Component) (reflect.Value, error) {
	if len(component.Constructors) == 0 {
		return reflect.New(component.Type.Elem()), nil
	}

	ctor := component.Constructors[0]
	args := make([]reflect.Value, len(ctor.Params))
	for i, param := range ctor.Params {
		var (
			arg reflect.Value
			err error
		)
		if param.IsNamed() {
			arg, err = c.namedValue(param)
		} else {
			arg, err = c.resolve(param.Type)
		}
		if err != nil {
			return reflect.Value{}, errors.WrapDependencyError(component.Name, param.String(), err)
		}
		args[i] = arg
	}

	out := ctor.Func.Call(args)
	if ctor.ReturnsError && !out[1].IsNil() {
		return reflect.Value{}, errors.Wrapf(errors.UnresolvedDependencyErrorCode, out[1].Interface().(error), "constructor of %s failed", component.Name)
	}
	instance := out[0]
	if instance.IsNil() {
		return reflect.Value{}, errors.NewUnresolvedDependencyError(component.Name, "constructor returned nil")
	}
	return instance, nil
}

func (c *Container) namedValue(dep descriptor.Dependency) (reflect.Value, error) {
	raw, err := c.ResolveNamed(dep.Name)
	if err != nil {
		return reflect.Value{}, err
	}
	v, err := coerce.Value(raw, dep.Type)
	if err != nil {
		return reflect.Value{}, errors.WrapConfigurationError(dep.Name, "convert", err)
	}
	return v, nil
}

func (c *Container) injectFields(component *descriptor.Component, instance reflect.Value) error {
	target := instance.Elem()
	for _, f := range component.Fields {
		field := target.FieldByIndex(f.Index)
		dep := f.Dependency

		switch {
		case dep.IsNamed():
			v, err := c.namedValue(dep)
			if err != nil {
				return errors.WrapDependencyError(component.Name, dep.String(), err)
			}
			field.Set(v)

		case dep.Deferred:
			handle := field.Addr().Interface().(descriptor.DeferredHandle)
			want := dep.Type
			handle.BindResolver(func() (any, error) {
				return c.resolveDeferred(want)
			})

		default:
			if err := c.injectField(component, f, field); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Container) injectField(component *descriptor.Component, f descriptor.Field, field reflect.Value) error {
	dep := f.Dependency
	if v, ok := c.cached(dep.Type); ok {
		return assign(component, f, field, v)
	}

	concrete := c.concreteOf(dep.Type)
	if state, inFlight := c.inFlight[concrete]; inFlight {
		if state.instance.IsValid() {
			return assign(component, f, field, state.instance)
		}
		if !concrete.AssignableTo(f.FieldType) {
			return errors.NewUnresolvedDependencyError(dep.Type.String(), "in-flight instance is not assignable to field "+f.Name)
		}
		c.pending[concrete] = append(c.pending[concrete], pendingField{owner: component.Name, field: field})
		return nil
	}

	v, err := c.resolve(dep.Type)
	if err != nil {
		return errors.WrapDependencyError(component.Name, "field "+f.Name, err)
	}
	return assign(component, f, field, v)
}

func assign(component *descriptor.Component, f descriptor.Field, field, v reflect.Value) error {
	if !v.Type().AssignableTo(field.Type()) {
		return errors.NewUnresolvedDependencyError(f.Dependency.Type.String(),
			"resolved "+v.Type().String()+" cannot be assigned to "+component.Name+"."+f.Name)
	}
	field.Set(v)
	return nil
}

func (c *Container) runInit(component *descriptor.Component, instance reflect.Value) error {
	out := component.Init.Method.Func.Call([]reflect.Value{instance})
	if component.Init.ReturnsError && !out[0].IsNil() {
		return errors.Wrapf(errors.UnresolvedDependencyErrorCode, out[0].Interface().(error), "init hook %s.%s failed", component.Name, component.Init.Method.Name)
	}
	return nil
}
