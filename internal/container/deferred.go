package container

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/toyz/loom/internal/errors"
)

// Deferred is a field-only reference to a component that is resolved on
// first use. The container binds every inject-tagged Deferred field when it
// builds the owner, without resolving the target, so two components can
// reference each other regardless of construction order.
//
// Copies of a bound Deferred share the same target.
type Deferred[T any] struct {
	ref *deferredRef[T]
}

type deferredRef[T any] struct {
	mu       sync.Mutex
	resolve  func() (any, error)
	value    T
	resolved bool
}

// DeferredTarget returns the type the reference resolves to
func (d *Deferred[T]) DeferredTarget() reflect.Type {
	return reflect.TypeFor[T]()
}

// BindResolver attaches the function used on first access
func (d *Deferred[T]) BindResolver(resolve func() (any, error)) {
	d.ref = &deferredRef[T]{resolve: resolve}
}

// Bound reports whether the container has bound the reference
func (d Deferred[T]) Bound() bool {
	return d.ref != nil
}

// Resolve returns the target. Only a successful resolution is kept, so a
// reference used while its target is still under construction can be used
// again once the target is cached.
func (d Deferred[T]) Resolve() (T, error) {
	var zero T
	if d.ref == nil {
		return zero, errors.NewUnresolvedDependencyError(reflect.TypeFor[T]().String(), "deferred reference was never bound by a container")
	}

	d.ref.mu.Lock()
	if d.ref.resolved {
		v := d.ref.value
		d.ref.mu.Unlock()
		return v, nil
	}
	d.ref.mu.Unlock()

	// the lock is not held here; the target may resolve this same reference
	v, err := d.ref.resolve()
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, errors.NewUnresolvedDependencyError(reflect.TypeFor[T]().String(), fmt.Sprintf("resolved %T instead", v))
	}

	d.ref.mu.Lock()
	defer d.ref.mu.Unlock()
	if !d.ref.resolved {
		d.ref.value = typed
		d.ref.resolved = true
	}
	return d.ref.value, nil
}

// Get returns the target and panics when it cannot be resolved
func (d Deferred[T]) Get() T {
	v, err := d.Resolve()
	if err != nil {
		panic(err)
	}
	return v
}
