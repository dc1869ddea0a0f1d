package utils

import (
	"fmt"
	"sync"

	"github.com/toyz/loom/internal/errors"
)

// Validator checks an entry before it is stored
type Validator[K comparable, V any] func(key K, value V, existing map[K]V) error

// OrderedRegistry is a concurrency-safe map that lists its keys in
// registration order. Replacing a key keeps its original position.
type OrderedRegistry[K comparable, V any] struct {
	mu         sync.RWMutex
	name       string
	keyDesc    string // e.g. "annotation type", "adapter name"
	items      map[K]V
	order      []K
	validators []Validator[K, V]
}

// NewOrderedRegistry creates a registry; every validator runs on Register
func NewOrderedRegistry[K comparable, V any](name, keyDesc string, validators ...Validator[K, V]) *OrderedRegistry[K, V] {
	return &OrderedRegistry[K, V]{
		name:       name,
		keyDesc:    keyDesc,
		items:      make(map[K]V),
		validators: validators,
	}
}

// Register validates and stores value under key
func (r *OrderedRegistry[K, V]) Register(key K, value V) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, validate := range r.validators {
		if err := validate(key, value, r.items); err != nil {
			return errors.Wrapf(errors.RegistrationErrorCode, err, "%s registry", r.name).
				WithContext(r.keyDesc, fmt.Sprint(key))
		}
	}

	if _, exists := r.items[key]; !exists {
		r.order = append(r.order, key)
	}
	r.items[key] = value
	return nil
}

// Get returns the value stored under key
func (r *OrderedRegistry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.items[key]
	return value, ok
}

// Lookup is Get with an error naming the missing key
func (r *OrderedRegistry[K, V]) Lookup(key K) (V, error) {
	value, ok := r.Get(key)
	if !ok {
		return value, errors.Newf(errors.RegistrationErrorCode, "%s '%v' is not registered", r.keyDesc, key)
	}
	return value, nil
}

// Keys returns the keys in registration order
func (r *OrderedRegistry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]K(nil), r.order...)
}

// Values returns the values in registration order
func (r *OrderedRegistry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make([]V, 0, len(r.order))
	for _, key := range r.order {
		values = append(values, r.items[key])
	}
	return values
}

// Len returns the number of entries
func (r *OrderedRegistry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// NonEmptyKey rejects the empty string
func NonEmptyKey[V any](keyDesc string) Validator[string, V] {
	return func(key string, _ V, _ map[string]V) error {
		if key == "" {
			return fmt.Errorf("%s cannot be empty", keyDesc)
		}
		return nil
	}
}

// UniqueKey rejects keys that are already registered
func UniqueKey[K comparable, V any](keyDesc string) Validator[K, V] {
	return func(key K, _ V, existing map[K]V) error {
		if _, exists := existing[key]; exists {
			return fmt.Errorf("%s '%v' is already registered", keyDesc, key)
		}
		return nil
	}
}
