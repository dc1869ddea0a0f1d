package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyz/loom/internal/errors"
)

func TestOrderedRegistry_Order(t *testing.T) {
	r := NewOrderedRegistry[string, int]("test", "key")

	for i, key := range []string{"echo", "gin", "fiber", "gin"} {
		require.NoError(t, r.Register(key, i))
	}

	assert.Equal(t, []string{"echo", "gin", "fiber"}, r.Keys())
	assert.Equal(t, []int{0, 3, 2}, r.Values())
	assert.Equal(t, 3, r.Len())

	value, ok := r.Get("gin")
	assert.True(t, ok)
	assert.Equal(t, 3, value)

	_, err := r.Lookup("chi")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.RegistrationErrorCode))
	assert.Contains(t, err.Error(), "key 'chi' is not registered")
}

func TestOrderedRegistry_Validators(t *testing.T) {
	r := NewOrderedRegistry[string, int]("adapter", "adapter name",
		NonEmptyKey[int]("adapter name"),
		UniqueKey[string, int]("adapter name"),
	)

	err := r.Register("", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")

	require.NoError(t, r.Register("chi", 1))
	err = r.Register("chi", 2)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.RegistrationErrorCode))
	assert.Contains(t, err.Error(), "adapter registry")
	assert.Contains(t, err.Error(), "adapter name 'chi' is already registered")

	value, _ := r.Get("chi")
	assert.Equal(t, 1, value, "rejected entries leave the original in place")
}
