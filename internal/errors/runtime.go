package errors

import (
	"fmt"
	"strings"
)

// UnresolvedDependencyError reports a type the container has no way to build
type UnresolvedDependencyError struct {
	*BaseError
	TypeName string
}

// NewUnresolvedDependencyError creates an unresolved dependency error
func NewUnresolvedDependencyError(typeName, reason string) *UnresolvedDependencyError {
	err := &UnresolvedDependencyError{
		BaseError: Newf(UnresolvedDependencyErrorCode, "cannot resolve %s: %s", typeName, reason),
		TypeName:  typeName,
	}
	err.WithContext("type", typeName)
	return err
}

// UnresolvedNamedValueError reports a named value that was never registered
type UnresolvedNamedValueError struct {
	*BaseError
	Key string
}

// NewUnresolvedNamedValueError creates an unresolved named value error
func NewUnresolvedNamedValueError(key string) *UnresolvedNamedValueError {
	err := &UnresolvedNamedValueError{
		BaseError: Newf(UnresolvedNamedValueErrorCode, "no value registered under name '%s'", key),
		Key:       key,
	}
	err.WithSuggestion(fmt.Sprintf("add '%s' to a properties file or the environment", key))
	return err
}

// AmbiguousConstructorError reports a type with more than one injection constructor
type AmbiguousConstructorError struct {
	*BaseError
	TypeName string
	Count    int
}

// NewAmbiguousConstructorError creates an ambiguous constructor error
func NewAmbiguousConstructorError(typeName string, count int) *AmbiguousConstructorError {
	return &AmbiguousConstructorError{
		BaseError: Newf(AmbiguousConstructorErrorCode, "found %d injection constructors for %s, expected at most one", count, typeName),
		TypeName:  typeName,
		Count:     count,
	}
}

// CircularDependencyError reports a constructor-level cycle
type CircularDependencyError struct {
	*BaseError
	Chain []string // resolution chain, first element repeated at the end
}

// NewCircularDependencyError creates a circular dependency error from the resolution chain
func NewCircularDependencyError(chain []string) *CircularDependencyError {
	err := &CircularDependencyError{
		BaseError: Newf(CircularDependencyErrorCode, "circular constructor dependency: %s", strings.Join(chain, " -> ")),
		Chain:     chain,
	}
	err.WithSuggestion("move one side of the cycle to an inject-tagged field or a Deferred field")
	return err
}

// DuplicateBindingError reports a second implementation registered for an interface
type DuplicateBindingError struct {
	*BaseError
	Interface string
	Existing  string
	Attempted string
}

// NewDuplicateBindingError creates a duplicate binding error
func NewDuplicateBindingError(iface, existing, attempted string) *DuplicateBindingError {
	return &DuplicateBindingError{
		BaseError: Newf(DuplicateBindingErrorCode, "interface %s is already bound to %s, cannot bind %s", iface, existing, attempted),
		Interface: iface,
		Existing:  existing,
		Attempted: attempted,
	}
}

// AmbiguousMappingError reports two handlers claiming the same exact route
type AmbiguousMappingError struct {
	*BaseError
	Key      string
	Handler  string
	Existing string
}

// NewAmbiguousMappingError creates an ambiguous mapping error
func NewAmbiguousMappingError(key, handler, existing string) *AmbiguousMappingError {
	return &AmbiguousMappingError{
		BaseError: Newf(AmbiguousMappingErrorCode, "ambiguous mapping, cannot map '%s' method: %s is already mapped to %s", handler, key, existing),
		Key:       key,
		Handler:   handler,
		Existing:  existing,
	}
}

// ArgumentCoercionError reports a request value that cannot be converted to its parameter type
type ArgumentCoercionError struct {
	*BaseError
	Parameter int    // declaration index of the handler parameter
	Value     string // raw value taken from the request
	Target    string // target type name
}

// NewArgumentCoercionError creates an argument coercion error
func NewArgumentCoercionError(value, target string, cause error) *ArgumentCoercionError {
	return &ArgumentCoercionError{
		BaseError: Wrap(ArgumentCoercionErrorCode, fmt.Sprintf("cannot convert %q to %s", value, target), cause),
		Parameter: -1,
		Value:     value,
		Target:    target,
	}
}

// AtParameter records the handler parameter index the value was bound to
func (e *ArgumentCoercionError) AtParameter(index int) *ArgumentCoercionError {
	e.Parameter = index
	e.BaseError.WithContext("parameter", index)
	return e
}

// InvocationError reports a handler that returned an error or panicked
type InvocationError struct {
	*BaseError
	Handler string
	Panic   interface{} // recovered value when the handler panicked
}

// NewInvocationError wraps an error returned by a handler
func NewInvocationError(handler string, cause error) *InvocationError {
	return &InvocationError{
		BaseError: Wrap(InvocationErrorCode, fmt.Sprintf("handler %s failed", handler), cause),
		Handler:   handler,
	}
}

// NewPanicInvocationError wraps a value recovered from a panicking handler
func NewPanicInvocationError(handler string, recovered interface{}) *InvocationError {
	var cause error
	if err, ok := recovered.(error); ok {
		cause = err
	} else {
		cause = fmt.Errorf("%v", recovered)
	}
	return &InvocationError{
		BaseError: Wrap(InvocationErrorCode, fmt.Sprintf("handler %s panicked", handler), cause),
		Handler:   handler,
		Panic:     recovered,
	}
}
