package errors

import "fmt"

// Common error wrapping patterns used throughout the runtime

// WrapConfigurationError wraps configuration-related errors
func WrapConfigurationError(source, operation string, cause error) *BaseError {
	message := fmt.Sprintf("failed to %s configuration '%s'", operation, source)
	return Wrap(ConfigurationErrorCode, message, cause).
		WithContext("source", source).
		WithContext("operation", operation)
}

// WrapDependencyError wraps a failure to build one dependency of a component.
// The cause keeps its own code so callers can still match it with IsCode.
func WrapDependencyError(owner, dependency string, cause error) *BaseError {
	message := fmt.Sprintf("failed to resolve dependency '%s' of '%s'", dependency, owner)
	return Wrap(CodeOf(cause), message, cause).
		WithContext("owner", owner).
		WithContext("dependency", dependency)
}

// WrapRegisterError wraps an error with a "failed to register" message
func WrapRegisterError(kind, name string, cause error) *BaseError {
	message := fmt.Sprintf("failed to register %s '%s'", kind, name)
	return Wrap(RegistrationErrorCode, message, cause).
		WithContext("kind", kind).
		WithContext("name", name)
}

// NewRegistrationClosedError reports a registration attempted after the tables were frozen
func NewRegistrationClosedError(kind, name string) *BaseError {
	return Newf(RegistrationErrorCode, "cannot register %s '%s': registration is closed", kind, name).
		WithSuggestion("register everything before the application finishes booting")
}
