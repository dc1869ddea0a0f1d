package errors

import "fmt"

// SyntaxError represents an annotation line that does not match the grammar
type SyntaxError struct {
	*BaseError
	Line     string // the annotation line being parsed
	Token    string // the token that caused the error
	Position int    // position in the line where the error occurred
}

// NewSyntaxError creates a new syntax error
func NewSyntaxError(line, message string) *SyntaxError {
	return &SyntaxError{
		BaseError: New(SyntaxErrorCode, message),
		Line:      line,
	}
}

// NewSyntaxErrorWithToken creates a syntax error with token information
func NewSyntaxErrorWithToken(line, message, token string, position int) *SyntaxError {
	if token != "" {
		message = fmt.Sprintf("%s (near token '%s')", message, token)
	}

	return &SyntaxError{
		BaseError: New(SyntaxErrorCode, message),
		Line:      line,
		Token:     token,
		Position:  position,
	}
}

// WithLocation adds location information to the error
func (e *SyntaxError) WithLocation(loc SourceLocation) *SyntaxError {
	e.BaseError.WithLocation(loc)
	return e
}

// WithSuggestion adds a helpful suggestion
func (e *SyntaxError) WithSuggestion(suggestion string) *SyntaxError {
	e.BaseError.WithSuggestion(suggestion)
	return e
}

// DescriptorError reports malformed or conflicting component metadata
type DescriptorError struct {
	*BaseError
	TypeName string // component type being described
	Element  string // annotation, method or field at fault, when known
}

// NewDescriptorError creates a descriptor error for the named component type
func NewDescriptorError(typeName, format string, args ...interface{}) *DescriptorError {
	message := fmt.Sprintf("invalid component %s: %s", typeName, fmt.Sprintf(format, args...))
	return &DescriptorError{
		BaseError: New(DescriptorErrorCode, message).WithContext("type", typeName),
		TypeName:  typeName,
	}
}

// WithElement records which part of the declaration is at fault
func (e *DescriptorError) WithElement(element string) *DescriptorError {
	e.Element = element
	e.BaseError.WithContext("element", element)
	return e
}

// WithCause adds an underlying error cause
func (e *DescriptorError) WithCause(cause error) *DescriptorError {
	e.BaseError.WithCause(cause)
	return e
}

// WithSuggestion adds a helpful suggestion
func (e *DescriptorError) WithSuggestion(suggestion string) *DescriptorError {
	e.BaseError.WithSuggestion(suggestion)
	return e
}

// WithLocation adds location information to the error
func (e *DescriptorError) WithLocation(loc SourceLocation) *DescriptorError {
	e.BaseError.WithLocation(loc)
	return e
}
