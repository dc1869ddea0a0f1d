package annotations

import (
	"fmt"
	"strings"
)

// AnnotationType represents the type of annotation
type AnnotationType int

const (
	ComponentAnnotation AnnotationType = iota
	ServiceAnnotation
	ControllerAnnotation
	ConfigurationAnnotation
	MapperAnnotation
	RouteAnnotation
	BeanAnnotation
	ListenerAnnotation
	InitAnnotation
)

// String returns the annotation keyword as written after the marker
func (a AnnotationType) String() string {
	switch a {
	case ComponentAnnotation:
		return "component"
	case ServiceAnnotation:
		return "service"
	case ControllerAnnotation:
		return "controller"
	case ConfigurationAnnotation:
		return "configuration"
	case MapperAnnotation:
		return "mapper"
	case RouteAnnotation:
		return "route"
	case BeanAnnotation:
		return "bean"
	case ListenerAnnotation:
		return "listener"
	case InitAnnotation:
		return "init"
	default:
		return "unknown"
	}
}

// IsRole reports whether the annotation declares a capability role
func (a AnnotationType) IsRole() bool {
	return a <= MapperAnnotation
}

// ParseAnnotationType converts an annotation keyword to its type
func ParseAnnotationType(s string) (AnnotationType, error) {
	switch strings.ToLower(s) {
	case "component":
		return ComponentAnnotation, nil
	case "service":
		return ServiceAnnotation, nil
	case "controller":
		return ControllerAnnotation, nil
	case "configuration":
		return ConfigurationAnnotation, nil
	case "mapper":
		return MapperAnnotation, nil
	case "route":
		return RouteAnnotation, nil
	case "bean":
		return BeanAnnotation, nil
	case "listener":
		return ListenerAnnotation, nil
	case "init":
		return InitAnnotation, nil
	default:
		return 0, fmt.Errorf("unknown annotation type '%s'", s)
	}
}

// ParsedAnnotation is one validated annotation line
type ParsedAnnotation struct {
	Type       AnnotationType    // Annotation type enum
	Args       []string          // positional arguments in order
	Parameters map[string]string // named parameters; flags map to ""
	Raw        string            // original line
}

// GetString returns a parameter value or the default
func (p *ParsedAnnotation) GetString(name string, defaultValue ...string) string {
	if value, ok := p.Parameters[name]; ok {
		return value
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// GetStringSlice returns a comma separated parameter as a slice
func (p *ParsedAnnotation) GetStringSlice(name string) []string {
	value, ok := p.Parameters[name]
	if !ok || value == "" {
		return nil
	}
	return parseCommaSeparated(value)
}

// HasParameter reports whether the parameter or flag was given
func (p *ParsedAnnotation) HasParameter(name string) bool {
	_, ok := p.Parameters[name]
	return ok
}

// ParameterType represents the type of a parameter
type ParameterType int

const (
	StringType ParameterType = iota
	BoolType
	StringSliceType
)

// String returns the string representation of the parameter type
func (p ParameterType) String() string {
	switch p {
	case StringType:
		return "string"
	case BoolType:
		return "bool"
	case StringSliceType:
		return "[]string"
	default:
		return "unknown"
	}
}

// ParameterSpec defines the specification for an annotation parameter
type ParameterSpec struct {
	Type        ParameterType      // Parameter type
	Required    bool               // Whether parameter is required
	Description string             // Parameter description
	Validator   func(string) error // Custom validator for the raw value
}

// AnnotationSchema defines the schema for an annotation type
type AnnotationSchema struct {
	Type         AnnotationType           // Annotation type enum
	Description  string                   // Human-readable description
	MinArgs      int                      // minimum positional arguments
	MaxArgs      int                      // maximum positional arguments, -1 for unbounded
	ArgValidator func([]string) error     // validates positional arguments
	Parameters   map[string]ParameterSpec // Parameter specifications
	Examples     []string                 // Usage examples
}

func parseCommaSeparated(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
