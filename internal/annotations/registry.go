package annotations

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/toyz/loom/internal/utils"
)

// AnnotationRegistry defines the interface for managing annotation schemas
type AnnotationRegistry interface {
	// Register a new annotation type with its schema
	Register(annotationType AnnotationType, schema AnnotationSchema) error

	// GetSchema retrieves the schema for an annotation type
	GetSchema(annotationType AnnotationType) (AnnotationSchema, error)

	// ListTypes returns all registered annotation types
	ListTypes() []AnnotationType

	// Validate checks a parsed annotation against its schema
	Validate(parsed *ParsedAnnotation) error
}

// registry stores schemas in a validated base registry
type registry struct {
	schemas *utils.OrderedRegistry[AnnotationType, AnnotationSchema]
}

// NewRegistry creates a new, empty annotation registry
func NewRegistry() AnnotationRegistry {
	base := utils.NewOrderedRegistry[AnnotationType, AnnotationSchema]("annotation", "annotation type", func(key AnnotationType, schema AnnotationSchema, existing map[AnnotationType]AnnotationSchema) error {
		if schema.Type != key {
			return fmt.Errorf("schema type %s does not match annotation type %s", schema.Type, key)
		}
		if _, exists := existing[key]; exists {
			return fmt.Errorf("annotation type %s is already registered", key)
		}
		if schema.MaxArgs >= 0 && schema.MinArgs > schema.MaxArgs {
			return fmt.Errorf("schema for %s requires %d arguments but allows at most %d", key, schema.MinArgs, schema.MaxArgs)
		}
		return nil
	})
	return &registry{schemas: base}
}

var (
	defaultRegistry     AnnotationRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the global registry holding the built-in schemas
func DefaultRegistry() AnnotationRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		if err := RegisterBuiltinSchemas(defaultRegistry); err != nil {
			panic(err)
		}
	})
	return defaultRegistry
}

// RegisterBuiltinSchemas registers every built-in schema into r
func RegisterBuiltinSchemas(r AnnotationRegistry) error {
	for _, schema := range BuiltinSchemas() {
		if err := r.Register(schema.Type, schema); err != nil {
			return err
		}
	}
	return nil
}

// Register adds a new annotation type with its schema to the registry
func (r *registry) Register(annotationType AnnotationType, schema AnnotationSchema) error {
	return r.schemas.Register(annotationType, schema)
}

// GetSchema retrieves the schema for an annotation type
func (r *registry) GetSchema(annotationType AnnotationType) (AnnotationSchema, error) {
	return r.schemas.Lookup(annotationType)
}

// ListTypes returns all registered annotation types in declaration order
func (r *registry) ListTypes() []AnnotationType {
	types := r.schemas.Keys()
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Validate checks positional arguments and parameters against the schema
func (r *registry) Validate(parsed *ParsedAnnotation) error {
	schema, err := r.GetSchema(parsed.Type)
	if err != nil {
		return err
	}

	if len(parsed.Args) < schema.MinArgs {
		return fmt.Errorf("//loom::%s requires at least %d positional argument(s)", parsed.Type, schema.MinArgs)
	}
	if schema.ArgValidator != nil {
		if err := schema.ArgValidator(parsed.Args); err != nil {
			return err
		}
	}
	if schema.MaxArgs >= 0 && len(parsed.Args) > schema.MaxArgs {
		return fmt.Errorf("//loom::%s accepts at most %d positional argument(s), got %d", parsed.Type, schema.MaxArgs, len(parsed.Args))
	}

	for name, value := range parsed.Parameters {
		spec, ok := schema.Parameters[name]
		if !ok {
			return fmt.Errorf("unknown parameter '-%s' for //loom::%s (allowed: %s)", name, parsed.Type, allowedParameters(schema))
		}
		if spec.Type != BoolType && value == "" {
			return fmt.Errorf("parameter '-%s' requires a value", name)
		}
		if spec.Validator != nil && spec.Type != BoolType {
			if err := spec.Validator(value); err != nil {
				return fmt.Errorf("parameter '-%s': %w", name, err)
			}
		}
	}

	for name, spec := range schema.Parameters {
		if spec.Required && !parsed.HasParameter(name) {
			return fmt.Errorf("//loom::%s requires parameter '-%s'", parsed.Type, name)
		}
	}
	return nil
}

func allowedParameters(schema AnnotationSchema) string {
	if len(schema.Parameters) == 0 {
		return "none"
	}
	names := make([]string, 0, len(schema.Parameters))
	for name := range schema.Parameters {
		names = append(names, "-"+name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
