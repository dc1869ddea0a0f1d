package annotations

import (
	"fmt"
	"strings"
)

// Built-in annotation schemas

// Verbs accepted by //loom::route
var Verbs = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"}

// Binding sources accepted by -Args
const (
	ArgPath    = "path"
	ArgBody    = "body"
	ArgContext = "ctx"
)

func noArgs(kind string) func([]string) error {
	return func(args []string) error {
		if len(args) > 0 {
			return fmt.Errorf("//loom::%s takes no positional arguments, got '%s'", kind, strings.Join(args, " "))
		}
		return nil
	}
}

func methodParameter(description string) map[string]ParameterSpec {
	return map[string]ParameterSpec{
		"Method": {
			Type:        StringType,
			Required:    true,
			Description: description,
			Validator:   validateIdentifier,
		},
	}
}

func validateIdentifier(v string) error {
	if v == "" {
		return fmt.Errorf("must not be empty")
	}
	for i, r := range v {
		isLetter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isLetter && !(isDigit && i > 0) {
			return fmt.Errorf("'%s' is not a valid Go identifier", v)
		}
	}
	return nil
}

func validateTemplate(v string) error {
	if !strings.HasPrefix(v, "/") {
		return fmt.Errorf("path must start with '/', got '%s'", v)
	}
	if strings.Count(v, "{") != strings.Count(v, "}") {
		return fmt.Errorf("unbalanced placeholder braces in '%s'", v)
	}
	return nil
}

func roleSchema(t AnnotationType, description string) AnnotationSchema {
	return AnnotationSchema{
		Type:         t,
		Description:  description,
		MaxArgs:      0,
		ArgValidator: noArgs(t.String()),
		Parameters:   map[string]ParameterSpec{},
		Examples:     []string{"//loom::" + t.String()},
	}
}

// ComponentAnnotationSchema defines the schema for //loom::component annotations
var ComponentAnnotationSchema = roleSchema(ComponentAnnotation, "Marks a type as a container-managed component")

// ServiceAnnotationSchema defines the schema for //loom::service annotations
var ServiceAnnotationSchema = roleSchema(ServiceAnnotation, "Marks a type as a service component")

// ConfigurationAnnotationSchema defines the schema for //loom::configuration annotations
var ConfigurationAnnotationSchema = roleSchema(ConfigurationAnnotation, "Marks a type as a bean factory that runs before ordinary components")

// MapperAnnotationSchema defines the schema for //loom::mapper annotations
var MapperAnnotationSchema = roleSchema(MapperAnnotation, "Marks an interface whose implementation is supplied by the mapper factory")

// ControllerAnnotationSchema defines the schema for //loom::controller annotations
var ControllerAnnotationSchema = AnnotationSchema{
	Type:         ControllerAnnotation,
	Description:  "Marks a type as a controller whose routes are compiled into the dispatch tables",
	MaxArgs:      0,
	ArgValidator: noArgs("controller"),
	Parameters: map[string]ParameterSpec{
		"Prefix": {
			Type:        StringType,
			Description: "Path prefix prepended to every route template of the controller",
			Validator:   validateTemplate,
		},
	},
	Examples: []string{
		"//loom::controller",
		"//loom::controller -Prefix=/posts",
	},
}

// RouteAnnotationSchema defines the schema for //loom::route annotations
var RouteAnnotationSchema = AnnotationSchema{
	Type:        RouteAnnotation,
	Description: "Binds a controller method to a verb and one or more path templates",
	MinArgs:     1,
	MaxArgs:     -1,
	ArgValidator: func(args []string) error {
		verb := strings.ToUpper(args[0])
		valid := false
		for _, v := range Verbs {
			if verb == v {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("verb must be one of: %s, got '%s'", strings.Join(Verbs, ", "), args[0])
		}
		for _, template := range args[1:] {
			if err := validateTemplate(template); err != nil {
				return err
			}
		}
		return nil
	},
	Parameters: map[string]ParameterSpec{
		"Handler": {
			Type:        StringType,
			Required:    true,
			Description: "Name of the controller method handling the route",
			Validator:   validateIdentifier,
		},
		"Args": {
			Type:        StringSliceType,
			Description: "Binding source of each handler parameter in declaration order: ctx, path or body",
			Validator: func(v string) error {
				for _, source := range parseCommaSeparated(v) {
					if source != ArgPath && source != ArgBody && source != ArgContext {
						return fmt.Errorf("unknown binding source '%s', expected ctx, path or body", source)
					}
				}
				return nil
			},
		},
	},
	Examples: []string{
		"//loom::route GET -Handler=List",
		"//loom::route GET /{id} -Handler=Get",
		"//loom::route PUT /{id} -Handler=Update -Args=path,body",
		"//loom::route GET /search /find -Handler=Search",
		"//loom::route GET /comments?postId={postId} -Handler=ByPost",
	},
}

// BeanAnnotationSchema defines the schema for //loom::bean annotations
var BeanAnnotationSchema = AnnotationSchema{
	Type:         BeanAnnotation,
	Description:  "Declares a configuration method whose result is registered as a singleton",
	ArgValidator: noArgs("bean"),
	Parameters:   methodParameter("Name of the factory method"),
	Examples:     []string{"//loom::bean -Method=Clock"},
}

// ListenerAnnotationSchema defines the schema for //loom::listener annotations
var ListenerAnnotationSchema = AnnotationSchema{
	Type:         ListenerAnnotation,
	Description:  "Subscribes a one-parameter method to events of its parameter type",
	ArgValidator: noArgs("listener"),
	Parameters:   methodParameter("Name of the listener method"),
	Examples:     []string{"//loom::listener -Method=OnPostCreated"},
}

// InitAnnotationSchema defines the schema for //loom::init annotations
var InitAnnotationSchema = AnnotationSchema{
	Type:         InitAnnotation,
	Description:  "Names the post-construction lifecycle hook",
	ArgValidator: noArgs("init"),
	Parameters:   methodParameter("Name of the lifecycle method"),
	Examples:     []string{"//loom::init -Method=Start"},
}

// BuiltinSchemas lists every schema registered by RegisterBuiltinSchemas
func BuiltinSchemas() []AnnotationSchema {
	return []AnnotationSchema{
		ComponentAnnotationSchema,
		ServiceAnnotationSchema,
		ControllerAnnotationSchema,
		ConfigurationAnnotationSchema,
		MapperAnnotationSchema,
		RouteAnnotationSchema,
		BeanAnnotationSchema,
		ListenerAnnotationSchema,
		InitAnnotationSchema,
	}
}
