// Package descriptor turns component declarations into immutable descriptors.
//
// All reflection over user types happens here, once, before the container
// builds anything. The container, the route compiler and the dispatcher only
// read the descriptors produced by Describe.
package descriptor

import (
	"context"
	"reflect"
	"strings"
)

// Declaration is the raw input for one component or interface
type Declaration struct {
	Type         reflect.Type      // *Struct for components, an interface type for mappers and interface declarations
	Annotations  []string          // //loom:: lines
	Constructors []ConstructorDecl // candidate injection constructors
	Implements   []reflect.Type    // explicit interface bindings
	Default      reflect.Type      // default implementation, interface declarations only
}

// ConstructorDecl is a constructor function plus its named parameters
type ConstructorDecl struct {
	Func  any
	Named map[int]string // parameter index -> named value key
}

// Role is a capability role
type Role uint8

const (
	RoleComponent Role = 1 << iota
	RoleService
	RoleController
	RoleConfiguration
	RoleMapper
)

var roleNames = []struct {
	role Role
	name string
}{
	{RoleComponent, "component"},
	{RoleService, "service"},
	{RoleController, "controller"},
	{RoleConfiguration, "configuration"},
	{RoleMapper, "mapper"},
}

// Roles is a set of capability roles
type Roles Role

// Has reports whether r carries role
func (r Roles) Has(role Role) bool {
	return Role(r)&role != 0
}

func (r Roles) with(role Role) Roles {
	return Roles(Role(r) | role)
}

func (r Roles) without(role Role) Roles {
	return Roles(Role(r) &^ role)
}

// String lists the roles, e.g. "service|controller"
func (r Roles) String() string {
	var names []string
	for _, rn := range roleNames {
		if r.Has(rn.role) {
			names = append(names, rn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Dependency is one constructor parameter or one tagged field
type Dependency struct {
	Type     reflect.Type // requested type; for deferred fields, the target type
	Name     string       // named value key, empty for typed dependencies
	Deferred bool         // field declared as a deferred handle
}

// IsNamed reports whether the dependency resolves through a named value
func (d Dependency) IsNamed() bool {
	return d.Name != ""
}

// String describes the dependency for logs and errors
func (d Dependency) String() string {
	switch {
	case d.IsNamed():
		return "named '" + d.Name + "'"
	case d.Deferred:
		return "deferred " + d.Type.String()
	}
	return d.Type.String()
}

// Constructor is a validated injection constructor
type Constructor struct {
	Func         reflect.Value
	Params       []Dependency
	ReturnsError bool
}

// Field is a dependency-tagged struct field
type Field struct {
	Index      []int
	Name       string
	FieldType  reflect.Type // declared field type, the handle type for deferred fields
	Dependency Dependency
}

// BindingSource says where a handler parameter takes its value from
type BindingSource int

const (
	FromPath BindingSource = iota
	FromBody
	FromContext
)

// String returns the -Args spelling of the source
func (s BindingSource) String() string {
	switch s {
	case FromBody:
		return "body"
	case FromContext:
		return "ctx"
	default:
		return "path"
	}
}

// Binding maps one handler parameter to a request value
type Binding struct {
	Source   BindingSource
	Position int // index into the extracted path values, path bindings only
	Type     reflect.Type
}

// Route is one //loom::route declaration on a controller
type Route struct {
	Verb         string
	Templates    []string // controller prefix already applied
	Handler      string   // method name
	Method       reflect.Method
	Bindings     []Binding
	ReturnsValue bool
	ReturnsError bool
}

// Bean is a configuration factory method
type Bean struct {
	Method       reflect.Method
	Params       []reflect.Type
	Result       reflect.Type
	ReturnsError bool
}

// Listener is a one-parameter event method
type Listener struct {
	Method  reflect.Method
	Event   reflect.Type
	Returns reflect.Type // nil when the method returns nothing
}

// Hook is the post-construction lifecycle method
type Hook struct {
	Method       reflect.Method
	ReturnsError bool
}

// Initializer is implemented by components that need a post-construction hook
type Initializer interface {
	Init() error
}

// DeferredHandle is implemented (on the pointer) by field types that accept
// a deferred reference instead of the instance itself
type DeferredHandle interface {
	DeferredTarget() reflect.Type
	BindResolver(resolve func() (any, error))
}

// Component is the immutable descriptor of one declared type
type Component struct {
	Type         reflect.Type
	Name         string
	Roles        Roles
	Prefix       string
	Constructors []Constructor
	Fields       []Field
	Implements   []reflect.Type
	Default      reflect.Type
	Init         *Hook
	Routes       []Route
	Beans        []Bean
	Listeners    []Listener
	Warnings     []string
}

// IsInterface reports whether the descriptor declares an interface
func (c *Component) IsInterface() bool {
	return c.Type.Kind() == reflect.Interface
}

var (
	contextType        = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType          = reflect.TypeOf((*error)(nil)).Elem()
	initializerType    = reflect.TypeOf((*Initializer)(nil)).Elem()
	deferredHandleType = reflect.TypeOf((*DeferredHandle)(nil)).Elem()
)

// DeferredTarget returns the target type when t is a deferred handle type
func DeferredTarget(t reflect.Type) (reflect.Type, bool) {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return nil, false
	}
	if !reflect.PointerTo(t).Implements(deferredHandleType) {
		return nil, false
	}
	handle := reflect.New(t).Interface().(DeferredHandle)
	return handle.DeferredTarget(), true
}
