package loom

import (
	"reflect"

	"github.com/toyz/loom/internal/container"
	"github.com/toyz/loom/internal/descriptor"
)

// Lazy is a field-only deferred reference. The container binds it during
// injection and Get resolves the target on first use.
type Lazy[T any] = container.Deferred[T]

// Initializer is implemented by components that need a post-construction hook
type Initializer = container.Initializer

// MapperFactory builds the implementation of a mapper interface
type MapperFactory = container.MapperFactory

// Declarer produces a component declaration for Application.Register
type Declarer interface {
	Declaration() descriptor.Declaration
}

// TypeOf returns the reflect.Type of T, for Implements and Default
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Named maps a constructor parameter to a named value key
type Named struct {
	Index int
	Key   string
}

// NamedParam marks constructor parameter index as the named value key
func NamedParam(index int, key string) Named {
	return Named{Index: index, Key: key}
}

// ComponentBuilder declares a struct component
type ComponentBuilder struct {
	decl descriptor.Declaration
}

// Component starts a declaration for T, which must be a pointer to a struct.
// annotations are //loom:: lines.
//
//	loom.Component[*PostController](
//		"//loom::controller -Prefix=/posts",
//		"//loom::route GET /{id} -Handler=Get",
//	).Constructor(NewPostController)
func Component[T any](annotations ...string) *ComponentBuilder {
	return &ComponentBuilder{decl: descriptor.Declaration{
		Type:        reflect.TypeFor[T](),
		Annotations: annotations,
	}}
}

// Constructor adds an injection constructor. More than one constructor makes
// resolution fail with an ambiguous constructor error.
func (b *ComponentBuilder) Constructor(fn any, named ...Named) *ComponentBuilder {
	ctor := descriptor.ConstructorDecl{Func: fn}
	if len(named) > 0 {
		ctor.Named = make(map[int]string, len(named))
		for _, n := range named {
			ctor.Named[n.Index] = n.Key
		}
	}
	b.decl.Constructors = append(b.decl.Constructors, ctor)
	return b
}

// Implements binds the component to each interface
func (b *ComponentBuilder) Implements(ifaces ...reflect.Type) *ComponentBuilder {
	b.decl.Implements = append(b.decl.Implements, ifaces...)
	return b
}

// Declaration implements Declarer
func (b *ComponentBuilder) Declaration() descriptor.Declaration {
	return b.decl
}

// InterfaceBuilder declares an interface type
type InterfaceBuilder struct {
	decl descriptor.Declaration
}

// Interface starts a declaration for the interface I
func Interface[I any](annotations ...string) *InterfaceBuilder {
	return &InterfaceBuilder{decl: descriptor.Declaration{
		Type:        reflect.TypeFor[I](),
		Annotations: annotations,
	}}
}

// Mapper declares I as a mapper interface served by the mapper factory
func Mapper[I any]() *InterfaceBuilder {
	return Interface[I]("//loom::mapper")
}

// Default names the implementation used when nothing else is bound to the interface
func (b *InterfaceBuilder) Default(concrete reflect.Type) *InterfaceBuilder {
	b.decl.Default = concrete
	return b
}

// Declaration implements Declarer
func (b *InterfaceBuilder) Declaration() descriptor.Declaration {
	return b.decl
}
