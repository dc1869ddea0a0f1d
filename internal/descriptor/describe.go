package descriptor

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/toyz/loom/internal/annotations"
	"github.com/toyz/loom/internal/coerce"
	"github.com/toyz/loom/internal/errors"
	"github.com/toyz/loom/internal/routing"
)

// Struct tags read from component fields
const (
	InjectTag = "inject"
	NamedTag  = "named"
)

// describer collects every problem found in one declaration
type describer struct {
	decl Declaration
	name string
	errs *errors.MultipleErrors
}

func (d *describer) fail(element, format string, args ...interface{}) *errors.DescriptorError {
	err := errors.NewDescriptorError(d.name, format, args...).WithElement(element)
	d.errs.Add(err)
	return err
}

// Describe validates decl and builds its descriptor. Every problem found is
// reported: the error is a single *errors.DescriptorError or an
// *errors.MultipleErrors holding several.
func Describe(decl Declaration) (*Component, error) {
	if decl.Type == nil {
		return nil, errors.NewDescriptorError("<nil>", "declaration has no type")
	}

	d := &describer{decl: decl, name: decl.Type.String(), errs: errors.NewMultipleErrors()}
	c := &Component{
		Type:       decl.Type,
		Name:       decl.Type.String(),
		Implements: decl.Implements,
		Default:    decl.Default,
	}

	var (
		routeAnnotations    []*annotations.ParsedAnnotation
		beanAnnotations     []*annotations.ParsedAnnotation
		listenerAnnotations []*annotations.ParsedAnnotation
		initAnnotation      *annotations.ParsedAnnotation
	)

	for _, line := range decl.Annotations {
		parsed, err := annotations.Parse(line)
		if err != nil {
			d.fail(line, "malformed annotation").WithCause(err)
			continue
		}
		switch parsed.Type {
		case annotations.ComponentAnnotation:
			c.Roles = c.Roles.with(RoleComponent)
		case annotations.ServiceAnnotation:
			c.Roles = c.Roles.with(RoleService)
		case annotations.ControllerAnnotation:
			c.Roles = c.Roles.with(RoleController)
			c.Prefix = parsed.GetString("Prefix")
		case annotations.ConfigurationAnnotation:
			c.Roles = c.Roles.with(RoleConfiguration)
		case annotations.MapperAnnotation:
			c.Roles = c.Roles.with(RoleMapper)
		case annotations.RouteAnnotation:
			routeAnnotations = append(routeAnnotations, parsed)
		case annotations.BeanAnnotation:
			beanAnnotations = append(beanAnnotations, parsed)
		case annotations.ListenerAnnotation:
			listenerAnnotations = append(listenerAnnotations, parsed)
		case annotations.InitAnnotation:
			if initAnnotation != nil {
				d.fail(line, "more than one //loom::init annotation")
				continue
			}
			initAnnotation = parsed
		}
	}

	if c.Roles.Has(RoleConfiguration) && c.Roles.Has(RoleController) {
		if len(routeAnnotations) > 0 {
			d.fail("roles", "a configuration cannot also be a controller with routes").
				WithSuggestion("split the bean factories and the routes into two types")
		} else {
			c.Roles = c.Roles.without(RoleController)
			c.Warnings = append(c.Warnings, fmt.Sprintf("%s is declared as both configuration and controller; treating it as a configuration", d.name))
		}
	}

	if decl.Type.Kind() == reflect.Interface {
		d.describeInterface(c)
		if len(routeAnnotations)+len(beanAnnotations)+len(listenerAnnotations) > 0 || initAnnotation != nil {
			d.fail("annotations", "interfaces cannot declare routes, beans, listeners or init hooks")
		}
		return c, d.errs.ErrorOrNil()
	}

	if decl.Type.Kind() != reflect.Pointer || decl.Type.Elem().Kind() != reflect.Struct {
		d.fail("type", "components must be pointers to structs, got %s", decl.Type.Kind())
		return c, d.errs.ErrorOrNil()
	}
	if c.Roles == 0 {
		c.Roles = c.Roles.with(RoleComponent)
	}
	if c.Roles.Has(RoleMapper) {
		d.fail("roles", "mappers must be declared on interface types")
	}
	if decl.Default != nil {
		d.fail("default", "only interface declarations can name a default implementation")
	}

	for _, iface := range decl.Implements {
		if iface == nil || iface.Kind() != reflect.Interface {
			d.fail("implements", "%v is not an interface type", iface)
			continue
		}
		if !decl.Type.Implements(iface) {
			d.fail("implements", "does not implement %s", iface)
		}
	}

	for _, ctor := range decl.Constructors {
		if described, ok := d.describeConstructor(ctor); ok {
			c.Constructors = append(c.Constructors, described)
		}
	}
	c.Fields = d.describeFields(decl.Type.Elem(), nil)

	if len(routeAnnotations) > 0 && !c.Roles.Has(RoleController) {
		d.fail("route", "routes can only be declared on controllers").
			WithSuggestion("add //loom::controller")
	}
	for _, parsed := range routeAnnotations {
		if route, ok := d.describeRoute(parsed, c.Prefix); ok {
			c.Routes = append(c.Routes, route)
		}
	}

	if len(beanAnnotations) > 0 && !c.Roles.Has(RoleConfiguration) {
		d.fail("bean", "bean methods can only be declared on configurations").
			WithSuggestion("add //loom::configuration")
	}
	for _, parsed := range beanAnnotations {
		if bean, ok := d.describeBean(parsed); ok {
			c.Beans = append(c.Beans, bean)
		}
	}

	for _, parsed := range listenerAnnotations {
		if listener, ok := d.describeListener(parsed); ok {
			c.Listeners = append(c.Listeners, listener)
		}
	}

	c.Init = d.describeInit(initAnnotation)

	return c, d.errs.ErrorOrNil()
}

func (d *describer) describeInterface(c *Component) {
	allowed := Roles(0).with(RoleMapper)
	if c.Roles != 0 && c.Roles != allowed {
		d.fail("roles", "interface types can only carry the mapper role, got %s", c.Roles)
	}
	if len(d.decl.Constructors) > 0 {
		d.fail("constructor", "interfaces cannot declare constructors")
	}
	if len(d.decl.Implements) > 0 {
		d.fail("implements", "interfaces cannot declare bindings")
	}
	if def := d.decl.Default; def != nil {
		if !def.Implements(d.decl.Type) {
			d.fail("default", "default implementation %s does not implement %s", def, d.decl.Type)
		}
		if c.Roles.Has(RoleMapper) {
			d.fail("default", "mappers are supplied by the mapper factory and cannot name a default")
		}
	}
}

func (d *describer) describeConstructor(decl ConstructorDecl) (Constructor, bool) {
	fn := reflect.ValueOf(decl.Func)
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		d.fail("constructor", "constructor must be a function, got %T", decl.Func)
		return Constructor{}, false
	}

	ft := fn.Type()
	name := "constructor " + ft.String()
	if ft.IsVariadic() {
		d.fail(name, "variadic constructors are not supported")
		return Constructor{}, false
	}

	ctor := Constructor{Func: fn}
	switch {
	case ft.NumOut() == 1:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		ctor.ReturnsError = true
	default:
		d.fail(name, "constructor must return %s or (%s, error)", d.decl.Type, d.decl.Type)
		return Constructor{}, false
	}
	if !ft.Out(0).AssignableTo(d.decl.Type) {
		d.fail(name, "constructor returns %s, which is not assignable to %s", ft.Out(0), d.decl.Type)
		return Constructor{}, false
	}

	ok := true
	for index := range decl.Named {
		if index < 0 || index >= ft.NumIn() {
			d.fail(name, "named parameter index %d is out of range", index)
			ok = false
		}
	}

	for i := 0; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if key, named := decl.Named[i]; named {
			if key == "" {
				d.fail(name, "parameter %d has an empty named value key", i)
				ok = false
				continue
			}
			if !coerce.Supported(in) {
				d.fail(name, "named parameter %d has type %s, which has no scalar form", i, in)
				ok = false
				continue
			}
			ctor.Params = append(ctor.Params, Dependency{Type: in, Name: key})
			continue
		}
		if _, deferred := DeferredTarget(in); deferred {
			d.fail(name, "parameter %d is a deferred reference; deferred references are only allowed on fields", i).
				WithSuggestion("move the dependency to an inject-tagged field")
			ok = false
			continue
		}
		ctor.Params = append(ctor.Params, Dependency{Type: in})
	}
	return ctor, ok
}

// describeFields walks exported struct fields, descending into embedded structs
func (d *describer) describeFields(st reflect.Type, parent []int) []Field {
	var fields []Field
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		index := append(append([]int(nil), parent...), i)

		_, inject := sf.Tag.Lookup(InjectTag)
		key, named := sf.Tag.Lookup(NamedTag)

		if !inject && !named {
			if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
				fields = append(fields, d.describeFields(sf.Type, index)...)
			}
			continue
		}

		element := "field " + sf.Name
		if !sf.IsExported() {
			d.fail(element, "dependency-tagged fields must be exported")
			continue
		}
		if inject && named {
			d.fail(element, "a field cannot carry both inject and named tags")
			continue
		}

		field := Field{Index: index, Name: sf.Name, FieldType: sf.Type}
		if named {
			if key == "" {
				key = sf.Name
			}
			if !coerce.Supported(sf.Type) {
				d.fail(element, "named field has type %s, which has no scalar form", sf.Type)
				continue
			}
			field.Dependency = Dependency{Type: sf.Type, Name: key}
		} else if target, deferred := DeferredTarget(sf.Type); deferred {
			field.Dependency = Dependency{Type: target, Deferred: true}
		} else {
			field.Dependency = Dependency{Type: sf.Type}
		}
		fields = append(fields, field)
	}
	return fields
}

func (d *describer) method(kind, name string) (reflect.Method, bool) {
	m, ok := d.decl.Type.MethodByName(name)
	if !ok {
		d.fail(kind+" "+name, "method %s does not exist", name)
	}
	return m, ok
}

func (d *describer) describeRoute(parsed *annotations.ParsedAnnotation, prefix string) (Route, bool) {
	route := Route{
		Verb:    strings.ToUpper(parsed.Args[0]),
		Handler: parsed.GetString("Handler"),
	}
	element := "route " + route.Handler

	templates := parsed.Args[1:]
	if len(templates) == 0 {
		templates = []string{""}
	}

	placeholders := -1
	for _, template := range templates {
		full := routing.Join(prefix, template)
		parsedTemplate, err := routing.ParseTemplate(full)
		if err != nil {
			d.fail(element, "invalid template").WithCause(err)
			return Route{}, false
		}
		if placeholders >= 0 && placeholders != len(parsedTemplate.Placeholders) {
			d.fail(element, "all templates of one route must have the same number of placeholders")
			return Route{}, false
		}
		placeholders = len(parsedTemplate.Placeholders)
		route.Templates = append(route.Templates, full)
	}

	m, ok := d.method("route", route.Handler)
	if !ok {
		return Route{}, false
	}
	route.Method = m
	mt := m.Type

	if mt.IsVariadic() {
		d.fail(element, "variadic handlers are not supported")
		return Route{}, false
	}

	var sources []BindingSource
	if parsed.HasParameter("Args") {
		args := parsed.GetStringSlice("Args")
		if len(args) != mt.NumIn()-1 {
			d.fail(element, "-Args lists %d sources but %s takes %d parameters", len(args), route.Handler, mt.NumIn()-1)
			return Route{}, false
		}
		for _, arg := range args {
			switch arg {
			case annotations.ArgPath:
				sources = append(sources, FromPath)
			case annotations.ArgBody:
				sources = append(sources, FromBody)
			case annotations.ArgContext:
				sources = append(sources, FromContext)
			}
		}
	} else {
		paths, bodies := 0, 0
		for i := 1; i < mt.NumIn(); i++ {
			switch {
			case mt.In(i) == contextType:
				sources = append(sources, FromContext)
			case paths < placeholders:
				sources = append(sources, FromPath)
				paths++
			case bodies == 0:
				sources = append(sources, FromBody)
				bodies++
			default:
				d.fail(element, "cannot infer a binding for parameter %d of %s", i-1, route.Handler).
					WithSuggestion("declare the sources explicitly with -Args=path,body")
				return Route{}, false
			}
		}
	}

	paths, bodies := 0, 0
	for i, source := range sources {
		pt := mt.In(i + 1)
		binding := Binding{Source: source, Type: pt}
		switch source {
		case FromPath:
			if !coerce.Supported(pt) {
				d.fail(element, "path parameter %d has type %s, which has no scalar form", i, pt)
				return Route{}, false
			}
			binding.Position = paths
			paths++
		case FromBody:
			bodies++
		case FromContext:
			if pt != contextType {
				d.fail(element, "parameter %d is bound to ctx but has type %s", i, pt)
				return Route{}, false
			}
		}
		route.Bindings = append(route.Bindings, binding)
	}
	if paths != placeholders {
		d.fail(element, "template has %d placeholder(s) but %s binds %d path parameter(s)", placeholders, route.Handler, paths)
		return Route{}, false
	}
	if bodies > 1 {
		d.fail(element, "%s binds %d body parameters, at most one is allowed", route.Handler, bodies)
		return Route{}, false
	}

	switch {
	case mt.NumOut() == 0:
	case mt.NumOut() == 1 && mt.Out(0) == errorType:
		route.ReturnsError = true
	case mt.NumOut() == 1:
		route.ReturnsValue = true
	case mt.NumOut() == 2 && mt.Out(1) == errorType:
		route.ReturnsValue = true
		route.ReturnsError = true
	default:
		d.fail(element, "handlers must return nothing, a value, an error, or (value, error)")
		return Route{}, false
	}
	return route, true
}

func (d *describer) describeBean(parsed *annotations.ParsedAnnotation) (Bean, bool) {
	name := parsed.GetString("Method")
	m, ok := d.method("bean", name)
	if !ok {
		return Bean{}, false
	}
	mt := m.Type
	bean := Bean{Method: m}

	switch {
	case mt.NumOut() == 1 && mt.Out(0) != errorType:
	case mt.NumOut() == 2 && mt.Out(0) != errorType && mt.Out(1) == errorType:
		bean.ReturnsError = true
	default:
		d.fail("bean "+name, "bean methods must return a value or (value, error)")
		return Bean{}, false
	}
	bean.Result = mt.Out(0)

	for i := 1; i < mt.NumIn(); i++ {
		if _, deferred := DeferredTarget(mt.In(i)); deferred {
			d.fail("bean "+name, "bean parameters cannot be deferred references")
			return Bean{}, false
		}
		bean.Params = append(bean.Params, mt.In(i))
	}
	return bean, true
}

func (d *describer) describeListener(parsed *annotations.ParsedAnnotation) (Listener, bool) {
	name := parsed.GetString("Method")
	m, ok := d.method("listener", name)
	if !ok {
		return Listener{}, false
	}
	mt := m.Type
	if mt.NumIn() != 2 {
		d.fail("listener "+name, "listener methods must take exactly one parameter, %s takes %d", name, mt.NumIn()-1)
		return Listener{}, false
	}
	if mt.NumOut() > 1 {
		d.fail("listener "+name, "listener methods return at most one value")
		return Listener{}, false
	}

	listener := Listener{Method: m, Event: mt.In(1)}
	if mt.NumOut() == 1 {
		listener.Returns = mt.Out(0)
	}
	return listener, true
}

func (d *describer) describeInit(parsed *annotations.ParsedAnnotation) *Hook {
	name := ""
	switch {
	case parsed != nil:
		name = parsed.GetString("Method")
	case d.decl.Type.Implements(initializerType):
		name = "Init"
	default:
		return nil
	}

	m, ok := d.method("init", name)
	if !ok {
		return nil
	}
	mt := m.Type
	hook := &Hook{Method: m}
	switch {
	case mt.NumIn() != 1:
		d.fail("init "+name, "init methods take no parameters")
		return nil
	case mt.NumOut() == 0:
	case mt.NumOut() == 1 && mt.Out(0) == errorType:
		hook.ReturnsError = true
	default:
		d.fail("init "+name, "init methods return nothing or an error")
		return nil
	}
	return hook
}
