package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/goccy/go-json"

	"github.com/toyz/loom/internal/coerce"
	"github.com/toyz/loom/internal/descriptor"
	"github.com/toyz/loom/internal/errors"
)

// binding is a descriptor.Binding with its parser looked up once
type binding struct {
	source   descriptor.BindingSource
	position int
	typ      reflect.Type
	parse    coerce.Parser
}

// Handler is a compiled route target: a bound method value plus the
// per-parameter conversions needed to call it
type Handler struct {
	Name         string // e.g. *blog.PostController.Get
	method       reflect.Value
	bindings     []binding
	returnsValue bool
	returnsError bool
}

// Compile binds route to instance. All type inspection happens here so
// serving a request only converts values and calls the method.
func Compile(component *descriptor.Component, instance any, route descriptor.Route) (*Handler, error) {
	name := component.Name + "." + route.Handler

	receiver := reflect.ValueOf(instance)
	if !receiver.IsValid() {
		return nil, errors.NewDescriptorError(component.Name, "cannot compile %s without an instance", name)
	}
	method := receiver.MethodByName(route.Handler)
	if !method.IsValid() {
		return nil, errors.NewDescriptorError(component.Name, "instance of %s has no method %s", receiver.Type(), route.Handler).
			WithElement("route " + route.Handler)
	}

	h := &Handler{
		Name:         name,
		method:       method,
		returnsValue: route.ReturnsValue,
		returnsError: route.ReturnsError,
	}
	for _, b := range route.Bindings {
		compiled := binding{source: b.Source, position: b.Position, typ: b.Type}
		if b.Source == descriptor.FromPath {
			parse, ok := coerce.For(b.Type)
			if !ok {
				return nil, errors.NewDescriptorError(component.Name, "path parameter of %s has type %s, which has no scalar form", name, b.Type)
			}
			compiled.parse = parse
		}
		h.bindings = append(h.bindings, compiled)
	}
	return h, nil
}

// bind converts request values into call arguments
func (h *Handler) bind(ctx context.Context, values []string, body []byte) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(h.bindings))
	for i, b := range h.bindings {
		switch b.source {
		case descriptor.FromContext:
			args[i] = reflect.ValueOf(&ctx).Elem()

		case descriptor.FromPath:
			if b.position >= len(values) {
				return nil, errors.NewArgumentCoercionError("", b.typ.String(),
					fmt.Errorf("no path value at position %d", b.position)).AtParameter(i)
			}
			raw := values[b.position]
			v, err := b.parse(raw)
			if err != nil {
				return nil, errors.NewArgumentCoercionError(raw, b.typ.String(), err).AtParameter(i)
			}
			args[i] = v

		case descriptor.FromBody:
			v, err := decodeBody(body, b.typ)
			if err != nil {
				return nil, errors.NewArgumentCoercionError(preview(body), b.typ.String(), err).AtParameter(i)
			}
			args[i] = v
		}
	}
	return args, nil
}

// decodeBody unmarshals body into a new value of t; an empty body yields the zero value
func decodeBody(body []byte, t reflect.Type) (reflect.Value, error) {
	target := reflect.New(t)
	if len(bytes.TrimSpace(body)) == 0 {
		return target.Elem(), nil
	}
	if err := json.Unmarshal(body, target.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return target.Elem(), nil
}

// invoke calls the method, turning a returned error or a panic into an InvocationError
func (h *Handler) invoke(args []reflect.Value) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = nil
			err = errors.NewPanicInvocationError(h.Name, recovered)
		}
	}()

	out := h.method.Call(args)

	if h.returnsError {
		if errValue := out[len(out)-1]; !errValue.IsNil() {
			return nil, errors.NewInvocationError(h.Name, errValue.Interface().(error))
		}
	}
	if h.returnsValue {
		return out[0].Interface(), nil
	}
	return nil, nil
}

// encode serializes a handler result; marshalers that panic are reported
// like a panicking handler
func (h *Handler) encode(value any) (payload []byte, status int, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			payload, status = nil, 0
			err = errors.NewPanicInvocationError(h.Name, recovered)
		}
	}()

	payload, status, err = serialize(value, h.returnsValue)
	if err != nil {
		return nil, 0, errors.NewInvocationError(h.Name, errors.Wrap(errors.InvocationErrorCode, "cannot serialize response", err))
	}
	return payload, status, nil
}

// preview shortens body for error details without splitting a rune
func preview(body []byte) string {
	const max = 64
	if len(body) <= max {
		return string(body)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
