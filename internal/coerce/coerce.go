// Package coerce converts raw request and configuration strings into typed values.
package coerce

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/toyz/loom/internal/errors"
)

// Char is a path value that must be exactly one character long
type Char rune

// String returns the character as a string
func (c Char) String() string {
	return string(rune(c))
}

// Parser converts a raw string into a value of its target type
type Parser func(raw string) (reflect.Value, error)

var (
	charType            = reflect.TypeOf(Char(0))
	uuidType            = reflect.TypeOf(uuid.UUID{})
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// For returns the parser for t. The second result is false when t has no scalar form.
func For(t reflect.Type) (Parser, bool) {
	if t == nil {
		return nil, false
	}

	switch {
	case t == charType:
		return parseChar, true
	case t == uuidType:
		return parseUUID, true
	case reflect.PointerTo(t).Implements(textUnmarshalerType):
		return textParser(t), true
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(raw string) (reflect.Value, error) {
			n, err := strconv.ParseInt(raw, 10, t.Bits())
			if err != nil {
				return reflect.Value{}, err
			}
			v := reflect.New(t).Elem()
			v.SetInt(n)
			return v, nil
		}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(raw string) (reflect.Value, error) {
			n, err := strconv.ParseUint(raw, 10, t.Bits())
			if err != nil {
				return reflect.Value{}, err
			}
			v := reflect.New(t).Elem()
			v.SetUint(n)
			return v, nil
		}, true
	case reflect.Float32, reflect.Float64:
		return func(raw string) (reflect.Value, error) {
			f, err := strconv.ParseFloat(raw, t.Bits())
			if err != nil {
				return reflect.Value{}, err
			}
			v := reflect.New(t).Elem()
			v.SetFloat(f)
			return v, nil
		}, true
	case reflect.Bool:
		return func(raw string) (reflect.Value, error) {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return reflect.Value{}, err
			}
			v := reflect.New(t).Elem()
			v.SetBool(b)
			return v, nil
		}, true
	case reflect.String:
		return func(raw string) (reflect.Value, error) {
			v := reflect.New(t).Elem()
			v.SetString(raw)
			return v, nil
		}, true
	}
	return nil, false
}

// Supported reports whether t has a scalar parser
func Supported(t reflect.Type) bool {
	_, ok := For(t)
	return ok
}

// Value converts raw to t. Failures are *errors.ArgumentCoercionError.
func Value(raw string, t reflect.Type) (reflect.Value, error) {
	parse, ok := For(t)
	if !ok {
		return reflect.Value{}, errors.NewArgumentCoercionError(raw, typeName(t), fmt.Errorf("no scalar conversion for %s", typeName(t)))
	}
	v, err := parse(raw)
	if err != nil {
		return reflect.Value{}, errors.NewArgumentCoercionError(raw, typeName(t), err)
	}
	return v, nil
}

// To converts raw to T
func To[T any](raw string) (T, error) {
	var zero T
	v, err := Value(raw, reflect.TypeOf(&zero).Elem())
	if err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}

func parseChar(raw string) (reflect.Value, error) {
	if utf8.RuneCountInString(raw) != 1 {
		return reflect.Value{}, fmt.Errorf("expected exactly one character, got %d", utf8.RuneCountInString(raw))
	}
	r, _ := utf8.DecodeRuneInString(raw)
	return reflect.ValueOf(Char(r)), nil
}

func parseUUID(raw string) (reflect.Value, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(id), nil
}

func textParser(t reflect.Type) Parser {
	return func(raw string) (reflect.Value, error) {
		ptr := reflect.New(t)
		if err := ptr.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw)); err != nil {
			return reflect.Value{}, err
		}
		return ptr.Elem(), nil
	}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
