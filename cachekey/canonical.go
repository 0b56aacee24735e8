package cachekey

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// ErrInvalidArgument is returned when an argument has no stable canonical form.
var ErrInvalidArgument = errors.New("invalid argument")

var (
	typeString = reflect.TypeOf("")
	typeInt    = reflect.TypeOf(0)
	typeBool   = reflect.TypeOf(false)
)

// canonical renders v in a form that is equal for equal values across
// processes. Named types are qualified by their full import path, so two
// packages with the same name never share a form. Stringers win over
// everything but nil pointers, like the tableKey fallback of the Tableize
// helpers this package grew out of.
func canonical(v any) (string, error) {
	if v == nil {
		return "nil", nil
	}

	rv := reflect.ValueOf(v)
	t := rv.Type()
	if t.Kind() == reflect.Pointer && rv.IsNil() {
		return "(" + typeName(t) + ")(nil)", nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		str, err := stringOf(s)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrInvalidArgument, typeName(t), err)
		}
		return typeName(t) + "(" + strconv.Quote(str) + ")", nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		inner, err := canonical(rv.Elem().Interface())
		if err != nil {
			return "", err
		}
		return "&" + inner, nil

	case reflect.Struct, reflect.Array:
		if !plain(t) {
			return "", fmt.Errorf("%w: %s holds reference values", ErrInvalidArgument, typeName(t))
		}
		return typeName(t) + bare(rv), nil

	case reflect.String, reflect.Int, reflect.Bool:
		if t == typeString || t == typeInt || t == typeBool {
			return bare(rv), nil
		}
		return typeName(t) + "(" + bare(rv) + ")", nil

	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return typeName(t) + "(" + bare(rv) + ")", nil

	default:
		return "", fmt.Errorf("%w: %s is not hashable", ErrInvalidArgument, typeName(t))
	}
}

// stringOf calls String, turning a panic into an error.
func stringOf(s fmt.Stringer) (str string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("String panicked: %v", r)
		}
	}()
	return s.String(), nil
}

// typeName is like reflect.Type.String but qualifies named types by import
// path instead of package name.
func typeName(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeName(t.Elem())
	case reflect.Array:
		return "[" + strconv.Itoa(t.Len()) + "]" + typeName(t.Elem())
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	case reflect.Map:
		return "map[" + typeName(t.Key()) + "]" + typeName(t.Elem())
	case reflect.Struct:
		fields := make([]string, t.NumField())
		for i := range fields {
			f := t.Field(i)
			fields[i] = f.Name + " " + typeName(f.Type)
		}
		return "struct{" + strings.Join(fields, "; ") + "}"
	default:
		return t.String()
	}
}

// bare renders a plain value without its type. The enclosing type already
// fixes the types of struct fields and array elements.
func bare(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.String:
		return strconv.Quote(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, rv.Type().Bits())
	case reflect.Complex64, reflect.Complex128:
		return strconv.FormatComplex(rv.Complex(), 'g', -1, rv.Type().Bits())
	case reflect.Array:
		elems := make([]string, rv.Len())
		for i := range elems {
			elems[i] = bare(rv.Index(i))
		}
		return "{" + strings.Join(elems, ", ") + "}"
	case reflect.Struct:
		t := rv.Type()
		fields := make([]string, t.NumField())
		for i := range fields {
			fields[i] = t.Field(i).Name + ":" + bare(rv.Field(i))
		}
		return "{" + strings.Join(fields, ", ") + "}"
	default:
		// unreachable for types accepted by plain
		return rv.Type().String()
	}
}

// plain reports whether every value reachable from t is stored inline, so
// the rendered form holds content rather than addresses.
func plain(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return plain(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !plain(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
