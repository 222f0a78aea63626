package convert

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
)

// StringConvertible reports whether values of t can be used as document keys
func StringConvertible(t reflect.Type) bool {
	if isTextType(t) {
		return true
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// KeyString renders a map key as a document key
func KeyString(v reflect.Value) (string, error) {
	t := v.Type()
	if t.Kind() != reflect.String && isTextType(t) {
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return "", wrap(t, v.Interface(), err)
		}
		return string(text), nil
	}

	switch t.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, t.Bits()), nil
	default:
		return "", &ConversionError{Type: t, Err: fmt.Errorf("%s is not a valid map key type", t)}
	}
}

// ParseKey converts a document key back into a map key of type t
func ParseKey(s string, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()

	if t.Kind() != reflect.String && isTextType(t) {
		if err := out.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return reflect.Value{}, wrap(t, s, err)
		}
		return out, nil
	}

	switch t.Kind() {
	case reflect.String:
		out.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return reflect.Value{}, wrap(t, s, err)
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, wrap(t, s, err)
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, wrap(t, s, err)
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, wrap(t, s, err)
		}
		out.SetFloat(f)
	default:
		return reflect.Value{}, &ConversionError{Type: t, Value: s, Err: fmt.Errorf("%s is not a valid map key type", t)}
	}
	return out, nil
}
