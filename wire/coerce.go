package wire

import (
	"fmt"
	"math"
	"reflect"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// Coerce converts a decoded Value into the given native type. A
// mismatch between the value's kind and the target type is an error,
// never a silent conversion; the single exception is the empty
// interface, which receives the value's plain Go form untyped.
func Coerce(v Value, t reflect.Type) (reflect.Value, error) {
	if t == valueType {
		return reflect.ValueOf(v), nil
	}
	if t == anyType {
		n := v.Native()
		if n == nil {
			return reflect.Zero(t), nil
		}
		return reflect.ValueOf(n), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		if v.IsNull() || v.IsUndefined() {
			return reflect.Zero(t), nil
		}
		elem, err := Coerce(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(t.Elem())
		out.Elem().Set(elem)
		return out, nil

	case reflect.Bool:
		if v.Kind() != KindBool {
			return reflect.Value{}, mismatch(v, t)
		}
		return reflect.ValueOf(v.AsBool()).Convert(t), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f, err := integral(v, t)
		if err != nil {
			return reflect.Value{}, err
		}
		i := int64(f)
		if reflect.Zero(t).OverflowInt(i) {
			return reflect.Value{}, fmt.Errorf("wire: number %v overflows %s", f, t)
		}
		out := reflect.New(t).Elem()
		out.SetInt(i)
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f, err := integral(v, t)
		if err != nil {
			return reflect.Value{}, err
		}
		if f < 0 {
			return reflect.Value{}, fmt.Errorf("wire: negative number %v for %s", f, t)
		}
		u := uint64(f)
		if reflect.Zero(t).OverflowUint(u) {
			return reflect.Value{}, fmt.Errorf("wire: number %v overflows %s", f, t)
		}
		out := reflect.New(t).Elem()
		out.SetUint(u)
		return out, nil

	case reflect.Float32, reflect.Float64:
		if v.Kind() != KindNumber {
			return reflect.Value{}, mismatch(v, t)
		}
		out := reflect.New(t).Elem()
		out.SetFloat(v.AsNumber())
		return out, nil

	case reflect.String:
		if v.Kind() != KindString {
			return reflect.Value{}, mismatch(v, t)
		}
		out := reflect.New(t).Elem()
		out.SetString(v.AsString())
		return out, nil

	case reflect.Slice:
		return coerceSlice(v, t)

	case reflect.Map:
		return coerceMap(v, t)

	case reflect.Struct:
		return coerceStruct(v, t)

	case reflect.Interface:
		// Non-empty interfaces cannot be produced from wire data.
		return reflect.Value{}, mismatch(v, t)

	default:
		return reflect.Value{}, mismatch(v, t)
	}
}

func mismatch(v Value, t reflect.Type) error {
	return fmt.Errorf("wire: cannot coerce %s to %s", v.Kind(), t)
}

func integral(v Value, t reflect.Type) (float64, error) {
	if v.Kind() != KindNumber {
		return 0, mismatch(v, t)
	}
	f := v.AsNumber()
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, fmt.Errorf("wire: number %v is not integral for %s", f, t)
	}
	return f, nil
}

func coerceSlice(v Value, t reflect.Type) (reflect.Value, error) {
	if v.IsNull() {
		return reflect.Zero(t), nil
	}
	if t.Elem().Kind() == reflect.Uint8 && t.Elem().PkgPath() == "" && v.Kind() == KindBinary {
		return reflect.ValueOf(append([]byte(nil), v.Bytes()...)).Convert(t), nil
	}
	if v.Kind() != KindArray {
		return reflect.Value{}, mismatch(v, t)
	}
	out := reflect.MakeSlice(t, v.Len(), v.Len())
	for i, e := range v.Items() {
		ev, err := Coerce(e, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(ev)
	}
	return out, nil
}

func coerceMap(v Value, t reflect.Type) (reflect.Value, error) {
	if v.IsNull() {
		return reflect.Zero(t), nil
	}
	if t.Key().Kind() != reflect.String || v.Kind() != KindObject {
		return reflect.Value{}, mismatch(v, t)
	}
	out := reflect.MakeMapWithSize(t, v.Len())
	for _, k := range v.Keys() {
		field, _ := v.Get(k)
		fv, err := Coerce(field, t.Elem())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("key %q: %w", k, err)
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), fv)
	}
	return out, nil
}

func coerceStruct(v Value, t reflect.Type) (reflect.Value, error) {
	if v.Kind() != KindObject {
		return reflect.Value{}, mismatch(v, t)
	}
	out := reflect.New(t).Elem()
	for _, k := range v.Keys() {
		f, ok := t.FieldByName(k)
		if !ok || f.PkgPath != "" {
			return reflect.Value{}, fmt.Errorf("wire: no field %q on %s", k, t)
		}
		field, _ := v.Get(k)
		fv, err := Coerce(field, f.Type)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("field %q: %w", k, err)
		}
		out.FieldByIndex(f.Index).Set(fv)
	}
	return out, nil
}
