package wire

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Encode renders an arbitrary native value in wire form. The second
// return is false when the value's runtime type has no defined
// encoding; a containing object drops the field and a top-level caller
// treats the value as unrepresentable.
//
// Pointers and interfaces unwrap fully, so optionality never nests: a
// non-nil pointer to a nil pointer still encodes as null.
func Encode(v any) (string, bool) {
	if v == nil {
		return "null", true
	}
	if wv, ok := v.(Value); ok {
		return wv.String(), true
	}
	var b strings.Builder
	if !encodeReflect(&b, reflect.ValueOf(v)) {
		return "", false
	}
	return b.String(), true
}

var (
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
	valueType    = reflect.TypeOf(Value{})
)

func encodeReflect(b *strings.Builder, rv reflect.Value) bool {
	if !rv.IsValid() {
		b.WriteString("null")
		return true
	}

	t := rv.Type()

	if t == valueType {
		rv.Interface().(Value).render(b)
		return true
	}

	// Named integer types with a String method are enumerations without
	// a stringable raw value: the case name is the encoding. Named
	// types whose underlying type is numeric or string and that carry
	// no String method fall through to the raw value's own encoding.
	if t.PkgPath() != "" && t.Implements(stringerType) && isIntegerKind(t.Kind()) {
		writeQuoted(b, rv.Interface().(fmt.Stringer).String())
		return true
	}

	switch t.Kind() {
	case reflect.Bool:
		if rv.Bool() {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return true

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(rv.Int(), 10))
		return true

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		b.WriteString(strconv.FormatUint(rv.Uint(), 10))
		return true

	case reflect.Float32:
		b.WriteString(formatFloat(rv.Float(), 32))
		return true

	case reflect.Float64:
		b.WriteString(formatNumber(rv.Float()))
		return true

	case reflect.String:
		s := rv.String()
		if !utf8.ValidString(s) {
			// Broken code units have no wire representation.
			return false
		}
		writeQuoted(b, s)
		return true

	case reflect.Slice:
		if rv.IsNil() {
			b.WriteString("null")
			return true
		}
		if t.Elem().Kind() == reflect.Uint8 && t.Elem().PkgPath() == "" {
			writeBytes(b, rv.Bytes())
			return true
		}
		return encodeSequence(b, rv)

	case reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 && t.Elem().PkgPath() == "" {
			buf := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(buf), rv)
			writeBytes(b, buf)
			return true
		}
		return encodeSequence(b, rv)

	case reflect.Map:
		if rv.IsNil() {
			b.WriteString("null")
			return true
		}
		if t.Key().Kind() != reflect.String {
			return false
		}
		return encodeMap(b, rv)

	case reflect.Struct:
		return encodeStruct(b, rv)

	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			b.WriteString("null")
			return true
		}
		return encodeReflect(b, rv.Elem())

	default:
		// func, chan, complex, unsafe.Pointer: no defined encoding.
		return false
	}
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func encodeSequence(b *strings.Builder, rv reflect.Value) bool {
	b.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		var eb strings.Builder
		if encodeReflect(&eb, rv.Index(i)) {
			b.WriteString(eb.String())
		} else {
			// Position matters inside a sequence; an unrepresentable
			// element degrades to null rather than shifting siblings.
			b.WriteString("null")
		}
	}
	b.WriteByte(']')
	return true
}

func encodeMap(b *strings.Builder, rv reflect.Value) bool {
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	b.WriteByte('{')
	first := true
	for _, k := range keys {
		var eb strings.Builder
		if !encodeReflect(&eb, rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()))) {
			// Unrepresentable entry: the key is dropped, siblings stay.
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		writeQuoted(b, k)
		b.WriteByte(':')
		b.WriteString(eb.String())
	}
	b.WriteByte('}')
	return true
}

func encodeStruct(b *strings.Builder, rv reflect.Value) bool {
	t := rv.Type()
	b.WriteByte('{')
	first := true
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue // unexported
		}
		var eb strings.Builder
		if !encodeReflect(&eb, rv.Field(i)) {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		writeQuoted(b, f.Name)
		b.WriteByte(':')
		b.WriteString(eb.String())
	}
	b.WriteByte('}')
	return true
}

func writeBytes(b *strings.Builder, data []byte) {
	b.WriteByte('[')
	for i, by := range data {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(by)))
	}
	b.WriteByte(']')
}

// Non-finite number tokens. The script side recognizes these as the
// matching non-finite doubles; null is never an acceptable substitute.
const (
	tokenInfinity    = "Infinity"
	tokenNegInfinity = "-Infinity"
	tokenNaN         = "NaN"
	tokenUndefined   = "undefined"
)

func formatNumber(f float64) string {
	return formatFloat(f, 64)
}

// formatFloat renders with the precision of the original width, so a
// float32 does not drag its conversion error into the text.
func formatFloat(f float64, bits int) string {
	switch {
	case math.IsInf(f, 1):
		return tokenInfinity
	case math.IsInf(f, -1):
		return tokenNegInfinity
	case math.IsNaN(f):
		return tokenNaN
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

const hexDigits = "0123456789abcdef"

// writeQuoted writes s double-quoted with JSON escaping: quote,
// backslash, \b \t \n \f \r, remaining C0 controls as \u00xx. Bytes at
// or above 0x20 pass through unchanged.
func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			b.WriteString(`\"`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\b':
			b.WriteString(`\b`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\f':
			b.WriteString(`\f`)
		case c == '\r':
			b.WriteString(`\r`)
		case c < 0x20:
			b.WriteString(`\u00`)
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xF])
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
