// Package wire implements the textual value representation exchanged
// between the native side and the script context.
//
// The grammar is a strict superset of JSON: it adds a literal
// `undefined` token (distinct from `null`, representing a void result)
// and the non-finite number tokens `Infinity`, `-Infinity` and `NaN`.
package wire

import (
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindUndefined
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
	KindBinary
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindBinary:
		return "binary"
	default:
		return "invalid"
	}
}

// Value is the tagged variant for wire data. The zero Value is null.
//
// Optionality never nests in the wire form: an absent value is either
// null (no value) or undefined (no result), and nested wrapping on the
// native side flattens before a Value is built.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	arr  []Value
	keys []string
	obj  map[string]Value
	bin  []byte
}

// Predefined values.
var (
	Null      = Value{kind: KindNull}
	Undefined = Value{kind: KindUndefined}
	True      = Value{kind: KindBool, b: true}
	False     = Value{kind: KindBool, b: false}
)

// Bool builds a boolean value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number builds a number value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String builds a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array builds an array value from elements.
func Array(elems ...Value) Value { return Value{kind: KindArray, arr: elems} }

// Binary builds a binary value. The bytes are rendered as an array of
// unsigned byte numbers in storage order.
func Binary(b []byte) Value { return Value{kind: KindBinary, bin: b} }

// NewObject builds an empty object value.
func NewObject() Value {
	return Value{kind: KindObject, obj: make(map[string]Value)}
}

// Set adds or replaces a field on an object value, preserving insertion
// order for new keys. Calling Set on a non-object is a no-op.
func (v *Value) Set(key string, val Value) {
	if v.kind != KindObject {
		return
	}
	if _, ok := v.obj[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.obj[key] = val
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsUndefined reports whether the value is the undefined (void) value.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// AsBool returns the boolean payload. Valid only for KindBool.
func (v Value) AsBool() bool { return v.b }

// AsNumber returns the numeric payload. Valid only for KindNumber.
func (v Value) AsNumber() float64 { return v.num }

// AsString returns the string payload. Valid only for KindString.
func (v Value) AsString() string { return v.str }

// Items returns the elements of an array value.
func (v Value) Items() []Value { return v.arr }

// Len returns the element count for arrays, fields for objects and
// bytes for binary values; zero otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return len(v.keys)
	case KindBinary:
		return len(v.bin)
	}
	return 0
}

// Keys returns an object's field names in insertion order.
func (v Value) Keys() []string { return v.keys }

// Get returns an object's field by name.
func (v Value) Get(key string) (Value, bool) {
	val, ok := v.obj[key]
	return val, ok
}

// Bytes returns the binary payload. Valid only for KindBinary.
func (v Value) Bytes() []byte { return v.bin }

// Native converts the value into plain Go data: nil, bool, float64,
// string, []any, map[string]any or []byte. The undefined value maps to
// the Undefined sentinel so callers can tell it apart from nil.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindUndefined:
		return Undefined
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Native()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Native()
		}
		return out
	case KindBinary:
		return append([]byte(nil), v.bin...)
	default:
		return nil
	}
}

// String renders the value in wire form.
func (v Value) String() string {
	var b strings.Builder
	v.render(&b)
	return b.String()
}

func (v Value) render(b *strings.Builder) {
	switch v.kind {
	case KindNull:
		b.WriteString("null")
	case KindUndefined:
		b.WriteString("undefined")
	case KindBool:
		if v.b {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case KindNumber:
		b.WriteString(formatNumber(v.num))
	case KindString:
		writeQuoted(b, v.str)
	case KindArray:
		b.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				b.WriteByte(',')
			}
			e.render(b)
		}
		b.WriteByte(']')
	case KindObject:
		b.WriteByte('{')
		keys := v.keys
		if keys == nil {
			keys = make([]string, 0, len(v.obj))
			for k := range v.obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
		}
		first := true
		for _, k := range keys {
			if !first {
				b.WriteByte(',')
			}
			first = false
			writeQuoted(b, k)
			b.WriteByte(':')
			v.obj[k].render(b)
		}
		b.WriteByte('}')
	case KindBinary:
		b.WriteByte('[')
		for i, by := range v.bin {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(int(by)))
		}
		b.WriteByte(']')
	}
}
