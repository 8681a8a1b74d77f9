package bridge

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/norgard/gangplank/wire"
)

// ReflectDescriber is the default reflection capability: it exposes a
// plugin's exported methods as script methods and its exported struct
// fields as script properties. Go method names become lowerCamel
// script names unless the class overrides them via MemberRenamer.
//
// Method shapes supported: any fixed-arity signature whose results are
// empty, (T), (error) or (T, error). An optional leading
// context.Context parameter receives the dispatch context instead of a
// script argument. Variadic methods and other result shapes are not
// exposed.
type ReflectDescriber struct{}

var (
	errType = reflect.TypeOf((*error)(nil)).Elem()
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// Hook selectors are bridge plumbing, never exposed to script.
var hookSelectors = map[string]bool{
	"ExcludeFromScript":  true,
	"ScriptNameFor":      true,
	"AwakeFromScript":    true,
	"FinalizeFromScript": true,
}

// Describe builds the exposure descriptor for a plugin value.
func (ReflectDescriber) Describe(plugin any) (*Descriptor, error) {
	rv := reflect.ValueOf(plugin)
	if !rv.IsValid() {
		return nil, fmt.Errorf("bridge: cannot describe nil plugin")
	}
	t := rv.Type()

	d := &Descriptor{
		ClassName:  className(t),
		Methods:    make(map[string]Method),
		Properties: make(map[string]Property),
	}

	excluder, _ := plugin.(MemberExcluder)
	renamer, _ := plugin.(MemberRenamer)
	_, d.HasAwake = plugin.(Awaker)
	_, d.HasFinalize = plugin.(Finalizer)

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if hookSelectors[m.Name] {
			continue
		}
		if excluder != nil && excluder.ExcludeFromScript(m.Name) {
			continue
		}
		mt := m.Type
		if mt.IsVariadic() || !supportedResults(mt) {
			continue
		}

		name := lowerFirst(m.Name)
		constructor := false
		if renamer != nil {
			if n, ok := renamer.ScriptNameFor(m.Name); ok {
				if n == "" {
					constructor = true
				} else {
					name = n
				}
			}
		}

		inv, arity := makeInvoker(m)
		if constructor {
			d.Constructor = m.Name
			d.Construct = inv
			continue
		}
		d.Methods[name] = Method{Selector: m.Name, Name: name, Arity: arity, Invoke: inv}
	}

	describeFields(d, t, excluder, renamer)
	return d, nil
}

func className(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func supportedResults(mt reflect.Type) bool {
	switch mt.NumOut() {
	case 0, 1:
		return true
	case 2:
		return mt.Out(1) == errType
	}
	return false
}

// makeInvoker builds the typed invoker closure for one method. Built
// once per class at description time; dispatch never re-inspects
// types.
func makeInvoker(m reflect.Method) (Invoker, int) {
	mt := m.Type
	params := make([]reflect.Type, 0, mt.NumIn()-1)
	for i := 1; i < mt.NumIn(); i++ { // In(0) is the receiver
		params = append(params, mt.In(i))
	}
	wantsCtx := len(params) > 0 && params[0] == ctxType
	arity := len(params)
	if wantsCtx {
		arity--
	}

	inv := func(ctx context.Context, target any, args []wire.Value) (any, error) {
		if len(args) != arity {
			return nil, errTypeMismatch(m.Name,
				fmt.Errorf("want %d arguments, got %d", arity, len(args)))
		}

		callArgs := make([]reflect.Value, 0, len(params)+1)
		callArgs = append(callArgs, reflect.ValueOf(target))
		next := 0
		for _, pt := range params {
			if pt == ctxType {
				callArgs = append(callArgs, reflect.ValueOf(ctx))
				continue
			}
			av, err := wire.Coerce(args[next], pt)
			if err != nil {
				return nil, errTypeMismatch(m.Name, err)
			}
			callArgs = append(callArgs, av)
			next++
		}

		return splitResults(m.Name, m.Func.Call(callArgs))
	}
	return inv, arity
}

// splitResults maps a method's return values onto (result, error).
// A method with no value result yields the undefined value, which
// encodes as the literal undefined token, distinct from null.
func splitResults(member string, out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return wire.Undefined, nil
	case 1:
		if out[0].Type() == errType {
			if !out[0].IsNil() {
				return nil, errNative(member, out[0].Interface().(error))
			}
			return wire.Undefined, nil
		}
		return out[0].Interface(), nil
	default:
		if !out[1].IsNil() {
			return nil, errNative(member, out[1].Interface().(error))
		}
		return out[0].Interface(), nil
	}
}

// describeFields exposes exported struct fields as properties. Fields
// are settable only when the plugin is addressable through a pointer.
func describeFields(d *Descriptor, t reflect.Type, excluder MemberExcluder, renamer MemberRenamer) {
	settable := false
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
		settable = true
	}
	if st.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.PkgPath != "" || f.Anonymous {
			continue
		}
		if excluder != nil && excluder.ExcludeFromScript(f.Name) {
			continue
		}
		scriptName := lowerFirst(f.Name)
		if renamer != nil {
			if n, ok := renamer.ScriptNameFor(f.Name); ok && n != "" {
				scriptName = n
			}
		}
		idx := f.Index
		ft := f.Type
		canSet := settable

		prop := Property{
			Name:     scriptName,
			Gettable: true,
			Settable: canSet,
			Get: func(target any) (any, error) {
				fv := reflect.Indirect(reflect.ValueOf(target)).FieldByIndex(idx)
				return fv.Interface(), nil
			},
		}
		if canSet {
			name := f.Name
			prop.Set = func(target any, v wire.Value) error {
				av, err := wire.Coerce(v, ft)
				if err != nil {
					return errTypeMismatch(name, err)
				}
				reflect.Indirect(reflect.ValueOf(target)).FieldByIndex(idx).Set(av)
				return nil
			}
		}
		d.Properties[prop.Name] = prop
	}
}
