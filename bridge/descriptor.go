package bridge

import (
	"context"

	"github.com/norgard/gangplank/wire"
)

// Invoker executes one native member on a target instance with decoded
// arguments. Implementations coerce arguments before touching the
// native member, so a mismatch fails the call with no side effects.
type Invoker func(ctx context.Context, target any, args []wire.Value) (any, error)

// Method is one exposed native method.
type Method struct {
	Selector string // native dispatch key
	Name     string // script-visible name
	Arity    int
	Invoke   Invoker
}

// Property is one exposed native property. Get and Set are nil when
// the corresponding direction is not available.
type Property struct {
	Name     string
	Gettable bool
	Settable bool
	Get      func(target any) (any, error)
	Set      func(target any, v wire.Value) error
}

// Descriptor is the per-class exposure metadata produced by a
// Describer. It is built once per plugin class and immutable after
// construction; all instances of the class share it.
type Descriptor struct {
	ClassName   string
	Methods     map[string]Method // keyed by script-visible name
	Properties  map[string]Property
	Constructor string // selector designated as constructor; empty means not constructible
	Construct   Invoker
	HasAwake    bool
	HasFinalize bool
}

// Describer is the reflection capability the bridge consumes. The
// bridge core never performs introspection itself; hosts with other
// reflection facilities supply their own implementation.
type Describer interface {
	Describe(plugin any) (*Descriptor, error)
}

// MemberExcluder lets a plugin class exclude a native member from
// script exposure.
type MemberExcluder interface {
	ExcludeFromScript(selector string) bool
}

// MemberRenamer lets a plugin class override the script-visible name
// for a native selector. Returning ok=false keeps the default naming;
// returning an empty name with ok=true maps that selector to the
// class's constructor function.
type MemberRenamer interface {
	ScriptNameFor(selector string) (name string, ok bool)
}

// Awaker is invoked after an instance becomes visible to script.
type Awaker interface {
	AwakeFromScript()
}

// Finalizer is invoked when an instance's script handle is disposed.
type Finalizer interface {
	FinalizeFromScript()
}
