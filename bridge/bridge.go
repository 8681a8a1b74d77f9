// Package bridge connects a native object model to a script execution
// context: registered plugins expose methods and properties that
// script can call and read as if they were script objects, and native
// code can evaluate script synchronously from any goroutine.
package bridge

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/norgard/gangplank/script"
	"github.com/norgard/gangplank/wire"
)

// Engine is the hosting script engine's contract. The engine parses
// and executes script; the bridge only hands it expressions and stub
// skeletons. Both methods are invoked on the bridge's shared context,
// which models the engine's single logical thread.
type Engine interface {
	// Evaluate runs a script expression and returns its result in
	// wire form.
	Evaluate(ctx context.Context, expr string) (string, error)

	// Inject installs a stub skeleton under the given namespace.
	Inject(ctx context.Context, namespace, stub string) error
}

// ThreadMode selects the execution context an instance is bound to.
type ThreadMode string

const (
	// ThreadShared runs the instance on the engine's shared context.
	ThreadShared ThreadMode = "shared"
	// ThreadDedicated gives the instance a private single-threaded
	// context, isolating it from load on the shared one.
	ThreadDedicated ThreadMode = "dedicated"
)

// DefaultTimeout bounds blocking dispatch waits unless overridden.
const DefaultTimeout = 30 * time.Second

// Bridge ties the dispatch channel, the instance registry and the
// hosting engine together.
type Bridge struct {
	engine    Engine
	describer Describer
	shared    *Context
	registry  *Registry
	timeout   time.Duration
	log       commonlog.Logger

	mu    sync.Mutex
	descs map[reflect.Type]*Descriptor
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithDescriber replaces the default reflection capability.
func WithDescriber(d Describer) Option {
	return func(b *Bridge) { b.describer = d }
}

// WithDefaultTimeout sets the blocking-wait bound for dispatched
// calls. Zero disables the bound.
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.timeout = d }
}

// New creates a Bridge wrapping the given engine and starts its shared
// execution context.
func New(engine Engine, opts ...Option) *Bridge {
	b := &Bridge{
		engine:    engine,
		describer: ReflectDescriber{},
		registry:  NewRegistry(),
		timeout:   DefaultTimeout,
		log:       commonlog.GetLogger("gangplank.bridge"),
		descs:     make(map[reflect.Type]*Descriptor),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.shared = NewContext("shared")
	return b
}

// Stop shuts down the shared context and all dedicated ones.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := map[*Context]bool{b.shared: true}
	b.registry.mu.RLock()
	for _, inst := range b.registry.instances {
		if !seen[inst.ctx] {
			seen[inst.ctx] = true
			inst.ctx.Stop()
		}
	}
	b.registry.mu.RUnlock()
	b.shared.Stop()
}

// Registry exposes the instance registry.
func (b *Bridge) Registry() *Registry { return b.registry }

// RegisterOptions configure one plugin load.
type RegisterOptions struct {
	Thread ThreadMode // defaults to ThreadShared
}

// Register loads a plugin under a script-visible namespace: builds or
// reuses its descriptor, creates the principal instance on its owning
// context, injects the script stub and invokes the awake hook.
func (b *Bridge) Register(plugin any, namespace string, opts RegisterOptions) (*Instance, error) {
	if namespace == "" {
		return nil, fmt.Errorf("bridge: namespace is required")
	}

	desc, err := b.describe(plugin)
	if err != nil {
		return nil, err
	}

	dedicated := opts.Thread == ThreadDedicated
	ctx := b.shared
	if dedicated {
		ctx = NewContext("plugin." + namespace)
	}

	inst := b.registry.Add(plugin, desc, ctx, namespace, true, dedicated)

	callCtx, cancel := b.callContext(context.Background())
	defer cancel()

	stub := script.Stub(stubSpec(inst))
	_, err = b.shared.Do(callCtx, func(ctx context.Context) (any, error) {
		return nil, b.engine.Inject(ctx, namespace, stub)
	})
	if err != nil {
		b.registry.Remove(inst.id)
		if dedicated {
			ctx.Stop()
		}
		return nil, fmt.Errorf("bridge: injecting stub for %q: %w", namespace, err)
	}

	b.runAwake(callCtx, inst)
	b.log.Infof("registered plugin %q as %q (instance #%d, %s)",
		desc.ClassName, namespace, inst.id, ctx.Name())
	return inst, nil
}

// describe builds or reuses the descriptor for a plugin's class.
func (b *Bridge) describe(plugin any) (*Descriptor, error) {
	t := reflect.TypeOf(plugin)

	b.mu.Lock()
	if d, ok := b.descs[t]; ok {
		b.mu.Unlock()
		return d, nil
	}
	b.mu.Unlock()

	d, err := b.describer.Describe(plugin)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.descs[t] = d
	b.mu.Unlock()
	return d, nil
}

// Eval evaluates a script expression synchronously from any goroutine.
// The expression runs on the shared context; the caller blocks until
// the engine replies or the deadline expires.
func (b *Bridge) Eval(ctx context.Context, expr string) (wire.Value, error) {
	callCtx, cancel := b.callContext(ctx)
	defer cancel()

	raw, err := b.shared.Do(callCtx, func(ctx context.Context) (any, error) {
		return b.engine.Evaluate(ctx, expr)
	})
	if err != nil {
		return wire.Null, err
	}
	return wire.Decode(raw.(string))
}

// CallMethod invokes an exposed method on an instance from native
// code, through the same serialization discipline script calls use.
func (b *Bridge) CallMethod(ctx context.Context, id uint64, member string, args []wire.Value) (string, error) {
	inst, ok := b.registry.Lookup(id)
	if !ok {
		return "", errNoSuchInstance(id)
	}
	return b.invokeMethod(ctx, inst, member, args)
}

// Construct creates a new instance of a registered class in response
// to a script constructor call. The class must have a designated
// constructor selector; otherwise construction is rejected.
func (b *Bridge) Construct(ctx context.Context, class string, args []wire.Value) (*Instance, error) {
	principal, ok := b.registry.Principal(class)
	if !ok {
		return nil, &Error{Code: CodeNoSuchInstance, Member: class}
	}
	desc := principal.desc
	if desc.Constructor == "" {
		return nil, &Error{Code: CodeNotConstructible, Member: class}
	}

	callCtx, cancel := b.callContext(ctx)
	defer cancel()

	obj, err := principal.ctx.Do(callCtx, func(ctx context.Context) (any, error) {
		return desc.Construct(ctx, principal.plugin, args)
	})
	if err != nil {
		return nil, err
	}
	if nilInstance(obj) {
		return nil, errNative(desc.Constructor, fmt.Errorf("constructor returned nil"))
	}

	inst := b.registry.Add(obj, desc, principal.ctx, "", false, principal.dedicated)
	b.runAwake(callCtx, inst)
	b.log.Debugf("constructed %s instance #%d", class, inst.id)
	return inst, nil
}

// Dispose retires an instance after its script handle becomes
// unreachable: the finalize hook runs on the owning context, the id is
// retired forever, and a dedicated context is stopped once its last
// instance is gone.
func (b *Bridge) Dispose(ctx context.Context, id uint64) error {
	inst, ok := b.registry.Remove(id)
	if !ok {
		return errNoSuchInstance(id)
	}

	if f, ok := inst.plugin.(Finalizer); ok {
		callCtx, cancel := b.callContext(ctx)
		defer cancel()
		_, _ = inst.ctx.Do(callCtx, func(ctx context.Context) (any, error) {
			f.FinalizeFromScript()
			return wire.Undefined, nil
		})
	}

	// A private context dies with its last instance, whichever
	// instance that turns out to be.
	if inst.ctx != b.shared && !b.registry.ContextInUse(inst.ctx) {
		inst.ctx.Stop()
	}
	b.log.Debugf("disposed instance #%d", id)
	return nil
}

// nilInstance reports whether a constructor produced no instance,
// either as a bare nil or as a typed nil inside the interface.
func nilInstance(obj any) bool {
	if obj == nil {
		return true
	}
	switch rv := reflect.ValueOf(obj); rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

func (b *Bridge) invokeMethod(ctx context.Context, inst *Instance, member string, args []wire.Value) (string, error) {
	m, ok := inst.desc.Methods[member]
	if !ok {
		return "", errNoSuchMember(member)
	}

	callCtx, cancel := b.callContext(ctx)
	defer cancel()

	result, err := inst.ctx.Do(callCtx, func(ctx context.Context) (any, error) {
		return m.Invoke(ctx, inst.plugin, args)
	})
	if err != nil {
		return "", err
	}
	return encodeResult(member, result)
}

func (b *Bridge) getProperty(ctx context.Context, inst *Instance, name string) (string, error) {
	p, ok := inst.desc.Properties[name]
	if !ok || !p.Gettable {
		return "", errNoSuchMember(name)
	}

	callCtx, cancel := b.callContext(ctx)
	defer cancel()

	result, err := inst.ctx.Do(callCtx, func(ctx context.Context) (any, error) {
		return p.Get(inst.plugin)
	})
	if err != nil {
		return "", err
	}
	return encodeResult(name, result)
}

func (b *Bridge) setProperty(ctx context.Context, inst *Instance, name string, v wire.Value) error {
	p, ok := inst.desc.Properties[name]
	if !ok || !p.Settable {
		return errNoSuchMember(name)
	}

	callCtx, cancel := b.callContext(ctx)
	defer cancel()

	_, err := inst.ctx.Do(callCtx, func(ctx context.Context) (any, error) {
		return wire.Undefined, p.Set(inst.plugin, v)
	})
	return err
}

// runAwake invokes the awake hook on the instance's owning context.
func (b *Bridge) runAwake(ctx context.Context, inst *Instance) {
	a, ok := inst.plugin.(Awaker)
	if !ok {
		return
	}
	_, err := inst.ctx.Do(ctx, func(ctx context.Context) (any, error) {
		a.AwakeFromScript()
		return wire.Undefined, nil
	})
	if err != nil {
		b.log.Errorf("awake hook for instance #%d: %v", inst.id, err)
	}
}

// callContext applies the bridge's default timeout when the caller
// supplied no deadline.
func (b *Bridge) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// encodeResult renders a native result in wire form. A value with no
// defined encoding fails that single call, not the channel.
func encodeResult(member string, result any) (string, error) {
	text, ok := wire.Encode(result)
	if !ok {
		return "", &Error{Code: CodeUnrepresentable, Member: member}
	}
	return text, nil
}

// stubSpec maps a principal instance's descriptor onto the stub
// generator's input.
func stubSpec(inst *Instance) script.StubSpec {
	spec := script.StubSpec{
		Namespace:  inst.namespace,
		InstanceID: inst.id,
	}
	if inst.desc.Constructor != "" {
		spec.Class = inst.desc.ClassName
	}
	for name, m := range inst.desc.Methods {
		spec.Methods = append(spec.Methods, script.StubMethod{Name: name, Arity: m.Arity})
	}
	for name, p := range inst.desc.Properties {
		spec.Properties = append(spec.Properties, script.StubProperty{
			Name: name, Gettable: p.Gettable, Settable: p.Settable,
		})
	}
	sortStub(&spec)
	return spec
}

// sortStub orders stub members by name so generated skeletons are
// deterministic.
func sortStub(spec *script.StubSpec) {
	sort.Slice(spec.Methods, func(i, j int) bool {
		return spec.Methods[i].Name < spec.Methods[j].Name
	})
	sort.Slice(spec.Properties, func(i, j int) bool {
		return spec.Properties[i].Name < spec.Properties[j].Name
	})
}
