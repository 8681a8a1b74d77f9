package bridge

import (
	"sync"
	"sync/atomic"
)

// Instance binds a native plugin object to its script-side handle. Ids
// are monotonically assigned and never reused, even after disposal, so
// a stale script handle can never alias a newer instance.
type Instance struct {
	id        uint64
	plugin    any
	desc      *Descriptor
	ctx       *Context
	namespace string // script-visible root name; set on principals only
	principal bool
	dedicated bool // the instance's class owns a private context
}

// ID returns the instance's script-side handle id.
func (i *Instance) ID() uint64 { return i.id }

// Namespace returns the script-visible root name (principals only).
func (i *Instance) Namespace() string { return i.namespace }

// Descriptor returns the class exposure metadata.
func (i *Instance) Descriptor() *Descriptor { return i.desc }

// Plugin returns the native object.
func (i *Instance) Plugin() any { return i.plugin }

// Registry owns the mapping between native objects and script-side
// identifiers. The live map is guarded by a RWMutex; lookups are O(1)
// and never block instance execution, which happens on the owning
// Context, not under the registry lock.
type Registry struct {
	mu         sync.RWMutex
	instances  map[uint64]*Instance
	principals map[string]*Instance // class name → principal instance
	nextID     atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		instances:  make(map[uint64]*Instance),
		principals: make(map[string]*Instance),
	}
}

// Add registers a new instance and assigns it a fresh id.
func (r *Registry) Add(plugin any, desc *Descriptor, ctx *Context, namespace string, principal, dedicated bool) *Instance {
	inst := &Instance{
		id:        r.nextID.Add(1),
		plugin:    plugin,
		desc:      desc,
		ctx:       ctx,
		namespace: namespace,
		principal: principal,
		dedicated: dedicated,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.id] = inst
	if principal {
		r.principals[desc.ClassName] = inst
	}
	return inst
}

// Lookup retrieves a live instance by id.
func (r *Registry) Lookup(id uint64) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

// Principal retrieves the first-registered instance of a class. It is
// the prototype object that later-constructed instances link to.
func (r *Registry) Principal(class string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.principals[class]
	return inst, ok
}

// Remove retires an instance id. The id is never reassigned.
func (r *Registry) Remove(id uint64) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[id]
	if !ok {
		return nil, false
	}
	delete(r.instances, id)
	if inst.principal && r.principals[inst.desc.ClassName] == inst {
		delete(r.principals, inst.desc.ClassName)
	}
	return inst, true
}

// ContextInUse reports whether any live instance still runs on ctx.
func (r *Registry) ContextInUse(ctx *Context) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, inst := range r.instances {
		if inst.ctx == ctx {
			return true
		}
	}
	return false
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}
