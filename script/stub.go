package script

import (
	"fmt"
	"strings"
)

// StubMethod describes one exposed method for skeleton generation.
type StubMethod struct {
	Name  string
	Arity int
}

// StubProperty describes one exposed property for skeleton generation.
type StubProperty struct {
	Name     string
	Gettable bool
	Settable bool
}

// StubSpec is the input to Stub: everything the generator needs to
// emit the script-side skeleton for one plugin instance.
type StubSpec struct {
	Namespace  string
	Class      string // script-visible constructor name; empty when not constructible
	InstanceID uint64
	Methods    []StubMethod
	Properties []StubProperty
}

// dispatcherName is the host-injected object the skeleton forwards to.
// The hosting engine wires it to the transport; the bridge only emits
// references to it.
const dispatcherName = "__gangplank"

// Stub emits the script skeleton for a plugin instance: a namespace
// object with one forwarding function per method, accessor-backed
// properties, and, when the plugin is constructible, a constructor
// function whose prototype is the principal object.
//
// Every forwarder dispatches on this.$id, not on a literal handle.
// A call through the namespace object binds this to the principal,
// whose $id is stamped below; a call through a constructed object
// binds this to that object, whose $id the constructor assigned. The
// same skeleton therefore addresses every instance of the class.
func Stub(s StubSpec) string {
	var b strings.Builder

	fmt.Fprintf(&b, "var %s = {};\n", s.Namespace)
	fmt.Fprintf(&b, "%s.$id = %d;\n", s.Namespace, s.InstanceID)

	for _, m := range s.Methods {
		fmt.Fprintf(&b,
			"%s.%s = function() { return %s.call(this.$id, %q, Array.prototype.slice.call(arguments)); };\n",
			s.Namespace, m.Name, dispatcherName, m.Name)
	}

	for _, p := range s.Properties {
		fmt.Fprintf(&b, "Object.defineProperty(%s, %q, {\n", s.Namespace, p.Name)
		if p.Gettable {
			fmt.Fprintf(&b, "  get: function() { return %s.get(this.$id, %q); },\n",
				dispatcherName, p.Name)
		}
		if p.Settable {
			fmt.Fprintf(&b, "  set: function(v) { %s.set(this.$id, %q, v); },\n",
				dispatcherName, p.Name)
		}
		b.WriteString("  enumerable: true\n});\n")
	}

	if s.Class != "" {
		// The constructor assigns the new handle onto this rather than
		// returning it: under new, a primitive return value would be
		// discarded in favor of this.
		fmt.Fprintf(&b, "function %s() { this.$id = %s.construct(%q, Array.prototype.slice.call(arguments)); }\n",
			s.Class, dispatcherName, s.Class)
		// Later-constructed instances link to the principal object.
		fmt.Fprintf(&b, "%s.prototype = %s;\n", s.Class, s.Namespace)
	}

	return b.String()
}
