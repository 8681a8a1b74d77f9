// Package script builds the script-side surface of the bridge: call
// expressions evaluated in the host context and the skeleton objects
// that stand in for native plugins.
package script

import (
	"strings"
	"unicode"

	"github.com/norgard/gangplank/wire"
)

// MethodName derives the script-visible method name from a native
// selector by stripping argument labels: the first segment is kept
// as-is and later segments are capitalized and joined.
// e.g. "setValue:" → "setValue", "setValue:forKey:" → "setValueForKey".
func MethodName(selector string) string {
	parts := strings.Split(selector, ":")
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(part)
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// CallExpr builds a method invocation expression. Arguments must
// already be in wire form.
func CallExpr(namespace, member string, args []string) string {
	var b strings.Builder
	b.WriteString(namespace)
	b.WriteByte('.')
	b.WriteString(member)
	b.WriteByte('(')
	b.WriteString(strings.Join(args, ","))
	b.WriteByte(')')
	return b.String()
}

// PropertyExpr builds a property read expression.
func PropertyExpr(namespace, property string) string {
	return namespace + "." + property
}

// AssignExpr builds a property write statement.
func AssignExpr(namespace, property, value string) string {
	return namespace + "." + property + " = " + value + ";"
}

// ConstructExpr builds a constructor invocation expression.
func ConstructExpr(class string, args []string) string {
	return "new " + class + "(" + strings.Join(args, ",") + ")"
}

// EncodeArgs renders each argument in wire form. An argument with no
// defined encoding degrades to undefined so positions are preserved.
func EncodeArgs(args []any) []string {
	out := make([]string, len(args))
	for i, a := range args {
		text, ok := wire.Encode(a)
		if !ok {
			text = wire.Undefined.String()
		}
		out[i] = text
	}
	return out
}
