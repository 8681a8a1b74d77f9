package bridge

import (
	"errors"
	"fmt"
)

// Code classifies a bridge failure. Every failure recovers locally at
// the dispatch boundary and surfaces as an *Error carrying one of
// these codes; none of them may corrupt registry bookkeeping or leave
// a context queue stuck.
type Code int

const (
	CodeNoSuchInstance Code = iota + 1
	CodeNoSuchMember
	CodeTypeMismatch
	CodeTimeout
	CodeNativeError
	CodeNotConstructible
	CodeUnrepresentable
)

// String returns the code's name.
func (c Code) String() string {
	switch c {
	case CodeNoSuchInstance:
		return "no such instance"
	case CodeNoSuchMember:
		return "no such member"
	case CodeTypeMismatch:
		return "type mismatch"
	case CodeTimeout:
		return "timeout"
	case CodeNativeError:
		return "native error"
	case CodeNotConstructible:
		return "not constructible"
	case CodeUnrepresentable:
		return "unrepresentable value"
	}
	return "unknown"
}

// Error is the typed error surfaced to callers of the bridge.
type Error struct {
	Code   Code
	Member string // offending member or class, when known
	Cause  error
}

func (e *Error) Error() string {
	msg := "bridge: " + e.Code.String()
	if e.Member != "" {
		msg += ": " + e.Member
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// CodeOf extracts the bridge code from err, or zero when err is not a
// bridge error.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return 0
}

func errNoSuchInstance(id uint64) *Error {
	return &Error{Code: CodeNoSuchInstance, Member: fmt.Sprintf("#%d", id)}
}

func errNoSuchMember(name string) *Error {
	return &Error{Code: CodeNoSuchMember, Member: name}
}

func errTypeMismatch(member string, cause error) *Error {
	return &Error{Code: CodeTypeMismatch, Member: member, Cause: cause}
}

func errNative(member string, cause error) *Error {
	return &Error{Code: CodeNativeError, Member: member, Cause: cause}
}
