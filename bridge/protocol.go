package bridge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/norgard/gangplank/wire"
)

// Op identifies the kind of inbound script request.
type Op string

const (
	OpCall      Op = "call"
	OpGet       Op = "get"
	OpSet       Op = "set"
	OpConstruct Op = "construct"
	OpDispose   Op = "dispose"
)

// CallRequest is one decoded script→native request. Args are already
// decoded from wire form; typed coercion against the target member's
// declared parameter types happens during dispatch.
type CallRequest struct {
	ID       string // correlation id; assigned when empty
	Op       Op
	Instance uint64
	Member   string // method or property name; class name for OpConstruct
	Args     []wire.Value
}

// CallReply carries either an encoded result value or an error
// descriptor back to the script side, under the request's correlation
// id.
type CallReply struct {
	ID     string
	Result string // wire form; valid when Err is nil
	Err    *Error
}

// ParseRequest decodes a transport message in wire form into a
// CallRequest. The expected shape is
// {"id":…,"op":…,"instance":…,"member":…,"args":[…]}.
func ParseRequest(text string) (CallRequest, error) {
	v, err := wire.Decode(text)
	if err != nil {
		return CallRequest{}, err
	}
	if v.Kind() != wire.KindObject {
		return CallRequest{}, fmt.Errorf("bridge: request is not an object")
	}

	var req CallRequest
	if f, ok := v.Get("id"); ok && f.Kind() == wire.KindString {
		req.ID = f.AsString()
	}
	f, ok := v.Get("op")
	if !ok || f.Kind() != wire.KindString {
		return CallRequest{}, fmt.Errorf("bridge: request has no op")
	}
	req.Op = Op(f.AsString())

	if f, ok := v.Get("instance"); ok && f.Kind() == wire.KindNumber {
		req.Instance = uint64(f.AsNumber())
	}
	if f, ok := v.Get("member"); ok && f.Kind() == wire.KindString {
		req.Member = f.AsString()
	}
	if f, ok := v.Get("args"); ok && f.Kind() == wire.KindArray {
		req.Args = f.Items()
	}
	return req, nil
}

// HandleCall dispatches one inbound request and always produces a
// reply: every failure recovers here and surfaces as a typed error
// under the request's correlation id.
func (b *Bridge) HandleCall(ctx context.Context, req CallRequest) CallReply {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	result, err := b.dispatch(ctx, req)
	if err != nil {
		b.log.Debugf("request %s failed: %v", req.ID, err)
		return CallReply{ID: req.ID, Err: asBridgeError(err)}
	}
	return CallReply{ID: req.ID, Result: result}
}

func (b *Bridge) dispatch(ctx context.Context, req CallRequest) (string, error) {
	switch req.Op {
	case OpCall, "":
		inst, ok := b.registry.Lookup(req.Instance)
		if !ok {
			return "", errNoSuchInstance(req.Instance)
		}
		return b.invokeMethod(ctx, inst, req.Member, req.Args)

	case OpGet:
		inst, ok := b.registry.Lookup(req.Instance)
		if !ok {
			return "", errNoSuchInstance(req.Instance)
		}
		return b.getProperty(ctx, inst, req.Member)

	case OpSet:
		inst, ok := b.registry.Lookup(req.Instance)
		if !ok {
			return "", errNoSuchInstance(req.Instance)
		}
		if len(req.Args) != 1 {
			return "", errTypeMismatch(req.Member,
				fmt.Errorf("property write takes 1 value, got %d", len(req.Args)))
		}
		if err := b.setProperty(ctx, inst, req.Member, req.Args[0]); err != nil {
			return "", err
		}
		return wire.Undefined.String(), nil

	case OpConstruct:
		inst, err := b.Construct(ctx, req.Member, req.Args)
		if err != nil {
			return "", err
		}
		return strconv.FormatUint(inst.ID(), 10), nil

	case OpDispose:
		if err := b.Dispose(ctx, req.Instance); err != nil {
			return "", err
		}
		return wire.Undefined.String(), nil

	default:
		return "", fmt.Errorf("bridge: unknown op %q", req.Op)
	}
}

// String renders the reply as a wire object for the transport:
// {"id":…,"result":…} on success, {"id":…,"error":{…}} on failure.
// Result is already wire text and is spliced in verbatim.
func (r CallReply) String() string {
	id, _ := wire.Encode(r.ID)
	if r.Err != nil {
		code, _ := wire.Encode(r.Err.Code.String())
		member, _ := wire.Encode(r.Err.Member)
		return fmt.Sprintf(`{"id":%s,"error":{"code":%s,"member":%s}}`, id, code, member)
	}
	return fmt.Sprintf(`{"id":%s,"result":%s}`, id, r.Result)
}

// asBridgeError wraps foreign errors so every reply carries a typed
// descriptor.
func asBridgeError(err error) *Error {
	if be, ok := err.(*Error); ok {
		return be
	}
	return &Error{Code: CodeNativeError, Cause: err}
}
