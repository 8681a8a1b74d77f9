package bridge

import (
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/norgard/gangplank/wire"
)

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestRegister_InjectsStub(t *testing.T) {
	b, e := newTestBridge()
	defer b.Stop()

	inst, err := b.Register(&counter{}, "counter", RegisterOptions{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if inst.Namespace() != "counter" {
		t.Errorf("Namespace = %q, want counter", inst.Namespace())
	}

	stub, ok := e.stubFor("counter")
	if !ok {
		t.Fatal("no stub injected")
	}
	for _, want := range []string{"counter.increment", "counter.add", `"label"`} {
		if !strings.Contains(stub, want) {
			t.Errorf("stub missing %q:\n%s", want, stub)
		}
	}
}

func TestRegister_RequiresNamespace(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	if _, err := b.Register(&counter{}, "", RegisterOptions{}); err == nil {
		t.Error("Register with empty namespace succeeded")
	}
}

func TestRegister_DescriptorReused(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	i1, err := b.Register(&counter{}, "c1", RegisterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	i2, err := b.Register(&counter{}, "c2", RegisterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if i1.Descriptor() != i2.Descriptor() {
		t.Error("same class produced two descriptors")
	}
}

func TestRegister_AwakeHookRuns(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	l := &lifecycle{}
	if _, err := b.Register(l, "life", RegisterOptions{}); err != nil {
		t.Fatal(err)
	}

	events := l.snapshot()
	if len(events) != 1 || events[0] != "awake" {
		t.Errorf("events = %v, want [awake]", events)
	}
}

// ---------------------------------------------------------------------------
// Script → native calls
// ---------------------------------------------------------------------------

func TestHandleCall_MethodRoundTrip(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	inst, err := b.Register(&counter{}, "counter", RegisterOptions{})
	if err != nil {
		t.Fatal(err)
	}

	reply := b.HandleCall(bg(), CallRequest{
		ID:       "r1",
		Op:       OpCall,
		Instance: inst.ID(),
		Member:   "add",
		Args:     []wire.Value{wire.Number(5)},
	})
	if reply.Err != nil {
		t.Fatalf("HandleCall: %v", reply.Err)
	}
	if reply.ID != "r1" {
		t.Errorf("correlation id = %q, want r1", reply.ID)
	}
	if reply.Result != "5" {
		t.Errorf("Result = %q, want 5", reply.Result)
	}
}

func TestHandleCall_AssignsCorrelationID(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	inst, _ := b.Register(&counter{}, "counter", RegisterOptions{})
	r1 := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "value"})
	r2 := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "value"})

	if r1.ID == "" || r2.ID == "" {
		t.Fatal("reply missing correlation id")
	}
	if r1.ID == r2.ID {
		t.Errorf("correlation ids collide: %q", r1.ID)
	}
}

func TestHandleCall_VoidResultIsUndefined(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	inst, _ := b.Register(&timer{}, "timer", RegisterOptions{})
	reply := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "start"})
	if reply.Err != nil {
		t.Fatalf("HandleCall: %v", reply.Err)
	}
	if reply.Result != "undefined" {
		t.Errorf("void result = %q, want undefined", reply.Result)
	}
}

func TestHandleCall_Properties(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	inst, _ := b.Register(&counter{Label: "hits"}, "counter", RegisterOptions{})

	get := b.HandleCall(bg(), CallRequest{Op: OpGet, Instance: inst.ID(), Member: "label"})
	if get.Err != nil {
		t.Fatalf("get: %v", get.Err)
	}
	if get.Result != `"hits"` {
		t.Errorf("get = %q, want %q", get.Result, `"hits"`)
	}

	set := b.HandleCall(bg(), CallRequest{
		Op: OpSet, Instance: inst.ID(), Member: "label",
		Args: []wire.Value{wire.String("misses")},
	})
	if set.Err != nil {
		t.Fatalf("set: %v", set.Err)
	}

	get = b.HandleCall(bg(), CallRequest{Op: OpGet, Instance: inst.ID(), Member: "label"})
	if get.Result != `"misses"` {
		t.Errorf("after set = %q, want %q", get.Result, `"misses"`)
	}
}

// ---------------------------------------------------------------------------
// Error taxonomy and isolation
// ---------------------------------------------------------------------------

func TestHandleCall_UnknownMemberLeavesStateIntact(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	c := &counter{}
	inst, _ := b.Register(c, "counter", RegisterOptions{})
	b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "add",
		Args: []wire.Value{wire.Number(3)}})

	reply := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "nonsense"})
	if reply.Err == nil || reply.Err.Code != CodeNoSuchMember {
		t.Fatalf("reply.Err = %v, want no such member", reply.Err)
	}

	// State unchanged, and a following valid call still succeeds.
	after := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "value"})
	if after.Err != nil {
		t.Fatalf("follow-up call failed: %v", after.Err)
	}
	if after.Result != "3" {
		t.Errorf("state after failed call = %s, want 3", after.Result)
	}
}

func TestHandleCall_TypeMismatchFailsBeforeExecution(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	c := &counter{}
	inst, _ := b.Register(c, "counter", RegisterOptions{})

	reply := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "add",
		Args: []wire.Value{wire.String("not a number")}})
	if reply.Err == nil || reply.Err.Code != CodeTypeMismatch {
		t.Fatalf("reply.Err = %v, want type mismatch", reply.Err)
	}
	if c.n != 0 {
		t.Errorf("method executed despite mismatch: n = %d", c.n)
	}
}

func TestHandleCall_NativeErrorIsolatedPerCall(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	inst, _ := b.Register(&counter{}, "counter", RegisterOptions{})

	reply := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "fail"})
	if reply.Err == nil || reply.Err.Code != CodeNativeError {
		t.Fatalf("reply.Err = %v, want native error", reply.Err)
	}

	// A panicking method is contained the same way.
	reply = b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "explode"})
	if reply.Err == nil || reply.Err.Code != CodeNativeError {
		t.Fatalf("panic reply = %v, want native error", reply.Err)
	}

	// Subsequent calls on the same instance still succeed.
	reply = b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: inst.ID(), Member: "increment"})
	if reply.Err != nil {
		t.Fatalf("call after errors: %v", reply.Err)
	}
	if reply.Result != "1" {
		t.Errorf("increment after errors = %s, want 1", reply.Result)
	}
}

func TestHandleCall_UnknownInstance(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	reply := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: 999, Member: "value"})
	if reply.Err == nil || reply.Err.Code != CodeNoSuchInstance {
		t.Errorf("reply.Err = %v, want no such instance", reply.Err)
	}
}

// ---------------------------------------------------------------------------
// Mutual exclusion
// ---------------------------------------------------------------------------

func TestHandleCall_MutualExclusion(t *testing.T) {
	for _, mode := range []ThreadMode{ThreadShared, ThreadDedicated} {
		t.Run(string(mode), func(t *testing.T) {
			b, _ := newTestBridge()
			defer b.Stop()

			inst, err := b.Register(&counter{}, "counter", RegisterOptions{Thread: mode})
			if err != nil {
				t.Fatal(err)
			}

			const callers = 100
			results := make(chan string, callers)
			var wg sync.WaitGroup
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					reply := b.HandleCall(bg(), CallRequest{
						Op: OpCall, Instance: inst.ID(), Member: "increment",
					})
					if reply.Err != nil {
						t.Errorf("increment: %v", reply.Err)
						return
					}
					results <- reply.Result
				}()
			}
			wg.Wait()
			close(results)

			seen := make(map[string]bool)
			for r := range results {
				if seen[r] {
					t.Errorf("duplicate increment result %s", r)
				}
				seen[r] = true
			}
			if len(seen) != callers {
				t.Errorf("distinct results = %d, want %d", len(seen), callers)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Construction and disposal
// ---------------------------------------------------------------------------

func TestConstruct_NewInstanceSharesDescriptor(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	principal, err := b.Register(&timer{}, "timer", RegisterOptions{})
	if err != nil {
		t.Fatal(err)
	}

	reply := b.HandleCall(bg(), CallRequest{Op: OpConstruct, Member: "timer",
		Args: []wire.Value{wire.Number(250)}})
	if reply.Err != nil {
		t.Fatalf("construct: %v", reply.Err)
	}

	id, err := strconv.ParseUint(reply.Result, 10, 64)
	if err != nil {
		t.Fatalf("construct result %q: %v", reply.Result, err)
	}
	if id == principal.ID() {
		t.Error("constructed instance reused the principal's id")
	}

	inst, ok := b.Registry().Lookup(id)
	if !ok {
		t.Fatal("constructed instance not registered")
	}
	if inst.Descriptor() != principal.Descriptor() {
		t.Error("constructed instance has its own descriptor")
	}

	get := b.HandleCall(bg(), CallRequest{Op: OpGet, Instance: id, Member: "interval"})
	if get.Err != nil || get.Result != "250" {
		t.Errorf("interval = %s (%v), want 250", get.Result, get.Err)
	}
}

func TestConstruct_InstancesAreIndependent(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	if _, err := b.Register(&timer{}, "timer", RegisterOptions{}); err != nil {
		t.Fatal(err)
	}

	r1 := b.HandleCall(bg(), CallRequest{Op: OpConstruct, Member: "timer",
		Args: []wire.Value{wire.Number(1)}})
	r2 := b.HandleCall(bg(), CallRequest{Op: OpConstruct, Member: "timer",
		Args: []wire.Value{wire.Number(2)}})
	if r1.Err != nil || r2.Err != nil {
		t.Fatalf("construct: %v, %v", r1.Err, r2.Err)
	}
	id1, _ := strconv.ParseUint(r1.Result, 10, 64)
	id2, _ := strconv.ParseUint(r2.Result, 10, 64)

	// Start the first; the second must not observe it.
	if reply := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: id1, Member: "start"}); reply.Err != nil {
		t.Fatal(reply.Err)
	}

	running1 := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: id1, Member: "running"})
	running2 := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: id2, Member: "running"})
	if running1.Result != "true" {
		t.Errorf("instance 1 running = %s, want true", running1.Result)
	}
	if running2.Result != "false" {
		t.Errorf("instance 2 running = %s, want false (state leaked across instances)", running2.Result)
	}
}

func TestConstruct_RejectedWithoutConstructor(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	if _, err := b.Register(&counter{}, "counter", RegisterOptions{}); err != nil {
		t.Fatal(err)
	}

	reply := b.HandleCall(bg(), CallRequest{Op: OpConstruct, Member: "counter"})
	if reply.Err == nil || reply.Err.Code != CodeNotConstructible {
		t.Errorf("reply.Err = %v, want not constructible", reply.Err)
	}
}

func TestConstruct_TypedNilRejected(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	if _, err := b.Register(&barren{}, "barren", RegisterOptions{}); err != nil {
		t.Fatal(err)
	}
	before := b.Registry().Len()

	reply := b.HandleCall(bg(), CallRequest{Op: OpConstruct, Member: "barren",
		Args: []wire.Value{wire.True}})
	if reply.Err == nil || reply.Err.Code != CodeNativeError {
		t.Fatalf("reply.Err = %v, want native error", reply.Err)
	}
	if b.Registry().Len() != before {
		t.Errorf("nil-wrapping instance was registered: %d instances, want %d",
			b.Registry().Len(), before)
	}
}

func TestDispose_StopsDedicatedContextWithLastInstance(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	principal, err := b.Register(&timer{}, "timer", RegisterOptions{Thread: ThreadDedicated})
	if err != nil {
		t.Fatal(err)
	}
	ctx := principal.ctx

	made := b.HandleCall(bg(), CallRequest{Op: OpConstruct, Member: "timer",
		Args: []wire.Value{wire.Number(10)}})
	if made.Err != nil {
		t.Fatalf("construct: %v", made.Err)
	}
	id, _ := strconv.ParseUint(made.Result, 10, 64)

	// Principal goes first; the context must survive for the
	// constructed instance.
	if err := b.Dispose(bg(), principal.ID()); err != nil {
		t.Fatalf("dispose principal: %v", err)
	}
	select {
	case <-ctx.quit:
		t.Fatal("context stopped while an instance still lives on it")
	default:
	}
	if reply := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: id, Member: "running"}); reply.Err != nil {
		t.Fatalf("call after principal disposal: %v", reply.Err)
	}

	// The constructed instance is the last one out.
	if err := b.Dispose(bg(), id); err != nil {
		t.Fatalf("dispose constructed: %v", err)
	}
	select {
	case <-ctx.quit:
	default:
		t.Error("dedicated context still running after its last instance was disposed")
	}
}

func TestDispose_RetiresIDForever(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	l := &lifecycle{}
	inst, err := b.Register(l, "life", RegisterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	oldID := inst.ID()

	if err := b.Dispose(bg(), oldID); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	events := l.snapshot()
	if len(events) != 2 || events[1] != "finalize" {
		t.Errorf("events = %v, want [awake finalize]", events)
	}

	// The disposed handle is gone.
	reply := b.HandleCall(bg(), CallRequest{Op: OpCall, Instance: oldID, Member: "ping"})
	if reply.Err == nil || reply.Err.Code != CodeNoSuchInstance {
		t.Errorf("call on disposed id = %v, want no such instance", reply.Err)
	}

	// New registrations never reuse a retired id.
	next, err := b.Register(&lifecycle{}, "life2", RegisterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if next.ID() <= oldID {
		t.Errorf("id %d reused or regressed after retiring %d", next.ID(), oldID)
	}
}

// ---------------------------------------------------------------------------
// Native → script evaluation
// ---------------------------------------------------------------------------

func TestEval_DecodesEngineResult(t *testing.T) {
	b, e := newTestBridge()
	defer b.Stop()

	e.evalFn = func(expr string) (string, error) {
		if expr == "6*7" {
			return "42", nil
		}
		return "null", nil
	}

	v, err := b.Eval(bg(), "6*7")
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if v.AsNumber() != 42 {
		t.Errorf("Eval = %v, want 42", v.AsNumber())
	}
}

func TestEval_ReentrantFromDispatchedMethod(t *testing.T) {
	b, e := newTestBridge()
	defer b.Stop()

	e.evalFn = func(expr string) (string, error) { return "2", nil }

	p := &echo{b: b}
	inst, err := b.Register(p, "echo", RegisterOptions{})
	if err != nil {
		t.Fatal(err)
	}

	// The method runs on the shared context and evaluates script,
	// which needs the same context: without inline reentrancy this
	// deadlocks until the timeout.
	done := make(chan CallReply, 1)
	go func() {
		done <- b.HandleCall(bg(), CallRequest{
			Op: OpCall, Instance: inst.ID(), Member: "roundtrip",
			Args: []wire.Value{wire.String("1+1")},
		})
	}()

	select {
	case reply := <-done:
		if reply.Err != nil {
			t.Fatalf("reentrant call: %v", reply.Err)
		}
		if reply.Result != "2" {
			t.Errorf("reentrant result = %s, want 2", reply.Result)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reentrant call deadlocked")
	}
}

func TestEval_Timeout(t *testing.T) {
	e := newFakeEngine()
	b := New(e, WithDefaultTimeout(30*time.Millisecond))
	defer b.Stop()

	release := make(chan struct{})
	e.evalFn = func(expr string) (string, error) {
		<-release
		return "null", nil
	}

	_, err := b.Eval(bg(), "while(true){}")
	close(release)
	if CodeOf(err) != CodeTimeout {
		t.Fatalf("Eval error = %v, want timeout", err)
	}
}

// ---------------------------------------------------------------------------
// Native-side calls
// ---------------------------------------------------------------------------

func TestCallMethod_FromNative(t *testing.T) {
	b, _ := newTestBridge()
	defer b.Stop()

	inst, _ := b.Register(&counter{}, "counter", RegisterOptions{})
	got, err := b.CallMethod(bg(), inst.ID(), "add", []wire.Value{wire.Number(7)})
	if err != nil {
		t.Fatalf("CallMethod: %v", err)
	}
	if got != "7" {
		t.Errorf("CallMethod = %q, want 7", got)
	}
}
