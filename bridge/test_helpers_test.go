package bridge

import (
	"context"
	"errors"
	"sync"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for bridge package tests.
// ---------------------------------------------------------------------------

// fakeEngine stands in for the hosting script engine: it records
// injected stubs and evaluates expressions via a pluggable function.
type fakeEngine struct {
	mu       sync.Mutex
	injected map[string]string // namespace → stub
	evals    []string
	evalFn   func(expr string) (string, error)
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{injected: make(map[string]string)}
}

func (e *fakeEngine) Evaluate(ctx context.Context, expr string) (string, error) {
	e.mu.Lock()
	e.evals = append(e.evals, expr)
	fn := e.evalFn
	e.mu.Unlock()
	if fn != nil {
		return fn(expr)
	}
	return "null", nil
}

func (e *fakeEngine) Inject(ctx context.Context, namespace, stub string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.injected[namespace] = stub
	return nil
}

func (e *fakeEngine) stubFor(namespace string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.injected[namespace]
	return s, ok
}

// newTestBridge creates a Bridge over a fresh fake engine. The caller
// must Stop() it.
func newTestBridge() (*Bridge, *fakeEngine) {
	e := newFakeEngine()
	return New(e), e
}

func bg() context.Context {
	return context.Background()
}

// ---------------------------------------------------------------------------
// Test plugins
// ---------------------------------------------------------------------------

// counter has a deliberately unsynchronized increment: only context
// serialization keeps it consistent.
type counter struct {
	Label string
	n     int
}

func (c *counter) Increment() int { c.n++; return c.n }

func (c *counter) Value() int { return c.n }

func (c *counter) Add(delta int) int { c.n += delta; return c.n }

func (c *counter) Fail() error { return errors.New("boom") }

func (c *counter) Explode() int { panic("kaboom") }

// timer is constructible: Make is designated as the constructor via
// the renamer hook.
type timer struct {
	Interval int
	started  bool
}

func (tm *timer) Make(interval int) *timer { return &timer{Interval: interval} }

func (tm *timer) Start() { tm.started = true }

func (tm *timer) Running() bool { return tm.started }

func (tm *timer) ScriptNameFor(selector string) (string, bool) {
	if selector == "Make" {
		return "", true
	}
	return "", false
}

// barren has a constructor that never produces an instance.
type barren struct{}

func (b *barren) Make(ok bool) *barren { return nil }

func (b *barren) Poke() bool { return true }

func (b *barren) ScriptNameFor(selector string) (string, bool) {
	if selector == "Make" {
		return "", true
	}
	return "", false
}

// lifecycle records hook invocations.
type lifecycle struct {
	mu     sync.Mutex
	events []string
}

func (l *lifecycle) AwakeFromScript() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "awake")
}

func (l *lifecycle) FinalizeFromScript() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "finalize")
}

func (l *lifecycle) Ping() string { return "pong" }

func (l *lifecycle) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// secretive excludes one member and renames another.
type secretive struct{}

func (s *secretive) Public() int { return 1 }

func (s *secretive) Hidden() int { return 2 }

func (s *secretive) LongName() int { return 3 }

func (s *secretive) ExcludeFromScript(selector string) bool {
	return selector == "Hidden"
}

func (s *secretive) ScriptNameFor(selector string) (string, bool) {
	if selector == "LongName" {
		return "ln", true
	}
	return "", false
}

// echo calls back into the bridge from inside a dispatched method;
// the dispatch context must make the nested call run inline.
type echo struct {
	b *Bridge
}

func (e *echo) Roundtrip(ctx context.Context, expr string) (float64, error) {
	v, err := e.b.Eval(ctx, expr)
	if err != nil {
		return 0, err
	}
	return v.AsNumber(), nil
}

