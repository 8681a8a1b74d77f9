package bridge

import (
	"context"
	"fmt"
	"sync"
)

// task is a unit of work queued on an execution context.
type task struct {
	fn   func(ctx context.Context) (any, error)
	done chan taskResult
}

// taskResult holds the return value from an executed task.
type taskResult struct {
	value any
	err   error
}

// Context is a single-threaded execution domain. Every instance is
// owned by exactly one Context — either the bridge's shared context or
// a private dedicated one — and all access to the instance goes
// through it, so an instance never races against itself.
type Context struct {
	name     string
	tasks    chan task
	quit     chan struct{}
	stopOnce sync.Once
}

// NewContext creates a Context and starts its worker goroutine.
func NewContext(name string) *Context {
	c := &Context{
		name:  name,
		tasks: make(chan task, 64),
		quit:  make(chan struct{}),
	}
	go c.loop()
	return c
}

// Name returns the context's label.
func (c *Context) Name() string { return c.name }

// loop processes tasks sequentially. Each task runs under a context
// carrying this Context as owner, so recursive calls back into the
// same Context execute inline instead of re-queuing.
func (c *Context) loop() {
	base := withOwner(context.Background(), c)
	for {
		select {
		case t := <-c.tasks:
			t.done <- c.run(base, t.fn)
		case <-c.quit:
			return
		}
	}
}

// run executes a task, converting panics into native errors so a
// misbehaving plugin never takes down the worker.
func (c *Context) run(ctx context.Context, fn func(ctx context.Context) (any, error)) taskResult {
	var result taskResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = &Error{Code: CodeNativeError, Cause: fmt.Errorf("panic: %v", r)}
				result.value = nil
			}
		}()
		result.value, result.err = fn(ctx)
	}()
	return result
}

// Do executes fn on the context's goroutine and blocks until it
// completes or ctx expires. A call issued from the owning goroutine
// itself executes inline, which keeps reentrant call chains (native →
// script → same instance) from deadlocking.
//
// On timeout the caller gets CodeTimeout; the task, if already
// started, runs to completion and its result is discarded. The done
// channel is buffered so the worker never blocks on an abandoned
// reply.
func (c *Context) Do(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if owner(ctx) == c {
		r := c.run(ctx, fn)
		return r.value, r.err
	}

	t := task{fn: fn, done: make(chan taskResult, 1)}

	select {
	case c.tasks <- t:
	case <-ctx.Done():
		return nil, &Error{Code: CodeTimeout, Cause: ctx.Err()}
	case <-c.quit:
		return nil, fmt.Errorf("bridge: context %q stopped", c.name)
	}

	select {
	case r := <-t.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, &Error{Code: CodeTimeout, Cause: ctx.Err()}
	case <-c.quit:
		// The result may have landed just before the shutdown won the
		// race; prefer it over the stopped error.
		select {
		case r := <-t.done:
			return r.value, r.err
		default:
			return nil, fmt.Errorf("bridge: context %q stopped", c.name)
		}
	}
}

// Stop shuts down the worker goroutine. Queued tasks that have not
// started are dropped; their callers unblock with an error even
// without a deadline.
func (c *Context) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
}

type ownerKey struct{}

func withOwner(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, ownerKey{}, c)
}

// owner returns the Context whose goroutine is executing, or nil when
// called from an unmanaged goroutine.
func owner(ctx context.Context) *Context {
	c, _ := ctx.Value(ownerKey{}).(*Context)
	return c
}
