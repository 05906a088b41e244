package core

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// ExecutionContext is a single-threaded continuation pump. The worker installs
// a fresh one for every work item and drains it on its own goroutine, so
// continuations posted from other goroutines run on the worker.
//
// Post may be called from any goroutine. PumpUntilComplete must only run on
// the worker that owns the context.
type ExecutionContext struct {
	queue           *WorkQueue[func()]
	trackOperations bool

	mu         sync.Mutex
	operations int

	executed atomic.Int64
	onPanic  func(rec any, stack []byte)

	// onDrop is told about continuations that arrived after Complete. It runs
	// on the goroutine that tried to post them.
	onDrop func(err error)
}

func newExecutionContext(trackOperations bool, onPanic func(rec any, stack []byte)) *ExecutionContext {
	return &ExecutionContext{
		queue:           NewWorkQueue[func()](),
		trackOperations: trackOperations,
		onPanic:         onPanic,
	}
}

// Post enqueues fn to run on the worker. It never blocks. After Complete it
// fails with ErrContextCompleted.
func (c *ExecutionContext) Post(fn func()) error {
	if fn == nil {
		return errors.Wrap(ErrInvalidArgument, "continuation is nil")
	}
	if err := c.queue.Append(fn); err != nil {
		return ErrContextCompleted
	}
	return nil
}

// dropped reports a continuation that could not be posted because the
// context had already completed.
func (c *ExecutionContext) dropped(err error) {
	if c.onDrop != nil {
		c.onDrop(err)
	}
}

// PumpUntilComplete runs queued continuations on the calling goroutine until
// Complete has been called and the queue is empty. Continuations may Post.
func (c *ExecutionContext) PumpUntilComplete() {
	for fn := range c.queue.Drain() {
		c.invoke(fn)
	}
}

func (c *ExecutionContext) invoke(fn func()) {
	defer func() {
		if rec := recover(); rec != nil && c.onPanic != nil {
			c.onPanic(rec, debug.Stack())
		}
	}()
	c.executed.Add(1)
	fn()
}

// Complete stops accepting continuations. Continuations already queued are
// still run before PumpUntilComplete returns. Complete is idempotent.
func (c *ExecutionContext) Complete() {
	c.queue.Close()
}

func (c *ExecutionContext) IsComplete() bool {
	return c.queue.IsClosed()
}

// OperationStarted records an outstanding operation when tracking is enabled.
func (c *ExecutionContext) OperationStarted() {
	if !c.trackOperations {
		return
	}
	c.mu.Lock()
	c.operations++
	c.mu.Unlock()
}

// OperationCompleted releases an outstanding operation. When tracking is
// enabled and the count returns to zero the context completes. The count never
// goes below zero.
func (c *ExecutionContext) OperationCompleted() {
	if !c.trackOperations {
		return
	}
	c.mu.Lock()
	if c.operations == 0 {
		c.mu.Unlock()
		return
	}
	c.operations--
	done := c.operations == 0
	c.mu.Unlock()

	if done {
		c.Complete()
	}
}

// Operations returns the outstanding operation count.
func (c *ExecutionContext) Operations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.operations
}

// Pending returns the number of queued continuations.
func (c *ExecutionContext) Pending() int {
	return c.queue.Len()
}

// Executed returns how many continuations this context has run.
func (c *ExecutionContext) Executed() int64 {
	return c.executed.Load()
}

// =============================================================================
// Context Helper
// =============================================================================

type executionContextKeyType struct{}

var executionContextKey executionContextKeyType

// WithExecutionContext returns a copy of ctx carrying ec as the ambient
// execution context for continuations.
func WithExecutionContext(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, executionContextKey, ec)
}

// CurrentExecutionContext returns the execution context carried by ctx, or nil.
func CurrentExecutionContext(ctx context.Context) *ExecutionContext {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(executionContextKey).(*ExecutionContext); ok {
		return v
	}
	return nil
}
