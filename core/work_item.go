package core

import (
	"context"
	"reflect"
	"runtime"
	"time"

	"github.com/google/uuid"
)

// ItemKind selects how a work item is invoked and completed.
type ItemKind int

const (
	// KindFireAndForget: no completion signal, faults are reported out of band.
	KindFireAndForget ItemKind = iota

	// KindBlocking: the caller waits for the action to finish.
	KindBlocking

	// KindAsync: the caller gets a Task that finishes after the async
	// function's task and every continuation it posted have run.
	KindAsync
)

func (k ItemKind) String() string {
	switch k {
	case KindFireAndForget:
		return "fire_and_forget"
	case KindBlocking:
		return "blocking"
	case KindAsync:
		return "async"
	default:
		return "unknown"
	}
}

func (k ItemKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Action is synchronous work run against the resource on the worker goroutine.
// ctx carries the item's ExecutionContext, so an action may Await; the item
// then completes only after those continuations have run.
type Action[R Resource] func(ctx context.Context, r R) error

// AsyncFunc starts asynchronous work against the resource. ctx carries the
// item's ExecutionContext; continuations registered with Await(ctx, ...) run
// on the worker goroutine.
type AsyncFunc[R Resource] func(ctx context.Context, r R) *Task

// workItem is one unit of work. Exactly one of action and asyncFunc is set;
// completion is nil only for fire-and-forget items.
type workItem[R Resource] struct {
	id         uuid.UUID
	name       string
	kind       ItemKind
	action     Action[R]
	asyncFunc  AsyncFunc[R]
	completion *Task
	enqueuedAt time.Time

	// internal items are issued by the pump itself; their errors are
	// returned unwrapped.
	internal bool
}

func newFireAndForgetItem[R Resource](action Action[R]) *workItem[R] {
	return &workItem[R]{
		id:         uuid.New(),
		name:       resolveItemName(action),
		kind:       KindFireAndForget,
		action:     action,
		enqueuedAt: time.Now(),
	}
}

func newBlockingItem[R Resource](action Action[R]) *workItem[R] {
	return &workItem[R]{
		id:         uuid.New(),
		name:       resolveItemName(action),
		kind:       KindBlocking,
		action:     action,
		completion: newTask(),
		enqueuedAt: time.Now(),
	}
}

func newAsyncItem[R Resource](fn AsyncFunc[R]) *workItem[R] {
	return &workItem[R]{
		id:         uuid.New(),
		name:       resolveItemName(fn),
		kind:       KindAsync,
		asyncFunc:  fn,
		completion: newTask(),
		enqueuedAt: time.Now(),
	}
}

// newInternalItem builds a blocking item for the pump's own bookkeeping.
func newInternalItem[R Resource](name string, action Action[R]) *workItem[R] {
	item := newBlockingItem(action)
	item.name = name
	item.internal = true
	return item
}

// resolveItemName names a callback after its function symbol.
func resolveItemName(fn any) string {
	if fn == nil {
		return "anonymous"
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "anonymous"
	}

	f := runtime.FuncForPC(v.Pointer())
	if f == nil || f.Name() == "" {
		return "anonymous"
	}
	return f.Name()
}
