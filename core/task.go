package core

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Task is a deferred computation that finishes exactly once, with an error
// or nil. It is the completion signal of blocking and async work items and the
// value async functions hand back to the worker.
type Task struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// complete resolves the task. Only the first call has an effect.
func (t *Task) complete(err error) bool {
	resolved := false
	t.once.Do(func() {
		t.err = err
		close(t.done)
		resolved = true
	})
	return resolved
}

// Done is closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Err returns the task's error once it is done, nil before that.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task finishes or ctx is done. Giving up on ctx does
// not stop the underlying work.
func (t *Task) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TaskSource lets code outside the pump resolve a Task by hand.
type TaskSource struct {
	task *Task
}

func NewTaskSource() *TaskSource {
	return &TaskSource{task: newTask()}
}

func (s *TaskSource) Task() *Task {
	return s.task
}

// SetResult resolves the task. It reports false if it was already resolved.
func (s *TaskSource) SetResult(err error) bool {
	return s.task.complete(err)
}

// Completed returns a task that has already finished with err.
func Completed(err error) *Task {
	t := newTask()
	t.complete(err)
	return t
}

// Go runs fn on a new goroutine and returns a task that finishes with its
// result. fn must not touch the confined resource.
func Go(fn func() error) *Task {
	t := newTask()
	if fn == nil {
		t.complete(errors.Wrap(ErrInvalidArgument, "go: fn is nil"))
		return t
	}
	go func() {
		var err error
		defer func() {
			if rec := recover(); rec != nil {
				err = panicError(rec)
			}
			t.complete(err)
		}()
		err = fn()
	}()
	return t
}

// Delay returns a task that finishes after d.
func Delay(d time.Duration) *Task {
	t := newTask()
	if d <= 0 {
		t.complete(nil)
		return t
	}
	time.AfterFunc(d, func() {
		t.complete(nil)
	})
	return t
}

// Await schedules cont to run once t finishes and returns a task that
// finishes with the task cont returns.
//
// If ctx carries an ExecutionContext (every work item's ctx does), cont is
// posted to it and therefore runs on the worker goroutine; the pending
// continuation also counts as an outstanding operation. Without one, cont
// runs on the goroutine that observed t finishing. A continuation that
// arrives after the work item finished never runs; the pump reports it as a
// fault and the returned task fails with ErrContextCompleted.
func Await(ctx context.Context, t *Task, cont func(err error) *Task) *Task {
	result := newTask()
	if t == nil || cont == nil {
		result.complete(errors.Wrap(ErrInvalidArgument, "await: task and continuation are required"))
		return result
	}

	ec := CurrentExecutionContext(ctx)
	if ec != nil {
		ec.OperationStarted()
	}

	go func() {
		<-t.Done()

		run := func() {
			if ec != nil {
				defer ec.OperationCompleted()
			}
			chain(result, runContinuation(cont, t.Err()))
		}

		if ec == nil {
			run()
			return
		}
		if err := ec.Post(run); err != nil {
			ec.dropped(err)
			ec.OperationCompleted()
			result.complete(err)
		}
	}()

	return result
}

// Then is Await for a continuation that finishes synchronously.
func Then(ctx context.Context, t *Task, cont func(err error) error) *Task {
	if cont == nil {
		return Completed(errors.Wrap(ErrInvalidArgument, "then: continuation is nil"))
	}
	return Await(ctx, t, func(err error) *Task {
		return Completed(cont(err))
	})
}

func runContinuation(cont func(err error) *Task, err error) (next *Task) {
	defer func() {
		if rec := recover(); rec != nil {
			next = Completed(panicError(rec))
		}
	}()
	next = cont(err)
	if next == nil {
		next = Completed(nil)
	}
	return next
}

// chain resolves result with next's outcome, synchronously when next is done.
func chain(result, next *Task) {
	if next.IsDone() {
		result.complete(next.Err())
		return
	}
	go func() {
		<-next.Done()
		result.complete(next.Err())
	}()
}
