package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Swind/go-confined-pump/internal/goid"
)

// worker owns the confined resource and is the only goroutine that touches
// it. resource and tx are read and written exclusively on that goroutine.
type worker[R Resource] struct {
	name       string
	descriptor string
	open       Opener[R]
	queue      *WorkQueue[*workItem[R]]
	autoCommit bool
	pinThread  bool

	logger       Logger
	metrics      Metrics
	faultHandler FaultHandler
	history      *executionHistory

	resource R
	tx       Transaction

	inTransaction atomic.Bool
	running       atomic.Bool
	threadID      atomic.Int64
	goroutineID   atomic.Uint64
	executed      atomic.Uint64
	faulted       atomic.Uint64
	lastFault     atomic.Pointer[FaultError]

	started chan error
	stopped chan struct{}

	// shutdownErr is written by the worker before stopped is closed.
	shutdownErr error
}

// run is the worker goroutine: open, drain the queue, shut down.
func (w *worker[R]) run() {
	defer close(w.stopped)

	if w.pinThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	w.goroutineID.Store(goid.Current())
	w.threadID.Store(goid.ThreadID())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.openResource(); err != nil {
		w.started <- err
		return
	}
	w.started <- nil

	w.logger.Info("pump worker started",
		F("pump", w.name),
		F("thread_id", w.threadID.Load()),
		F("goroutine_id", w.goroutineID.Load()))

	for item := range w.queue.Drain() {
		w.metrics.RecordQueueDepth(w.name, w.queue.Len())
		w.execute(ctx, item)
	}

	w.shutdownErr = w.shutdown()
	if w.shutdownErr != nil {
		w.logger.Error("pump worker shutdown failed", F("pump", w.name), F("error", w.shutdownErr))
	}
	w.logger.Info("pump worker stopped",
		F("pump", w.name),
		F("executed", w.executed.Load()),
		F("faulted", w.faulted.Load()))
}

func (w *worker[R]) openResource() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Wrapf(panicError(rec), "opening %q", w.descriptor)
		}
	}()

	res, err := w.open(w.descriptor)
	if err != nil {
		return errors.Wrapf(err, "opening %q", w.descriptor)
	}
	w.resource = res
	return nil
}

// execute runs one item to completion, including its continuations, and
// signals the caller.
func (w *worker[R]) execute(ctx context.Context, item *workItem[R]) {
	w.running.Store(true)
	defer w.running.Store(false)

	startedAt := time.Now()
	continuations, err := w.dispatch(ctx, item)
	finishedAt := time.Now()

	var fault *FaultError
	if err != nil && !item.internal {
		fault = w.toFault(item, err)
		err = fault
	}

	w.executed.Add(1)
	w.history.Add(newItemRecord(w.name, item, startedAt, finishedAt, continuations, fault != nil))
	w.metrics.RecordItemDuration(w.name, item.kind, finishedAt.Sub(startedAt))

	if fault != nil {
		w.reportFault(item, fault)
	}

	if item.completion != nil {
		item.completion.complete(err)
	}
}

// dispatch refreshes the resource, installs a fresh execution context and
// runs the item, pumping its continuations on this goroutine.
func (w *worker[R]) dispatch(ctx context.Context, item *workItem[R]) (continuations int64, err error) {
	if err := w.resource.Refresh(); err != nil {
		return 0, errors.Wrap(err, "refreshing resource")
	}

	// Action items complete their context when the action's own operation
	// finishes; async items complete it when their task finishes.
	ec := newExecutionContext(item.kind != KindAsync, w.continuationPanicked(item))
	ec.onDrop = w.continuationDropped(item)

	itemCtx := WithExecutionContext(ctx, ec)

	switch item.kind {
	case KindFireAndForget, KindBlocking:
		err = w.runAction(itemCtx, ec, item)
		ec.PumpUntilComplete()

	case KindAsync:
		task, startErr := w.startAsync(itemCtx, item)
		if startErr != nil {
			ec.Complete()
			ec.PumpUntilComplete()
			return ec.Executed(), startErr
		}
		go func() {
			<-task.Done()
			ec.Complete()
		}()
		ec.PumpUntilComplete()
		<-task.Done()
		err = task.Err()

	default:
		err = errors.Errorf("pump: unknown item kind %d", item.kind)
	}

	return ec.Executed(), err
}

func (w *worker[R]) runAction(ctx context.Context, ec *ExecutionContext, item *workItem[R]) (err error) {
	ec.OperationStarted()
	defer ec.OperationCompleted()
	defer func() {
		if rec := recover(); rec != nil {
			err = w.panicFault(item, rec, debug.Stack())
		}
	}()

	return item.action(ctx, w.resource)
}

func (w *worker[R]) startAsync(ctx context.Context, item *workItem[R]) (task *Task, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			task, err = nil, w.panicFault(item, rec, debug.Stack())
		}
	}()

	task = item.asyncFunc(ctx, w.resource)
	if task == nil {
		return nil, ErrNilTask
	}
	return task, nil
}

func (w *worker[R]) panicFault(item *workItem[R], rec any, stack []byte) *FaultError {
	return &FaultError{
		ItemID:   item.id.String(),
		ItemName: item.name,
		Kind:     item.kind,
		Err:      panicError(rec),
		Panic:    rec,
		Stack:    stack,
	}
}

func (w *worker[R]) toFault(item *workItem[R], err error) *FaultError {
	var fault *FaultError
	if errors.As(err, &fault) && fault.ItemID == item.id.String() {
		return fault
	}
	return &FaultError{
		ItemID:   item.id.String(),
		ItemName: item.name,
		Kind:     item.kind,
		Err:      err,
	}
}

func (w *worker[R]) continuationPanicked(item *workItem[R]) func(rec any, stack []byte) {
	return func(rec any, stack []byte) {
		w.logger.Error("continuation panicked",
			F("pump", w.name),
			F("item_id", item.id.String()),
			F("item", item.name),
			F("panic", rec),
			F("stack", string(stack)))
	}
}

// continuationDropped reports continuations that finished waiting after their
// item was done. Their work never ran and nobody holds their result, so they
// always become the last fault.
func (w *worker[R]) continuationDropped(item *workItem[R]) func(err error) {
	return func(err error) {
		fault := &FaultError{
			ItemID:   item.id.String(),
			ItemName: item.name,
			Kind:     item.kind,
			Err:      errors.Wrap(err, "continuation dropped"),
		}
		w.logger.Error("continuation dropped after work item finished",
			F("pump", w.name),
			F("item_id", fault.ItemID),
			F("item", item.name),
			F("kind", item.kind.String()))
		w.lastFault.Store(fault)
		w.reportFault(item, fault)
	}
}

// reportFault surfaces a fault out of band. Fire-and-forget faults have no
// other observer, so they also become the pump's last fault.
func (w *worker[R]) reportFault(item *workItem[R], fault *FaultError) {
	w.faulted.Add(1)
	if item.kind == KindFireAndForget {
		w.lastFault.Store(fault)
	}
	w.metrics.RecordItemFault(w.name, item.kind)

	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("fault handler panicked", F("pump", w.name), F("panic", rec))
		}
	}()
	w.faultHandler.HandleFault(w.name, fault)
}

func (w *worker[R]) beginTransaction() error {
	if w.tx != nil {
		return ErrAlreadyInTransaction
	}
	tx, err := w.resource.BeginTransaction()
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if tx == nil {
		return errors.New("pump: resource returned a nil transaction")
	}
	w.tx = tx
	w.inTransaction.Store(true)
	w.metrics.RecordTransaction(w.name, "begin")
	return nil
}

// resolveTransaction commits or rolls back the open transaction. The slot is
// cleared before resolving so a failed resolution never leaves it open.
func (w *worker[R]) resolveTransaction(commit bool) error {
	tx := w.tx
	if tx == nil {
		return ErrNoActiveTransaction
	}
	w.tx = nil
	w.inTransaction.Store(false)

	if commit {
		w.metrics.RecordTransaction(w.name, "commit")
		return errors.Wrap(tx.Commit(), "committing transaction")
	}
	w.metrics.RecordTransaction(w.name, "rollback")
	return errors.Wrap(tx.Rollback(), "rolling back transaction")
}

// shutdown resolves a transaction left open and releases the resource.
func (w *worker[R]) shutdown() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = multierr.Append(err, errors.Wrap(panicError(rec), "shutting down"))
		}
	}()

	if w.tx != nil {
		w.logger.Info("resolving open transaction on dispose",
			F("pump", w.name),
			F("auto_commit", w.autoCommit))
		err = multierr.Append(err, w.resolveTransaction(w.autoCommit))
	}
	if cerr := w.resource.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrap(cerr, "closing resource"))
	}
	return err
}

// isCurrent reports whether the caller is running on the worker goroutine.
func (w *worker[R]) isCurrent() bool {
	id := w.goroutineID.Load()
	return id != 0 && id == goid.Current()
}
