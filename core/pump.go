package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Pump confines a Resource to one dedicated worker goroutine, locked to one OS
// thread unless configured otherwise, and executes submitted work against it
// in FIFO order. Every exported method is safe for concurrent use.
//
// Blocking methods (Invoke, the transaction methods, WaitIdle) must not be
// called from inside a work item, with one exception: the transaction methods
// run inline when called on the worker goroutine.
type Pump[R Resource] struct {
	name    string
	queue   *WorkQueue[*workItem[R]]
	worker  *worker[R]
	logger  Logger
	metrics Metrics

	rejected atomic.Int64

	disposeOnce sync.Once
	disposeErr  error
}

// NewPump starts a worker goroutine, opens the resource on it through open and
// returns once the resource is ready. If open fails the worker exits and the
// error is returned.
func NewPump[R Resource](descriptor string, open Opener[R], cfg *PumpConfig) (*Pump[R], error) {
	if open == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "opener is nil")
	}
	c := cfg.withDefaults()

	queue := NewWorkQueue[*workItem[R]]()
	w := &worker[R]{
		name:         c.Name,
		descriptor:   descriptor,
		open:         open,
		queue:        queue,
		autoCommit:   c.AutoCommit,
		pinThread:    !c.AllowThreadMigration,
		logger:       c.Logger,
		metrics:      c.Metrics,
		faultHandler: c.FaultHandler,
		history:      newExecutionHistory(c.HistoryCapacity),
		started:      make(chan error, 1),
		stopped:      make(chan struct{}),
	}

	go w.run()

	if err := <-w.started; err != nil {
		queue.Close()
		<-w.stopped
		c.Logger.Error("pump failed to open resource", F("pump", c.Name), F("error", err))
		return nil, err
	}

	return &Pump[R]{
		name:    c.Name,
		queue:   queue,
		worker:  w,
		logger:  c.Logger,
		metrics: c.Metrics,
	}, nil
}

func (p *Pump[R]) submit(item *workItem[R]) error {
	if err := p.queue.Append(item); err != nil {
		p.rejected.Add(1)
		p.metrics.RecordItemRejected(p.name, "closed")
		p.logger.Debug("work item rejected",
			F("pump", p.name),
			F("item", item.name),
			F("kind", item.kind.String()))
		return err
	}
	p.metrics.RecordQueueDepth(p.name, p.queue.Len())
	return nil
}

// BeginInvoke enqueues action and returns immediately. A fault in action is
// logged, handed to the FaultHandler and kept as LastFault; it never stops
// the worker.
func (p *Pump[R]) BeginInvoke(action Action[R]) error {
	if action == nil {
		return errors.Wrap(ErrInvalidArgument, "action is nil")
	}
	return p.submit(newFireAndForgetItem(action))
}

// Invoke enqueues action and blocks until it and every continuation it
// started have run. A fault is returned as a *FaultError.
func (p *Pump[R]) Invoke(action Action[R]) error {
	return p.InvokeContext(context.Background(), action)
}

// InvokeContext is Invoke with a bound on how long the caller waits. When ctx
// ends first, ctx.Err() is returned and the action still runs.
func (p *Pump[R]) InvokeContext(ctx context.Context, action Action[R]) error {
	if action == nil {
		return errors.Wrap(ErrInvalidArgument, "action is nil")
	}
	if p.worker.isCurrent() {
		return errors.Wrap(ErrReentrantCall, "invoke")
	}

	item := newBlockingItem(action)
	if err := p.submit(item); err != nil {
		return err
	}
	return item.completion.Wait(ctx)
}

// InvokeAsync enqueues fn and returns a Task that finishes after the task fn
// returns has finished and every continuation posted to the item's context
// has run on the worker.
func (p *Pump[R]) InvokeAsync(fn AsyncFunc[R]) (*Task, error) {
	if fn == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "async function is nil")
	}

	item := newAsyncItem(fn)
	if err := p.submit(item); err != nil {
		return nil, err
	}
	return item.completion, nil
}

// InTransaction reports whether a transaction is open. The answer may be stale
// by the time the caller acts on it; the transaction methods re-check on the
// worker.
func (p *Pump[R]) InTransaction() bool {
	return p.worker.inTransaction.Load()
}

// BeginTransaction opens a transaction on the resource. Only one may be open
// at a time.
func (p *Pump[R]) BeginTransaction() error {
	if p.InTransaction() {
		return ErrAlreadyInTransaction
	}
	return p.runInternal("begin_transaction", p.worker.beginTransaction)
}

// CommitTransaction commits the open transaction. The transaction slot is
// cleared whether or not the commit succeeds.
func (p *Pump[R]) CommitTransaction() error {
	if !p.InTransaction() {
		return ErrNoActiveTransaction
	}
	return p.runInternal("commit_transaction", func() error {
		return p.worker.resolveTransaction(true)
	})
}

// RollbackTransaction rolls back the open transaction. The transaction slot is
// cleared whether or not the rollback succeeds.
func (p *Pump[R]) RollbackTransaction() error {
	if !p.InTransaction() {
		return ErrNoActiveTransaction
	}
	return p.runInternal("rollback_transaction", func() error {
		return p.worker.resolveTransaction(false)
	})
}

// runInternal runs fn on the worker: inline when already there, otherwise as
// a queued item the caller waits for.
func (p *Pump[R]) runInternal(name string, fn func() error) error {
	if p.worker.isCurrent() {
		return fn()
	}

	item := newInternalItem(name, func(context.Context, R) error {
		return fn()
	})
	if err := p.submit(item); err != nil {
		return err
	}
	return item.completion.Wait(context.Background())
}

// WaitIdle blocks until every item submitted before the call has finished.
func (p *Pump[R]) WaitIdle(ctx context.Context) error {
	if p.worker.isCurrent() {
		return errors.Wrap(ErrReentrantCall, "wait idle")
	}

	item := newInternalItem("barrier", func(context.Context, R) error {
		return nil
	})
	if err := p.submit(item); err != nil {
		return err
	}
	return item.completion.Wait(ctx)
}

// Dispose stops accepting work, lets the worker drain what is queued, resolves
// an open transaction according to AutoCommit, closes the resource and waits
// for the worker to exit. It is idempotent; later calls return the first
// call's result. Calling it from the worker goroutine fails with
// ErrReentrantCall.
func (p *Pump[R]) Dispose() error {
	if p.worker.isCurrent() {
		return errors.Wrap(ErrReentrantCall, "dispose")
	}

	p.disposeOnce.Do(func() {
		p.logger.Debug("disposing pump", F("pump", p.name), F("pending", p.queue.Len()))
		p.queue.Close()
		<-p.worker.stopped
		p.disposeErr = p.worker.shutdownErr
	})
	return p.disposeErr
}

// Close is Dispose, for io.Closer.
func (p *Pump[R]) Close() error {
	return p.Dispose()
}

// Done is closed once the worker has exited.
func (p *Pump[R]) Done() <-chan struct{} {
	return p.worker.stopped
}

func (p *Pump[R]) Name() string {
	return p.name
}

// ThreadID returns the OS thread the worker is locked to. With thread
// migration allowed it is only the thread the worker started on.
func (p *Pump[R]) ThreadID() int64 {
	return p.worker.threadID.Load()
}

// GoroutineID returns the worker goroutine's id.
func (p *Pump[R]) GoroutineID() uint64 {
	return p.worker.goroutineID.Load()
}

// IsWorker reports whether the caller is running on the worker goroutine.
func (p *Pump[R]) IsWorker() bool {
	return p.worker.isCurrent()
}

// LastFault returns the most recent fault no caller could observe: a failed
// fire-and-forget item or a dropped continuation. It is nil when none occurred.
func (p *Pump[R]) LastFault() error {
	if fault := p.worker.lastFault.Load(); fault != nil {
		return fault
	}
	return nil
}

// RecentItems returns up to limit finished items, newest first. A limit of
// zero or less returns the whole history.
func (p *Pump[R]) RecentItems(limit int) []WorkItemRecord {
	return p.worker.history.Recent(limit)
}

// Stats returns a point-in-time snapshot of the pump.
func (p *Pump[R]) Stats() PumpStats {
	stats := PumpStats{
		Name:          p.name,
		ThreadID:      p.ThreadID(),
		GoroutineID:   p.GoroutineID(),
		Pending:       p.queue.Len(),
		Running:       p.worker.running.Load(),
		InTransaction: p.InTransaction(),
		Closed:        p.queue.IsClosed(),
		Executed:      p.worker.executed.Load(),
		Faulted:       p.worker.faulted.Load(),
		Rejected:      p.rejected.Load(),
		RecentFaults:  p.worker.history.Faults(),
	}
	if last, ok := p.worker.history.Last(); ok {
		stats.LastItemName = last.Name
		stats.LastItemAt = last.FinishedAt
	}
	return stats
}
