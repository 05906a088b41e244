// Package confinedpump runs work against a thread-confined resource from any
// number of goroutines.
//
// A Pump owns one dedicated worker goroutine, locked to a single OS thread,
// that opens the resource and is the only code ever to touch it. Callers
// submit work in three ways and the worker executes it strictly in FIFO order:
//
//   - BeginInvoke queues an action and returns at once.
//   - Invoke queues an action and waits for it.
//   - InvokeAsync queues a function that starts asynchronous work and returns
//     a Task; every continuation registered with Await runs back on the worker.
//
// The pump also tracks at most one open transaction on the resource and
// resolves it when disposed, committing or rolling back per AutoCommit.
//
// # Quick Start
//
//	p, err := confinedpump.NewPump("file:data/records.boltdb",
//		store.Opener(boltstore.Open), confinedpump.DefaultPumpConfig())
//	if err != nil {
//		return err
//	}
//	defer p.Dispose()
//
//	err = p.Invoke(func(ctx context.Context, kv store.KV) error {
//		return kv.Put("greeting", []byte("hello"))
//	})
//
// # Continuations
//
// The ctx handed to an action carries the item's execution context. Awaiting
// a task with that ctx resumes on the worker, and the item only completes once
// those continuations have run:
//
//	task, err := p.InvokeAsync(func(ctx context.Context, kv store.KV) *confinedpump.Task {
//		fetched := confinedpump.Go(fetchRemote)
//		return confinedpump.Then(ctx, fetched, func(err error) error {
//			if err != nil {
//				return err
//			}
//			return kv.Put("fetched", []byte("yes")) // back on the worker
//		})
//	})
//
// # Faults
//
// Errors and panics raised by submitted work never stop the worker. Blocking
// and async callers receive them as *FaultError; fire-and-forget faults go to
// the FaultHandler and LastFault.
package confinedpump
