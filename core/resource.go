package core

// Resource is a handle that may only be used from the goroutine (and OS
// thread) that opened it. The pump opens it on its worker and never lets it
// escape.
type Resource interface {
	// Refresh advances the handle's view to observe changes committed elsewhere.
	Refresh() error

	// BeginTransaction opens a mutation scope on the handle.
	BeginTransaction() (Transaction, error)

	// Close releases the handle.
	Close() error
}

// Transaction is a mutation scope opened by a Resource. It is confined to the
// same goroutine as its Resource.
type Transaction interface {
	Commit() error
	Rollback() error
}

// Opener opens a Resource described by an opaque descriptor (a path, a DSN...).
// The pump calls it on the worker goroutine.
type Opener[R Resource] func(descriptor string) (R, error)
