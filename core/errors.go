package core

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned when a required callback is nil.
	ErrInvalidArgument = errors.New("pump: invalid argument")

	// ErrAlreadyInTransaction is returned by BeginTransaction while a transaction is open.
	ErrAlreadyInTransaction = errors.New("pump: a transaction is already open")

	// ErrNoActiveTransaction is returned by Commit/Rollback when no transaction is open.
	ErrNoActiveTransaction = errors.New("pump: no active transaction")

	// ErrQueueClosed is returned when work is submitted after the pump was disposed.
	ErrQueueClosed = errors.New("pump: work queue is closed")

	// ErrPropagatedFault matches every *FaultError returned to a caller.
	ErrPropagatedFault = errors.New("pump: work item faulted")

	// ErrReentrantCall is returned when a blocking pump call is made from the worker goroutine.
	ErrReentrantCall = errors.New("pump: blocking call from the worker goroutine")

	// ErrContextCompleted is returned when a continuation is posted to a finished execution context.
	ErrContextCompleted = errors.New("pump: execution context already completed")

	// ErrNilTask is the fault recorded when an async function returns no task.
	ErrNilTask = errors.New("pump: async function returned a nil task")
)

// FaultError carries a failure raised by caller-supplied work on the worker
// goroutine. Err is the returned error, or a synthesized error for a panic.
type FaultError struct {
	ItemID   string
	ItemName string
	Kind     ItemKind
	Err      error

	// Panic and Stack are set when the work panicked.
	Panic any
	Stack []byte
}

func (e *FaultError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("pump: %s item %s panicked: %v", e.Kind, e.ItemName, e.Panic)
	}
	return fmt.Sprintf("pump: %s item %s failed: %v", e.Kind, e.ItemName, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// Is makes every FaultError match ErrPropagatedFault.
func (e *FaultError) Is(target error) bool { return target == ErrPropagatedFault }

// panicError turns a recovered value into an error, keeping error values intact.
func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return errors.WithMessage(err, "panic")
	}
	return errors.Errorf("panic: %v", rec)
}
