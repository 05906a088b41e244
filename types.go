package confinedpump

import (
	"context"

	"github.com/Swind/go-confined-pump/core"
)

// Re-export commonly used types from core package for convenience.
// This allows users to import only the confinedpump package for most use cases.

// Pump confines a Resource to one worker goroutine
type Pump[R Resource] = core.Pump[R]

// Resource is the capability a confined handle must provide
type Resource = core.Resource

// Transaction is a mutation scope opened by a Resource
type Transaction = core.Transaction

// Opener opens a Resource on the worker goroutine
type Opener[R Resource] = core.Opener[R]

// Action is synchronous work against the resource
type Action[R Resource] = core.Action[R]

// AsyncFunc starts asynchronous work against the resource
type AsyncFunc[R Resource] = core.AsyncFunc[R]

// Task is a deferred computation
type Task = core.Task

// PumpConfig holds pump options
type PumpConfig = core.PumpConfig

// FaultError is a failure raised by submitted work
type FaultError = core.FaultError

// PumpStats is a point-in-time pump snapshot
type PumpStats = core.PumpStats

// WorkItemRecord describes a finished work item
type WorkItemRecord = core.WorkItemRecord

// Errors
var (
	ErrInvalidArgument      = core.ErrInvalidArgument
	ErrAlreadyInTransaction = core.ErrAlreadyInTransaction
	ErrNoActiveTransaction  = core.ErrNoActiveTransaction
	ErrQueueClosed          = core.ErrQueueClosed
	ErrPropagatedFault      = core.ErrPropagatedFault
	ErrReentrantCall        = core.ErrReentrantCall
	ErrContextCompleted     = core.ErrContextCompleted
	ErrNilTask              = core.ErrNilTask
)

// Task helpers
var (
	Completed     = core.Completed
	Go            = core.Go
	Delay         = core.Delay
	NewTaskSource = core.NewTaskSource
)

// Loggers
var (
	NewDefaultLogger = core.NewDefaultLogger
	NewNoOpLogger    = core.NewNoOpLogger
)

// DefaultPumpConfig returns a config with the default logger and metrics
var DefaultPumpConfig = core.DefaultPumpConfig

// NewPump starts a pump whose worker opens the resource named by descriptor.
func NewPump[R Resource](descriptor string, open Opener[R], cfg *PumpConfig) (*Pump[R], error) {
	return core.NewPump(descriptor, open, cfg)
}

// Await runs cont on the worker once t finishes when ctx belongs to a work item.
func Await(ctx context.Context, t *Task, cont func(err error) *Task) *Task {
	return core.Await(ctx, t, cont)
}

// Then is Await for a continuation that finishes synchronously.
func Then(ctx context.Context, t *Task, cont func(err error) error) *Task {
	return core.Then(ctx, t, cont)
}
