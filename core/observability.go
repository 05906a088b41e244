package core

import "time"

// WorkItemRecord captures a completed work item execution.
type WorkItemRecord struct {
	ItemID        string
	Name          string
	Kind          ItemKind
	PumpName      string
	EnqueuedAt    time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
	Duration      time.Duration
	Continuations int64
	Faulted       bool
}

// PumpStats represents runtime observability state for a pump.
type PumpStats struct {
	Name          string
	ThreadID      int64
	GoroutineID   uint64
	Pending       int
	Running       bool
	InTransaction bool
	Closed        bool
	Executed      uint64
	Faulted       uint64
	Rejected      int64
	RecentFaults  int
	LastItemName  string
	LastItemAt    time.Time
}
