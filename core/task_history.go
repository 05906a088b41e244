package core

import (
	"sync"
	"time"
)

const defaultHistoryCapacity = 100

// newItemRecord describes how item ran on the named pump. Internal items
// (transaction control, barriers) are kept under their own names so the
// history shows where a transaction began and ended.
func newItemRecord[R Resource](pumpName string, item *workItem[R], startedAt, finishedAt time.Time, continuations int64, faulted bool) WorkItemRecord {
	return WorkItemRecord{
		ItemID:        item.id.String(),
		Name:          item.name,
		Kind:          item.kind,
		PumpName:      pumpName,
		EnqueuedAt:    item.enqueuedAt,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		Duration:      finishedAt.Sub(startedAt),
		Continuations: continuations,
		Faulted:       faulted,
	}
}

// executionHistory keeps the last finished items of one pump.
type executionHistory struct {
	mu     sync.Mutex
	items  []WorkItemRecord
	head   int
	count  int
	faults int
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultHistoryCapacity
	}
	return &executionHistory{items: make([]WorkItemRecord, capacity)}
}

func (h *executionHistory) Add(record WorkItemRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return
	}

	if h.count == len(h.items) && h.items[h.head].Faulted {
		h.faults--
	}
	if record.Faulted {
		h.faults++
	}
	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first.
func (h *executionHistory) Recent(limit int) []WorkItemRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]WorkItemRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

func (h *executionHistory) Last() (WorkItemRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return WorkItemRecord{}, false
	}

	idx := (h.head - 1 + len(h.items)) % len(h.items)
	return h.items[idx], true
}

// Faults returns how many of the retained records faulted.
func (h *executionHistory) Faults() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.faults
}
