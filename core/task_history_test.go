package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestExecutionHistory_Wraps verifies the ring keeps the newest records
// Given: A history of capacity 3
// When: Five records are added
// Then: Recent returns the last three newest first and Last is the fifth
func TestExecutionHistory_Wraps(t *testing.T) {
	h := newExecutionHistory(3)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		h.Add(WorkItemRecord{Name: name})
	}

	names := func(records []WorkItemRecord) []string {
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, r.Name)
		}
		return out
	}

	assert.Equal(t, []string{"e", "d", "c"}, names(h.Recent(0)))
	assert.Equal(t, []string{"e", "d"}, names(h.Recent(2)))
	assert.Equal(t, []string{"e", "d", "c"}, names(h.Recent(10)))

	last, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, "e", last.Name)
}

// TestExecutionHistory_Empty verifies an empty history
func TestExecutionHistory_Empty(t *testing.T) {
	h := newExecutionHistory(0)

	assert.Nil(t, h.Recent(5))
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Len(t, h.items, defaultHistoryCapacity)
}

// TestExecutionHistory_FaultsFollowEviction verifies the fault count only covers retained records
// Given: A history of capacity 2 holding a faulted record
// When: Enough healthy records are added to evict it
// Then: Faults drops back to zero
func TestExecutionHistory_FaultsFollowEviction(t *testing.T) {
	h := newExecutionHistory(2)
	h.Add(WorkItemRecord{Name: "bad", Faulted: true})
	h.Add(WorkItemRecord{Name: "ok"})
	assert.Equal(t, 1, h.Faults())

	h.Add(WorkItemRecord{Name: "ok"})
	assert.Equal(t, 0, h.Faults())

	h.Add(WorkItemRecord{Name: "bad", Faulted: true})
	assert.Equal(t, 1, h.Faults())
}

// TestNewItemRecord verifies a record carries the item identity and timing
func TestNewItemRecord(t *testing.T) {
	item := newBlockingItem(namedAction)
	started := time.Now()
	finished := started.Add(25 * time.Millisecond)

	record := newItemRecord("records", item, started, finished, 2, true)

	assert.Equal(t, item.id.String(), record.ItemID)
	assert.Equal(t, item.name, record.Name)
	assert.Equal(t, KindBlocking, record.Kind)
	assert.Equal(t, "records", record.PumpName)
	assert.Equal(t, item.enqueuedAt, record.EnqueuedAt)
	assert.Equal(t, 25*time.Millisecond, record.Duration)
	assert.Equal(t, int64(2), record.Continuations)
	assert.True(t, record.Faulted)
}
