package core

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTransaction_CommitPublishes verifies writes inside a transaction appear on commit
// Given: An open transaction with a write
// When: The transaction is committed
// Then: The backend holds the value only after the commit
func TestTransaction_CommitPublishes(t *testing.T) {
	backend := newFakeBackend()
	p := newTestPump(t, backend, nil)

	require.NoError(t, p.BeginTransaction())
	assert.True(t, p.InTransaction())

	require.NoError(t, p.Invoke(func(ctx context.Context, r *fakeResource) error {
		r.Put("name", "ada")
		return nil
	}))
	_, ok := backend.get("name")
	assert.False(t, ok, "uncommitted write leaked")

	require.NoError(t, p.CommitTransaction())
	assert.False(t, p.InTransaction())

	v, ok := backend.get("name")
	assert.True(t, ok)
	assert.Equal(t, "ada", v)
}

// TestTransaction_RollbackDiscards verifies rolled back writes never land
func TestTransaction_RollbackDiscards(t *testing.T) {
	backend := newFakeBackend()
	p := newTestPump(t, backend, nil)

	require.NoError(t, p.BeginTransaction())
	require.NoError(t, p.Invoke(func(ctx context.Context, r *fakeResource) error {
		r.Put("name", "ada")
		return nil
	}))
	require.NoError(t, p.RollbackTransaction())

	_, ok := backend.get("name")
	assert.False(t, ok)
	assert.False(t, p.InTransaction())
}

// TestTransaction_StateErrors verifies misuse of the transaction slot
// Given: A pump without a transaction
// When: Commit, Rollback and a double Begin are attempted
// Then: The matching state errors are returned
func TestTransaction_StateErrors(t *testing.T) {
	p := newTestPump(t, newFakeBackend(), nil)

	assert.ErrorIs(t, p.CommitTransaction(), ErrNoActiveTransaction)
	assert.ErrorIs(t, p.RollbackTransaction(), ErrNoActiveTransaction)

	require.NoError(t, p.BeginTransaction())
	assert.ErrorIs(t, p.BeginTransaction(), ErrAlreadyInTransaction)
	require.NoError(t, p.RollbackTransaction())
}

// TestTransaction_ConcurrentBegin verifies only one of many racing begins wins
func TestTransaction_ConcurrentBegin(t *testing.T) {
	p := newTestPump(t, newFakeBackend(), nil)

	var wg sync.WaitGroup
	results := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p.BeginTransaction()
		}()
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyInTransaction)
	}
	assert.Equal(t, 1, wins)
	require.NoError(t, p.CommitTransaction())
}

// TestTransaction_FailedCommitClearsSlot verifies a failed commit still ends the transaction
// Given: A backend whose commits fail
// When: CommitTransaction is called
// Then: The error is returned unwrapped from any FaultError and a new transaction can begin
func TestTransaction_FailedCommitClearsSlot(t *testing.T) {
	backend := newFakeBackend()
	backend.commitErr = errors.New("disk full")
	p := newTestPump(t, backend, nil)

	require.NoError(t, p.BeginTransaction())
	err := p.CommitTransaction()

	assert.ErrorIs(t, err, backend.commitErr)
	assert.NotErrorIs(t, err, ErrPropagatedFault)
	assert.False(t, p.InTransaction())

	require.NoError(t, p.BeginTransaction())
	require.NoError(t, p.RollbackTransaction())
}

// TestTransaction_InlineFromWorker verifies transaction calls made inside an item
// Given: A blocking action that begins, writes and commits through the pump
// When: Invoke returns
// Then: The write is committed and no reentrancy error occurred
func TestTransaction_InlineFromWorker(t *testing.T) {
	backend := newFakeBackend()
	p := newTestPump(t, backend, nil)

	err := p.Invoke(func(ctx context.Context, r *fakeResource) error {
		if err := p.BeginTransaction(); err != nil {
			return err
		}
		r.Put("inline", "ok")
		return p.CommitTransaction()
	})

	require.NoError(t, err)
	v, _ := backend.get("inline")
	assert.Equal(t, "ok", v)
}

// TestTransaction_DisposeResolvesOpenTransaction verifies the AutoCommit policy
// Given: A pump with an open transaction holding a write
// When: The pump is disposed
// Then: The write is committed with AutoCommit and discarded without it
func TestTransaction_DisposeResolvesOpenTransaction(t *testing.T) {
	tests := []struct {
		name       string
		autoCommit bool
		wantStored bool
	}{
		{name: "auto commit", autoCommit: true, wantStored: true},
		{name: "auto rollback", autoCommit: false, wantStored: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			p, err := NewPump("fake", backend.opener(), &PumpConfig{
				Logger:     NewNoOpLogger(),
				AutoCommit: tt.autoCommit,
			})
			require.NoError(t, err)

			require.NoError(t, p.BeginTransaction())
			require.NoError(t, p.BeginInvoke(func(ctx context.Context, r *fakeResource) error {
				r.Put("pending", "value")
				return nil
			}))

			require.NoError(t, p.Dispose())

			_, stored := backend.get("pending")
			assert.Equal(t, tt.wantStored, stored)
			assert.False(t, p.InTransaction())
			assert.Equal(t, int32(1), backend.closed.Load())
		})
	}
}

// TestTransaction_DisposeCombinesErrors verifies shutdown reports every failure
func TestTransaction_DisposeCombinesErrors(t *testing.T) {
	backend := newFakeBackend()
	backend.commitErr = errors.New("commit failed")
	backend.closeErr = errors.New("close failed")
	p, err := NewPump("fake", backend.opener(), &PumpConfig{Logger: NewNoOpLogger(), AutoCommit: true})
	require.NoError(t, err)

	require.NoError(t, p.BeginTransaction())
	err = p.Dispose()

	assert.ErrorIs(t, err, backend.commitErr)
	assert.ErrorIs(t, err, backend.closeErr)
}
