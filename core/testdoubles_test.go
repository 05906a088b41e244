package core

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Swind/go-confined-pump/internal/goid"
)

var errOpenFailed = errors.New("fake: open failed")

// fakeBackend is committed state shared by every fakeResource opened on it,
// standing in for a database file other handles can write to.
type fakeBackend struct {
	mu        sync.Mutex
	committed map[string]string

	commitErr error
	closeErr  error

	opened atomic.Int32
	closed atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{committed: make(map[string]string)}
}

func (b *fakeBackend) opener() Opener[*fakeResource] {
	return func(descriptor string) (*fakeResource, error) {
		if descriptor == "fail" {
			return nil, errOpenFailed
		}
		b.opened.Add(1)
		return &fakeResource{
			backend: b,
			owner:   goid.Current(),
			view:    make(map[string]string),
		}, nil
	}
}

// set commits a value from outside the pump.
func (b *fakeBackend) set(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.committed[key] = value
}

func (b *fakeBackend) get(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.committed[key]
	return v, ok
}

// fakeResource counts every call made from a goroutine other than the one
// that opened it.
type fakeResource struct {
	backend    *fakeBackend
	owner      uint64
	violations atomic.Int32

	view      map[string]string
	refreshes int
	tx        *fakeTx
}

func (r *fakeResource) check() {
	if goid.Current() != r.owner {
		r.violations.Add(1)
	}
}

func (r *fakeResource) Refresh() error {
	r.check()
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()

	r.view = make(map[string]string, len(r.backend.committed))
	for k, v := range r.backend.committed {
		r.view[k] = v
	}
	r.refreshes++
	return nil
}

func (r *fakeResource) Get(key string) string {
	r.check()
	if r.tx != nil {
		if v, ok := r.tx.pending[key]; ok {
			return v
		}
	}
	return r.view[key]
}

func (r *fakeResource) Put(key, value string) {
	r.check()
	if r.tx != nil {
		r.tx.pending[key] = value
		return
	}
	r.backend.set(key, value)
	r.view[key] = value
}

func (r *fakeResource) BeginTransaction() (Transaction, error) {
	r.check()
	r.tx = &fakeTx{r: r, pending: make(map[string]string)}
	return r.tx, nil
}

func (r *fakeResource) Close() error {
	r.check()
	r.backend.closed.Add(1)
	return r.backend.closeErr
}

type fakeTx struct {
	r       *fakeResource
	pending map[string]string
}

func (tx *fakeTx) Commit() error {
	tx.r.check()
	tx.r.tx = nil
	if tx.r.backend.commitErr != nil {
		return tx.r.backend.commitErr
	}
	for k, v := range tx.pending {
		tx.r.backend.set(k, v)
		tx.r.view[k] = v
	}
	return nil
}

func (tx *fakeTx) Rollback() error {
	tx.r.check()
	tx.r.tx = nil
	return nil
}

// newTestPump opens a pump over backend with a silent logger. The pump is
// disposed when the test ends.
func newTestPump(t *testing.T, backend *fakeBackend, configure func(*PumpConfig)) *Pump[*fakeResource] {
	t.Helper()

	cfg := &PumpConfig{
		Name:   t.Name(),
		Logger: NewNoOpLogger(),
	}
	if configure != nil {
		configure(cfg)
	}

	p, err := NewPump("fake", backend.opener(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Dispose() })
	return p
}
