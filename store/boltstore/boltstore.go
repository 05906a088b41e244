// Package boltstore is a bbolt-backed store.KV whose handles are bound to the
// goroutine that opened them.
package boltstore

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/Swind/go-confined-pump/core"
	"github.com/Swind/go-confined-pump/internal/goid"
	"github.com/Swind/go-confined-pump/store"
)

var recordsBucket = []byte("records")

// Store is one handle on a bolt file. Reads outside a transaction see the
// latest committed state; inside one they also see its own writes.
type Store struct {
	path  string
	db    *bolt.DB
	owner uint64

	tx     *bolt.Tx
	closed bool

	refreshes int
	lastTxID  int
}

var (
	_ store.KV         = (*Store)(nil)
	_ core.Transaction = (*Tx)(nil)
)

// Open opens a handle on the file named by dsn, a path optionally prefixed
// with "file:". The handle belongs to the calling goroutine.
func Open(dsn string) (*Store, error) {
	path := strings.TrimPrefix(dsn, "file:")
	if path == "" {
		return nil, errors.New("boltstore: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolving path")
	}

	db, err := acquire(abs)
	if err != nil {
		return nil, err
	}
	return &Store{path: abs, db: db, owner: goid.Current()}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Refreshes returns how many times Refresh has run.
func (s *Store) Refreshes() int {
	return s.refreshes
}

// LastTxID returns the committed transaction id observed by the last Refresh.
func (s *Store) LastTxID() int {
	return s.lastTxID
}

func (s *Store) check() error {
	if s.closed {
		return store.ErrClosed
	}
	if goid.Current() != s.owner {
		return store.ErrWrongGoroutine
	}
	return nil
}

// Refresh records the latest committed transaction id. bbolt read
// transactions always start from the newest commit, so no snapshot is pinned
// between calls.
func (s *Store) Refresh() error {
	if err := s.check(); err != nil {
		return err
	}
	if s.tx != nil {
		s.refreshes++
		return nil
	}

	err := s.db.View(func(tx *bolt.Tx) error {
		s.lastTxID = tx.ID()
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "refreshing")
	}
	s.refreshes++
	return nil
}

func (s *Store) view(fn func(b *bolt.Bucket) error) error {
	if s.tx != nil {
		return fn(s.tx.Bucket(recordsBucket))
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(recordsBucket))
	})
}

func (s *Store) update(fn func(b *bolt.Bucket) error) error {
	if s.tx != nil {
		return fn(s.tx.Bucket(recordsBucket))
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(recordsBucket))
	})
}

func (s *Store) Get(key string) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, store.ErrEmptyKey
	}

	var out []byte
	err := s.view(func(b *bolt.Bucket) error {
		v := b.Get([]byte(key))
		if v == nil {
			return store.ErrNotFound
		}
		out = append([]byte{}, v...)
		return nil
	})
	return out, err
}

func (s *Store) Put(key string, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if key == "" {
		return store.ErrEmptyKey
	}

	return s.update(func(b *bolt.Bucket) error {
		return errors.Wrapf(b.Put([]byte(key), value), "put %q", key)
	})
}

func (s *Store) Delete(key string) error {
	if err := s.check(); err != nil {
		return err
	}
	if key == "" {
		return store.ErrEmptyKey
	}

	return s.update(func(b *bolt.Bucket) error {
		if b.Get([]byte(key)) == nil {
			return store.ErrNotFound
		}
		return errors.Wrapf(b.Delete([]byte(key)), "delete %q", key)
	})
}

func (s *Store) Keys() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	var keys []string
	err := s.view(func(b *bolt.Bucket) error {
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// BeginTransaction starts a writable bolt transaction. Until it is resolved,
// writers on other handles of the same file wait.
func (s *Store) BeginTransaction() (core.Transaction, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.tx != nil {
		return nil, store.ErrTransactionOpen
	}

	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	s.tx = tx
	return &Tx{s: s, tx: tx}, nil
}

// Close rolls back an unresolved transaction and releases the handle.
func (s *Store) Close() error {
	if err := s.check(); err != nil {
		if errors.Is(err, store.ErrClosed) {
			return nil
		}
		return err
	}

	var rollbackErr error
	if s.tx != nil {
		rollbackErr = s.tx.Rollback()
		s.tx = nil
	}
	s.closed = true
	if err := release(s.path); err != nil {
		return err
	}
	return errors.Wrap(rollbackErr, "rolling back on close")
}

// Tx is the handle's open write transaction.
type Tx struct {
	s  *Store
	tx *bolt.Tx
}

func (t *Tx) finish() error {
	if err := t.s.check(); err != nil {
		return err
	}
	if t.s.tx != t.tx {
		return bolt.ErrTxClosed
	}
	t.s.tx = nil
	return nil
}

func (t *Tx) Commit() error {
	if err := t.finish(); err != nil {
		return err
	}
	return errors.Wrap(t.tx.Commit(), "commit")
}

func (t *Tx) Rollback() error {
	if err := t.finish(); err != nil {
		return err
	}
	return errors.Wrap(t.tx.Rollback(), "rollback")
}
