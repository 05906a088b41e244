// Package pgstore is a PostgreSQL store.KV over a single *pgx.Conn. A pgx
// connection is not safe for concurrent use, so each handle is bound to the
// goroutine that opened it.
package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/Swind/go-confined-pump/core"
	"github.com/Swind/go-confined-pump/internal/goid"
	"github.com/Swind/go-confined-pump/store"
)

const defaultStatementTimeout = 5 * time.Second

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is one connection. Statements outside a transaction autocommit.
type Store struct {
	conn    *pgx.Conn
	owner   uint64
	timeout time.Duration

	tx     pgx.Tx
	closed bool
}

var (
	_ store.KV         = (*Store)(nil)
	_ core.Transaction = (*Tx)(nil)
)

// Open connects to dsn. The schema must exist; see Migrate.
func Open(dsn string) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultStatementTimeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connecting")
	}
	return &Store{conn: conn, owner: goid.Current(), timeout: defaultStatementTimeout}, nil
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

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) q() querier {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// Refresh checks the connection. Under READ COMMITTED every statement already
// sees the latest commits.
func (s *Store) Refresh() error {
	if err := s.check(); err != nil {
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return errors.Wrap(s.conn.Ping(ctx), "ping")
}

func (s *Store) Get(key string) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, store.ErrEmptyKey
	}
	ctx, cancel := s.ctx()
	defer cancel()

	var value []byte
	err := s.q().QueryRow(ctx, `SELECT value FROM records WHERE key=$1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return value, errors.Wrapf(err, "get %q", key)
}

func (s *Store) Put(key string, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if key == "" {
		return store.ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}
	ctx, cancel := s.ctx()
	defer cancel()

	const up = `
        INSERT INTO records(key, value, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (key) DO UPDATE
          SET value=EXCLUDED.value, updated_at=EXCLUDED.updated_at`
	_, err := s.q().Exec(ctx, up, key, value)
	return errors.Wrapf(err, "put %q", key)
}

func (s *Store) Delete(key string) error {
	if err := s.check(); err != nil {
		return err
	}
	if key == "" {
		return store.ErrEmptyKey
	}
	ctx, cancel := s.ctx()
	defer cancel()

	tag, err := s.q().Exec(ctx, `DELETE FROM records WHERE key=$1`, key)
	if err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Keys() ([]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.q().Query(ctx, `SELECT key FROM records ORDER BY key`)
	if err != nil {
		return nil, errors.Wrap(err, "keys")
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return keys, errors.Wrap(err, "keys")
}

func (s *Store) BeginTransaction() (core.Transaction, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.tx != nil {
		return nil, store.ErrTransactionOpen
	}
	ctx, cancel := s.ctx()
	defer cancel()

	tx, err := s.conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	s.tx = tx
	return &Tx{s: s, tx: tx}, nil
}

// Close rolls back an unresolved transaction and closes the connection.
func (s *Store) Close() error {
	if err := s.check(); err != nil {
		if errors.Is(err, store.ErrClosed) {
			return nil
		}
		return err
	}
	ctx, cancel := s.ctx()
	defer cancel()

	var err error
	if s.tx != nil {
		err = errors.Wrap(s.tx.Rollback(ctx), "rolling back on close")
		s.tx = nil
	}
	s.closed = true
	return multierr.Append(err, errors.Wrap(s.conn.Close(ctx), "closing connection"))
}

// Tx is the connection's open transaction.
type Tx struct {
	s  *Store
	tx pgx.Tx
}

func (t *Tx) finish() error {
	if err := t.s.check(); err != nil {
		return err
	}
	if t.s.tx != t.tx {
		return pgx.ErrTxClosed
	}
	t.s.tx = nil
	return nil
}

func (t *Tx) Commit() error {
	if err := t.finish(); err != nil {
		return err
	}
	ctx, cancel := t.s.ctx()
	defer cancel()
	return errors.Wrap(t.tx.Commit(ctx), "commit")
}

func (t *Tx) Rollback() error {
	if err := t.finish(); err != nil {
		return err
	}
	ctx, cancel := t.s.ctx()
	defer cancel()
	return errors.Wrap(t.tx.Rollback(ctx), "rollback")
}
