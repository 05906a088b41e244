// Package store defines the key/value resource the pump service confines to
// its worker, and the errors shared by its implementations.
package store

import (
	"github.com/pkg/errors"

	"github.com/Swind/go-confined-pump/core"
)

var (
	// ErrNotFound is returned by Get and Delete for a missing key.
	ErrNotFound = errors.New("store: key not found")

	// ErrEmptyKey is returned for an empty key.
	ErrEmptyKey = errors.New("store: empty key")

	// ErrWrongGoroutine is returned when a handle is used off the goroutine
	// that opened it.
	ErrWrongGoroutine = errors.New("store: handle used from a foreign goroutine")

	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("store: handle is closed")

	// ErrTransactionOpen is returned by BeginTransaction while one is open.
	ErrTransactionOpen = errors.New("store: transaction already open")
)

// KV is a thread-confined key/value handle. Writes made while a transaction
// is open are visible to the handle itself and to nobody else until commit.
type KV interface {
	core.Resource

	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error

	// Keys returns every key in ascending order.
	Keys() ([]string, error)
}

// Opener adapts a concrete opener to core.Opener[KV].
func Opener[S KV](open func(descriptor string) (S, error)) core.Opener[KV] {
	return func(descriptor string) (KV, error) {
		s, err := open(descriptor)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
