package boltstore

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// Handles on the same file share one *bolt.DB; bbolt locks the file per
// process, so a second bolt.Open on it would block.
var registry = struct {
	mu  sync.Mutex
	dbs map[string]*sharedDB
}{dbs: make(map[string]*sharedDB)}

type sharedDB struct {
	db   *bolt.DB
	refs int
}

func acquire(path string) (*bolt.DB, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if shared, ok := registry.dbs[path]; ok {
		shared.refs++
		return shared.db, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", filepath.Dir(path))
	}
	db, err := bolt.Open(path, 0o666, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open file: %s", path)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recordsBucket)
		return errors.Wrapf(err, "creating bucket: %s", recordsBucket)
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	registry.dbs[path] = &sharedDB{db: db, refs: 1}
	return db, nil
}

func release(path string) error {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	shared, ok := registry.dbs[path]
	if !ok {
		return nil
	}
	shared.refs--
	if shared.refs > 0 {
		return nil
	}
	delete(registry.dbs, path)
	return errors.Wrap(shared.db.Close(), "closing bolt db")
}

// openHandles reports how many handles share path.
func openHandles(path string) int {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if shared, ok := registry.dbs[path]; ok {
		return shared.refs
	}
	return 0
}
