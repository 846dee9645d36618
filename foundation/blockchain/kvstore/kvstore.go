// Package kvstore provides the durable key value engine for the ledger. It is
// backed by goleveldb and only exposes what the ledger needs: point reads,
// prefix iteration and atomic batch writes.
package kvstore

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("key not found")

// Store is a goleveldb backed key value store.
type Store struct {
	once sync.Once
	db   *leveldb.DB
}

// OpenFile opens or creates the database in the specified directory.
func OpenFile(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb[%s]: %w", path, err)
	}

	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing database without write access.
func OpenReadOnly(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{ReadOnly: true, ErrorIfMissing: true})
	if err != nil {
		return nil, fmt.Errorf("open leveldb[%s]: %w", path, err)
	}

	return &Store{db: db}, nil
}

// OpenMemory opens a database that only lives in memory.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb memory: %w", err)
	}

	return &Store{db: db}, nil
}

// Get retrieves the value for the key.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return value, nil
}

// Write applies every operation in the batch atomically.
func (s *Store) Write(b *Batch) error {
	return s.db.Write(&b.batch, &opt.WriteOptions{Sync: true})
}

// IteratePrefix calls fn for every key with the prefix in key order until fn
// returns false. The key and value are only valid during the call.
func (s *Store) IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}

	return iter.Error()
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

// =============================================================================

// Batch collects operations to be written atomically.
type Batch struct {
	batch leveldb.Batch
}

// NewBatch constructs an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put adds a key value pair to the batch.
func (b *Batch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

// Delete adds a deletion to the batch.
func (b *Batch) Delete(key []byte) {
	b.batch.Delete(key)
}

// Len returns the number of operations in the batch.
func (b *Batch) Len() int {
	return b.batch.Len()
}

// Reset clears the batch.
func (b *Batch) Reset() {
	b.batch.Reset()
}
