// Package snapshot provides the transactional view over the durable ledger
// state. A Snapshot buffers writes in memory and Commit flushes them to the
// engine as one atomic batch. The Store keeps a bounded journal of the commit
// points so the ledger can step backward and forward over recent blocks.
package snapshot

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/mineral/foundation/blockchain/kvstore"
)

// Set of errors returned by the snapshot package.
var (
	ErrNotFound = kvstore.ErrNotFound
	ErrReleased = errors.New("snapshot has been released")
)

// Engine represents the durable storage a Store commits into.
type Engine interface {
	Get(key []byte) ([]byte, error)
	Write(b *kvstore.Batch) error
}

// entry is a pending write. A deleted entry hides any value below it.
type entry struct {
	value   []byte
	deleted bool
}

// =============================================================================

// Snapshot is an in-memory overlay of pending writes. Reads fall through the
// chain of previous snapshots and finally to the durable engine. A Snapshot
// is owned by a single goroutine.
type Snapshot struct {
	store    *Store
	prev     *Snapshot
	next     *Snapshot
	dirty    map[string]entry
	released bool
}

// Get returns the value for the key as seen by this snapshot.
func (s *Snapshot) Get(key []byte) ([]byte, error) {
	if s.released {
		return nil, ErrReleased
	}

	for cur := s; cur != nil; cur = cur.prev {
		if e, exists := cur.dirty[string(key)]; exists {
			if e.deleted {
				return nil, ErrNotFound
			}
			return append([]byte(nil), e.value...), nil
		}
	}

	return s.store.engine.Get(key)
}

// Put records a write of the value for the key.
func (s *Snapshot) Put(key, value []byte) {
	if s.released {
		return
	}

	s.dirty[string(key)] = entry{value: append([]byte(nil), value...)}
}

// Remove records a deletion of the key.
func (s *Snapshot) Remove(key []byte) {
	if s.released {
		return
	}

	s.dirty[string(key)] = entry{deleted: true}
}

// Merge folds the pending writes of other into this snapshot. Writes in
// other win over writes already pending here. Only the writes owned by other
// are merged, not the writes of its previous snapshots.
func (s *Snapshot) Merge(other *Snapshot) {
	if s.released || other == nil || other.released {
		return
	}

	for k, e := range other.dirty {
		s.dirty[k] = e
	}
}

// SetPrevious stacks this snapshot on top of p.
func (s *Snapshot) SetPrevious(p *Snapshot) {
	s.prev = p
	if p != nil {
		p.next = s
	}
}

// SetNext stacks n on top of this snapshot.
func (s *Snapshot) SetNext(n *Snapshot) {
	if n != nil {
		n.SetPrevious(s)
		return
	}
	s.next = nil
}

// Store returns the store the snapshot commits into.
func (s *Snapshot) Store() *Store {
	return s.store
}

// Previous returns the snapshot below this one.
func (s *Snapshot) Previous() *Snapshot {
	return s.prev
}

// Next returns the snapshot above this one.
func (s *Snapshot) Next() *Snapshot {
	return s.next
}

// Len returns the number of pending writes owned by this snapshot.
func (s *Snapshot) Len() int {
	return len(s.dirty)
}

// Reset discards the pending writes owned by this snapshot.
func (s *Snapshot) Reset() {
	if s.released {
		return
	}

	s.dirty = make(map[string]entry)
}

// Commit flattens this snapshot and every previous snapshot into one batch,
// records the commit height and writes the batch atomically. On failure the
// durable state and the pending writes are left untouched.
func (s *Snapshot) Commit(height uint64) error {
	if s.released {
		return ErrReleased
	}

	var chain []*Snapshot
	for cur := s; cur != nil; cur = cur.prev {
		chain = append(chain, cur)
	}

	flat := make(map[string]entry)
	for i := len(chain) - 1; i >= 0; i-- {
		for k, e := range chain[i].dirty {
			flat[k] = e
		}
	}

	if err := s.store.commit(flat, height); err != nil {
		return fmt.Errorf("commit height[%d]: %w", height, err)
	}

	for _, cur := range chain {
		cur.dirty = make(map[string]entry)
	}

	return nil
}

// Release ends the lifetime of the snapshot and detaches it from the chain.
// Calling Release more than once is a no-op.
func (s *Snapshot) Release() {
	if s.released {
		return
	}

	if s.prev != nil && s.prev.next == s {
		s.prev.next = nil
	}
	if s.next != nil && s.next.prev == s {
		s.next.prev = nil
	}

	s.prev = nil
	s.next = nil
	s.dirty = nil
	s.released = true
}
