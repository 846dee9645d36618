package snapshot

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ardanlabs/mineral/foundation/blockchain/kvstore"
)

// Set of errors returned when moving through the journal.
var (
	ErrAtRoot   = errors.New("journal is at the root")
	ErrAtTip    = errors.New("journal is at the tip")
	ErrSolid    = errors.New("cannot retreat past the solid point")
	ErrStaleID  = errors.New("layer id is no longer valid")
	ErrNoLayers = errors.New("journal has no layers")
)

// Keys maintained by the store itself.
const (
	CommitKey = "meta:commit"
	SolidKey  = "meta:solid"
)

// DefaultMaxLayers is the number of commit points kept in the journal.
const DefaultMaxLayers = 256

// none marks the absence of a layer, which is the journal root.
const none = -1

// LayerID identifies a commit point in the journal. The generation detects
// ids that refer to a slot that has been reused.
type LayerID struct {
	Index int
	Gen   uint64
}

// layer is one commit point. It holds what to write to move forward over it
// and what to write to move back before it.
type layer struct {
	gen    uint64
	live   bool
	height uint64
	prev   int
	next   int
	redo   map[string]entry
	undo   map[string]entry
}

// Store owns the durable engine and the journal of commit points. Layers are
// kept in an arena and linked by index from the oldest to the newest.
type Store struct {
	engine    Engine
	maxLayers int

	mu     sync.Mutex
	layers []layer
	free   []int
	gen    uint64
	count  int
	oldest int
	head   int
	solid  int
}

// New constructs a store that commits into the engine and keeps at most
// maxLayers commit points.
func New(engine Engine, maxLayers int) *Store {
	if maxLayers <= 0 {
		maxLayers = DefaultMaxLayers
	}

	return &Store{
		engine:    engine,
		maxLayers: maxLayers,
		oldest:    none,
		head:      none,
		solid:     none,
	}
}

// NewSnapshot constructs an empty snapshot over the current durable state.
func (s *Store) NewSnapshot() *Snapshot {
	return &Snapshot{
		store: s,
		dirty: make(map[string]entry),
	}
}

// CommitHeight returns the height recorded by the last commit.
func (s *Store) CommitHeight() (uint64, error) {
	data, err := s.engine.Get([]byte(CommitKey))
	if err != nil {
		return 0, err
	}

	return strconv.ParseUint(string(data), 10, 64)
}

// Head returns the id and height of the current commit point.
func (s *Store) Head() (LayerID, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == none {
		return LayerID{}, 0, ErrNoLayers
	}

	l := s.layers[s.head]
	return LayerID{Index: s.head, Gen: l.gen}, l.height, nil
}

// Height returns the height of the commit point identified by id.
func (s *Store) Height(id LayerID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.Index < 0 || id.Index >= len(s.layers) {
		return 0, ErrStaleID
	}

	l := s.layers[id.Index]
	if !l.live || l.gen != id.Gen {
		return 0, ErrStaleID
	}

	return l.height, nil
}

// Layers returns the number of commit points in the journal.
func (s *Store) Layers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.count
}

// Unsolid returns the number of commit points between the solid point and
// the head that can still be retreated over.
func (s *Store) Unsolid() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for idx := s.head; idx != none && idx != s.solid; idx = s.layers[idx].prev {
		n++
	}
	return n
}

// Retreat reverts the state to the commit point before the head. Only the
// engine is rewritten, so it must run while nothing else commits and any
// head or cache kept above the store must be reloaded afterwards.
func (s *Store) Retreat() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.head == none {
		return ErrAtRoot
	}
	if s.head == s.solid {
		return ErrSolid
	}

	l := s.layers[s.head]
	if err := s.apply(l.undo); err != nil {
		return fmt.Errorf("retreat height[%d]: %w", l.height, err)
	}

	s.head = l.prev
	return nil
}

// Advance re-applies the commit point after the head. The same rules as
// Retreat apply.
func (s *Store) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.oldest
	if s.head != none {
		next = s.layers[s.head].next
	}
	if next == none {
		return ErrAtTip
	}

	l := s.layers[next]
	if err := s.apply(l.redo); err != nil {
		return fmt.Errorf("advance height[%d]: %w", l.height, err)
	}

	s.head = next
	return nil
}

// UpdateSolidity moves the solid point one commit point towards the head and
// prunes the history below it. It reports false when the solid point is
// already at the head.
func (s *Store) UpdateSolidity() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.solid == s.head {
		return false, nil
	}

	next := s.oldest
	if s.solid != none {
		next = s.layers[s.solid].next
	}

	b := kvstore.NewBatch()
	b.Put([]byte(SolidKey), []byte(strconv.FormatUint(s.layers[next].height, 10)))
	if err := s.engine.Write(b); err != nil {
		return false, fmt.Errorf("update solidity: %w", err)
	}

	s.solid = next
	for s.oldest != s.solid {
		s.dropOldest()
	}

	return true, nil
}

// ResetSolidity moves the solid point back to the root of the retained
// journal so every retained commit point can be retreated over.
func (s *Store) ResetSolidity() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.solid = none
}

// Reset drops the journal. The current durable state becomes the new root.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.layers = nil
	s.free = nil
	s.count = 0
	s.oldest = none
	s.head = none
	s.solid = none
}

// =============================================================================

// commit writes the flattened writes as one batch and records a new commit
// point after the head. Commit points ahead of the head are discarded.
func (s *Store) commit(writes map[string]entry, height uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	marker := []byte(strconv.FormatUint(height, 10))

	redo := make(map[string]entry, len(writes)+1)
	for k, e := range writes {
		redo[k] = e
	}
	redo[CommitKey] = entry{value: marker}

	undo := make(map[string]entry, len(redo))
	b := kvstore.NewBatch()
	for k, e := range redo {
		old, err := s.engine.Get([]byte(k))
		switch {
		case err == nil:
			undo[k] = entry{value: old}
		case errors.Is(err, kvstore.ErrNotFound):
			undo[k] = entry{deleted: true}
		default:
			return fmt.Errorf("read key[%s]: %w", k, err)
		}

		if e.deleted {
			b.Delete([]byte(k))
			continue
		}
		b.Put([]byte(k), e.value)
	}

	if err := s.engine.Write(b); err != nil {
		return err
	}

	// Moving forward from a retreated head starts a new branch.
	next := s.oldest
	if s.head != none {
		next = s.layers[s.head].next
	}
	for next != none {
		n := s.layers[next].next
		s.release(next)
		next = n
	}
	if s.head == none {
		s.oldest = none
	}

	idx := s.alloc()
	s.layers[idx] = layer{
		gen:    s.layers[idx].gen,
		live:   true,
		height: height,
		prev:   s.head,
		next:   none,
		redo:   redo,
		undo:   undo,
	}
	if s.head != none {
		s.layers[s.head].next = idx
	}
	if s.oldest == none {
		s.oldest = idx
	}
	s.head = idx
	s.count++

	for s.count > s.maxLayers {
		if s.solid == s.oldest {
			s.solid = none
		}
		s.dropOldest()
	}

	return nil
}

// apply writes a set of entries as one batch.
func (s *Store) apply(writes map[string]entry) error {
	b := kvstore.NewBatch()
	for k, e := range writes {
		if e.deleted {
			b.Delete([]byte(k))
			continue
		}
		b.Put([]byte(k), e.value)
	}

	return s.engine.Write(b)
}

// alloc returns a free slot in the arena with a new generation.
func (s *Store) alloc() int {
	s.gen++

	if n := len(s.free); n > 0 {
		idx := s.free[n-1]
		s.free = s.free[:n-1]
		s.layers[idx].gen = s.gen
		return idx
	}

	s.layers = append(s.layers, layer{gen: s.gen})
	return len(s.layers) - 1
}

// release returns the slot to the free list.
func (s *Store) release(idx int) {
	s.layers[idx] = layer{gen: s.layers[idx].gen}
	s.free = append(s.free, idx)
	s.count--
}

// dropOldest prunes the oldest commit point.
func (s *Store) dropOldest() {
	idx := s.oldest
	next := s.layers[idx].next

	if s.head == idx {
		s.head = none
	}
	s.release(idx)

	s.oldest = next
	if next != none {
		s.layers[next].prev = none
	}
}
