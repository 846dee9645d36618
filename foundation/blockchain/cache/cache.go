// Package cache maintains the bounded set of block bodies and the complete
// height to hash index of the chain.
package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of block bodies kept when no capacity is
// provided.
const DefaultCapacity = 200_000

// ChunkSize is the number of header hashes stored together in one record.
const ChunkSize = 2000

// Set of errors returned by the cache.
var (
	ErrHeightConflict = errors.New("height is bound to a different hash")
	ErrHashUnbound    = errors.New("block hash is not bound to its height")
	ErrBlockExists    = errors.New("block is already cached")
)

// Cache holds block bodies keyed by hash and the mapping between heights
// and header hashes. Header hashes are never evicted, bodies are evicted
// oldest first once the capacity is reached.
type Cache struct {
	mu       sync.RWMutex
	bodies   *lru.Cache[string, database.Block]
	byHeight map[uint64]string
	byHash   map[string]uint64
	top      uint64
	contig   bool
}

// New constructs a cache holding at most capacity block bodies.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	bodies, err := lru.New[string, database.Block](capacity)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}

	c := Cache{
		bodies:   bodies,
		byHeight: make(map[uint64]string),
		byHash:   make(map[string]uint64),
	}

	return &c, nil
}

// AddHeaderHash binds the hash to the height. Binding the same hash again
// is accepted, binding a different hash to a bound height is refused.
func (c *Cache) AddHeaderHash(height uint64, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, exists := c.byHeight[height]; exists {
		if cur != hash {
			return fmt.Errorf("height[%d]: %w", height, ErrHeightConflict)
		}
		return nil
	}

	c.byHeight[height] = hash
	c.byHash[hash] = height
	c.extend()

	return nil
}

// extend moves the contiguous top forward over any newly bound heights.
func (c *Cache) extend() {
	if !c.contig {
		if _, exists := c.byHeight[0]; !exists {
			return
		}
		c.contig = true
	}

	for {
		if _, exists := c.byHeight[c.top+1]; !exists {
			return
		}
		c.top++
	}
}

// AddBlock stores the block body. The block's hash must already be bound
// to its height.
func (c *Cache) AddBlock(block database.Block) error {
	hash := block.Hash()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.byHeight[block.Header.Number] != hash {
		return fmt.Errorf("height[%d]: %w", block.Header.Number, ErrHashUnbound)
	}

	if c.bodies.Contains(hash) {
		return fmt.Errorf("hash[%s]: %w", hash, ErrBlockExists)
	}

	c.bodies.Add(hash, block)
	return nil
}

// Block returns the cached body for the hash.
func (c *Cache) Block(hash string) (database.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.bodies.Peek(hash)
}

// BlockByHeight returns the cached body for the block bound at height.
func (c *Cache) BlockByHeight(height uint64) (database.Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hash, exists := c.byHeight[height]
	if !exists {
		return database.Block{}, false
	}

	return c.bodies.Peek(hash)
}

// Hash returns the hash bound to the height.
func (c *Cache) Hash(height uint64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hash, exists := c.byHeight[height]
	return hash, exists
}

// Height returns the height the hash is bound to.
func (c *Cache) Height(hash string) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	height, exists := c.byHash[hash]
	return height, exists
}

// HeaderHeight returns the highest height reachable from genesis through
// bound hashes. The boolean is false until genesis is bound.
func (c *Cache) HeaderHeight() (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.top, c.contig
}

// BlockHashes returns the bound hashes for the heights in [start, end).
// The result stops at the first unbound height.
func (c *Cache) BlockHashes(start uint64, end uint64) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if end <= start {
		return nil
	}

	hashes := make([]string, 0, end-start)
	for h := start; h < end; h++ {
		hash, exists := c.byHeight[h]
		if !exists {
			break
		}
		hashes = append(hashes, hash)
	}

	return hashes
}

// Len returns the number of cached block bodies.
func (c *Cache) Len() int {
	return c.bodies.Len()
}
