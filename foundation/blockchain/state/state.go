// Package state is the core API for the blockchain. It owns the chain head,
// the transaction pools and the worker that persists cached blocks.
package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/mineral/foundation/blockchain/cache"
	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/executor"
	"github.com/ardanlabs/mineral/foundation/blockchain/genesis"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
	"github.com/ardanlabs/mineral/foundation/blockchain/mempool"
	"github.com/ardanlabs/mineral/foundation/blockchain/proof"
	"github.com/ardanlabs/mineral/foundation/blockchain/snapshot"
	"github.com/google/uuid"
)

// Set of errors returned by the state.
var (
	ErrNotFound         = errors.New("not found")
	ErrLinkMismatch     = errors.New("block does not link to the chain head")
	ErrGenesisMismatch  = errors.New("stored genesis does not match")
	ErrNotInitialized   = errors.New("state is not initialized")
	ErrShutdown         = errors.New("state is shutting down")
	ErrKnownTransaction = errors.New("transaction is already pending")
)

// DefaultFinalityDepth is the number of commit points kept retreatable
// behind the head.
const DefaultFinalityDepth = 16

// AddResult describes the outcome of adding a block.
type AddResult int

// Set of results for adding a block.
const (
	Accepted AddResult = iota
	RejectedHeight
	RejectedByCache
	RejectedLink
	RejectedCommit
)

var addResults = map[AddResult]string{
	Accepted:        "accepted",
	RejectedHeight:  "rejected_height",
	RejectedByCache: "rejected_by_cache",
	RejectedLink:    "rejected_link",
	RejectedCommit:  "rejected_commit",
}

// String implements the fmt.Stringer interface.
func (r AddResult) String() string {
	if s, exists := addResults[r]; exists {
		return s
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Storage represents the durable engine the state commits into. It is
// normally a *kvstore.Store.
type Storage interface {
	snapshot.Engine
	ledger.Iterator
	Close() error
}

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	DB             Storage
	Genesis        genesis.Genesis
	Proof          proof.Proof
	CacheCapacity  int
	MaxLayers      int
	FinalityDepth  int
	SelectStrategy string
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	evHandler     EventHandler
	genesis       genesis.Genesis
	cacheCapacity int
	finalityDepth int

	db       Storage
	store    *snapshot.Store
	executor *executor.Executor
	proof    proof.Proof
	cache    *cache.Cache

	poolMu sync.Mutex
	rxPool *mempool.Mempool
	txPool *mempool.Mempool

	mu           sync.RWMutex
	head         database.HeadState
	hasHead      bool
	storedHashes uint64
	lastFailures []database.TransactionState

	subMu sync.RWMutex
	subs  map[string]func(database.Block)

	worker   *worker
	shutOnce sync.Once
	shutErr  error
}

// New constructs a new blockchain for data management. Initialize must be
// called before blocks are accepted.
func New(cfg Config) (*State, error) {
	if cfg.DB == nil {
		return nil, errors.New("state: db is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.SelectStrategy == "" {
		cfg.SelectStrategy = "fee"
	}

	rxPool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	txPool, err := mempool.NewWithStrategy(cfg.SelectStrategy)
	if err != nil {
		return nil, err
	}

	prf := cfg.Proof
	if prf == nil {
		prf = proof.NewDPoS(proof.Config{
			RoundBlocks:  cfg.Genesis.RoundBlocks,
			MaxProducers: cfg.Genesis.MaxProducers,
			EvHandler:    proof.EventHandler(ev),
		})
	}

	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = cache.DefaultCapacity
	}

	if cfg.FinalityDepth <= 0 {
		cfg.FinalityDepth = DefaultFinalityDepth
	}

	state := State{
		evHandler:     ev,
		genesis:       cfg.Genesis,
		cacheCapacity: cfg.CacheCapacity,
		finalityDepth: cfg.FinalityDepth,

		db:    cfg.DB,
		store: snapshot.New(cfg.DB, cfg.MaxLayers),
		executor: executor.New(executor.Config{
			ChainID:     cfg.Genesis.ChainID,
			BlockReward: cfg.Genesis.BlockReward,
			EvHandler:   executor.EventHandler(ev),
		}),
		proof: prf,

		rxPool: rxPool,
		txPool: txPool,

		subs: make(map[string]func(database.Block)),
	}

	return &state, nil
}

// Initialize establishes the chain head. A store that already holds a chain
// is reloaded, otherwise the genesis block is persisted. The persist worker
// is started once the head is known.
func (s *State) Initialize(genesisBlock database.Block) error {
	s.evHandler("state: initialize: started")
	defer s.evHandler("state: initialize: completed")

	snap := s.store.NewSnapshot()
	defer snap.Release()

	view := ledger.New(snap)

	hasVersion, err := view.HasVersion()
	if err != nil {
		return err
	}

	head, hasHead, err := view.Head()
	if err != nil {
		return err
	}

	switch {
	case hasVersion && hasHead:
		if err := s.load(view, head, genesisBlock); err != nil {
			return err
		}

	default:
		if err := s.create(genesisBlock); err != nil {
			return err
		}
	}

	runWorker(s)

	return nil
}

// Shutdown cleanly brings the node down. A block being committed completes
// before the worker exits. Calling it again returns the first result.
func (s *State) Shutdown() error {
	s.shutOnce.Do(func() {
		s.evHandler("state: shutdown: started")
		defer s.evHandler("state: shutdown: completed")

		if s.worker != nil {
			s.worker.shutdown()
		}

		s.shutErr = s.db.Close()
	})

	return s.shutErr
}

// =============================================================================

// SubscribePersistCompleted registers the function to be called after every
// committed block. The function runs before the next block is committed so
// it must not block.
func (s *State) SubscribePersistCompleted(fn func(block database.Block)) string {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := uuid.NewString()
	s.subs[id] = fn

	return id
}

// Unsubscribe removes the subscription.
func (s *State) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	delete(s.subs, id)
}

// =============================================================================

// create starts a new chain from the genesis block.
func (s *State) create(genesisBlock database.Block) error {
	s.evHandler("state: initialize: new chain: genesis[%s]", genesisBlock.Hash())

	c, err := cache.New(s.cacheCapacity)
	if err != nil {
		return err
	}
	s.cache = c

	if err := s.cache.AddHeaderHash(0, genesisBlock.Hash()); err != nil {
		return err
	}

	if err := s.cache.AddBlock(genesisBlock); err != nil {
		return err
	}

	if err := s.persist(genesisBlock); err != nil {
		return err
	}

	if err := s.proof.Update(s); err != nil {
		s.evHandler("state: initialize: proof update: ERROR: %s", err)
	}

	return nil
}

// load restores the header hashes and the active turn table of an existing
// chain.
func (s *State) load(view ledger.View, head database.HeadState, genesisBlock database.Block) error {
	s.evHandler("state: initialize: load chain: height[%d]: hash[%s]", head.Height, head.Hash)

	capacity := max(s.cacheCapacity, int(float64(head.Height)*1.1))

	c, err := cache.New(capacity)
	if err != nil {
		return err
	}
	s.cache = c

	// Replay the stored chunks of header hashes.
	var stored uint64
	var bindErr error
	err = ledger.HashChunks(s.db, func(start uint64, hashes []string) bool {
		if start != stored {
			return false
		}
		for i, hash := range hashes {
			if bindErr = s.cache.AddHeaderHash(start+uint64(i), hash); bindErr != nil {
				return false
			}
		}
		stored = start + uint64(len(hashes))
		return true
	})
	if err != nil {
		return err
	}
	if bindErr != nil {
		return bindErr
	}

	// Walk back from head over the part not covered by the chunks.
	for height, hash := head.Height, head.Hash; height >= stored; height-- {
		if err := s.cache.AddHeaderHash(height, hash); err != nil {
			return err
		}

		header, found, err := view.Header(hash)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("header[%d]: %s: %w", height, hash, ErrNotFound)
		}

		if height == 0 {
			break
		}
		hash = header.PrevBlockHash
	}

	if hash, _ := s.cache.Hash(0); hash != genesisBlock.Hash() {
		return fmt.Errorf("stored[%s] provided[%s]: %w", hash, genesisBlock.Hash(), ErrGenesisMismatch)
	}

	s.mu.Lock()
	{
		s.head = head
		s.hasHead = true
		s.storedHashes = stored
	}
	s.mu.Unlock()

	tt, found, err := ledger.TurnTable(s.db, head.Height+1)
	if err != nil {
		return err
	}

	switch {
	case found:
		s.proof.SetTurnTable(tt)
	default:
		if err := s.proof.Update(s); err != nil {
			s.evHandler("state: initialize: proof update: ERROR: %s", err)
		}
	}

	return nil
}
