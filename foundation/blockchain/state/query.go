package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/genesis"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
)

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveHead returns the last committed block.
func (s *State) RetrieveHead() database.HeadState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.head
}

// RetrieveHeaderHeight returns the highest height with a known header hash
// reachable from genesis. It can be ahead of the head.
func (s *State) RetrieveHeaderHeight() uint64 {
	if s.cache == nil {
		return 0
	}

	height, _ := s.cache.HeaderHeight()
	return height
}

// RetrieveProducer returns the account scheduled to produce the block at
// the height.
func (s *State) RetrieveProducer(height uint64) (database.AccountID, bool) {
	return s.proof.Producer(height)
}

// =============================================================================

// GetBlockHash returns the hash bound to the height.
func (s *State) GetBlockHash(height uint64) (string, error) {
	hash, exists := s.cache.Hash(height)
	if !exists {
		return "", fmt.Errorf("height[%d]: %w", height, ErrNotFound)
	}
	return hash, nil
}

// GetHeader returns the header of the block at the height.
func (s *State) GetHeader(height uint64) (database.BlockHeader, error) {
	hash, err := s.GetBlockHash(height)
	if err != nil {
		return database.BlockHeader{}, err
	}
	return s.GetHeaderByHash(hash)
}

// GetHeaderByHash returns the header of the block with the hash.
func (s *State) GetHeaderByHash(hash string) (database.BlockHeader, error) {
	if block, exists := s.cache.Block(hash); exists {
		return block.Header, nil
	}

	var header database.BlockHeader
	err := s.read(func(view ledger.View) error {
		h, found, err := view.Header(hash)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("header[%s]: %w", hash, ErrNotFound)
		}
		header = h
		return nil
	})

	return header, err
}

// GetNextHeader returns the header of the block that follows the hash.
func (s *State) GetNextHeader(hash string) (database.BlockHeader, error) {
	height, exists := s.cache.Height(hash)
	if !exists {
		return database.BlockHeader{}, fmt.Errorf("hash[%s]: %w", hash, ErrNotFound)
	}
	return s.GetHeader(height + 1)
}

// GetBlock returns the block at the height.
func (s *State) GetBlock(height uint64) (database.Block, error) {
	hash, err := s.GetBlockHash(height)
	if err != nil {
		return database.Block{}, err
	}
	return s.GetBlockByHash(hash)
}

// GetBlockByHash returns the block with the hash.
func (s *State) GetBlockByHash(hash string) (database.Block, error) {
	if block, exists := s.cache.Block(hash); exists {
		return block, nil
	}

	var block database.Block
	err := s.read(func(view ledger.View) error {
		b, found, err := view.Block(hash)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("block[%s]: %w", hash, ErrNotFound)
		}
		block = b
		return nil
	})

	return block, err
}

// GetNextBlock returns the block that follows the hash.
func (s *State) GetNextBlock(hash string) (database.Block, error) {
	height, exists := s.cache.Height(hash)
	if !exists {
		return database.Block{}, fmt.Errorf("hash[%s]: %w", hash, ErrNotFound)
	}
	return s.GetBlock(height + 1)
}

// GetBlocks returns the blocks from start to end inclusive. The result stops
// at the first height without a block.
func (s *State) GetBlocks(start uint64, end uint64) ([]database.Block, error) {
	var blocks []database.Block
	for height := start; height <= end; height++ {
		block, err := s.GetBlock(height)
		if err != nil {
			if len(blocks) > 0 && errors.Is(err, ErrNotFound) {
				break
			}
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// ContainsBlock reports whether the block is cached or stored.
func (s *State) ContainsBlock(hash string) bool {
	if _, exists := s.cache.Block(hash); exists {
		return true
	}

	_, err := s.GetBlockByHash(hash)
	return err == nil
}

// =============================================================================

// GetTransaction returns a committed transaction and its result.
func (s *State) GetTransaction(txID string) (database.TransactionState, error) {
	var ts database.TransactionState
	err := s.read(func(view ledger.View) error {
		t, found, err := view.Transaction(txID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("tx[%s]: %w", txID, ErrNotFound)
		}
		ts = t
		return nil
	})

	return ts, err
}

// GetAccountState returns the state of the account. An account that never
// transacted has an empty state.
func (s *State) GetAccountState(accountID database.AccountID) (database.AccountState, error) {
	var acct database.AccountState
	err := s.read(func(view ledger.View) error {
		a, err := view.Account(accountID)
		acct = a
		return err
	})

	return acct, err
}

// GetDelegateState returns the delegate registered by the account.
func (s *State) GetDelegateState(accountID database.AccountID) (database.DelegateState, error) {
	var dlg database.DelegateState
	err := s.read(func(view ledger.View) error {
		d, found, err := view.Delegate(accountID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("delegate[%s]: %w", accountID, ErrNotFound)
		}
		dlg = d
		return nil
	})

	return dlg, err
}

// GetDelegateStateAll returns every registered delegate.
func (s *State) GetDelegateStateAll() ([]database.DelegateState, error) {
	var dlgs []database.DelegateState
	err := s.read(func(view ledger.View) error {
		d, err := view.Delegates()
		dlgs = d
		return err
	})

	return dlgs, err
}

// GetTurnTable returns the producer schedule in effect at the height.
func (s *State) GetTurnTable(height uint64) (database.TurnTableState, error) {
	tt, found, err := ledger.TurnTable(s.db, height)
	if err != nil {
		return database.TurnTableState{}, err
	}
	if !found {
		return database.TurnTableState{}, fmt.Errorf("turntable[%d]: %w", height, ErrNotFound)
	}
	return tt, nil
}

// =============================================================================

// read runs fn against a view of the committed state.
func (s *State) read(fn func(view ledger.View) error) error {
	snap := s.store.NewSnapshot()
	defer snap.Release()

	return fn(ledger.New(snap))
}
