package state

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ardanlabs/mineral/foundation/blockchain/cache"
	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/executor"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
)

// ErrNoTransactions is returned when a block is requested to be produced
// and there are no transactions pending.
var ErrNoTransactions = errors.New("no transactions in pool")

// =============================================================================

// AddBlock binds the block's hash to its height and caches the block. The
// persist worker commits it once it links to the head. A block with a bad
// root or signature never claims its height.
func (s *State) AddBlock(block database.Block) (AddResult, error) {
	if s.cache == nil {
		return RejectedByCache, ErrNotInitialized
	}

	if err := block.Validate(); err != nil {
		return RejectedByCache, err
	}

	if err := s.cache.AddHeaderHash(block.Header.Number, block.Hash()); err != nil {
		return RejectedHeight, err
	}

	if err := s.cache.AddBlock(block); err != nil {
		return RejectedByCache, err
	}

	s.evHandler("state: addblock: height[%d]: hash[%s]", block.Header.Number, block.Hash())

	return Accepted, nil
}

// AddBlockDirectly adds the block and waits for the persist worker to
// commit it. A failed commit leaves the block cached for the worker to
// retry and is reported as RejectedCommit.
func (s *State) AddBlockDirectly(block database.Block) (AddResult, error) {
	result, err := s.AddBlock(block)
	if err != nil {
		return result, err
	}

	if err := s.worker.persistDirect(block); err != nil {
		if errors.Is(err, ErrLinkMismatch) {
			return RejectedLink, err
		}
		return RejectedCommit, err
	}

	return Accepted, nil
}

// VerifyBlock applies the block's transactions to a disposable snapshot.
// Transactions that fail are removed from the block and the pools and
// recorded for LastVerifyFailures. It reports whether every transaction
// passed. A block that lost transactions needs a new root and signature.
func (s *State) VerifyBlock(block *database.Block) bool {
	snap := s.store.NewSnapshot()
	defer snap.Release()

	view := ledger.New(snap)
	bc := executor.BlockContext{
		Height:     block.Header.Number,
		ProducerID: block.Header.ProducerID,
	}

	var failures []database.TransactionState
	kept := make([]database.SignedTx, 0, len(block.Trans))

	for _, tx := range block.Trans {
		if bc.Height > 0 {
			if err := s.executor.Check(view, bc, tx); err != nil {
				if !errors.Is(err, executor.ErrValidation) {
					s.evHandler("state: verifyblock: height[%d]: ERROR: %s", bc.Height, err)
					return false
				}

				failures = append(failures, database.TransactionState{
					Height: bc.Height,
					Tx:     tx,
					Result: database.TxFailed,
					Reason: err.Error(),
				})
				continue
			}
		}

		ts, err := s.executor.ApplyTx(snap, bc, tx)
		if err != nil {
			s.evHandler("state: verifyblock: height[%d]: ERROR: %s", bc.Height, err)
			return false
		}

		if !ts.Succeeded() {
			failures = append(failures, ts)
			continue
		}

		kept = append(kept, tx)
	}

	s.mu.Lock()
	s.lastFailures = failures
	s.mu.Unlock()

	if len(failures) == 0 {
		return true
	}

	s.poolMu.Lock()
	{
		for _, ts := range failures {
			txID := ts.Tx.Hash()
			s.rxPool.Delete(txID)
			s.txPool.Delete(txID)
			s.evHandler("state: verifyblock: height[%d]: excised[%s]: %s", bc.Height, txID, ts.Reason)
		}
	}
	s.poolMu.Unlock()

	block.Trans = kept

	return false
}

// LastVerifyFailures returns the transactions excised by the last call to
// VerifyBlock.
func (s *State) LastVerifyFailures() []database.TransactionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]database.TransactionState(nil), s.lastFailures...)
}

// ProduceBlock builds a block on top of the head from the best pending
// transactions, signs it with the producer's key and commits it.
func (s *State) ProduceBlock(privateKey *ecdsa.PrivateKey) (database.Block, error) {
	s.evHandler("state: produceblock: started")
	defer s.evHandler("state: produceblock: completed")

	howMany := int(s.genesis.TransPerBlock)
	if howMany == 0 {
		howMany = -1
	}

	trans := s.rxPool.PickBest(howMany)
	if len(trans) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	head := s.RetrieveHead()
	prev, err := s.GetHeaderByHash(head.Hash)
	if err != nil {
		return database.Block{}, err
	}

	producerID := database.PublicKeyToAccountID(privateKey.PublicKey)

	block, err := database.NewBlock(prev, producerID, trans)
	if err != nil {
		return database.Block{}, err
	}

	if !s.VerifyBlock(&block) {
		if len(block.Trans) == 0 {
			return database.Block{}, ErrNoTransactions
		}

		root, err := database.TransRoot(block.Trans)
		if err != nil {
			return database.Block{}, err
		}
		block.Header.TransRoot = root
	}

	if err := block.Sign(privateKey); err != nil {
		return database.Block{}, err
	}

	if _, err := s.AddBlockDirectly(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// =============================================================================

// PersistTurnTable stores the producer schedule that becomes active at the
// height.
func (s *State) PersistTurnTable(producers []database.AccountID, height uint64) error {
	snap := s.store.NewSnapshot()
	defer snap.Release()

	view := ledger.New(snap)
	if err := view.PutTurnTable(database.TurnTableState{Height: height, Producers: producers}); err != nil {
		return err
	}

	return snap.Commit(s.RetrieveHead().Height)
}

// RetrieveDelegates returns every registered delegate.
func (s *State) RetrieveDelegates() ([]database.DelegateState, error) {
	return s.GetDelegateStateAll()
}

// =============================================================================

// commitBlock persists the block, rotates the producer schedule when due
// and notifies subscribers. Only the persist worker calls this.
func (s *State) commitBlock(block database.Block) error {
	if err := s.persist(block); err != nil {
		return err
	}

	height := block.Header.Number
	if s.proof.RemainUpdate(height) <= 0 {
		if err := s.proof.Update(s); err != nil {
			s.evHandler("state: commit: height[%d]: proof update: ERROR: %s", height, err)
		}
	}

	s.persistCompleted(block)

	return nil
}

// persist applies the block to a new snapshot and commits it along with the
// block, the head record and any full chunk of header hashes.
func (s *State) persist(block database.Block) error {
	hash := block.Hash()
	height := block.Header.Number

	s.mu.RLock()
	head, hasHead, stored := s.head, s.hasHead, s.storedHashes
	s.mu.RUnlock()

	if hasHead {
		if block.Header.PrevBlockHash != head.Hash || height != head.Height+1 {
			return fmt.Errorf("blk[%d]: prev[%s] head[%d:%s]: %w", height, block.Header.PrevBlockHash, head.Height, head.Hash, ErrLinkMismatch)
		}
	}

	snap := s.store.NewSnapshot()
	defer snap.Release()

	results, err := s.executor.ApplyBlock(snap, block)
	if err != nil {
		return fmt.Errorf("blk[%d]: apply: %w", height, err)
	}

	view := ledger.New(snap)

	if err := view.PutBlock(block); err != nil {
		return err
	}

	if err := view.PutHead(database.HeadState{Height: height, Hash: hash}); err != nil {
		return err
	}

	if !hasHead {
		view.PutVersion()
	}

	for stored+cache.ChunkSize <= height+1 {
		hashes := s.cache.BlockHashes(stored, stored+cache.ChunkSize)
		if len(hashes) < cache.ChunkSize {
			break
		}

		if err := view.PutHashChunk(stored, hashes); err != nil {
			return err
		}
		stored += cache.ChunkSize
	}

	if err := snap.Commit(height); err != nil {
		return fmt.Errorf("blk[%d]: commit: %w", height, err)
	}

	s.mu.Lock()
	{
		s.head = database.HeadState{Height: height, Hash: hash}
		s.hasHead = true
		s.storedHashes = stored
	}
	s.mu.Unlock()

	for s.store.Unsolid() > s.finalityDepth {
		moved, err := s.store.UpdateSolidity()
		if err != nil {
			s.evHandler("state: persist: solidity: ERROR: %s", err)
			break
		}
		if !moved {
			break
		}
	}

	var failed int
	for _, ts := range results {
		if !ts.Succeeded() {
			failed++
		}
	}

	s.evHandler("state: persist: height[%d]: hash[%s]: trans[%d]: failed[%d]", height, hash, len(results), failed)

	return nil
}

// persistCompleted removes the block's transactions from the pools and
// notifies the subscribers.
func (s *State) persistCompleted(block database.Block) {
	s.poolMu.Lock()
	{
		s.rxPool.DeleteAll(block.Trans)
		s.txPool.DeleteAll(block.Trans)
	}
	s.poolMu.Unlock()

	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, fn := range s.subs {
		fn(block)
	}
}
