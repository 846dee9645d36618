package state

import (
	"fmt"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/executor"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
)

// SubmitTransaction accepts a transaction from a wallet or a node. It is
// checked against the ledger as if it were in the next block and then added
// to the receive pool.
func (s *State) SubmitTransaction(tx database.SignedTx) error {
	txID := tx.Hash()

	s.poolMu.Lock()
	known := s.rxPool.Contains(txID) || s.txPool.Contains(txID)
	s.poolMu.Unlock()

	if known {
		return fmt.Errorf("tx[%s]: %w", txID, ErrKnownTransaction)
	}

	snap := s.store.NewSnapshot()
	defer snap.Release()

	view := ledger.New(snap)

	if _, found, err := view.Transaction(txID); err != nil {
		return err
	} else if found {
		return fmt.Errorf("tx[%s]: already in a block: %w", txID, executor.ErrValidation)
	}

	height := s.RetrieveHead().Height + 1
	producerID, _ := s.proof.Producer(height)

	bc := executor.BlockContext{
		Height:     height,
		ProducerID: producerID,
	}

	if err := s.executor.Check(view, bc, tx); err != nil {
		return err
	}

	s.poolMu.Lock()
	added := s.rxPool.Insert(tx)
	s.poolMu.Unlock()

	if !added {
		return fmt.Errorf("tx[%s]: %w", txID, ErrKnownTransaction)
	}

	s.evHandler("state: submit: tx[%s]", tx)

	return nil
}

// RetrievePending returns up to howMany of the best pending transactions.
// Pass -1 for all of them.
func (s *State) RetrievePending(howMany int) []database.SignedTx {
	return s.rxPool.PickBest(howMany)
}

// RetrievePoolCounts returns the number of transactions in the receive and
// relay pools.
func (s *State) RetrievePoolCounts() (rx int, tx int) {
	return s.rxPool.Count(), s.txPool.Count()
}

// queueTransactions adds the block's transactions that aren't pending to
// the relay pool.
func (s *State) queueTransactions(block database.Block) {
	s.poolMu.Lock()
	defer s.poolMu.Unlock()

	for _, tx := range block.Trans {
		txID := tx.Hash()
		if s.rxPool.Contains(txID) || s.txPool.Contains(txID) {
			continue
		}
		s.txPool.Upsert(tx)
	}
}
