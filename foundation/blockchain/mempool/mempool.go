// Package mempool maintains the transaction pools for the blockchain.
package mempool

import (
	"sync"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/mempool/selector"
)

// Mempool represents a cache of transactions keyed by transaction hash.
type Mempool struct {
	pool     map[string]database.SignedTx
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default select strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with specified select strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]database.SignedTx),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Contains reports whether the transaction is in the pool.
func (mp *Mempool) Contains(txID string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[txID]
	return exists
}

// Upsert adds or replaces a transaction in the mempool.
func (mp *Mempool) Upsert(tx database.SignedTx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[tx.Hash()] = tx

	return len(mp.pool)
}

// Insert adds the transaction only when it isn't already in the pool. It
// reports whether the transaction was added.
func (mp *Mempool) Insert(tx database.SignedTx) bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	txID := tx.Hash()
	if _, exists := mp.pool[txID]; exists {
		return false
	}

	mp.pool[txID] = tx
	return true
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(txID string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, txID)
}

// DeleteAll removes the set of transactions from the mempool.
func (mp *Mempool) DeleteAll(txs []database.SignedTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		delete(mp.pool, tx.Hash())
	}
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.SignedTx)
}

// PickBest uses the configured select strategy to return the next set
// of transactions for the next block. Pass -1 for all of them.
func (mp *Mempool) PickBest(howMany int) []database.SignedTx {

	// Group the transactions by account.
	m := make(map[database.AccountID][]database.SignedTx)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for _, tx := range mp.pool {
			m[tx.FromID] = append(m[tx.FromID], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}
