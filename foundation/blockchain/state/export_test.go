package state

import "github.com/ardanlabs/mineral/foundation/blockchain/database"

// PersistDirect hands the block to the persist worker without adding it to
// the cache first.
func (s *State) PersistDirect(block database.Block) error {
	return s.worker.persistDirect(block)
}
