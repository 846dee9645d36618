// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/signature"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time          `json:"date"`
	ChainID       uint16             `json:"chain_id"`        // The chain id represents an unique id for this running instance.
	TransPerBlock uint16             `json:"trans_per_block"` // The maximum number of transactions that can be in a block.
	BlockReward   uint64             `json:"block_reward"`    // Reward paid to the producer of each block after genesis.
	RoundBlocks   uint64             `json:"round_blocks"`    // Number of blocks produced before the schedule rotates.
	MaxProducers  int                `json:"max_producers"`   // Number of delegates elected into a schedule.
	Producer      database.AccountID `json:"producer"`        // Account recorded as the producer of the genesis block.
	Balances      map[string]uint64  `json:"balances"`        // Initial supply per account.
	Delegates     map[string]string  `json:"delegates"`       // Initial delegates, account to name.
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Block constructs the genesis block. Balances become Supply transactions
// and delegates become RegisterDelegate transactions. The transactions are
// not signed since genesis is applied without verification.
func (g Genesis) Block() (database.Block, error) {
	stamp := uint64(g.Date.UTC().UnixNano())

	var trans []database.SignedTx
	add := func(from string, payload database.Payload) error {
		accountID, err := database.ToAccountID(from)
		if err != nil {
			return fmt.Errorf("genesis account %q: %w", from, err)
		}

		tx := database.Tx{
			ChainID:   g.ChainID,
			Kind:      payload.Kind(),
			FromID:    accountID,
			TimeStamp: stamp,
			Payload:   payload,
		}
		trans = append(trans, database.SignedTx{Tx: tx})

		return nil
	}

	for _, account := range sortedKeys(g.Balances) {
		if err := add(account, database.Supply{Amount: g.Balances[account]}); err != nil {
			return database.Block{}, err
		}
	}

	for _, account := range sortedKeys(g.Delegates) {
		if err := add(account, database.RegisterDelegate{Name: g.Delegates[account]}); err != nil {
			return database.Block{}, err
		}
	}

	root, err := database.TransRoot(trans)
	if err != nil {
		return database.Block{}, err
	}

	block := database.Block{
		Header: database.BlockHeader{
			ChainID:       g.ChainID,
			Number:        0,
			PrevBlockHash: signature.ZeroHash,
			TimeStamp:     uint64(g.Date.UTC().UnixMilli()),
			ProducerID:    g.Producer,
			TransRoot:     root,
		},
		Trans: trans,
	}

	return block, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
