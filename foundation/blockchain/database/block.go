package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/mineral/foundation/blockchain/merkle"
	"github.com/ardanlabs/mineral/foundation/blockchain/signature"
)

// Set of errors returned when validating a block.
var (
	ErrProducerSignature = errors.New("producer signature is invalid")
	ErrTransRoot         = errors.New("transaction root does not match")
)

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	ChainID       uint16    `json:"chain_id"`
	Number        uint64    `json:"number"`          // Height of the block in the chain.
	PrevBlockHash string    `json:"prev_block_hash"` // Hash of the previous block in the chain.
	TimeStamp     uint64    `json:"timestamp"`       // Time the block was produced.
	ProducerID    AccountID `json:"producer"`        // The account who produced the block and receives the reward.
	TransRoot     string    `json:"trans_root"`      // Merkle root of the transactions in this block.
}

// Hash returns the unique hash for the header. The block hash is the
// header hash so the chain can be checked with headers alone.
func (bh BlockHeader) Hash() string {
	return signature.Hash(bh)
}

// Block represents a group of transactions batched together and signed by
// the producer.
type Block struct {
	Header BlockHeader `json:"header"`
	V      *big.Int    `json:"v"`
	R      *big.Int    `json:"r"`
	S      *big.Int    `json:"s"`
	Trans  []SignedTx  `json:"trans"`
}

// NewBlock constructs an unsigned block on top of the previous header.
func NewBlock(prev BlockHeader, producerID AccountID, trans []SignedTx) (Block, error) {
	root, err := TransRoot(trans)
	if err != nil {
		return Block{}, err
	}

	b := Block{
		Header: BlockHeader{
			ChainID:       prev.ChainID,
			Number:        prev.Number + 1,
			PrevBlockHash: prev.Hash(),
			TimeStamp:     uint64(time.Now().UTC().UnixMilli()),
			ProducerID:    producerID,
			TransRoot:     root,
		},
		Trans: trans,
	}

	return b, nil
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() string {
	return b.Header.Hash()
}

// Sign signs the header with the producer's private key.
func (b *Block) Sign(privateKey *ecdsa.PrivateKey) error {
	if PublicKeyToAccountID(privateKey.PublicKey) != b.Header.ProducerID {
		return errors.New("signing key does not match the producer")
	}

	v, r, s, err := signature.Sign(b.Header, privateKey)
	if err != nil {
		return err
	}

	b.V, b.R, b.S = v, r, s
	return nil
}

// Validate performs the structural checks for a block: the transaction root
// matches the transactions and the producer signed the header.
func (b Block) Validate() error {
	root, err := TransRoot(b.Trans)
	if err != nil {
		return err
	}

	if root != b.Header.TransRoot {
		return fmt.Errorf("blk[%d]: %w", b.Header.Number, ErrTransRoot)
	}

	address, err := signature.FromAddress(b.Header, b.V, b.R, b.S)
	if err != nil {
		return fmt.Errorf("blk[%d]: %w: %w", b.Header.Number, ErrProducerSignature, err)
	}

	if AccountID(address) != b.Header.ProducerID {
		return fmt.Errorf("blk[%d]: %w", b.Header.Number, ErrProducerSignature)
	}

	return nil
}

// RemoveTx drops the transaction with the specified hash from the block.
func (b *Block) RemoveTx(txID string) bool {
	for i, tx := range b.Trans {
		if tx.Hash() == txID {
			b.Trans = append(b.Trans[:i], b.Trans[i+1:]...)
			return true
		}
	}
	return false
}

// TransRoot calculates the merkle root for the set of transactions. A block
// without transactions has the zero hash as its root.
func TransRoot(trans []SignedTx) (string, error) {
	if len(trans) == 0 {
		return signature.ZeroHash, nil
	}

	tree, err := merkle.NewTree(trans)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}
