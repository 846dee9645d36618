// Package database defines the data that is stored in the ledger: blocks,
// transactions and the state records the transactions mutate.
package database

import "slices"

// DelegateState represents an account registered as a block producer
// candidate and the votes it has received.
type DelegateState struct {
	AccountID AccountID `json:"account"`
	Name      string    `json:"name"`
	Votes     uint64    `json:"votes"`
}

// OtherSignState represents an escrow created by an OtherSign transaction.
// The remaining signers only shrink and the record is deleted once the
// escrow pays out.
type OtherSignState struct {
	TxID             string      `json:"tx_id"`
	FromID           AccountID   `json:"from"`
	Outputs          []Output    `json:"outputs"`
	Required         []AccountID `json:"required"`
	Remaining        []AccountID `json:"remaining"`
	ExpirationHeight uint64      `json:"expiration_height"`
}

// RemoveSigner drops the account from the remaining signers. It reports
// false when the account was not waiting to sign.
func (st *OtherSignState) RemoveSigner(accountID AccountID) bool {
	i := slices.Index(st.Remaining, accountID)
	if i == -1 {
		return false
	}

	st.Remaining = slices.Delete(st.Remaining, i, i+1)
	return true
}

// BlockTriggerState is the set of escrows to finalize at a block height.
type BlockTriggerState struct {
	Height uint64   `json:"height"`
	TxIDs  []string `json:"tx_ids"`
}

// Remove drops the escrow id from the trigger.
func (bt *BlockTriggerState) Remove(txID string) {
	if i := slices.Index(bt.TxIDs, txID); i != -1 {
		bt.TxIDs = slices.Delete(bt.TxIDs, i, i+1)
	}
}

// TurnTableState is the ordered producer schedule that becomes active at
// the specified height.
type TurnTableState struct {
	Height    uint64      `json:"height"`
	Producers []AccountID `json:"producers"`
}

// =============================================================================

// Set of results recorded for a transaction.
const (
	TxSuccess = "success"
	TxFailed  = "failed"
)

// TransactionState is the stored record of a transaction included in a
// block along with the result of applying it.
type TransactionState struct {
	Height uint64   `json:"height"`
	Tx     SignedTx `json:"tx"`
	Result string   `json:"result"`
	Reason string   `json:"reason,omitempty"`
}

// Succeeded reports whether the transaction effects were applied.
func (ts TransactionState) Succeeded() bool {
	return ts.Result == TxSuccess
}

// HeadState identifies the last block committed to the ledger.
type HeadState struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}
