// Package executor applies transactions to the ledger. It owns the rules for
// validating each kind of transaction and the effects each kind has on the
// account, delegate and escrow records.
package executor

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
	"github.com/ardanlabs/mineral/foundation/blockchain/snapshot"
)

// ErrValidation is wrapped by every error caused by a transaction breaking a
// ledger rule. Any other error returned by the executor is a storage error.
var ErrValidation = errors.New("transaction is invalid")

// Defaults for the structural limits.
const (
	DefaultMaxTransferOutputs = 256
	DefaultMaxVotes           = 30
	maxDelegateName           = 32
)

// EventHandler defines a function that is called when events
// occur while applying transactions.
type EventHandler func(v string, args ...any)

// Config represents the rules of the chain the executor enforces.
type Config struct {
	ChainID            uint16
	BlockReward        uint64
	MaxTransferOutputs int
	MaxVotes           int
	EvHandler          EventHandler
}

// Executor applies transactions and blocks to snapshots.
type Executor struct {
	chainID     uint16
	blockReward uint64
	maxOutputs  int
	maxVotes    int
	evHandler   EventHandler
}

// New constructs an executor for the chain.
func New(cfg Config) *Executor {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.MaxTransferOutputs <= 0 {
		cfg.MaxTransferOutputs = DefaultMaxTransferOutputs
	}
	if cfg.MaxVotes <= 0 {
		cfg.MaxVotes = DefaultMaxVotes
	}

	return &Executor{
		chainID:     cfg.ChainID,
		blockReward: cfg.BlockReward,
		maxOutputs:  cfg.MaxTransferOutputs,
		maxVotes:    cfg.MaxVotes,
		evHandler:   ev,
	}
}

// BlockContext describes the block a transaction is applied in.
type BlockContext struct {
	Height     uint64
	ProducerID database.AccountID
}

// =============================================================================

// ApplyBlock applies every transaction in the block followed by the block
// trailer. Genesis transactions are applied without verification.
func (e *Executor) ApplyBlock(snap *snapshot.Snapshot, block database.Block) ([]database.TransactionState, error) {
	bc := BlockContext{
		Height:     block.Header.Number,
		ProducerID: block.Header.ProducerID,
	}

	results := make([]database.TransactionState, 0, len(block.Trans))
	for _, tx := range block.Trans {
		ts, err := e.ApplyTx(snap, bc, tx)
		if err != nil {
			return nil, err
		}
		results = append(results, ts)
	}

	if err := e.ApplyTrailer(snap, bc); err != nil {
		return nil, err
	}

	return results, nil
}

// ApplyTx applies a single transaction to the snapshot. A transaction that
// breaks a rule has its fee charged and a failed result recorded, and the
// returned error is nil. Only storage errors are returned.
func (e *Executor) ApplyTx(snap *snapshot.Snapshot, bc BlockContext, tx database.SignedTx) (database.TransactionState, error) {
	ts := database.TransactionState{
		Height: bc.Height,
		Tx:     tx,
		Result: database.TxSuccess,
	}

	child := snap.Store().NewSnapshot()
	defer child.Release()
	child.SetPrevious(snap)

	view := ledger.New(child)

	if bc.Height > 0 {
		if err := e.Check(view, bc, tx); err != nil {
			if !errors.Is(err, ErrValidation) {
				return database.TransactionState{}, err
			}
			return e.void(snap, ts, err)
		}
	}

	if err := e.apply(view, bc, tx); err != nil {
		if !errors.Is(err, ErrValidation) {
			return database.TransactionState{}, err
		}
		return e.void(snap, ts, err)
	}

	if err := view.PutTransaction(ts); err != nil {
		return database.TransactionState{}, err
	}

	snap.Merge(child)

	return ts, nil
}

// ApplyTrailer runs the end of block processing. Escrows expiring at this
// height pay out to their recipients and the producer is credited the
// block reward.
func (e *Executor) ApplyTrailer(snap *snapshot.Snapshot, bc BlockContext) error {
	view := ledger.New(snap)

	trigger, err := view.Trigger(bc.Height)
	if err != nil {
		return err
	}

	for _, txID := range trigger.TxIDs {
		st, found, err := view.OtherSign(txID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		e.evHandler("executor: trailer: blk[%d]: escrow[%s]: expired: remaining[%d]", bc.Height, txID, len(st.Remaining))
		if err := e.payout(view, st); err != nil {
			return err
		}
	}

	if bc.Height == 0 || e.blockReward == 0 {
		return nil
	}

	return e.credit(view, bc.ProducerID, e.blockReward)
}

// =============================================================================

// void charges the fee of a failed transaction, as much of it as the sender
// can pay, and records the failure.
func (e *Executor) void(snap *snapshot.Snapshot, ts database.TransactionState, cause error) (database.TransactionState, error) {
	e.evHandler("executor: apply: blk[%d]: tx[%s]: FAILED: %s", ts.Height, ts.Tx.Hash(), cause)

	view := ledger.New(snap)

	from, err := view.Account(ts.Tx.FromID)
	if err != nil {
		return database.TransactionState{}, err
	}

	fee := min(ts.Tx.Fee, from.Balance)
	if fee > 0 {
		from.Balance -= fee
		if err := view.PutAccount(from); err != nil {
			return database.TransactionState{}, err
		}
	}

	ts.Result = database.TxFailed
	ts.Reason = cause.Error()
	if err := view.PutTransaction(ts); err != nil {
		return database.TransactionState{}, err
	}

	return ts, nil
}

// apply performs the effects of the transaction. The sender is written
// before any other account is credited so a sender paying itself is handled.
func (e *Executor) apply(view ledger.View, bc BlockContext, tx database.SignedTx) error {
	txID := tx.Hash()

	from, err := view.Account(tx.FromID)
	if err != nil {
		return err
	}

	if tx.Kind != database.KindSupply {
		if from.Balance < tx.Fee {
			return invalid("insufficient balance for fee: balance[%d] fee[%d]", from.Balance, tx.Fee)
		}
		from.Balance -= tx.Fee
	}

	var credits []database.Output
	var signs []string

	switch p := tx.Payload.(type) {
	case database.Transfer:
		total, err := sumOutputs(p.Outputs)
		if err != nil {
			return err
		}
		if from.Balance < total {
			return invalid("insufficient balance: balance[%d] amount[%d]", from.Balance, total)
		}
		from.Balance -= total
		credits = p.Outputs

	case database.VoteCast:
		from.LastVoteTxID = txID
		for _, v := range from.Votes {
			if err := e.vote(view, v.Delegate, v.Amount, false); err != nil {
				return err
			}
		}
		for _, v := range p.Votes {
			if err := e.vote(view, v.Delegate, v.Amount, true); err != nil {
				return err
			}
		}
		from.Votes = slices.Clone(p.Votes)

	case database.RegisterDelegate:
		dlg := database.DelegateState{
			AccountID: tx.FromID,
			Name:      p.Name,
		}
		if err := view.PutDelegate(dlg); err != nil {
			return err
		}

	case database.OtherSign:
		total, err := sumOutputs(p.Outputs)
		if err != nil {
			return err
		}
		if from.Balance < total {
			return invalid("insufficient balance: balance[%d] amount[%d]", from.Balance, total)
		}
		from.Balance -= total

		st := database.OtherSignState{
			TxID:             txID,
			FromID:           tx.FromID,
			Outputs:          slices.Clone(p.Outputs),
			Required:         slices.Clone(p.Others),
			Remaining:        slices.Clone(p.Others),
			ExpirationHeight: p.ExpirationHeight,
		}
		if err := view.PutOtherSign(st); err != nil {
			return err
		}

		trigger, err := view.Trigger(p.ExpirationHeight)
		if err != nil {
			return err
		}
		trigger.TxIDs = append(trigger.TxIDs, txID)
		if err := view.PutTrigger(trigger); err != nil {
			return err
		}

	case database.Sign:
		signs = p.TxIDs

	case database.Lock:
		if from.Balance < p.Value {
			return invalid("insufficient balance: balance[%d] lock[%d]", from.Balance, p.Value)
		}
		from.Balance -= p.Value
		from.LockedBalance += p.Value
		from.LastLockTxID = txID

	case database.Unlock:
		from.Balance += from.LockedBalance
		from.LockedBalance = 0
		from.LastLockTxID = txID

	case database.Supply:
		balance, err := add(from.Balance, p.Amount)
		if err != nil {
			return err
		}
		from.Balance = balance

	default:
		return invalid("unknown transaction kind %s", tx.Kind)
	}

	if err := view.PutAccount(from); err != nil {
		return err
	}

	for _, o := range credits {
		if err := e.credit(view, o.To, o.Amount); err != nil {
			return err
		}
	}

	for _, escrowID := range signs {
		if err := e.sign(view, tx.FromID, escrowID); err != nil {
			return err
		}
	}

	return nil
}

// sign records the signer against the escrow. Unknown escrows and signers
// that are not pending are ignored. The escrow pays out once the last
// signer signs.
func (e *Executor) sign(view ledger.View, signer database.AccountID, escrowID string) error {
	st, found, err := view.OtherSign(escrowID)
	if err != nil {
		return err
	}
	if !found || !st.RemoveSigner(signer) {
		return nil
	}

	if len(st.Remaining) > 0 {
		return view.PutOtherSign(st)
	}

	e.evHandler("executor: sign: escrow[%s]: all signers signed", escrowID)
	return e.payout(view, st)
}

// payout credits the escrow recipients and removes the escrow and its
// trigger entry.
func (e *Executor) payout(view ledger.View, st database.OtherSignState) error {
	for _, o := range st.Outputs {
		if err := e.credit(view, o.To, o.Amount); err != nil {
			return err
		}
	}

	view.RemoveOtherSign(st.TxID)

	trigger, err := view.Trigger(st.ExpirationHeight)
	if err != nil {
		return err
	}
	trigger.Remove(st.TxID)

	return view.PutTrigger(trigger)
}

// vote adds or removes votes for a delegate. Removing never takes the
// delegate below zero.
func (e *Executor) vote(view ledger.View, delegateID database.AccountID, amount uint64, up bool) error {
	dlg, found, err := view.Delegate(delegateID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	switch up {
	case true:
		votes, err := add(dlg.Votes, amount)
		if err != nil {
			return err
		}
		dlg.Votes = votes
	default:
		dlg.Votes -= min(dlg.Votes, amount)
	}

	return view.PutDelegate(dlg)
}

// credit adds the amount to the account balance.
func (e *Executor) credit(view ledger.View, accountID database.AccountID, amount uint64) error {
	acct, err := view.Account(accountID)
	if err != nil {
		return err
	}

	balance, err := add(acct.Balance, amount)
	if err != nil {
		return err
	}
	acct.Balance = balance

	return view.PutAccount(acct)
}

// =============================================================================

// invalid constructs an error that wraps ErrValidation.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// add sums two amounts, rejecting overflow.
func add(a, b uint64) (uint64, error) {
	if a+b < a {
		return 0, invalid("amount overflow")
	}
	return a + b, nil
}

// sumOutputs adds up the outputs, rejecting overflow.
func sumOutputs(outputs []database.Output) (uint64, error) {
	var total uint64
	for _, o := range outputs {
		var err error
		if total, err = add(total, o.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}
