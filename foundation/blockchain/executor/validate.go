package executor

import (
	"fmt"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
)

// Check runs the structural and the chain state validation.
func (e *Executor) Check(view ledger.View, bc BlockContext, tx database.SignedTx) error {
	if err := e.ValidateTx(tx); err != nil {
		return err
	}

	return e.VerifyTx(view, bc, tx)
}

// ValidateTx performs the checks that need no ledger state: the signature
// belongs to the sender and the payload is well formed.
func (e *Executor) ValidateTx(tx database.SignedTx) error {
	if err := tx.Validate(e.chainID); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	switch p := tx.Payload.(type) {
	case database.Transfer:
		return e.validateOutputs(p.Outputs)

	case database.VoteCast:
		if len(p.Votes) > e.maxVotes {
			return invalid("too many votes: got[%d] max[%d]", len(p.Votes), e.maxVotes)
		}

		seen := make(map[database.AccountID]bool, len(p.Votes))
		for _, v := range p.Votes {
			if !v.Delegate.IsAccountID() {
				return invalid("invalid delegate account %q", v.Delegate)
			}
			if v.Amount == 0 {
				return invalid("vote for %s has no amount", v.Delegate)
			}
			if seen[v.Delegate] {
				return invalid("duplicate vote for %s", v.Delegate)
			}
			seen[v.Delegate] = true
		}

	case database.RegisterDelegate:
		if n := len(p.Name); n == 0 || n > maxDelegateName {
			return invalid("delegate name must be 1 to %d characters", maxDelegateName)
		}

	case database.OtherSign:
		if err := e.validateOutputs(p.Outputs); err != nil {
			return err
		}
		if len(p.Others) == 0 {
			return invalid("escrow has no signers")
		}

		seen := make(map[database.AccountID]bool, len(p.Others))
		for _, o := range p.Others {
			if !o.IsAccountID() || seen[o] {
				return invalid("invalid or duplicate signer %q", o)
			}
			seen[o] = true
		}

		if p.ExpirationHeight == 0 {
			return invalid("escrow has no expiration height")
		}

	case database.Sign:
		if len(p.TxIDs) == 0 {
			return invalid("sign references no escrow")
		}

	case database.Lock:
		if p.Value == 0 {
			return invalid("lock value must be positive")
		}

	case database.Unlock:

	case database.Supply:
		if p.Amount == 0 {
			return invalid("supply amount must be positive")
		}

	default:
		return invalid("unknown transaction kind %s", tx.Kind)
	}

	return nil
}

// VerifyTx performs the checks that depend on the ledger state at the
// point the transaction is applied.
func (e *Executor) VerifyTx(view ledger.View, bc BlockContext, tx database.SignedTx) error {
	from, err := view.Account(tx.FromID)
	if err != nil {
		return err
	}

	need := tx.Fee

	switch p := tx.Payload.(type) {
	case database.Transfer:
		total, err := sumOutputs(p.Outputs)
		if err != nil {
			return err
		}
		if need, err = add(need, total); err != nil {
			return err
		}

	case database.VoteCast:
		var total uint64
		for _, v := range p.Votes {
			_, found, err := view.Delegate(v.Delegate)
			if err != nil {
				return err
			}
			if !found {
				return invalid("account %s is not a delegate", v.Delegate)
			}
			if total, err = add(total, v.Amount); err != nil {
				return err
			}
		}
		if total > from.LockedBalance {
			return invalid("votes exceed locked balance: votes[%d] locked[%d]", total, from.LockedBalance)
		}

	case database.RegisterDelegate:
		_, found, err := view.Delegate(tx.FromID)
		if err != nil {
			return err
		}
		if found {
			return invalid("account %s is already a delegate", tx.FromID)
		}

	case database.OtherSign:
		if p.ExpirationHeight <= bc.Height {
			return invalid("escrow expiration[%d] must be above height[%d]", p.ExpirationHeight, bc.Height)
		}

		_, found, err := view.OtherSign(tx.Hash())
		if err != nil {
			return err
		}
		if found {
			return invalid("escrow %s already exists", tx.Hash())
		}

		total, err := sumOutputs(p.Outputs)
		if err != nil {
			return err
		}
		if need, err = add(need, total); err != nil {
			return err
		}

	case database.Sign:

	case database.Lock:
		if need, err = add(need, p.Value); err != nil {
			return err
		}

	case database.Unlock:
		if from.LockedBalance == 0 {
			return invalid("nothing is locked")
		}

	case database.Supply:
		if tx.FromID != bc.ProducerID {
			return invalid("supply from %s is not the block producer", tx.FromID)
		}
		return nil

	default:
		return invalid("unknown transaction kind %s", tx.Kind)
	}

	if from.Balance < need {
		return invalid("insufficient balance: balance[%d] need[%d]", from.Balance, need)
	}

	return nil
}

// validateOutputs checks the recipients and amounts of a payment.
func (e *Executor) validateOutputs(outputs []database.Output) error {
	if len(outputs) == 0 {
		return invalid("no outputs")
	}
	if len(outputs) > e.maxOutputs {
		return invalid("too many outputs: got[%d] max[%d]", len(outputs), e.maxOutputs)
	}

	for _, o := range outputs {
		if !o.To.IsAccountID() {
			return invalid("invalid recipient %q", o.To)
		}
		if o.Amount < 1 {
			return invalid("output to %s must be at least 1", o.To)
		}
	}

	_, err := sumOutputs(outputs)
	return err
}
