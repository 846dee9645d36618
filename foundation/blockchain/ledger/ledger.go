// Package ledger provides typed access to the ledger records held in a key
// value space. Records are stored as JSON under a prefix per record type.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/kvstore"
)

// Key prefixes for each record type.
const (
	prefixAccount   = "acct:"
	prefixDelegate  = "dlg:"
	prefixOtherSign = "osg:"
	prefixTrigger   = "trg:"
	prefixTx        = "tx:"
	prefixBlock     = "blk:"
	prefixHeader    = "hdr:"
	prefixTurnTable = "tt:"
	prefixHashChunk = "hhl:"

	keyDelegates = "meta:delegates"
	keyHead      = "meta:head"
	keyVersion   = "meta:version"
)

// Version is the current layout version of the stored records.
const Version = "1"

// KV represents the key value space a View reads and writes.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte)
	Remove(key []byte)
}

// View provides typed access to the ledger records.
type View struct {
	kv KV
}

// New constructs a view over the key value space.
func New(kv KV) View {
	return View{kv: kv}
}

// =============================================================================

// Account returns the state of the account. An account that has never been
// written returns an empty state.
func (v View) Account(accountID database.AccountID) (database.AccountState, error) {
	var acct database.AccountState
	found, err := v.get(accountKey(accountID), &acct)
	if err != nil {
		return database.AccountState{}, err
	}
	if !found {
		return database.NewAccountState(accountID), nil
	}
	return acct, nil
}

// PutAccount stores the state of the account.
func (v View) PutAccount(acct database.AccountState) error {
	return v.put(accountKey(acct.AccountID), acct)
}

// Delegate returns the delegate registered for the account.
func (v View) Delegate(accountID database.AccountID) (database.DelegateState, bool, error) {
	var dlg database.DelegateState
	found, err := v.get(delegateKey(accountID), &dlg)
	return dlg, found, err
}

// PutDelegate stores the delegate and indexes it when new.
func (v View) PutDelegate(dlg database.DelegateState) error {
	ids, err := v.DelegateIDs()
	if err != nil {
		return err
	}

	if !slices.Contains(ids, dlg.AccountID) {
		ids = append(ids, dlg.AccountID)
		if err := v.put([]byte(keyDelegates), ids); err != nil {
			return err
		}
	}

	return v.put(delegateKey(dlg.AccountID), dlg)
}

// DelegateIDs returns the accounts of every registered delegate in
// registration order.
func (v View) DelegateIDs() ([]database.AccountID, error) {
	var ids []database.AccountID
	if _, err := v.get([]byte(keyDelegates), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// Delegates returns every registered delegate in registration order.
func (v View) Delegates() ([]database.DelegateState, error) {
	ids, err := v.DelegateIDs()
	if err != nil {
		return nil, err
	}

	dlgs := make([]database.DelegateState, 0, len(ids))
	for _, id := range ids {
		dlg, found, err := v.Delegate(id)
		if err != nil {
			return nil, err
		}
		if found {
			dlgs = append(dlgs, dlg)
		}
	}

	return dlgs, nil
}

// OtherSign returns the escrow created by the specified transaction.
func (v View) OtherSign(txID string) (database.OtherSignState, bool, error) {
	var st database.OtherSignState
	found, err := v.get([]byte(prefixOtherSign+txID), &st)
	return st, found, err
}

// PutOtherSign stores the escrow.
func (v View) PutOtherSign(st database.OtherSignState) error {
	return v.put([]byte(prefixOtherSign+st.TxID), st)
}

// RemoveOtherSign deletes the escrow.
func (v View) RemoveOtherSign(txID string) {
	v.kv.Remove([]byte(prefixOtherSign + txID))
}

// Trigger returns the escrows to finalize at the height.
func (v View) Trigger(height uint64) (database.BlockTriggerState, error) {
	bt := database.BlockTriggerState{Height: height}
	if _, err := v.get(heightKey(prefixTrigger, height), &bt); err != nil {
		return database.BlockTriggerState{}, err
	}
	return bt, nil
}

// PutTrigger stores the trigger, deleting it once it holds no escrows.
func (v View) PutTrigger(bt database.BlockTriggerState) error {
	if len(bt.TxIDs) == 0 {
		v.kv.Remove(heightKey(prefixTrigger, bt.Height))
		return nil
	}
	return v.put(heightKey(prefixTrigger, bt.Height), bt)
}

// Transaction returns the stored transaction and its result.
func (v View) Transaction(txID string) (database.TransactionState, bool, error) {
	var ts database.TransactionState
	found, err := v.get([]byte(prefixTx+txID), &ts)
	return ts, found, err
}

// PutTransaction stores the transaction and its result.
func (v View) PutTransaction(ts database.TransactionState) error {
	return v.put([]byte(prefixTx+ts.Tx.Hash()), ts)
}

// =============================================================================

// Block returns the block stored under the hash.
func (v View) Block(hash string) (database.Block, bool, error) {
	var b database.Block
	found, err := v.get([]byte(prefixBlock+hash), &b)
	return b, found, err
}

// PutBlock stores the block and its header under the block hash.
func (v View) PutBlock(b database.Block) error {
	hash := b.Hash()
	if err := v.put([]byte(prefixHeader+hash), b.Header); err != nil {
		return err
	}
	return v.put([]byte(prefixBlock+hash), b)
}

// Header returns the header stored under the block hash.
func (v View) Header(hash string) (database.BlockHeader, bool, error) {
	var h database.BlockHeader
	found, err := v.get([]byte(prefixHeader+hash), &h)
	return h, found, err
}

// Head returns the last committed block.
func (v View) Head() (database.HeadState, bool, error) {
	var hs database.HeadState
	found, err := v.get([]byte(keyHead), &hs)
	return hs, found, err
}

// PutHead records the last committed block.
func (v View) PutHead(hs database.HeadState) error {
	return v.put([]byte(keyHead), hs)
}

// HashChunk returns the chunk of header hashes starting at the height.
func (v View) HashChunk(start uint64) ([]string, bool, error) {
	var hashes []string
	found, err := v.get(heightKey(prefixHashChunk, start), &hashes)
	return hashes, found, err
}

// PutHashChunk stores a chunk of header hashes starting at the height.
func (v View) PutHashChunk(start uint64, hashes []string) error {
	return v.put(heightKey(prefixHashChunk, start), hashes)
}

// PutTurnTable stores the turn table under its activation height.
func (v View) PutTurnTable(tt database.TurnTableState) error {
	return v.put(heightKey(prefixTurnTable, tt.Height), tt)
}

// HasVersion reports whether the version record was written.
func (v View) HasVersion() (bool, error) {
	_, err := v.kv.Get([]byte(keyVersion))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kvstore.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// PutVersion writes the version record.
func (v View) PutVersion() {
	v.kv.Put([]byte(keyVersion), []byte(Version))
}

// =============================================================================

// Iterator represents durable storage that can be walked by key prefix.
type Iterator interface {
	IteratePrefix(prefix []byte, fn func(key, value []byte) bool) error
}

// TurnTable returns the turn table in effect at the height, which is the
// one with the greatest activation height not above the height.
func TurnTable(it Iterator, height uint64) (database.TurnTableState, bool, error) {
	var tt database.TurnTableState
	var found bool
	var decodeErr error

	limit := string(heightKey(prefixTurnTable, height))
	err := it.IteratePrefix([]byte(prefixTurnTable), func(key, value []byte) bool {
		if string(key) > limit {
			return false
		}
		if decodeErr = json.Unmarshal(value, &tt); decodeErr != nil {
			return false
		}
		found = true
		return true
	})
	if err != nil {
		return database.TurnTableState{}, false, err
	}
	if decodeErr != nil {
		return database.TurnTableState{}, false, decodeErr
	}

	return tt, found, nil
}

// HashChunks calls fn with every stored chunk of header hashes in height
// order until fn returns false.
func HashChunks(it Iterator, fn func(start uint64, hashes []string) bool) error {
	var decodeErr error

	err := it.IteratePrefix([]byte(prefixHashChunk), func(key, value []byte) bool {
		var start uint64
		if _, decodeErr = fmt.Sscanf(string(key[len(prefixHashChunk):]), "%d", &start); decodeErr != nil {
			return false
		}

		var hashes []string
		if decodeErr = json.Unmarshal(value, &hashes); decodeErr != nil {
			return false
		}

		return fn(start, hashes)
	})
	if err != nil {
		return err
	}

	return decodeErr
}

// =============================================================================

// get decodes the record under the key. It reports false when the key does
// not exist.
func (v View) get(key []byte, dest any) (bool, error) {
	data, err := v.kv.Get(key)
	if err != nil {
		if errors.Is(err, kvstore.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}

	return true, nil
}

// put encodes the record under the key.
func (v View) put(key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	v.kv.Put(key, data)
	return nil
}

func accountKey(accountID database.AccountID) []byte {
	return []byte(prefixAccount + string(accountID))
}

func delegateKey(accountID database.AccountID) []byte {
	return []byte(prefixDelegate + string(accountID))
}

// heightKey zero pads the height so keys sort in height order.
func heightKey(prefix string, height uint64) []byte {
	return fmt.Appendf(nil, "%s%020d", prefix, height)
}
