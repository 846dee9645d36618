// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFee         = "fee"
	StrategyFeeAdvanced = "fee_advanced"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFee:         feeSelect,
	StrategyFeeAdvanced: advancedFeeSelect,
}

// Func defines a function that takes a pool of transactions grouped by
// account and selects howMany of them in an order based on the functions
// strategy. All selector functions MUST respect the submission order of an
// account's transactions. Receiving -1 for howMany must return all the
// transactions in the strategies ordering.
type Func func(transactions map[database.AccountID][]database.SignedTx, howMany int) []database.SignedTx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byTimeStamp provides sorting support by the transaction timestamp.
type byTimeStamp []database.SignedTx

// Len returns the number of transactions in the list.
func (bt byTimeStamp) Len() int {
	return len(bt)
}

// Less helps to sort the list by timestamp in ascending order to keep the
// transactions in the order the account created them.
func (bt byTimeStamp) Less(i, j int) bool {
	return bt[i].TimeStamp < bt[j].TimeStamp
}

// Swap moves transactions in the order of the timestamp value.
func (bt byTimeStamp) Swap(i, j int) {
	bt[i], bt[j] = bt[j], bt[i]
}

// =============================================================================

// byFee provides sorting support by the transaction fee value.
type byFee []database.SignedTx

// Len returns the number of transactions in the list.
func (bf byFee) Len() int {
	return len(bf)
}

// Less helps to sort the list by fee in decending order to pick the
// transactions that pay the most.
func (bf byFee) Less(i, j int) bool {
	return bf[i].Fee > bf[j].Fee
}

// Swap moves transactions in the order of the fee value.
func (bf byFee) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}
