package selector

import (
	"sort"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
)

// advancedFeeSelect returns transactions with the best fee while respecting
// the submission order for each account. This strategy takes into account
// high-value transactions that happen to be stuck behind an earlier
// transaction with a low fee.
var advancedFeeSelect = func(m map[database.AccountID][]database.SignedTx, howMany int) []database.SignedTx {
	if howMany < 0 {
		howMany = count(m)
	}

	// Sort the transactions per account by timestamp.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byTimeStamp(m[key]))
		}
	}

	final := []database.SignedTx{}

	af := newAdvancedFees(m, howMany)
	for from, num := range af.findBest() {
		final = append(final, m[from][:num]...)
	}

	return final
}

// =============================================================================

type advancedFees struct {
	howMany   int
	bestFee   uint64
	bestCount int
	bestPos   map[database.AccountID]int
	groupFees map[database.AccountID][]uint64
	groups    []database.AccountID
}

func newAdvancedFees(m map[database.AccountID][]database.SignedTx, howMany int) *advancedFees {
	groupFees := map[database.AccountID][]uint64{}
	groups := []database.AccountID{}

	for from, group := range m {
		groups = append(groups, from)

		// groupFees[from][i] is the total fee of taking the first i transactions.
		fees := []uint64{0}
		for i, tx := range group {
			if i >= howMany {
				break
			}
			fees = append(fees, tx.Fee+fees[i])
		}
		groupFees[from] = fees
	}

	// Keep the search order stable between calls.
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })

	return &advancedFees{
		howMany:   howMany,
		bestPos:   map[database.AccountID]int{},
		groupFees: groupFees,
		groups:    groups,
	}
}

func (af *advancedFees) findBest() map[database.AccountID]int {
	af.findBestTransactions(0, af.howMany, map[database.AccountID]int{}, 0)
	return af.bestPos
}

func (af *advancedFees) findBestTransactions(groupID int, left int, currPos map[database.AccountID]int, prevFee uint64) {
	taken := af.howMany - left
	if prevFee > af.bestFee || (prevFee == af.bestFee && taken > af.bestCount) {
		af.bestFee = prevFee
		af.bestCount = taken
		af.bestPos = currPos
	}

	if groupID >= len(af.groups) {
		return
	}
	from := af.groups[groupID]

	for pos, fee := range af.groupFees[from] {
		if left-pos < 0 {
			break
		}

		newCurrPos := copyMap(currPos)
		newCurrPos[from] = pos
		af.findBestTransactions(groupID+1, left-pos, newCurrPos, prevFee+fee)
	}
}

// =============================================================================

func copyMap(m map[database.AccountID]int) map[database.AccountID]int {
	newCurrPos := map[database.AccountID]int{}
	for from, pos := range m {
		newCurrPos[from] = pos
	}

	return newCurrPos
}

func count(m map[database.AccountID][]database.SignedTx) int {
	var n int
	for _, group := range m {
		n += len(group)
	}
	return n
}
