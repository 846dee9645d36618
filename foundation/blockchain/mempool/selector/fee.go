package selector

import (
	"sort"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
)

// feeSelect returns transactions with the best fee while respecting the
// submission order for each account.
var feeSelect = func(m map[database.AccountID][]database.SignedTx, howMany int) []database.SignedTx {
	if howMany < 0 {
		howMany = count(m)
	}

	// Sort the transactions per account by timestamp.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byTimeStamp(m[key]))
		}
	}

	// Pick the first transaction in the slice for each account. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been selected.
	var rows [][]database.SignedTx
	for {
		var row []database.SignedTx
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	// Sort each row by fee unless we will take all transactions from that row
	// anyway. Then try to select the number of requested transactions. Keep
	// pulling transactions from each row until the amount is fulfilled or
	// there are no more transactions.
	final := []database.SignedTx{}
done:
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Sort(byFee(row))
			final = append(final, row[:need]...)
			break done
		}
		final = append(final, row...)
	}

	return final
}
