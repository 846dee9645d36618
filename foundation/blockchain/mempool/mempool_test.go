package mempool_test

import (
	"testing"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/mempool"
	"github.com/ardanlabs/mineral/foundation/blockchain/mempool/selector"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	signPavel = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	signAle   = "8f3c1d0a4c5b6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f7"
	signCarl  = "2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a"
	toID      = database.AccountID("0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76")
)

func sign(t *testing.T, hexKey string, stamp uint64, fee uint64) database.SignedTx {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to load the private key: %s", failed, err)
	}

	tx, err := database.NewTx(1, database.PublicKeyToAccountID(pk.PublicKey), fee, database.Transfer{
		Outputs: []database.Output{{To: toID, Amount: 1}},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the transaction: %s", failed, err)
	}
	tx.TimeStamp = stamp

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign the transaction: %s", failed, err)
	}

	return signedTx
}

// =============================================================================

func TestCRUD(t *testing.T) {
	t.Log("Given the need to validate mempool api.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a set of transaction.", testID)
		{
			mp, err := mempool.New()
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the mempool: %s", failed, testID, err)
			}

			txs := []database.SignedTx{
				sign(t, signPavel, 1, 10),
				sign(t, signPavel, 2, 50),
				sign(t, signAle, 1, 100),
				sign(t, signCarl, 1, 10),
			}

			for _, tx := range txs {
				mp.Upsert(tx)
			}

			if mp.Count() != len(txs) {
				t.Fatalf("\t%s\tTest %d:\tShould have %d transactions, got %d.", failed, testID, len(txs), mp.Count())
			}
			t.Logf("\t%s\tTest %d:\tShould be able to add new transactions.", success, testID)

			if mp.Insert(txs[0]) {
				t.Fatalf("\t%s\tTest %d:\tShould not insert a transaction twice.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not insert a transaction twice.", success, testID)

			mp.Delete(txs[1].Hash())
			if mp.Contains(txs[1].Hash()) || mp.Count() != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould be able to remove a transaction.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to remove a transaction.", success, testID)

			mp.DeleteAll(txs[2:])
			if mp.Count() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould be able to remove a set of transactions.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to remove a set of transactions.", success, testID)

			mp.Truncate()
			if mp.Count() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould be able to truncate mempool.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to truncate mempool.", success, testID)
		}
	}
}

func TestPickBest(t *testing.T) {
	type table struct {
		name     string
		strategy string
		txs      []database.SignedTx
		howMany  int
		best     []database.SignedTx
	}

	pavel := []database.SignedTx{sign(t, signPavel, 1, 25), sign(t, signPavel, 2, 75), sign(t, signPavel, 3, 50)}
	ale := []database.SignedTx{sign(t, signAle, 1, 10), sign(t, signAle, 2, 5), sign(t, signAle, 3, 75)}
	carl := []database.SignedTx{sign(t, signCarl, 1, 5), sign(t, signCarl, 2, 50), sign(t, signCarl, 3, 25)}

	stuck := []database.SignedTx{sign(t, signPavel, 1, 1), sign(t, signPavel, 2, 1), sign(t, signPavel, 3, 50)}
	mid := []database.SignedTx{sign(t, signAle, 1, 1), sign(t, signAle, 2, 15), sign(t, signAle, 3, 16)}
	low := []database.SignedTx{sign(t, signCarl, 1, 5), sign(t, signCarl, 2, 6), sign(t, signCarl, 3, 7)}

	all := func(groups ...[]database.SignedTx) []database.SignedTx {
		var txs []database.SignedTx
		for _, g := range groups {
			txs = append(txs, g...)
		}
		return txs
	}

	tt := []table{
		{
			name:     "one from second row",
			strategy: selector.StrategyFee,
			txs:      all(pavel, ale, carl),
			howMany:  4,
			best:     []database.SignedTx{pavel[0], pavel[1], ale[0], carl[0]},
		},
		{
			name:     "take all",
			strategy: selector.StrategyFee,
			txs:      all(pavel, ale, carl),
			howMany:  -1,
			best:     all(pavel, ale, carl),
		},
		{
			name:     "unblock big fee",
			strategy: selector.StrategyFeeAdvanced,
			txs:      all(stuck, mid, low),
			howMany:  4,
			best:     []database.SignedTx{stuck[0], stuck[1], stuck[2], low[0]},
		},
	}

	t.Log("Given the need to pick best transactions from mempool.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a set of transaction.", testID)
			{
				f := func(t *testing.T) {
					mp, err := mempool.NewWithStrategy(tst.strategy)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to construct the mempool: %s", failed, testID, err)
					}

					for _, tx := range tst.txs {
						mp.Upsert(tx)
					}

					got := mp.PickBest(tst.howMany)
					if len(got) != len(tst.best) {
						t.Fatalf("\t%s\tTest %d:\tShould get %d transactions, got %d.", failed, testID, len(tst.best), len(got))
					}
					t.Logf("\t%s\tTest %d:\tShould get %d transactions.", success, testID, len(tst.best))

					picked := make(map[string]bool)
					for _, tx := range got {
						picked[tx.Hash()] = true
					}

					for _, exp := range tst.best {
						if !picked[exp.Hash()] {
							t.Fatalf("\t%s\tTest %d:\tShould pick %s/%d.", failed, testID, exp.FromID, exp.TimeStamp)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould pick the best transactions.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}
