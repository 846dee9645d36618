package executor_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/executor"
	"github.com/ardanlabs/mineral/foundation/blockchain/kvstore"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
	"github.com/ardanlabs/mineral/foundation/blockchain/snapshot"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const chainID = 1

var keys = map[string]string{
	"bill": "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959",
	"ale":  "8f3c1d0a4c5b6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f7",
	"carl": "2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a",
}

type account struct {
	pk *ecdsa.PrivateKey
	id database.AccountID
}

type harness struct {
	t     *testing.T
	store *snapshot.Store
	snap  *snapshot.Snapshot
	exec  *executor.Executor
	accts map[string]account
}

func newHarness(t *testing.T, balances map[string]uint64) *harness {
	t.Helper()

	kv, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("Should be able to open a memory store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	h := harness{
		t:     t,
		store: snapshot.New(kv, 0),
		exec:  executor.New(executor.Config{ChainID: chainID, BlockReward: 5}),
		accts: make(map[string]account),
	}

	for name, hex := range keys {
		pk, err := crypto.HexToECDSA(hex)
		if err != nil {
			t.Fatalf("Should be able to load the %s key: %v", name, err)
		}
		h.accts[name] = account{pk: pk, id: database.PublicKeyToAccountID(pk.PublicKey)}
	}

	h.snap = h.store.NewSnapshot()
	t.Cleanup(h.snap.Release)

	genesis := executor.BlockContext{Height: 0}
	for name, amount := range balances {
		tx := database.SignedTx{Tx: database.Tx{
			ChainID: chainID,
			Kind:    database.KindSupply,
			FromID:  h.id(name),
			Payload: database.Supply{Amount: amount},
		}}
		if _, err := h.exec.ApplyTx(h.snap, genesis, tx); err != nil {
			t.Fatalf("Should be able to apply the genesis supply: %v", err)
		}
	}

	return &h
}

func (h *harness) id(name string) database.AccountID {
	return h.accts[name].id
}

func (h *harness) apply(name string, fee uint64, payload database.Payload) database.TransactionState {
	h.t.Helper()

	tx, err := database.NewTx(chainID, h.id(name), fee, payload)
	if err != nil {
		h.t.Fatalf("Should be able to construct the transaction: %v", err)
	}

	signedTx, err := tx.Sign(h.accts[name].pk)
	if err != nil {
		h.t.Fatalf("Should be able to sign the transaction: %v", err)
	}

	ts, err := h.exec.ApplyTx(h.snap, executor.BlockContext{Height: 1, ProducerID: h.id("bill")}, signedTx)
	if err != nil {
		h.t.Fatalf("Should not get a storage error: %v", err)
	}

	return ts
}

func (h *harness) account(name string) database.AccountState {
	h.t.Helper()

	acct, err := ledger.New(h.snap).Account(h.id(name))
	if err != nil {
		h.t.Fatalf("Should be able to read the account: %v", err)
	}
	return acct
}

func (h *harness) balances(testID int, exp map[string]uint64) {
	h.t.Helper()

	for name, balance := range exp {
		if got := h.account(name).Balance; got != balance {
			h.t.Fatalf("\t%s\tTest %d:\tShould have balance %d for %s, got %d.", failed, testID, balance, name, got)
		}
	}
	h.t.Logf("\t%s\tTest %d:\tShould have the expected balances.", success, testID)
}

// =============================================================================

func Test_Transfer(t *testing.T) {
	t.Log("Given the need to move balance between accounts.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the sender can pay.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 100})

			ts := h.apply("bill", 1, database.Transfer{Outputs: []database.Output{{To: h.id("ale"), Amount: 10}}})
			if !ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould apply the transfer: %s", failed, testID, ts.Reason)
			}
			t.Logf("\t%s\tTest %d:\tShould apply the transfer.", success, testID)

			h.balances(testID, map[string]uint64{"bill": 89, "ale": 10})
		}

		testID++
		t.Logf("\tTest %d:\tWhen the sender can not pay the amount.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 100})

			ts := h.apply("bill", 1, database.Transfer{Outputs: []database.Output{{To: h.id("ale"), Amount: 200}}})
			if ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould fail the transfer.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail the transfer: %s", success, testID, ts.Reason)

			h.balances(testID, map[string]uint64{"bill": 99, "ale": 0})

			stored, found, err := ledger.New(h.snap).Transaction(ts.Tx.Hash())
			if err != nil || !found || stored.Result != database.TxFailed {
				t.Fatalf("\t%s\tTest %d:\tShould record the failed result: %+v %v", failed, testID, stored, err)
			}
			t.Logf("\t%s\tTest %d:\tShould record the failed result.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the sender can not pay the fee.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 3})

			ts := h.apply("bill", 5, database.Transfer{Outputs: []database.Output{{To: h.id("ale"), Amount: 1}}})
			if ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould fail the transfer.", failed, testID)
			}

			h.balances(testID, map[string]uint64{"bill": 0, "ale": 0})
		}

		testID++
		t.Logf("\tTest %d:\tWhen the sender pays itself.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 100})

			ts := h.apply("bill", 2, database.Transfer{Outputs: []database.Output{{To: h.id("bill"), Amount: 50}}})
			if !ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould apply the transfer: %s", failed, testID, ts.Reason)
			}

			h.balances(testID, map[string]uint64{"bill": 98})
		}
	}
}

func Test_Escrow(t *testing.T) {
	t.Log("Given the need to release escrowed funds once.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen every signer signs.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 100})

			escrow := h.apply("bill", 1, database.OtherSign{
				Outputs:          []database.Output{{To: h.id("ale"), Amount: 30}},
				Others:           []database.AccountID{h.id("ale"), h.id("carl")},
				ExpirationHeight: 10,
			})
			if !escrow.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould create the escrow: %s", failed, testID, escrow.Reason)
			}
			h.balances(testID, map[string]uint64{"bill": 69, "ale": 0})

			sign := database.Sign{TxIDs: []string{escrow.Tx.Hash()}}

			h.apply("ale", 0, sign)
			h.balances(testID, map[string]uint64{"ale": 0})
			t.Logf("\t%s\tTest %d:\tShould hold the funds until all sign.", success, testID)

			h.apply("carl", 0, sign)
			h.balances(testID, map[string]uint64{"ale": 30})
			t.Logf("\t%s\tTest %d:\tShould release the funds on the last signature.", success, testID)

			if ts := h.apply("carl", 0, sign); !ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould treat a repeated signature as a no-op: %s", failed, testID, ts.Reason)
			}

			if err := h.exec.ApplyTrailer(h.snap, executor.BlockContext{Height: 10, ProducerID: h.id("carl")}); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould apply the trailer: %v", failed, testID, err)
			}
			h.balances(testID, map[string]uint64{"ale": 30, "carl": 5})
			t.Logf("\t%s\tTest %d:\tShould never release the funds twice.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the escrow expires.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 100})

			escrow := h.apply("bill", 0, database.OtherSign{
				Outputs:          []database.Output{{To: h.id("ale"), Amount: 40}},
				Others:           []database.AccountID{h.id("carl")},
				ExpirationHeight: 5,
			})
			if !escrow.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould create the escrow: %s", failed, testID, escrow.Reason)
			}

			for range 2 {
				if err := h.exec.ApplyTrailer(h.snap, executor.BlockContext{Height: 5, ProducerID: h.id("carl")}); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould apply the trailer: %v", failed, testID, err)
				}
			}
			h.balances(testID, map[string]uint64{"bill": 60, "ale": 40})

			if _, found, _ := ledger.New(h.snap).OtherSign(escrow.Tx.Hash()); found {
				t.Fatalf("\t%s\tTest %d:\tShould delete the escrow.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould pay the recipients once at expiration.", success, testID)

			if ts := h.apply("carl", 0, database.Sign{TxIDs: []string{escrow.Tx.Hash()}}); !ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould ignore a signature for a finalized escrow: %s", failed, testID, ts.Reason)
			}
			h.balances(testID, map[string]uint64{"ale": 40})
		}

		testID++
		t.Logf("\tTest %d:\tWhen the expiration is not in the future.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 100})

			ts := h.apply("bill", 1, database.OtherSign{
				Outputs:          []database.Output{{To: h.id("ale"), Amount: 40}},
				Others:           []database.AccountID{h.id("carl")},
				ExpirationHeight: 1,
			})
			if ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould reject the escrow.", failed, testID)
			}
			h.balances(testID, map[string]uint64{"bill": 99})
		}
	}
}

func Test_LockAndVote(t *testing.T) {
	t.Log("Given the need to lock balance and vote for delegates.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen voting with locked balance.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 100})

			if ts := h.apply("ale", 0, database.RegisterDelegate{Name: "ale"}); !ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould register the delegate: %s", failed, testID, ts.Reason)
			}
			if ts := h.apply("ale", 0, database.RegisterDelegate{Name: "ale"}); ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould not register the delegate twice.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould register the delegate once.", success, testID)

			lock := h.apply("bill", 0, database.Lock{Value: 50})
			if !lock.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould lock the balance: %s", failed, testID, lock.Reason)
			}
			acct := h.account("bill")
			if acct.Balance != 50 || acct.LockedBalance != 50 || acct.LastLockTxID != lock.Tx.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould move balance into locked: %+v", failed, testID, acct)
			}
			t.Logf("\t%s\tTest %d:\tShould move balance into locked.", success, testID)

			if ts := h.apply("bill", 0, database.VoteCast{Votes: []database.Vote{{Delegate: h.id("ale"), Amount: 60}}}); ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould reject votes above the locked balance.", failed, testID)
			}
			if ts := h.apply("bill", 0, database.VoteCast{Votes: []database.Vote{{Delegate: h.id("carl"), Amount: 10}}}); ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould reject votes for an unknown delegate.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould reject invalid votes.", success, testID)

			h.apply("bill", 0, database.VoteCast{Votes: []database.Vote{{Delegate: h.id("ale"), Amount: 40}}})
			h.apply("bill", 0, database.VoteCast{Votes: []database.Vote{{Delegate: h.id("ale"), Amount: 20}}})

			dlg, _, err := ledger.New(h.snap).Delegate(h.id("ale"))
			if err != nil || dlg.Votes != 20 {
				t.Fatalf("\t%s\tTest %d:\tShould replace the previous votes, got %d %v.", failed, testID, dlg.Votes, err)
			}
			t.Logf("\t%s\tTest %d:\tShould replace the previous votes.", success, testID)

			unlock := h.apply("bill", 0, database.Unlock{})
			acct = h.account("bill")
			if !unlock.Succeeded() || acct.Balance != 100 || acct.LockedBalance != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould unlock the whole balance: %+v", failed, testID, acct)
			}
			if ts := h.apply("bill", 0, database.Unlock{}); ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould reject an unlock with nothing locked.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould unlock the whole balance.", success, testID)
		}
	}
}

func Test_Supply(t *testing.T) {
	t.Log("Given the need to restrict minting to the producer.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen supply is sent after genesis.", testID)
		{
			h := newHarness(t, map[string]uint64{"bill": 10})

			if ts := h.apply("ale", 0, database.Supply{Amount: 1000}); ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould reject supply from another account.", failed, testID)
			}
			if ts := h.apply("bill", 0, database.Supply{Amount: 1000}); !ts.Succeeded() {
				t.Fatalf("\t%s\tTest %d:\tShould accept supply from the producer: %s", failed, testID, ts.Reason)
			}
			h.balances(testID, map[string]uint64{"bill": 1010, "ale": 0})
		}
	}
}

func Test_ApplyBlock(t *testing.T) {
	h := newHarness(t, map[string]uint64{"bill": 100})

	tx, err := database.NewTx(chainID, h.id("bill"), 1, database.Transfer{Outputs: []database.Output{{To: h.id("ale"), Amount: 10}}})
	if err != nil {
		t.Fatalf("Should be able to construct the transaction: %v", err)
	}
	signedTx, err := tx.Sign(h.accts["bill"].pk)
	if err != nil {
		t.Fatalf("Should be able to sign the transaction: %v", err)
	}

	block, err := database.NewBlock(database.BlockHeader{ChainID: chainID}, h.id("carl"), []database.SignedTx{signedTx})
	if err != nil {
		t.Fatalf("Should be able to construct the block: %v", err)
	}

	results, err := h.exec.ApplyBlock(h.snap, block)
	if err != nil || len(results) != 1 || !results[0].Succeeded() {
		t.Fatalf("Should apply the block: %+v %v", results, err)
	}

	h.balances(0, map[string]uint64{"bill": 89, "ale": 10, "carl": 5})
}
