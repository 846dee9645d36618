package commands_test

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/mineral/app/tooling/admin/commands"
	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/genesis"
	"github.com/ardanlabs/mineral/foundation/blockchain/kvstore"
	"github.com/ardanlabs/mineral/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const pavelKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

func Test_Commands(t *testing.T) {
	t.Log("Given the need to inspect the ledger of a stopped node.")
	{
		pavel, err := crypto.HexToECDSA(pavelKey)
		if err != nil {
			t.Fatalf("Should be able to load the key: %s", err)
		}
		pavelID := database.PublicKeyToAccountID(pavel.PublicKey)

		gen := genesis.Genesis{
			Date:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			ChainID:      1,
			RoundBlocks:  10,
			MaxProducers: 3,
			Producer:     pavelID,
			Balances:     map[string]uint64{string(pavelID): 100},
			Delegates:    map[string]string{string(pavelID): "pavel"},
		}

		block, err := gen.Block()
		if err != nil {
			t.Fatalf("Should be able to build the genesis block: %s", err)
		}

		dir := filepath.Join(t.TempDir(), "ledger")
		db, err := kvstore.OpenFile(dir)
		if err != nil {
			t.Fatalf("Should be able to open the store: %s", err)
		}

		st, err := state.New(state.Config{DB: db, Genesis: gen})
		if err != nil {
			t.Fatalf("Should be able to construct the state: %s", err)
		}
		if err := st.Initialize(block); err != nil {
			t.Fatalf("Should be able to initialize the state: %s", err)
		}
		if err := st.Shutdown(); err != nil {
			t.Fatalf("Should be able to shutdown the state: %s", err)
		}

		accounts := t.TempDir()

		testID := 0
		t.Logf("\tTest %d:\tWhen asking for the head.", testID)
		{
			var out bytes.Buffer
			if err := commands.Execute([]string{"head", "--db", dir}, &out); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould run the command: %v", failed, testID, err)
			}

			var head database.HeadState
			if err := json.Unmarshal(out.Bytes(), &head); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould print JSON: %v", failed, testID, err)
			}

			if head.Height != 0 || head.Hash != block.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould print the genesis head, got %+v.", failed, testID, head)
			}
			t.Logf("\t%s\tTest %d:\tShould print the genesis head.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen asking for an account.", testID)
		{
			var out bytes.Buffer
			if err := commands.Execute([]string{"account", string(pavelID), "--db", dir, "--account-path", accounts}, &out); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould run the command: %v", failed, testID, err)
			}

			var acct database.AccountState
			if err := json.Unmarshal(out.Bytes(), &acct); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould print JSON: %v", failed, testID, err)
			}

			if acct.Balance != 100 {
				t.Fatalf("\t%s\tTest %d:\tShould print the genesis balance, got %d.", failed, testID, acct.Balance)
			}
			t.Logf("\t%s\tTest %d:\tShould print the genesis balance.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen asking for the genesis block.", testID)
		{
			var out bytes.Buffer
			if err := commands.Execute([]string{"block", "0", "--db", dir}, &out); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould run the command: %v", failed, testID, err)
			}

			if !strings.Contains(out.String(), block.Header.TransRoot) {
				t.Fatalf("\t%s\tTest %d:\tShould print the genesis block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould print the genesis block.", success, testID)

			if err := commands.Execute([]string{"block", "1", "--db", dir}, &out); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould fail above the head.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail above the head.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen generating a key.", testID)
		{
			var out bytes.Buffer
			if err := commands.Execute([]string{"genkey", "ale", "--account-path", accounts}, &out); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould run the command: %v", failed, testID, err)
			}

			if _, err := crypto.LoadECDSA(filepath.Join(accounts, "ale.ecdsa")); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould save a loadable key: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould save a loadable key.", success, testID)
		}
	}
}
