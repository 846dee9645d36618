package snapshot_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/mineral/foundation/blockchain/kvstore"
	"github.com/ardanlabs/mineral/foundation/blockchain/snapshot"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// failingEngine wraps a store and fails writes on demand.
type failingEngine struct {
	*kvstore.Store
	fail bool
}

func (f *failingEngine) Write(b *kvstore.Batch) error {
	if f.fail {
		return errors.New("disk on fire")
	}
	return f.Store.Write(b)
}

func openStore(t *testing.T, maxLayers int) (*failingEngine, *snapshot.Store) {
	t.Helper()

	kv, err := kvstore.OpenMemory()
	if err != nil {
		t.Fatalf("Should be able to open a memory store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	engine := failingEngine{Store: kv}
	return &engine, snapshot.New(&engine, maxLayers)
}

func value(t *testing.T, get func([]byte) ([]byte, error), key string) string {
	t.Helper()

	v, err := get([]byte(key))
	if errors.Is(err, kvstore.ErrNotFound) {
		return "<none>"
	}
	if err != nil {
		t.Fatalf("Should be able to read %s: %v", key, err)
	}
	return string(v)
}

// =============================================================================

func Test_Overlay(t *testing.T) {
	_, store := openStore(t, 0)

	t.Log("Given the need to stack pending writes.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a child snapshot sits on a parent.", testID)
		{
			parent := store.NewSnapshot()
			defer parent.Release()

			parent.Put([]byte("a"), []byte("1"))
			parent.Put([]byte("b"), []byte("2"))

			child := store.NewSnapshot()
			defer child.Release()
			child.SetPrevious(parent)

			if parent.Next() != child {
				t.Fatalf("\t%s\tTest %d:\tShould link the parent to the child.", failed, testID)
			}

			child.Put([]byte("a"), []byte("10"))
			child.Remove([]byte("b"))

			if got := value(t, child.Get, "a"); got != "10" {
				t.Fatalf("\t%s\tTest %d:\tShould see the child write, got %s.", failed, testID, got)
			}
			if got := value(t, child.Get, "b"); got != "<none>" {
				t.Fatalf("\t%s\tTest %d:\tShould see the child delete, got %s.", failed, testID, got)
			}
			if got := value(t, parent.Get, "a"); got != "1" {
				t.Fatalf("\t%s\tTest %d:\tShould keep the parent isolated, got %s.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould read through the chain.", success, testID)

			parent.Merge(child)
			child.Release()

			if got := value(t, parent.Get, "a"); got != "10" {
				t.Fatalf("\t%s\tTest %d:\tShould see merged writes, got %s.", failed, testID, got)
			}
			if got := value(t, parent.Get, "b"); got != "<none>" {
				t.Fatalf("\t%s\tTest %d:\tShould see merged deletes, got %s.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould merge the child into the parent.", success, testID)

			if _, err := child.Get([]byte("a")); !errors.Is(err, snapshot.ErrReleased) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse reads after release, got %v.", failed, testID, err)
			}
			child.Release()
			t.Logf("\t%s\tTest %d:\tShould allow release more than once.", success, testID)

			parent.Reset()
			if parent.Len() != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould discard pending writes on reset.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould discard pending writes on reset.", success, testID)
		}
	}
}

func Test_CommitAtomicity(t *testing.T) {
	engine, store := openStore(t, 0)

	t.Log("Given the need to commit all or nothing.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the engine write fails.", testID)
		{
			first := store.NewSnapshot()
			first.Put([]byte("acct:a"), []byte("100"))
			if err := first.Commit(0); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould commit the first snapshot: %v", failed, testID, err)
			}
			first.Release()

			snap := store.NewSnapshot()
			defer snap.Release()
			snap.Put([]byte("acct:a"), []byte("89"))
			snap.Put([]byte("acct:b"), []byte("10"))
			snap.Put([]byte("meta:head"), []byte("1"))

			engine.fail = true
			if err := snap.Commit(1); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould fail the commit.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail the commit.", success, testID)

			if got := value(t, engine.Get, "acct:a"); got != "100" {
				t.Fatalf("\t%s\tTest %d:\tShould keep the old value, got %s.", failed, testID, got)
			}
			if got := value(t, engine.Get, "acct:b"); got != "<none>" {
				t.Fatalf("\t%s\tTest %d:\tShould not write new keys, got %s.", failed, testID, got)
			}
			if got := value(t, engine.Get, "meta:head"); got != "<none>" {
				t.Fatalf("\t%s\tTest %d:\tShould not move the head record, got %s.", failed, testID, got)
			}
			if h, err := store.CommitHeight(); err != nil || h != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould keep the commit height at 0, got %d %v.", failed, testID, h, err)
			}
			if store.Layers() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not record a commit point, got %d.", failed, testID, store.Layers())
			}
			t.Logf("\t%s\tTest %d:\tShould leave the durable state untouched.", success, testID)

			engine.fail = false
			if err := snap.Commit(1); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould commit once the engine recovers: %v", failed, testID, err)
			}
			if got := value(t, engine.Get, "acct:a"); got != "89" {
				t.Fatalf("\t%s\tTest %d:\tShould write the pending values, got %s.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould commit once the engine recovers.", success, testID)
		}
	}
}

func Test_Journal(t *testing.T) {
	engine, store := openStore(t, 3)

	commit := func(height uint64, v string) {
		snap := store.NewSnapshot()
		defer snap.Release()

		snap.Put([]byte("k"), []byte(v))
		if err := snap.Commit(height); err != nil {
			t.Fatalf("Should be able to commit height %d: %v", height, err)
		}
	}

	t.Log("Given the need to move over recent commit points.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen retreating and advancing.", testID)
		{
			commit(1, "one")
			commit(2, "two")
			commit(3, "three")

			if err := store.Retreat(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to retreat: %v", failed, testID, err)
			}
			if got := value(t, engine.Get, "k"); got != "two" {
				t.Fatalf("\t%s\tTest %d:\tShould see the previous value, got %s.", failed, testID, got)
			}
			if h, _ := store.CommitHeight(); h != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould see the previous commit height, got %d.", failed, testID, h)
			}
			t.Logf("\t%s\tTest %d:\tShould retreat to the previous commit point.", success, testID)

			if err := store.Advance(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to advance: %v", failed, testID, err)
			}
			if got := value(t, engine.Get, "k"); got != "three" {
				t.Fatalf("\t%s\tTest %d:\tShould see the newer value, got %s.", failed, testID, got)
			}
			if err := store.Advance(); !errors.Is(err, snapshot.ErrAtTip) {
				t.Fatalf("\t%s\tTest %d:\tShould stop at the tip, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould advance back to the tip.", success, testID)

			for range 3 {
				if err := store.Retreat(); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould retreat to the root: %v", failed, testID, err)
				}
			}
			if got := value(t, engine.Get, "k"); got != "<none>" {
				t.Fatalf("\t%s\tTest %d:\tShould see the root state, got %s.", failed, testID, got)
			}
			if err := store.Retreat(); !errors.Is(err, snapshot.ErrAtRoot) {
				t.Fatalf("\t%s\tTest %d:\tShould stop at the root, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould retreat to the root.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen committing after a retreat.", testID)
		{
			store.Reset()
			commit(1, "one")
			commit(2, "two")
			head, _, _ := store.Head()

			if err := store.Retreat(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to retreat: %v", failed, testID, err)
			}
			commit(2, "other")

			if err := store.Advance(); !errors.Is(err, snapshot.ErrAtTip) {
				t.Fatalf("\t%s\tTest %d:\tShould drop the abandoned branch, got %v.", failed, testID, err)
			}
			if _, err := store.Height(head); !errors.Is(err, snapshot.ErrStaleID) {
				t.Fatalf("\t%s\tTest %d:\tShould invalidate the id of the abandoned commit point, got %v.", failed, testID, err)
			}
			if got := value(t, engine.Get, "k"); got != "other" {
				t.Fatalf("\t%s\tTest %d:\tShould see the new branch value, got %s.", failed, testID, got)
			}
			if store.Layers() != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould hold two commit points, got %d.", failed, testID, store.Layers())
			}
			t.Logf("\t%s\tTest %d:\tShould start a new branch.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the solid point moves.", testID)
		{
			store.Reset()
			commit(1, "one")
			commit(2, "two")
			commit(3, "three")

			moved, err := store.UpdateSolidity()
			if err != nil || !moved {
				t.Fatalf("\t%s\tTest %d:\tShould move the solid point: %v", failed, testID, err)
			}
			moved, _ = store.UpdateSolidity()
			if !moved || store.Unsolid() != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould leave one commit point above solid, got %d.", failed, testID, store.Unsolid())
			}
			if got := value(t, engine.Get, snapshot.SolidKey); got != "2" {
				t.Fatalf("\t%s\tTest %d:\tShould record the solid height, got %s.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould move the solid point forward.", success, testID)

			if err := store.Retreat(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould retreat above solid: %v", failed, testID, err)
			}
			if err := store.Retreat(); !errors.Is(err, snapshot.ErrSolid) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse to retreat past solid, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse to retreat past solid.", success, testID)

			store.ResetSolidity()
			if err := store.Retreat(); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould retreat once solidity is reset: %v", failed, testID, err)
			}
			if got := value(t, engine.Get, "k"); got != "one" {
				t.Fatalf("\t%s\tTest %d:\tShould see the value below the old solid point, got %s.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould retreat once solidity is reset.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the journal is full.", testID)
		{
			store.Reset()
			for i := range uint64(5) {
				commit(i, "v")
			}
			if store.Layers() != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould keep three commit points, got %d.", failed, testID, store.Layers())
			}
			t.Logf("\t%s\tTest %d:\tShould prune the oldest commit points.", success, testID)
		}
	}
}
