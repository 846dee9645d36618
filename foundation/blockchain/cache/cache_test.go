package cache_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/mineral/foundation/blockchain/cache"
	"github.com/ardanlabs/mineral/foundation/blockchain/database"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func block(height uint64, stamp uint64) database.Block {
	return database.Block{
		Header: database.BlockHeader{
			ChainID:   1,
			Number:    height,
			TimeStamp: stamp,
		},
	}
}

// =============================================================================

func Test_HeaderHash(t *testing.T) {
	t.Log("Given the need to bind header hashes to heights.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen two hashes compete for the same height.", testID)
		{
			c, err := cache.New(10)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the cache: %v", failed, testID, err)
			}

			first := block(5, 1)
			second := block(5, 2)

			if err := c.AddHeaderHash(5, first.Hash()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould bind the first hash: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould bind the first hash.", success, testID)

			if err := c.AddHeaderHash(5, first.Hash()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept binding the same hash again: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept binding the same hash again.", success, testID)

			err = c.AddHeaderHash(5, second.Hash())
			if !errors.Is(err, cache.ErrHeightConflict) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse the conflicting hash, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse the conflicting hash.", success, testID)

			if hash, _ := c.Hash(5); hash != first.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould keep the original hash, got %s.", failed, testID, hash)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the original hash.", success, testID)

			if _, exists := c.Height(second.Hash()); exists {
				t.Fatalf("\t%s\tTest %d:\tShould not index the refused hash.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not index the refused hash.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen hashes arrive out of order.", testID)
		{
			c, err := cache.New(10)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the cache: %v", failed, testID, err)
			}

			if _, ok := c.HeaderHeight(); ok {
				t.Fatalf("\t%s\tTest %d:\tShould have no header height before genesis.", failed, testID)
			}

			for _, h := range []uint64{0, 1, 3} {
				if err := c.AddHeaderHash(h, block(h, 0).Hash()); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould bind height %d: %v", failed, testID, h, err)
				}
			}

			if top, _ := c.HeaderHeight(); top != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould stop at the gap, got %d.", failed, testID, top)
			}
			t.Logf("\t%s\tTest %d:\tShould stop at the gap.", success, testID)

			if err := c.AddHeaderHash(2, block(2, 0).Hash()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould bind height 2: %v", failed, testID, err)
			}

			if top, _ := c.HeaderHeight(); top != 3 {
				t.Fatalf("\t%s\tTest %d:\tShould close the gap, got %d.", failed, testID, top)
			}
			t.Logf("\t%s\tTest %d:\tShould close the gap.", success, testID)

			if hashes := c.BlockHashes(0, 10); len(hashes) != 4 {
				t.Fatalf("\t%s\tTest %d:\tShould export 4 hashes, got %d.", failed, testID, len(hashes))
			}
			t.Logf("\t%s\tTest %d:\tShould export the bound hashes.", success, testID)
		}
	}
}

func Test_Bodies(t *testing.T) {
	t.Log("Given the need to cache a bounded number of block bodies.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen more blocks are added than the capacity.", testID)
		{
			c, err := cache.New(2)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the cache: %v", failed, testID, err)
			}

			unbound := block(9, 0)
			if err := c.AddBlock(unbound); !errors.Is(err, cache.ErrHashUnbound) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse a body without a bound hash, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse a body without a bound hash.", success, testID)

			var blocks []database.Block
			for h := uint64(0); h < 3; h++ {
				b := block(h, 0)
				blocks = append(blocks, b)

				if err := c.AddHeaderHash(h, b.Hash()); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould bind height %d: %v", failed, testID, h, err)
				}
				if err := c.AddBlock(b); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould add block %d: %v", failed, testID, h, err)
				}

				// Reads must not change the eviction order.
				c.Block(blocks[0].Hash())
			}

			if err := c.AddBlock(blocks[2]); !errors.Is(err, cache.ErrBlockExists) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse a duplicate body, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse a duplicate body.", success, testID)

			if _, exists := c.Block(blocks[0].Hash()); exists {
				t.Fatalf("\t%s\tTest %d:\tShould evict the oldest body.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould evict the oldest body.", success, testID)

			if _, exists := c.BlockByHeight(2); !exists {
				t.Fatalf("\t%s\tTest %d:\tShould keep the newest body.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the newest body.", success, testID)

			if hash, exists := c.Hash(0); !exists || hash != blocks[0].Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould never evict header hashes.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould never evict header hashes.", success, testID)
		}
	}
}
