package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ardanlabs/mineral/foundation/blockchain/cache"
	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
	"github.com/ardanlabs/mineral/foundation/nameservice"
	"github.com/spf13/cobra"
)

// ErrNoChain is returned when the store holds no committed chain.
var ErrNoChain = errors.New("store has no committed chain")

func headCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "head",
		Short: "Show the last committed block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, _, closeFn, err := openView()
			if err != nil {
				return err
			}
			defer closeFn()

			head, found, err := view.Head()
			if err != nil {
				return err
			}
			if !found {
				return ErrNoChain
			}

			return printJSON(cmd, head)
		},
	}
}

func accountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "account <account|name>",
		Short: "Show the state of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			accountID, err := resolve(args[0])
			if err != nil {
				return err
			}

			view, _, closeFn, err := openView()
			if err != nil {
				return err
			}
			defer closeFn()

			acct, err := view.Account(accountID)
			if err != nil {
				return err
			}

			resp := struct {
				database.AccountState
				TotalVotes uint64 `json:"total_votes"`
			}{
				AccountState: acct,
				TotalVotes:   acct.TotalVotes(),
			}

			return printJSON(cmd, resp)
		},
	}
}

func blockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <height>",
		Short: "Show the committed block at a height",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			height, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid height: %w", err)
			}

			view, _, closeFn, err := openView()
			if err != nil {
				return err
			}
			defer closeFn()

			block, err := blockAt(view, height)
			if err != nil {
				return err
			}

			return printJSON(cmd, block)
		},
	}
}

func txCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tx <hash>",
		Short: "Show a committed transaction and its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, _, closeFn, err := openView()
			if err != nil {
				return err
			}
			defer closeFn()

			ts, found, err := view.Transaction(args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("tx[%s]: not found", args[0])
			}

			return printJSON(cmd, ts)
		},
	}
}

func delegatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delegates",
		Short: "Show the delegates and the active producer schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, db, closeFn, err := openView()
			if err != nil {
				return err
			}
			defer closeFn()

			head, found, err := view.Head()
			if err != nil {
				return err
			}
			if !found {
				return ErrNoChain
			}

			dlgs, err := view.Delegates()
			if err != nil {
				return err
			}

			tt, _, err := ledger.TurnTable(db, head.Height+1)
			if err != nil {
				return err
			}

			resp := struct {
				Delegates []database.DelegateState `json:"delegates"`
				TurnTable database.TurnTableState  `json:"turn_table"`
			}{
				Delegates: dlgs,
				TurnTable: tt,
			}

			return printJSON(cmd, resp)
		},
	}
}

// =============================================================================

// resolve accepts an account id or a name from the accounts folder.
func resolve(value string) (database.AccountID, error) {
	if ns, err := nameservice.New(accountPath); err == nil {
		if accountID, exists := ns.Account(value); exists {
			return accountID, nil
		}
	}

	return database.ToAccountID(value)
}

// blockAt finds the block at the height. A stored chunk of header hashes
// answers directly, otherwise the headers are walked back from the head.
func blockAt(view ledger.View, height uint64) (database.Block, error) {
	head, found, err := view.Head()
	if err != nil {
		return database.Block{}, err
	}
	if !found {
		return database.Block{}, ErrNoChain
	}

	if height > head.Height {
		return database.Block{}, fmt.Errorf("height[%d]: above head[%d]", height, head.Height)
	}

	start := height - height%cache.ChunkSize
	hashes, found, err := view.HashChunk(start)
	if err != nil {
		return database.Block{}, err
	}

	hash := head.Hash
	switch {
	case found && int(height-start) < len(hashes):
		hash = hashes[height-start]
	default:
		hash, err = walkBack(view, hash, height)
		if err != nil {
			return database.Block{}, err
		}
	}

	block, found, err := view.Block(hash)
	if err != nil {
		return database.Block{}, err
	}
	if !found {
		return database.Block{}, fmt.Errorf("block[%s]: not found", hash)
	}

	return block, nil
}

// walkBack follows the previous hashes from hash until it reaches the
// header at the height.
func walkBack(view ledger.View, hash string, height uint64) (string, error) {
	for {
		header, found, err := view.Header(hash)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("header[%s]: not found", hash)
		}

		if header.Number == height {
			return hash, nil
		}
		hash = header.PrevBlockHash
	}
}
