// Package commands contains the admin commands for inspecting a ledger.
package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ardanlabs/mineral/foundation/blockchain/kvstore"
	"github.com/ardanlabs/mineral/foundation/blockchain/ledger"
	"github.com/ardanlabs/mineral/foundation/blockchain/snapshot"
	"github.com/spf13/cobra"
)

var (
	dbPath      string
	accountPath string
)

// Execute runs the command named by args and writes the result to out.
func Execute(args []string, out io.Writer) error {
	rootCmd := &cobra.Command{
		Use:           "admin",
		Short:         "Inspect the ledger of a stopped node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "zblock/ledger", "Path to the ledger store.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")

	rootCmd.AddCommand(
		headCmd(),
		accountCmd(),
		blockCmd(),
		txCmd(),
		delegatesCmd(),
		genkeyCmd(),
	)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)

	return rootCmd.Execute()
}

// =============================================================================

// openView opens the store read only and returns a view over the committed
// state. Nothing written to the view is ever committed.
func openView() (ledger.View, *kvstore.Store, func(), error) {
	db, err := kvstore.OpenReadOnly(dbPath)
	if err != nil {
		return ledger.View{}, nil, nil, err
	}

	snap := snapshot.New(db, 0).NewSnapshot()

	closeFn := func() {
		snap.Release()
		db.Close()
	}

	return ledger.New(snap), db, closeFn, nil
}

// printJSON writes the value as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
