package commands

import (
	"fmt"
	"path/filepath"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

const keyExtension = ".ecdsa"

func genkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "genkey <name>",
		Short: "Generate a new key pair in the accounts folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			privateKey, err := crypto.GenerateKey()
			if err != nil {
				return err
			}

			path := filepath.Join(accountPath, args[0]+keyExtension)
			if err := crypto.SaveECDSA(path, privateKey); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, database.PublicKeyToAccountID(privateKey.PublicKey))
			return err
		},
	}
}
