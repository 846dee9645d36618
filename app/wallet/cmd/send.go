package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	chainID  uint16
	fee      uint64
	to       string
	amount   uint64
	delegate string
	name     string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transfer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		toID, err := database.ToAccountID(to)
		if err != nil {
			return err
		}

		return submit(cmd, database.Transfer{
			Outputs: []database.Output{{To: toID, Amount: amount}},
		})
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote",
	Short: "Replace your votes with a vote for a delegate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		delegateID, err := database.ToAccountID(delegate)
		if err != nil {
			return err
		}

		return submit(cmd, database.VoteCast{
			Votes: []database.Vote{{Delegate: delegateID, Amount: amount}},
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register your account as a delegate",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return submit(cmd, database.RegisterDelegate{Name: name})
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock balance to gain voting power",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return submit(cmd, database.Lock{Value: amount})
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock your whole locked balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return submit(cmd, database.Unlock{})
	},
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, voteCmd, registerCmd, lockCmd, unlockCmd} {
		rootCmd.AddCommand(c)
		c.Flags().Uint16VarP(&chainID, "chain", "i", 1, "Chain id of the network.")
		c.Flags().Uint64VarP(&fee, "fee", "f", 0, "Fee to pay the network.")
	}

	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account to send to.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Amount to send.")
	voteCmd.Flags().StringVarP(&delegate, "delegate", "d", "", "Delegate to vote for.")
	voteCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Votes to cast.")
	registerCmd.Flags().StringVarP(&name, "name", "n", "", "Name of the delegate.")
	lockCmd.Flags().Uint64VarP(&amount, "amount", "v", 0, "Amount to lock.")
}

// submit signs a transaction carrying the payload with the wallet's key and
// submits it to the node.
func submit(cmd *cobra.Command, payload database.Payload) error {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	tx, err := database.NewTx(chainID, database.PublicKeyToAccountID(privateKey.PublicKey), fee, payload)
	if err != nil {
		return err
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		return err
	}

	data, err := json.Marshal(signedTx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s: %s", resp.Status, body)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(body))
	return nil
}
