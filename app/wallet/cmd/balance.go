package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type account struct {
	Account       string `json:"account"`
	Name          string `json:"name"`
	Balance       uint64 `json:"balance"`
	LockedBalance uint64 `json:"locked_balance"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Args:  cobra.NoArgs,
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		return err
	}

	accountID := database.PublicKeyToAccountID(privateKey.PublicKey)

	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/%s", url, accountID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %s", resp.Status)
	}

	var acct account
	if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "For Account: %s\nBalance: %d\nLocked: %d\n", accountID, acct.Balance, acct.LockedBalance)
	return nil
}
