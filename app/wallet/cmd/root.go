// Package cmd contains wallet app
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	accountName string
	accountPath string
	url         string
)

const (
	keyExtenstion = ".ecdsa"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private.ecdsa", "Path to the private key.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

var rootCmd = &cobra.Command{
	Use:           "wallet",
	Short:         "You simple wallet",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the wallet with the process arguments.
func Execute() {
	if err := Run(os.Args[1:]); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}

// Run runs the wallet with the provided arguments.
func Run(args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func getPrivateKeyPath() string {
	name := accountName
	if !strings.HasSuffix(name, keyExtenstion) {
		name += keyExtenstion
	}

	return filepath.Join(accountPath, name)
}
