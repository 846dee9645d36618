// This program is a simple wallet for signing and submitting transactions
// to a mineral node.
package main

import "github.com/ardanlabs/mineral/app/wallet/cmd"

func main() {
	cmd.Execute()
}
