package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NethermindEth/eternalgov/crypto"
)

// KeygenCmd generates a delegate signing key
var KeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a delegate key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv := crypto.GenerateKeyPair()
		addr, err := crypto.AddressFromPublicKey(pub)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Public Key:", pub)
		fmt.Fprintln(out, "Private Key:", priv)
		fmt.Fprintln(out, "Address:", addr)
		fmt.Fprintln(out, "Set ETERNALGOV_AGENT_PRIVATE_KEY to use this key.")
		return nil
	},
}
