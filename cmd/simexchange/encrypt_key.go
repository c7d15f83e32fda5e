package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/simexchange/internal/crypto"
)

var (
	keyOut      string
	keyPassword string
)

var encryptKeyCmd = &cobra.Command{
	Use:   "encrypt-key",
	Short: "Encrypt the deployer private key into a key file",
	Long: `Encrypt-key reads a hex private key from SIMEX_DEPLOYER_PRIVATE_KEY and
writes it, encrypted with the given password, to --out. Point
deployer.encrypted_key_path at the file and drop the raw key from the
configuration afterwards. An existing file is never overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key := os.Getenv("SIMEX_DEPLOYER_PRIVATE_KEY")
		if key == "" {
			return errors.New("SIMEX_DEPLOYER_PRIVATE_KEY is not set")
		}
		password := keyPassword
		if password == "" {
			password = os.Getenv("SIMEX_DEPLOYER_KEY_PASSWORD")
		}
		if password == "" {
			return errors.New("a password is required (--password or SIMEX_DEPLOYER_KEY_PASSWORD)")
		}
		deployer, err := crypto.WriteKeyFile(keyOut, key, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "encrypted key for deployer %s written to %s\n", deployer.Hex(), keyOut)
		return nil
	},
}

func init() {
	encryptKeyCmd.Flags().StringVarP(&keyOut, "out", "o", "deployer.key.json", "output key file")
	encryptKeyCmd.Flags().StringVar(&keyPassword, "password", "", "encryption password")
}
