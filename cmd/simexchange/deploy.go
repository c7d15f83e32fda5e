package main

import (
	"github.com/spf13/cobra"

	"github.com/alanyoungcy/simexchange/internal/app"
)

var draftPath string

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy one contract from a draft file and wait for the result",
	Long: `Deploy walks a wizard session through every step using the fields of a
TOML draft file, submits the contract and waits until the deployment
succeeds or fails. The draft keys are the wizard field names, e.g.

  name = "ETH-USD Dec"
  baseTokenAddress = "0x..."
  priceFloor = 1500
  priceCap = 2500
  priceDecimalPlaces = 2
  qtyMultiplier = 10
  expirationTimestamp = 2027-01-01T00:00:00Z
  oracleQuery = "json(https://...).price"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run("deploy", app.WithDraft(draftPath))
	},
}

func init() {
	deployCmd.Flags().StringVarP(&draftPath, "draft", "d", "", "path to the TOML contract draft")
	_ = deployCmd.MarkFlagRequired("draft")
}
