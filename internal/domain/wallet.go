package domain

import (
	"context"
	"math/big"
	"time"
)

// WalletBalances holds the collateral balances of the operator wallet for
// the selected contract. Amounts are in the token's base units.
type WalletBalances struct {
	Contract              string    `json:"contract"`
	Wallet                string    `json:"wallet"`
	TokenSymbol           string    `json:"tokenSymbol,omitempty"`
	TokenDecimals         uint8     `json:"tokenDecimals"`
	UnallocatedCollateral *big.Int  `json:"unallocatedCollateral"`
	AvailableCollateral   *big.Int  `json:"availableCollateral"`
	FetchedAt             time.Time `json:"fetchedAt"`
}

// CollateralAction is the direction of a collateral transfer.
type CollateralAction string

const (
	CollateralDeposit  CollateralAction = "deposit"
	CollateralWithdraw CollateralAction = "withdraw"
)

// CollateralReceipt describes a submitted collateral transfer.
type CollateralReceipt struct {
	Action   CollateralAction `json:"action"`
	Contract string           `json:"contract"`
	Amount   *big.Int         `json:"amount"`
	TxHash   string           `json:"txHash"`
}

// CollateralGateway reads the operator wallet's balances for a contract and
// moves collateral between the wallet and the contract's collateral pool.
type CollateralGateway interface {
	Balances(ctx context.Context, contract ContractSummary) (WalletBalances, error)
	Deposit(ctx context.Context, contract ContractSummary, amount *big.Int) (CollateralReceipt, error)
	Withdraw(ctx context.Context, contract ContractSummary, amount *big.Int) (CollateralReceipt, error)
}
