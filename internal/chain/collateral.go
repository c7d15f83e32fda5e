package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// Collateral reads balances and moves collateral for the deployer account.
type Collateral struct {
	client *Client
	now    func() time.Time
}

// NewCollateral creates a Collateral bound to client.
func NewCollateral(client *Client) *Collateral {
	return &Collateral{client: client, now: time.Now}
}

// Balances returns the unallocated collateral held in the contract's pool
// and the collateral token balance still in the wallet.
func (c *Collateral) Balances(ctx context.Context, contract domain.ContractSummary) (domain.WalletBalances, error) {
	pool, token, err := contractAddresses(contract)
	if err != nil {
		return domain.WalletBalances{}, err
	}
	wallet := c.client.From()

	unallocated, err := c.callUint(ctx, collateralPoolABI, pool, "getUserUnallocatedCollateralBalance", wallet)
	if err != nil {
		return domain.WalletBalances{}, err
	}
	available, err := c.callUint(ctx, erc20ABI, token, "balanceOf", wallet)
	if err != nil {
		return domain.WalletBalances{}, err
	}

	out := domain.WalletBalances{
		Contract:              contract.Address,
		Wallet:                wallet.Hex(),
		TokenSymbol:           contract.CollateralTokenSymbol,
		UnallocatedCollateral: unallocated,
		AvailableCollateral:   available,
		FetchedAt:             c.now().UTC(),
	}

	// Token metadata is informational; a token without it still has balances.
	if dec, err := c.callOne(ctx, erc20ABI, token, "decimals"); err == nil {
		if d, ok := dec.(uint8); ok {
			out.TokenDecimals = d
		}
	}
	if out.TokenSymbol == "" {
		if sym, err := c.callOne(ctx, erc20ABI, token, "symbol"); err == nil {
			if s, ok := sym.(string); ok {
				out.TokenSymbol = s
			}
		}
	}
	return out, nil
}

// Deposit approves the pool for amount when the allowance is short, then
// moves amount from the wallet into the pool.
func (c *Collateral) Deposit(ctx context.Context, contract domain.ContractSummary, amount *big.Int) (domain.CollateralReceipt, error) {
	pool, token, err := contractAddresses(contract)
	if err != nil {
		return domain.CollateralReceipt{}, err
	}

	allowance, err := c.callUint(ctx, erc20ABI, token, "allowance", c.client.From(), pool)
	if err != nil {
		return domain.CollateralReceipt{}, err
	}
	if allowance.Cmp(amount) < 0 {
		data, err := erc20ABI.Pack("approve", pool, amount)
		if err != nil {
			return domain.CollateralReceipt{}, fmt.Errorf("chain: pack approve: %w", err)
		}
		if _, _, err := c.client.transact(ctx, &token, data); err != nil {
			return domain.CollateralReceipt{}, fmt.Errorf("chain: approve: %w", err)
		}
	}

	return c.poolTransfer(ctx, contract, pool, domain.CollateralDeposit, "depositTokensForTrading", amount)
}

// Withdraw moves amount of unallocated collateral from the pool back to the
// wallet.
func (c *Collateral) Withdraw(ctx context.Context, contract domain.ContractSummary, amount *big.Int) (domain.CollateralReceipt, error) {
	pool, _, err := contractAddresses(contract)
	if err != nil {
		return domain.CollateralReceipt{}, err
	}
	return c.poolTransfer(ctx, contract, pool, domain.CollateralWithdraw, "withdrawTokens", amount)
}

func (c *Collateral) poolTransfer(ctx context.Context, contract domain.ContractSummary, pool common.Address, action domain.CollateralAction, method string, amount *big.Int) (domain.CollateralReceipt, error) {
	data, err := collateralPoolABI.Pack(method, amount)
	if err != nil {
		return domain.CollateralReceipt{}, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	tx, _, err := c.client.transact(ctx, &pool, data)
	if err != nil {
		return domain.CollateralReceipt{}, fmt.Errorf("chain: %s: %w", action, err)
	}

	c.client.logger.InfoContext(ctx, "collateral moved",
		slog.String("action", string(action)),
		slog.String("contract", contract.Address),
		slog.String("amount", amount.String()),
		slog.String("tx_hash", tx.Hash().Hex()),
	)
	return domain.CollateralReceipt{
		Action:   action,
		Contract: contract.Address,
		Amount:   new(big.Int).Set(amount),
		TxHash:   tx.Hash().Hex(),
	}, nil
}

func (c *Collateral) callOne(ctx context.Context, parsed abi.ABI, to common.Address, method string, args ...any) (any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	raw, err := c.client.call(ctx, to, data)
	if err != nil {
		return nil, err
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("chain: %s returned %d values", method, len(out))
	}
	return out[0], nil
}

func (c *Collateral) callUint(ctx context.Context, parsed abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	v, err := c.callOne(ctx, parsed, to, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s returned %T", method, v)
	}
	return n, nil
}

func contractAddresses(contract domain.ContractSummary) (pool, token common.Address, err error) {
	if !common.IsHexAddress(contract.CollateralPoolAddress) {
		return pool, token, fmt.Errorf("chain: contract %s has no collateral pool address", contract.Address)
	}
	if !common.IsHexAddress(contract.CollateralTokenAddress) {
		return pool, token, fmt.Errorf("chain: contract %s has no collateral token address", contract.Address)
	}
	return common.HexToAddress(contract.CollateralPoolAddress), common.HexToAddress(contract.CollateralTokenAddress), nil
}
