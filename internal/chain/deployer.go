package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// EthGateway deploys market contracts from wizard drafts.
type EthGateway struct {
	client   *Client
	abi      abi.ABI
	bytecode []byte
	now      func() time.Time
}

// NewEthGateway creates a gateway deploying bytecode with constructor abi.
func NewEthGateway(client *Client, contractABI abi.ABI, bytecode []byte) *EthGateway {
	return &EthGateway{
		client:   client,
		abi:      contractABI,
		bytecode: bytecode,
		now:      time.Now,
	}
}

// Deploy sends the contract creation transaction for draft and waits for it
// to be mined. Every failure is a *domain.DeploymentError.
func (g *EthGateway) Deploy(ctx context.Context, draft domain.ContractDraft) (domain.DeployedContract, error) {
	if !draft.Complete() {
		return domain.DeployedContract{}, &domain.DeploymentError{Err: domain.ErrDraftIncomplete}
	}

	args, err := ConstructorArgs(draft)
	if err != nil {
		return domain.DeployedContract{}, &domain.DeploymentError{Err: err}
	}
	packed, err := g.abi.Pack("", args...)
	if err != nil {
		return domain.DeployedContract{}, &domain.DeploymentError{Err: fmt.Errorf("chain: pack constructor: %w", err)}
	}

	data := make([]byte, 0, len(g.bytecode)+len(packed))
	data = append(data, g.bytecode...)
	data = append(data, packed...)

	tx, receipt, err := g.client.transact(ctx, nil, data)
	if err != nil {
		return domain.DeployedContract{}, &domain.DeploymentError{Err: err}
	}

	g.client.logger.InfoContext(ctx, "contract deployed",
		slog.String("name", draft.Name),
		slog.String("address", receipt.ContractAddress.Hex()),
		slog.String("tx_hash", tx.Hash().Hex()),
	)
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return domain.DeployedContract{
		Address:     receipt.ContractAddress.Hex(),
		TxHash:      tx.Hash().Hex(),
		Deployer:    g.client.From().Hex(),
		BlockNumber: block,
		DeployedAt:  g.now().UTC(),
	}, nil
}

// ConstructorArgs maps a complete draft to the market contract constructor:
// (name, collateralToken, [floor, cap, decimals, qtyMultiplier, expiration],
// oracleDataSource, oracleQuery). Floor and cap are fixed-point integers
// scaled by 10^priceDecimalPlaces. The multiplier is passed as the whole
// number the user entered; it is independent of priceDecimalPlaces.
func ConstructorArgs(d domain.ContractDraft) ([]any, error) {
	floor, err := ScaleDecimal(d.PriceFloor, d.PriceDecimalPlaces)
	if err != nil {
		return nil, fmt.Errorf("chain: price floor: %w", err)
	}
	ceiling, err := ScaleDecimal(d.PriceCap, d.PriceDecimalPlaces)
	if err != nil {
		return nil, fmt.Errorf("chain: price cap: %w", err)
	}
	qty, err := ScaleDecimal(d.QtyMultiplier, 0)
	if err != nil {
		return nil, fmt.Errorf("chain: qty multiplier: %w", err)
	}
	if ceiling.Cmp(floor) <= 0 {
		return nil, fmt.Errorf("chain: price cap %s not above floor %s after scaling", ceiling, floor)
	}
	if d.ExpirationTimestamp <= 0 {
		return nil, fmt.Errorf("chain: expiration must be positive")
	}

	specs := [5]*big.Int{
		floor,
		ceiling,
		big.NewInt(int64(d.PriceDecimalPlaces)),
		qty,
		big.NewInt(d.ExpirationTimestamp),
	}
	source := d.OracleDataSource
	if source == "" {
		source = domain.DefaultOracleDataSource
	}
	return []any{
		d.Name,
		common.HexToAddress(d.BaseTokenAddress),
		specs,
		source,
		d.OracleQuery,
	}, nil
}

// ScaleDecimal returns v * 10^places as an integer. v must be positive and
// carry no more than places decimals.
func ScaleDecimal(v decimal.Decimal, places int) (*big.Int, error) {
	if places < 0 {
		return nil, fmt.Errorf("negative decimal places %d", places)
	}
	scaled := v.Shift(int32(places))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%s has more than %d decimal places", v, places)
	}
	if !scaled.IsPositive() {
		return nil, fmt.Errorf("%s must be greater than zero", v)
	}
	return scaled.BigInt(), nil
}
