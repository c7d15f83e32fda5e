package chain

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simexchange/internal/crypto"
	"github.com/alanyoungcy/simexchange/internal/domain"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	poolAddr  = common.HexToAddress("0x3e69935694cdb936bf0b281e62b4087cfcb063bb")
	tokenAddr = common.HexToAddress("0x6467854f25ff1f1ff8c11a717faf03e409b53635")
)

// fakeBackend mines every transaction on the second receipt lookup and
// answers view calls from a table keyed by method name.
type fakeBackend struct {
	mu        sync.Mutex
	nonce     uint64
	sent      []*types.Transaction
	lookups   map[common.Hash]int
	revert    bool
	estimate  error
	views     map[string]any
	viewCalls []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		lookups: map[common.Hash]int{},
		views: map[string]any{
			"getUserUnallocatedCollateralBalance": big.NewInt(5_000),
			"balanceOf":                           big.NewInt(7_000),
			"allowance":                           big.NewInt(0),
			"decimals":                            uint8(18),
			"symbol":                              "FUSD",
		},
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimate != nil {
		return 0, f.estimate
	}
	return 90_000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[hash]++
	if f.lookups[hash] < 2 {
		return nil, ethereum.NotFound
	}
	for _, tx := range f.sent {
		if tx.Hash() != hash {
			continue
		}
		from, _ := types.Sender(types.LatestSignerForChainID(big.NewInt(1337)), tx)
		r := &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: hash, BlockNumber: big.NewInt(42)}
		if f.revert {
			r.Status = types.ReceiptStatusFailed
		}
		if tx.To() == nil {
			r.ContractAddress = ethcrypto.CreateAddress(from, tx.Nonce())
		}
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	for _, parsed := range []abi.ABI{collateralPoolABI, erc20ABI} {
		method, err := parsed.MethodById(msg.Data[:4])
		if err != nil {
			continue
		}
		f.mu.Lock()
		f.viewCalls = append(f.viewCalls, method.Name)
		v, ok := f.views[method.Name]
		f.mu.Unlock()
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(v)
	}
	return nil, errors.New("unknown selector")
}

func newTestClient(t *testing.T, b Backend) *Client {
	t.Helper()
	signer, err := crypto.NewSigner(testKeyHex, 1337)
	require.NoError(t, err)
	return NewClient(b, signer, ClientConfig{ReceiptPoll: time.Millisecond, GasLimit: 4_000_000}, nil)
}

func completeDraft() domain.ContractDraft {
	var d domain.ContractDraft
	d.Merge(domain.StepNaming, domain.ContractDraft{Name: "ETHXBT", BaseTokenAddress: tokenAddr.Hex()})
	d.Merge(domain.StepPricing, domain.ContractDraft{
		PriceFloor:         decimal.RequireFromString("200.5"),
		PriceCap:           decimal.RequireFromString("604.65"),
		PriceDecimalPlaces: 2,
		QtyMultiplier:      decimal.NewFromInt(10),
	})
	d.Merge(domain.StepExpiring, domain.ContractDraft{ExpirationTimestamp: 1_900_000_000})
	d.Merge(domain.StepSourcingData, domain.ContractDraft{OracleQuery: "json(https://api.kraken.com/0/public/Ticker?pair=ETHUSD).result.XETHZUSD.c.0"})
	return d
}

func TestScaleDecimal(t *testing.T) {
	tests := []struct {
		v      string
		places int
		want   string
	}{
		{"604.65", 2, "60465"},
		{"201.55", 2, "20155"},
		{"100", 0, "100"},
		{"0.5", 18, "500000000000000000"},
		{"1.005", 3, "1005"},
		{"0.1", 18, "100000000000000000"},
		{"1.1", 17, "110000000000000000"},
		{"60465.37", 18, "60465370000000000000000"},
	}
	for _, tc := range tests {
		got, err := ScaleDecimal(decimal.RequireFromString(tc.v), tc.places)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.String(), "%s@%d", tc.v, tc.places)
	}

	for _, bad := range []struct {
		v      string
		places int
	}{
		{"0.001", 2},
		{"-1", 0},
		{"0", 4},
		{"1", -1},
	} {
		_, err := ScaleDecimal(decimal.RequireFromString(bad.v), bad.places)
		assert.Error(t, err, "%s@%d", bad.v, bad.places)
	}
}

func TestConstructorArgs(t *testing.T) {
	args, err := ConstructorArgs(completeDraft())
	require.NoError(t, err)
	require.Len(t, args, 5)

	assert.Equal(t, "ETHXBT", args[0])
	assert.Equal(t, tokenAddr, args[1])
	specs := args[2].([5]*big.Int)
	assert.Equal(t, "20050", specs[0].String())
	assert.Equal(t, "60465", specs[1].String())
	assert.Equal(t, "2", specs[2].String())
	assert.Equal(t, "10", specs[3].String())
	assert.Equal(t, "1900000000", specs[4].String())
	assert.Equal(t, domain.DefaultOracleDataSource, args[3])

	d := completeDraft()
	d.Merge(domain.StepPricing, domain.ContractDraft{
		PriceFloor:         decimal.RequireFromString("200.501"),
		PriceCap:           decimal.RequireFromString("604.65"),
		PriceDecimalPlaces: 2,
		QtyMultiplier:      decimal.NewFromInt(10),
	})
	_, err = ConstructorArgs(d)
	assert.ErrorContains(t, err, "price floor")

	d.Merge(domain.StepPricing, domain.ContractDraft{
		PriceFloor:         decimal.RequireFromString("200.5"),
		PriceCap:           decimal.RequireFromString("604.65"),
		PriceDecimalPlaces: 2,
		QtyMultiplier:      decimal.RequireFromString("0.5"),
	})
	_, err = ConstructorArgs(d)
	assert.ErrorContains(t, err, "qty multiplier")
}

func TestEthGatewayDeploy(t *testing.T) {
	b := newFakeBackend()
	b.estimate = errors.New("cannot estimate")
	client := newTestClient(t, b)

	marketABI, err := LoadMarketABI("")
	require.NoError(t, err)
	code, err := DecodeBytecode("0x6080604052")
	require.NoError(t, err)

	g := NewEthGateway(client, marketABI, code)
	got, err := g.Deploy(context.Background(), completeDraft())
	require.NoError(t, err)

	require.Len(t, b.sent, 1)
	tx := b.sent[0]
	assert.Nil(t, tx.To())
	assert.Equal(t, uint64(4_000_000), tx.Gas(), "falls back to the configured limit")
	assert.True(t, bytes.HasPrefix(tx.Data(), code))

	values, err := marketABI.Constructor.Inputs.Unpack(tx.Data()[len(code):])
	require.NoError(t, err)
	assert.Equal(t, "ETHXBT", values[0])

	assert.Equal(t, ethcrypto.CreateAddress(client.From(), 0).Hex(), got.Address)
	assert.Equal(t, tx.Hash().Hex(), got.TxHash)
	assert.Equal(t, client.From().Hex(), got.Deployer)
	assert.Equal(t, uint64(42), got.BlockNumber)
}

func TestEthGatewayFailures(t *testing.T) {
	marketABI, err := LoadMarketABI("")
	require.NoError(t, err)

	t.Run("incomplete draft", func(t *testing.T) {
		g := NewEthGateway(newTestClient(t, newFakeBackend()), marketABI, []byte{0x60})
		_, err := g.Deploy(context.Background(), domain.ContractDraft{})
		var derr *domain.DeploymentError
		require.ErrorAs(t, err, &derr)
		assert.ErrorIs(t, err, domain.ErrDraftIncomplete)
	})

	t.Run("reverted", func(t *testing.T) {
		b := newFakeBackend()
		b.revert = true
		g := NewEthGateway(newTestClient(t, b), marketABI, []byte{0x60})
		_, err := g.Deploy(context.Background(), completeDraft())
		var derr *domain.DeploymentError
		require.ErrorAs(t, err, &derr)
		assert.Contains(t, err.Error(), "reverted")
	})

	t.Run("context ends while waiting", func(t *testing.T) {
		b := newFakeBackend()
		client := newTestClient(t, b)
		client.cfg.ReceiptPoll = time.Hour
		g := NewEthGateway(client, marketABI, []byte{0x60})

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := g.Deploy(ctx, completeDraft())
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestCollateralBalances(t *testing.T) {
	b := newFakeBackend()
	c := NewCollateral(newTestClient(t, b))
	contract := domain.ContractSummary{
		Address:                "0x00000000000000000000000000000000000000c1",
		CollateralPoolAddress:  poolAddr.Hex(),
		CollateralTokenAddress: tokenAddr.Hex(),
	}

	got, err := c.Balances(context.Background(), contract)
	require.NoError(t, err)
	assert.Equal(t, "5000", got.UnallocatedCollateral.String())
	assert.Equal(t, "7000", got.AvailableCollateral.String())
	assert.Equal(t, uint8(18), got.TokenDecimals)
	assert.Equal(t, "FUSD", got.TokenSymbol)

	_, err = c.Balances(context.Background(), domain.ContractSummary{Address: "0x1"})
	require.Error(t, err)
}

func TestCollateralDepositApprovesFirst(t *testing.T) {
	b := newFakeBackend()
	c := NewCollateral(newTestClient(t, b))
	contract := domain.ContractSummary{
		Address:                "0x00000000000000000000000000000000000000c1",
		CollateralPoolAddress:  poolAddr.Hex(),
		CollateralTokenAddress: tokenAddr.Hex(),
	}

	rcpt, err := c.Deposit(context.Background(), contract, big.NewInt(300))
	require.NoError(t, err)
	assert.Equal(t, domain.CollateralDeposit, rcpt.Action)
	assert.Equal(t, "300", rcpt.Amount.String())

	require.Len(t, b.sent, 2)
	assert.Equal(t, tokenAddr, *b.sent[0].To())
	assert.Equal(t, erc20ABI.Methods["approve"].ID, b.sent[0].Data()[:4])
	assert.Equal(t, poolAddr, *b.sent[1].To())
	assert.Equal(t, collateralPoolABI.Methods["depositTokensForTrading"].ID, b.sent[1].Data()[:4])
	assert.Equal(t, uint64(1), b.sent[1].Nonce())

	rcpt, err = c.Withdraw(context.Background(), contract, big.NewInt(100))
	require.NoError(t, err)
	assert.Equal(t, domain.CollateralWithdraw, rcpt.Action)
	require.Len(t, b.sent, 3)
	assert.Equal(t, collateralPoolABI.Methods["withdrawTokens"].ID, b.sent[2].Data()[:4])
}
