package service

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

const contractAddr = "0x00000000000000000000000000000000000000c1"

var testContract = domain.ContractSummary{
	Address:                contractAddr,
	Name:                   "ETHXBT",
	CollateralTokenAddress: "0x6467854f25ff1f1ff8c11a717faf03e409b53635",
	CollateralTokenSymbol:  "FUSD",
	CollateralPoolAddress:  "0x3e69935694cdb936bf0b281e62b4087cfcb063bb",
}

type memSuggestions struct {
	mu   sync.Mutex
	data map[string][]domain.OracleSuggestion
}

func (m *memSuggestions) Set(_ context.Context, q string, s []domain.OracleSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]domain.OracleSuggestion{}
	}
	m.data[q] = s
	return nil
}

func (m *memSuggestions) Get(_ context.Context, q string) ([]domain.OracleSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data[q]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

type memBooks struct {
	mu    sync.Mutex
	books map[string]domain.OrderBook
}

func (m *memBooks) Set(_ context.Context, b domain.OrderBook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.books == nil {
		m.books = map[string]domain.OrderBook{}
	}
	m.books[b.Contract.Address] = b
	return nil
}

func (m *memBooks) Get(_ context.Context, c string) (domain.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[c]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return b, nil
}

func TestOracleServiceCachesSuggestions(t *testing.T) {
	market := &fakeMarket{suggestions: []domain.OracleSuggestion{{Label: "ETH/USD", DataSource: "URL", Query: "json(x).c.0"}}}
	svc := NewOracleService(market, &memSuggestions{}, nil)
	ctx := context.Background()

	first := svc.Suggest(ctx, " eth ")
	second := svc.Suggest(ctx, "eth")
	require.Len(t, first, 1)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, market.suggestHits)

	assert.Empty(t, svc.Suggest(ctx, "  "))
	assert.Equal(t, 1, market.suggestHits)
}

func TestOracleServiceDegradesToEmpty(t *testing.T) {
	market := &fakeMarket{err: errors.New("connection refused")}
	got := NewOracleService(market, nil, nil).Suggest(context.Background(), "btc")
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestOrderBookServiceReadThrough(t *testing.T) {
	market := &fakeMarket{books: map[string]domain.OrderBook{
		contractAddr: {Contract: testContract, Bids: []domain.BookOrder{{Price: decimal.NewFromInt(105700), Qty: decimal.NewFromInt(3)}}},
	}}
	svc := NewOrderBookService(market, &memBooks{}, nil, nil)
	defer svc.Close()
	ctx := context.Background()

	book, err := svc.OrderBook(ctx, contractAddr)
	require.NoError(t, err)
	assert.Len(t, book.Bids, 1)
	_, err = svc.OrderBook(ctx, contractAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, market.bookCalls)

	_, err = svc.OrderBook(ctx, "0xunknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.OrderBook(ctx, "")
	assert.ErrorIs(t, err, domain.ErrNoContractSelected)
}

func TestOrderBookServiceSelection(t *testing.T) {
	defer leaktest.Check(t)()

	market := &fakeMarket{books: map[string]domain.OrderBook{contractAddr: {Contract: testContract}}}
	svc := NewOrderBookService(market, nil, nil, nil)
	require.NoError(t, svc.Select(contractAddr))

	require.Eventually(t, func() bool {
		r, ok := svc.Selected()
		return ok && r.Err == nil && r.Value.Contract.Name == "ETHXBT"
	}, time.Second, 5*time.Millisecond)
	svc.Close()
}

func newWallet(t *testing.T, gw *fakeCollateral) (*WalletService, *fakeMarket) {
	t.Helper()
	market := &fakeMarket{contracts: []domain.ContractSummary{testContract}}
	w := NewWalletService(market, gw, nil, nil, nil)
	t.Cleanup(w.Close)
	return w, market
}

func TestWalletServiceSelect(t *testing.T) {
	defer leaktest.Check(t)()

	gw := &fakeCollateral{balances: domain.WalletBalances{
		TokenDecimals:         2,
		UnallocatedCollateral: big.NewInt(5_000),
		AvailableCollateral:   big.NewInt(7_000),
	}}
	var (
		mu      sync.Mutex
		updates []WalletView
	)
	market := &fakeMarket{contracts: []domain.ContractSummary{testContract}}
	w := NewWalletService(market, gw, nil, nil, func(v WalletView) {
		mu.Lock()
		updates = append(updates, v)
		mu.Unlock()
	})

	assert.Equal(t, WalletView{}, w.View())
	require.NoError(t, w.Select("0x00000000000000000000000000000000000000C1"))

	require.Eventually(t, func() bool { return w.View().Balances != nil }, time.Second, 5*time.Millisecond)
	v := w.View()
	assert.False(t, v.Loading)
	assert.Equal(t, "5000", v.Balances.UnallocatedCollateral.String())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(updates) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Select("0x00000000000000000000000000000000000000ff"))
	require.Eventually(t, func() bool { return w.View().Error != "" }, time.Second, 5*time.Millisecond)
	assert.Contains(t, w.View().Error, "not found")

	w.Close()
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
		ok       bool
	}{
		{"12.5", 2, "1250", true},
		{"1", 18, "1000000000000000000", true},
		{".5", 1, "5", true},
		{"7.", 0, "7", true},
		{"0", 2, "", false},
		{"0.00", 2, "", false},
		{"-1", 2, "", false},
		{"1.234", 2, "", false},
		{"abc", 2, "", false},
		{"", 2, "", false},
		{".", 2, "", false},
		{"1e3", 2, "100000", true},
		{"1.50", 1, "15", true},
		{"1e99", 2, "", false},
		{"1.2.3", 2, "", false},
	}
	for _, tc := range tests {
		got, err := ParseAmount(tc.in, tc.decimals)
		if !tc.ok {
			assert.ErrorIs(t, err, domain.ErrInvalidAmount, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got.String(), tc.in)
	}
}

func TestCollateralServiceDepositAndWithdraw(t *testing.T) {
	gw := &fakeCollateral{balances: domain.WalletBalances{
		TokenDecimals:         2,
		TokenSymbol:           "FUSD",
		UnallocatedCollateral: big.NewInt(5_000),
		AvailableCollateral:   big.NewInt(7_000),
	}}
	wallet, market := newWallet(t, gw)
	audit, bus := &memAudit{}, newMemBus()
	svc := NewCollateralService(market, gw, wallet, audit, bus, nil, nil, nil)
	ctx := context.Background()

	rcpt, err := svc.Deposit(ctx, contractAddr, "70")
	require.NoError(t, err)
	assert.Equal(t, "7000", rcpt.Amount.String())
	assert.Equal(t, domain.CollateralDeposit, rcpt.Action)

	_, err = svc.Deposit(ctx, contractAddr, "70.01")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	rcpt, err = svc.Withdraw(ctx, contractAddr, "50")
	require.NoError(t, err)
	assert.Equal(t, "5000", rcpt.Amount.String())
	_, err = svc.Withdraw(ctx, contractAddr, "50.01")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	assert.Equal(t, []string{domain.AuditCollateralMoved, domain.AuditCollateralMoved}, audit.events())
	assert.Len(t, bus.messages(domain.ChannelCollateral), 2)
	assert.Len(t, gw.deposits, 1)
	assert.Len(t, gw.withdrawals, 1)
}

func TestCollateralServiceRejects(t *testing.T) {
	gw := &fakeCollateral{balances: domain.WalletBalances{
		TokenDecimals:         2,
		UnallocatedCollateral: big.NewInt(100),
		AvailableCollateral:   big.NewInt(100),
	}}
	_, market := newWallet(t, gw)
	svc := NewCollateralService(market, gw, nil, nil, nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Deposit(ctx, contractAddr, "-1")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = svc.Deposit(ctx, "", "1")
	assert.ErrorIs(t, err, domain.ErrNoContractSelected)
	_, err = svc.Deposit(ctx, "0x00000000000000000000000000000000000000ff", "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	gw.err = errors.New("nonce too low")
	_, err = svc.Withdraw(ctx, contractAddr, "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonce too low")
	assert.Empty(t, gw.withdrawals)
}

func TestContractService(t *testing.T) {
	store := &memDeployments{}
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, domain.DeploymentRecord{ID: "a", SessionID: "s1", Status: domain.DeploymentSuccess, Address: contractAddr}))
	require.NoError(t, store.Create(ctx, domain.DeploymentRecord{ID: "b", SessionID: "s1", Status: domain.DeploymentFailure}))

	svc := NewContractService(store, &fakeMarket{contracts: []domain.ContractSummary{testContract}})

	recs, err := svc.Deployments(ctx, domain.DeploymentSuccess, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	recs, err = svc.SessionDeployments(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	rec, err := svc.Deployment(ctx, "0x00000000000000000000000000000000000000C1")
	require.NoError(t, err)
	assert.Equal(t, "a", rec.ID)

	_, err = svc.Record(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	live, err := svc.Live(ctx)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}
