package service

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	err     error
	release chan struct{}
}

func (g *fakeGateway) Deploy(ctx context.Context, draft domain.ContractDraft) (domain.DeployedContract, error) {
	g.mu.Lock()
	g.calls++
	err, release := g.err, g.release
	g.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.DeployedContract{}, ctx.Err()
		}
	}
	if err != nil {
		return domain.DeployedContract{}, &domain.DeploymentError{Err: err}
	}
	return domain.DeployedContract{
		Address:  "0x00000000000000000000000000000000000000c1",
		TxHash:   "0xfeed",
		Deployer: "0x00000000000000000000000000000000000000d1",
	}, nil
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type memSessions struct {
	mu    sync.Mutex
	snaps map[string]domain.WizardSnapshot
}

func newMemSessions() *memSessions {
	return &memSessions{snaps: map[string]domain.WizardSnapshot{}}
}

func (m *memSessions) Save(_ context.Context, snap domain.WizardSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.SessionID] = snap
	return nil
}

func (m *memSessions) Load(_ context.Context, id string) (domain.WizardSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return domain.WizardSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

func (m *memSessions) get(id string) (domain.WizardSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	return snap, ok
}

type memLocks struct {
	mu   sync.Mutex
	held map[string]bool
	keys []string
}

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	l.keys = append(l.keys, key)
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type memDeployments struct {
	mu   sync.Mutex
	recs []domain.DeploymentRecord
	err  error
}

func (m *memDeployments) Create(_ context.Context, rec domain.DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memDeployments) GetByID(_ context.Context, id string) (domain.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.DeploymentRecord{}, domain.ErrNotFound
}

func (m *memDeployments) GetByAddress(_ context.Context, address string) (domain.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.Address != "" && strings.EqualFold(r.Address, address) {
			return r, nil
		}
	}
	return domain.DeploymentRecord{}, domain.ErrNotFound
}

func (m *memDeployments) ListBySession(_ context.Context, id string) ([]domain.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeploymentRecord
	for _, r := range m.recs {
		if r.SessionID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memDeployments) List(_ context.Context, status domain.DeploymentStatus, _ domain.ListOpts) ([]domain.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DeploymentRecord
	for _, r := range m.recs {
		if status == "" || r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memDeployments) all() []domain.DeploymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DeploymentRecord(nil), m.recs...)
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{ID: int64(len(a.entries) + 1), Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

func (a *memAudit) events() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Event)
	}
	return out
}

type memArchiver struct {
	mu   sync.Mutex
	recs []domain.DeploymentRecord
	err  error
}

func (a *memArchiver) Archive(_ context.Context, rec domain.DeploymentRecord) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.recs = append(a.recs, rec)
	return "deployments/" + rec.ID + ".json", nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streams: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) messages(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[channel]...)
}

func (b *memBus) stream(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.streams[name]...)
}

type fakeMarket struct {
	mu          sync.Mutex
	contracts   []domain.ContractSummary
	books       map[string]domain.OrderBook
	suggestions []domain.OracleSuggestion
	err         error
	bookCalls   int
	suggestHits int
}

func (m *fakeMarket) Contracts(context.Context) ([]domain.ContractSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.contracts, nil
}

func (m *fakeMarket) OrderBook(_ context.Context, address string) (domain.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookCalls++
	if m.err != nil {
		return domain.OrderBook{}, m.err
	}
	book, ok := m.books[address]
	if !ok {
		return domain.OrderBook{}, domain.ErrNotFound
	}
	return book, nil
}

func (m *fakeMarket) OracleSuggestions(context.Context, string) ([]domain.OracleSuggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suggestHits++
	if m.err != nil {
		return nil, m.err
	}
	return m.suggestions, nil
}

type fakeCollateral struct {
	mu          sync.Mutex
	balances    domain.WalletBalances
	deposits    []*big.Int
	withdrawals []*big.Int
	err         error
}

func (c *fakeCollateral) Balances(_ context.Context, contract domain.ContractSummary) (domain.WalletBalances, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.balances
	b.Contract = contract.Address
	return b, nil
}

func (c *fakeCollateral) Deposit(_ context.Context, contract domain.ContractSummary, amount *big.Int) (domain.CollateralReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return domain.CollateralReceipt{}, c.err
	}
	c.deposits = append(c.deposits, amount)
	return domain.CollateralReceipt{Action: domain.CollateralDeposit, Contract: contract.Address, Amount: amount, TxHash: "0xd0"}, nil
}

func (c *fakeCollateral) Withdraw(_ context.Context, contract domain.ContractSummary, amount *big.Int) (domain.CollateralReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return domain.CollateralReceipt{}, c.err
	}
	c.withdrawals = append(c.withdrawals, amount)
	return domain.CollateralReceipt{Action: domain.CollateralWithdraw, Contract: contract.Address, Amount: amount, TxHash: "0xw0"}, nil
}
