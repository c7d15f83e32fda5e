package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/metrics"
	"github.com/alanyoungcy/simexchange/internal/watch"
)

// WalletView is the wallet header state for the selected contract.
type WalletView struct {
	Contract string                 `json:"contract,omitempty"`
	Loading  bool                   `json:"loading"`
	Balances *domain.WalletBalances `json:"balances,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// WalletService tracks the operator wallet's collateral balances for the
// selected contract, refetching whenever the selection changes.
type WalletService struct {
	market   domain.MarketData
	gateway  domain.CollateralGateway
	logger   *slog.Logger
	selector *watch.Selector[domain.WalletBalances]
}

// NewWalletService creates a WalletService. onUpdate, when set, receives
// every balance fetch that is kept.
func NewWalletService(market domain.MarketData, gateway domain.CollateralGateway, m *metrics.Metrics, logger *slog.Logger, onUpdate func(WalletView)) *WalletService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	s := &WalletService{
		market:  market,
		gateway: gateway,
		logger:  logger.With(slog.String("component", "wallet_service")),
	}
	opts := []watch.Option[domain.WalletBalances]{
		watch.WithLogger[domain.WalletBalances](logger),
		watch.WithMetrics[domain.WalletBalances](m),
	}
	if onUpdate != nil {
		opts = append(opts, watch.WithOnResult(func(r watch.Result[domain.WalletBalances]) {
			onUpdate(viewOf(r.Key, r, true))
		}))
	}
	s.selector = watch.NewSelector[domain.WalletBalances]("wallet", s.fetch, opts...)
	return s
}

func (s *WalletService) fetch(ctx context.Context, address string) (domain.WalletBalances, error) {
	contract, err := findContract(ctx, s.market, address)
	if err != nil {
		return domain.WalletBalances{}, err
	}
	return s.gateway.Balances(ctx, contract)
}

// Select makes address the selected contract. An empty address clears the
// selection.
func (s *WalletService) Select(address string) error {
	return s.selector.Select(strings.TrimSpace(address))
}

// Refresh refetches the balances of the selected contract.
func (s *WalletService) Refresh() error {
	return s.selector.Refresh()
}

// View returns the current wallet header state.
func (s *WalletService) View() WalletView {
	r, ok := s.selector.Current()
	return viewOf(s.selector.Key(), r, ok)
}

// Run polls the balances of the selected contract every interval until ctx
// ends.
func (s *WalletService) Run(ctx context.Context, interval time.Duration) error {
	s.logger.InfoContext(ctx, "wallet watcher started", slog.Duration("interval", interval))
	err := s.selector.Poll(ctx, interval)
	s.logger.InfoContext(ctx, "wallet watcher stopped")
	return err
}

// Close stops tracking and waits for an in-flight fetch to return.
func (s *WalletService) Close() {
	s.selector.Close()
}

func viewOf(key string, r watch.Result[domain.WalletBalances], ok bool) WalletView {
	v := WalletView{Contract: key}
	switch {
	case key == "":
	case !ok || r.Key != key:
		v.Loading = true
	case r.Err != nil:
		v.Error = r.Err.Error()
	default:
		b := r.Value
		v.Balances = &b
	}
	return v
}
