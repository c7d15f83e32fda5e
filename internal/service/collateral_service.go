package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/metrics"
	"github.com/alanyoungcy/simexchange/internal/notify"
)

// CollateralEvent is published on domain.ChannelCollateral after a
// transfer succeeds.
type CollateralEvent struct {
	Action   domain.CollateralAction `json:"action"`
	Contract string                  `json:"contract"`
	Amount   string                  `json:"amount"`
	Symbol   string                  `json:"symbol,omitempty"`
	TxHash   string                  `json:"txHash"`
	At       time.Time               `json:"at"`
}

// CollateralService deposits collateral into, and withdraws it from, the
// collateral pool of a contract.
type CollateralService struct {
	market   domain.MarketData
	gateway  domain.CollateralGateway
	wallet   *WalletService
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewCollateralService creates a CollateralService. wallet, audit, bus and
// notifier may be nil.
func NewCollateralService(
	market domain.MarketData,
	gateway domain.CollateralGateway,
	wallet *WalletService,
	audit domain.AuditStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	m *metrics.Metrics,
	logger *slog.Logger,
) *CollateralService {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NopMetrics()
	}
	return &CollateralService{
		market:   market,
		gateway:  gateway,
		wallet:   wallet,
		audit:    audit,
		bus:      bus,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With(slog.String("component", "collateral_service")),
		now:      time.Now,
	}
}

// Deposit moves amount, a positive decimal in token units, from the wallet
// into the contract's collateral pool. It may not exceed the wallet's
// available token balance.
func (s *CollateralService) Deposit(ctx context.Context, address, amount string) (domain.CollateralReceipt, error) {
	return s.move(ctx, domain.CollateralDeposit, address, amount)
}

// Withdraw moves amount of unallocated collateral from the pool back to the
// wallet.
func (s *CollateralService) Withdraw(ctx context.Context, address, amount string) (domain.CollateralReceipt, error) {
	return s.move(ctx, domain.CollateralWithdraw, address, amount)
}

func (s *CollateralService) move(ctx context.Context, action domain.CollateralAction, address, amount string) (domain.CollateralReceipt, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.CollateralReceipt{}, domain.ErrNoContractSelected
	}
	contract, err := findContract(ctx, s.market, address)
	if err != nil {
		return domain.CollateralReceipt{}, err
	}

	balances, err := s.gateway.Balances(ctx, contract)
	if err != nil {
		return domain.CollateralReceipt{}, fmt.Errorf("collateral_service: balances: %w", err)
	}
	units, err := ParseAmount(amount, balances.TokenDecimals)
	if err != nil {
		return domain.CollateralReceipt{}, err
	}

	limit := balances.AvailableCollateral
	if action == domain.CollateralWithdraw {
		limit = balances.UnallocatedCollateral
	}
	if limit == nil || units.Cmp(limit) > 0 {
		s.metrics.CollateralMoves.With("action", string(action), "result", "rejected").Add(1)
		return domain.CollateralReceipt{}, fmt.Errorf("collateral_service: %s %s: %w", action, amount, domain.ErrInsufficientBalance)
	}

	var rcpt domain.CollateralReceipt
	if action == domain.CollateralDeposit {
		rcpt, err = s.gateway.Deposit(ctx, contract, units)
	} else {
		rcpt, err = s.gateway.Withdraw(ctx, contract, units)
	}
	if err != nil {
		s.metrics.CollateralMoves.With("action", string(action), "result", "error").Add(1)
		s.alert(ctx, fmt.Sprintf("%s of %s %s on %s failed: %v", action, amount, balances.TokenSymbol, contract.Name, err))
		return domain.CollateralReceipt{}, fmt.Errorf("collateral_service: %s: %w", action, err)
	}
	s.metrics.CollateralMoves.With("action", string(action), "result", "ok").Add(1)

	s.logger.InfoContext(ctx, "collateral moved",
		slog.String("action", string(action)),
		slog.String("contract", contract.Address),
		slog.String("amount", amount),
		slog.String("tx_hash", rcpt.TxHash),
	)
	s.record(ctx, rcpt, amount, balances.TokenSymbol)

	if s.wallet != nil && strings.EqualFold(s.wallet.View().Contract, contract.Address) {
		if err := s.wallet.Refresh(); err != nil {
			s.logger.DebugContext(ctx, "wallet refresh failed", slog.String("error", err.Error()))
		}
	}
	return rcpt, nil
}

// record writes the audit entry, publishes the transfer and notifies.
// Failures are logged only.
func (s *CollateralService) record(ctx context.Context, rcpt domain.CollateralReceipt, amount, symbol string) {
	if s.audit != nil {
		err := s.audit.Log(ctx, domain.AuditCollateralMoved, map[string]any{
			"action":   string(rcpt.Action),
			"contract": rcpt.Contract,
			"amount":   rcpt.Amount.String(),
			"tx_hash":  rcpt.TxHash,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to write audit entry", slog.String("error", err.Error()))
		}
	}

	if s.bus != nil {
		payload, err := json.Marshal(CollateralEvent{
			Action:   rcpt.Action,
			Contract: rcpt.Contract,
			Amount:   amount,
			Symbol:   symbol,
			TxHash:   rcpt.TxHash,
			At:       s.now().UTC(),
		})
		if err == nil {
			err = s.bus.Publish(ctx, domain.ChannelCollateral, payload)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "failed to publish collateral event", slog.String("error", err.Error()))
		}
	}

	if s.notifier.Enabled(notify.EventCollateralMoved) {
		msg := fmt.Sprintf("%s %s %s on %s (tx %s)", rcpt.Action, amount, symbol, rcpt.Contract, rcpt.TxHash)
		if err := s.notifier.Notify(ctx, notify.EventCollateralMoved, "Collateral moved", msg); err != nil {
			s.logger.WarnContext(ctx, "failed to send collateral notification", slog.String("error", err.Error()))
		}
	}
}

func (s *CollateralService) alert(ctx context.Context, msg string) {
	if !s.notifier.Enabled(notify.EventError) {
		return
	}
	if err := s.notifier.Notify(ctx, notify.EventError, "Collateral transfer failed", msg); err != nil {
		s.logger.WarnContext(ctx, "failed to send error notification", slog.String("error", err.Error()))
	}
}

// maxAmountExponent rejects exponent notation that would expand into an
// absurdly large integer.
const maxAmountExponent = 38

// ParseAmount converts a positive decimal string such as "12.5" into base
// units of a token with the given number of decimals.
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil || d.Exponent() > maxAmountExponent {
		return nil, fmt.Errorf("%w: %q is not a decimal number", domain.ErrInvalidAmount, amount)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("%w: %q must be greater than zero", domain.ErrInvalidAmount, amount)
	}
	units := d.Shift(int32(decimals))
	if !units.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", domain.ErrInvalidAmount, amount, decimals)
	}
	return units.BigInt(), nil
}
