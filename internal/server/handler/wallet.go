package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/service"
)

// WalletService defines the wallet header methods.
type WalletService interface {
	Select(address string) error
	View() service.WalletView
}

// ContractSelector is notified when the dashboard selects a contract.
type ContractSelector interface {
	Select(address string) error
}

// CollateralService defines the collateral transfer methods.
type CollateralService interface {
	Deposit(ctx context.Context, address, amount string) (domain.CollateralReceipt, error)
	Withdraw(ctx context.Context, address, amount string) (domain.CollateralReceipt, error)
}

// WalletHandler serves the wallet header: contract selection, balances and
// collateral transfers.
type WalletHandler struct {
	wallet     WalletService
	selectors  []ContractSelector
	collateral CollateralService
	logger     *slog.Logger
}

// NewWalletHandler creates a WalletHandler. Every extra selector follows
// the wallet's contract selection.
func NewWalletHandler(wallet WalletService, collateral CollateralService, logger *slog.Logger, selectors ...ContractSelector) *WalletHandler {
	return &WalletHandler{
		wallet:     wallet,
		selectors:  selectors,
		collateral: collateral,
		logger:     logHandler(logger, "wallet"),
	}
}

type selectRequest struct {
	Contract string `json:"contract"`
}

type transferRequest struct {
	Contract string `json:"contract"`
	Amount   string `json:"amount"`
}

// Select changes the selected contract. An empty contract clears it.
// POST /api/wallet/select
func (h *WalletHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	address := strings.TrimSpace(req.Contract)

	if err := h.wallet.Select(address); err != nil {
		writeServiceError(w, r, h.logger, "select contract", err)
		return
	}
	for _, s := range h.selectors {
		if err := s.Select(address); err != nil {
			h.logger.WarnContext(r.Context(), "selector rejected contract",
				slog.String("contract", address),
				slog.String("error", err.Error()),
			)
		}
	}
	writeJSON(w, http.StatusAccepted, h.wallet.View())
}

// Balances returns the wallet header state for the selected contract.
// GET /api/wallet
func (h *WalletHandler) Balances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.wallet.View())
}

// Deposit moves collateral from the wallet into the selected contract's
// pool. The contract defaults to the current selection.
// POST /api/collateral/deposit
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, domain.CollateralDeposit)
}

// Withdraw moves unallocated collateral back to the wallet.
// POST /api/collateral/withdraw
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, domain.CollateralWithdraw)
}

func (h *WalletHandler) transfer(w http.ResponseWriter, r *http.Request, action domain.CollateralAction) {
	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Contract == "" {
		req.Contract = h.wallet.View().Contract
	}

	var (
		rcpt domain.CollateralReceipt
		err  error
	)
	if action == domain.CollateralDeposit {
		rcpt, err = h.collateral.Deposit(r.Context(), req.Contract, req.Amount)
	} else {
		rcpt, err = h.collateral.Withdraw(r.Context(), req.Contract, req.Amount)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, string(action), err)
		return
	}
	writeJSON(w, http.StatusOK, rcpt)
}
