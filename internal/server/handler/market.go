package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// OracleService defines the suggestion lookup used by the data source step.
type OracleService interface {
	Suggest(ctx context.Context, query string) []domain.OracleSuggestion
}

// ContractService defines the deployment listing methods.
type ContractService interface {
	Deployments(ctx context.Context, status domain.DeploymentStatus, opts domain.ListOpts) ([]domain.DeploymentRecord, error)
	SessionDeployments(ctx context.Context, sessionID string) ([]domain.DeploymentRecord, error)
}

// OrderBookService defines the order book lookup.
type OrderBookService interface {
	OrderBook(ctx context.Context, address string) (domain.OrderBook, error)
}

// MarketHandler serves oracle suggestions, deployed contracts and order
// books.
type MarketHandler struct {
	oracle    OracleService
	contracts ContractService
	books     OrderBookService
	logger    *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(oracle OracleService, contracts ContractService, books OrderBookService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		oracle:    oracle,
		contracts: contracts,
		books:     books,
		logger:    logHandler(logger, "market"),
	}
}

// deploymentJSON is the wire form of a deployment record.
type deploymentJSON struct {
	ID         string                  `json:"id"`
	SessionID  string                  `json:"sessionId"`
	Name       string                  `json:"name"`
	Draft      domain.ContractDraft    `json:"draft"`
	Status     domain.DeploymentStatus `json:"status"`
	Address    string                  `json:"address,omitempty"`
	TxHash     string                  `json:"txHash,omitempty"`
	Deployer   string                  `json:"deployer,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Attempt    int                     `json:"attempt"`
	CreatedAt  time.Time               `json:"createdAt"`
	ResolvedAt time.Time               `json:"resolvedAt"`
}

func toDeploymentJSON(rec domain.DeploymentRecord) deploymentJSON {
	return deploymentJSON{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		Name:       rec.Draft.Name,
		Draft:      rec.Draft,
		Status:     rec.Status,
		Address:    rec.Address,
		TxHash:     rec.TxHash,
		Deployer:   rec.Deployer,
		Error:      rec.Error,
		Attempt:    rec.Attempt,
		CreatedAt:  rec.CreatedAt,
		ResolvedAt: rec.ResolvedAt,
	}
}

// listDeploymentsResponse wraps the list endpoint output with metadata.
type listDeploymentsResponse struct {
	Deployments []deploymentJSON `json:"deployments"`
	Limit       int              `json:"limit"`
	Offset      int              `json:"offset"`
}

// Suggestions returns oracle queries matching q. It always answers 200.
// GET /api/oracle/suggestions?q=eth
func (h *MarketHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	got := h.oracle.Suggest(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": got})
}

// ListContracts returns persisted deployments, newest first.
// GET /api/contracts?status=success&session=...&limit=50&offset=0
func (h *MarketHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := parseListOpts(r)

	status := domain.DeploymentStatus(q.Get("status"))
	switch status {
	case "", domain.DeploymentSuccess, domain.DeploymentFailure:
	default:
		writeError(w, http.StatusBadRequest, "status must be success or failure")
		return
	}

	var (
		recs []domain.DeploymentRecord
		err  error
	)
	if session := q.Get("session"); session != "" {
		recs, err = h.contracts.SessionDeployments(r.Context(), session)
	} else {
		recs, err = h.contracts.Deployments(r.Context(), status, opts)
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list contracts", err)
		return
	}

	out := make([]deploymentJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toDeploymentJSON(rec))
	}
	writeJSON(w, http.StatusOK, listDeploymentsResponse{
		Deployments: out,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	})
}

// OrderBook returns the bids and asks of one contract.
// GET /api/contracts/{address}/orderbook
func (h *MarketHandler) OrderBook(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	book, err := h.books.OrderBook(r.Context(), address)
	if err != nil {
		writeServiceError(w, r, h.logger, "get order book", err)
		return
	}
	if book.Bids == nil {
		book.Bids = []domain.BookOrder{}
	}
	if book.Asks == nil {
		book.Asks = []domain.BookOrder{}
	}
	writeJSON(w, http.StatusOK, book)
}
