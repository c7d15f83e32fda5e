package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// findContract resolves address against the contracts listed by the market
// API. Addresses compare case-insensitively.
func findContract(ctx context.Context, market domain.MarketData, address string) (domain.ContractSummary, error) {
	contracts, err := market.Contracts(ctx)
	if err != nil {
		return domain.ContractSummary{}, fmt.Errorf("service: list contracts: %w", err)
	}
	for _, c := range contracts {
		if strings.EqualFold(c.Address, address) {
			return c, nil
		}
	}
	return domain.ContractSummary{}, fmt.Errorf("service: contract %s: %w", address, domain.ErrNotFound)
}

// ContractService lists deployments persisted by the WizardService.
type ContractService struct {
	deployments domain.DeploymentStore
	market      domain.MarketData
}

// NewContractService creates a ContractService.
func NewContractService(deployments domain.DeploymentStore, market domain.MarketData) *ContractService {
	return &ContractService{deployments: deployments, market: market}
}

// Deployments lists deployment records, newest first. An empty status lists
// every status.
func (s *ContractService) Deployments(ctx context.Context, status domain.DeploymentStatus, opts domain.ListOpts) ([]domain.DeploymentRecord, error) {
	recs, err := s.deployments.List(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("contract_service: list: %w", err)
	}
	return recs, nil
}

// SessionDeployments lists every submission made by one wizard session.
func (s *ContractService) SessionDeployments(ctx context.Context, sessionID string) ([]domain.DeploymentRecord, error) {
	recs, err := s.deployments.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("contract_service: list session %s: %w", sessionID, err)
	}
	return recs, nil
}

// Deployment returns the record of the contract deployed at address.
func (s *ContractService) Deployment(ctx context.Context, address string) (domain.DeploymentRecord, error) {
	rec, err := s.deployments.GetByAddress(ctx, address)
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("contract_service: get %s: %w", address, err)
	}
	return rec, nil
}

// Record returns one deployment record by id.
func (s *ContractService) Record(ctx context.Context, id string) (domain.DeploymentRecord, error) {
	rec, err := s.deployments.GetByID(ctx, id)
	if err != nil {
		return domain.DeploymentRecord{}, fmt.Errorf("contract_service: get record %s: %w", id, err)
	}
	return rec, nil
}

// Live returns the contracts currently listed by the market API.
func (s *ContractService) Live(ctx context.Context) ([]domain.ContractSummary, error) {
	contracts, err := s.market.Contracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("contract_service: live contracts: %w", err)
	}
	return contracts, nil
}
