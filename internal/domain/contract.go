package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultOracleDataSource is used when the data source step leaves the
// source empty.
const DefaultOracleDataSource = "URL"

// ContractDraft is the derivatives contract being configured by the wizard.
// Fields are grouped by the step that owns them; a group is only present
// after its step passed validation and was merged.
type ContractDraft struct {
	// Naming
	Name             string
	BaseTokenAddress string

	// Pricing. Floor and cap carry at most PriceDecimalPlaces decimals; the
	// multiplier is a whole number.
	PriceFloor         decimal.Decimal
	PriceCap           decimal.Decimal
	PriceDecimalPlaces int
	QtyMultiplier      decimal.Decimal

	// Expiring
	ExpirationTimestamp int64 // unix seconds

	// Sourcing data
	OracleDataSource string
	OracleQuery      string

	filled uint8 // bit per StepID
}

// Has reports whether the fields owned by step have been merged.
func (d ContractDraft) Has(step StepID) bool {
	if !step.Valid() {
		return false
	}
	return d.filled&(1<<uint(step)) != 0
}

// Complete reports whether every input step has been merged.
func (d ContractDraft) Complete() bool {
	for s := StepNaming; s < StepDeploying; s++ {
		if !d.Has(s) {
			return false
		}
	}
	return true
}

// Merge copies the fields owned by step from src into d and marks the step
// as present. Fields owned by other steps are left untouched.
func (d *ContractDraft) Merge(step StepID, src ContractDraft) {
	switch step {
	case StepNaming:
		d.Name = src.Name
		d.BaseTokenAddress = src.BaseTokenAddress
	case StepPricing:
		d.PriceFloor = src.PriceFloor
		d.PriceCap = src.PriceCap
		d.PriceDecimalPlaces = src.PriceDecimalPlaces
		d.QtyMultiplier = src.QtyMultiplier
	case StepExpiring:
		d.ExpirationTimestamp = src.ExpirationTimestamp
	case StepSourcingData:
		d.OracleDataSource = src.OracleDataSource
		d.OracleQuery = src.OracleQuery
	default:
		return
	}
	d.filled |= 1 << uint(step)
}

// Values returns the fields owned by step as a form value map. The map is
// empty when the step has not been merged yet.
func (d ContractDraft) Values(step StepID) map[string]any {
	out := map[string]any{}
	if !d.Has(step) {
		return out
	}
	switch step {
	case StepNaming:
		out[FieldName] = d.Name
		out[FieldBaseTokenAddress] = d.BaseTokenAddress
	case StepPricing:
		out[FieldPriceFloor] = d.PriceFloor
		out[FieldPriceCap] = d.PriceCap
		out[FieldPriceDecimalPlaces] = d.PriceDecimalPlaces
		out[FieldQtyMultiplier] = d.QtyMultiplier
	case StepExpiring:
		out[FieldExpirationTimestamp] = d.ExpirationTimestamp
	case StepSourcingData:
		out[FieldOracleDataSource] = d.OracleDataSource
		out[FieldOracleQuery] = d.OracleQuery
	}
	return out
}

// draftJSON is the wire shape of a ContractDraft. Absent steps are omitted.
type draftJSON struct {
	Name                *string          `json:"name,omitempty"`
	BaseTokenAddress    *string          `json:"baseTokenAddress,omitempty"`
	PriceFloor          *decimal.Decimal `json:"priceFloor,omitempty"`
	PriceCap            *decimal.Decimal `json:"priceCap,omitempty"`
	PriceDecimalPlaces  *int             `json:"priceDecimalPlaces,omitempty"`
	QtyMultiplier       *decimal.Decimal `json:"qtyMultiplier,omitempty"`
	ExpirationTimestamp *int64           `json:"expirationTimestamp,omitempty"`
	OracleDataSource    *string          `json:"oracleDataSource,omitempty"`
	OracleQuery         *string          `json:"oracleQuery,omitempty"`
}

// MarshalJSON emits only the fields of merged steps.
func (d ContractDraft) MarshalJSON() ([]byte, error) {
	var w draftJSON
	if d.Has(StepNaming) {
		w.Name, w.BaseTokenAddress = &d.Name, &d.BaseTokenAddress
	}
	if d.Has(StepPricing) {
		w.PriceFloor, w.PriceCap = &d.PriceFloor, &d.PriceCap
		w.PriceDecimalPlaces, w.QtyMultiplier = &d.PriceDecimalPlaces, &d.QtyMultiplier
	}
	if d.Has(StepExpiring) {
		w.ExpirationTimestamp = &d.ExpirationTimestamp
	}
	if d.Has(StepSourcingData) {
		w.OracleDataSource, w.OracleQuery = &d.OracleDataSource, &d.OracleQuery
	}
	return json.Marshal(w)
}

// UnmarshalJSON restores a draft encoded by MarshalJSON, marking a step as
// present when any of its fields appear.
func (d *ContractDraft) UnmarshalJSON(data []byte) error {
	var w draftJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = ContractDraft{}

	if w.Name != nil || w.BaseTokenAddress != nil {
		d.Merge(StepNaming, ContractDraft{Name: deref(w.Name), BaseTokenAddress: deref(w.BaseTokenAddress)})
	}
	if w.PriceFloor != nil || w.PriceCap != nil || w.PriceDecimalPlaces != nil || w.QtyMultiplier != nil {
		d.Merge(StepPricing, ContractDraft{
			PriceFloor:         deref(w.PriceFloor),
			PriceCap:           deref(w.PriceCap),
			PriceDecimalPlaces: deref(w.PriceDecimalPlaces),
			QtyMultiplier:      deref(w.QtyMultiplier),
		})
	}
	if w.ExpirationTimestamp != nil {
		d.Merge(StepExpiring, ContractDraft{ExpirationTimestamp: *w.ExpirationTimestamp})
	}
	if w.OracleDataSource != nil || w.OracleQuery != nil {
		d.Merge(StepSourcingData, ContractDraft{OracleDataSource: deref(w.OracleDataSource), OracleQuery: deref(w.OracleQuery)})
	}
	return nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// DeployedContract is the result of a successful deployment.
type DeployedContract struct {
	Address     string    `json:"address"`
	TxHash      string    `json:"txHash"`
	Deployer    string    `json:"deployer"`
	BlockNumber uint64    `json:"blockNumber"`
	DeployedAt  time.Time `json:"deployedAt"`
}

// DeploymentGateway turns a finished draft into a deployed contract.
type DeploymentGateway interface {
	Deploy(ctx context.Context, draft ContractDraft) (DeployedContract, error)
}

// DeploymentStatus tracks a single submission of a draft.
type DeploymentStatus string

const (
	DeploymentPending DeploymentStatus = "pending"
	DeploymentSuccess DeploymentStatus = "success"
	DeploymentFailure DeploymentStatus = "failure"
)

// DeploymentOutcome is the state of one submission to the gateway. It starts
// pending and becomes terminal once resolved.
type DeploymentOutcome struct {
	Status      DeploymentStatus  `json:"status"`
	Attempt     int               `json:"attempt"`
	Contract    *DeployedContract `json:"contract,omitempty"`
	Error       string            `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submittedAt"`
	ResolvedAt  *time.Time        `json:"resolvedAt,omitempty"`
}

// Resolved reports whether the outcome has left the pending state.
func (o DeploymentOutcome) Resolved() bool {
	return o.Status == DeploymentSuccess || o.Status == DeploymentFailure
}

// DeploymentRecord is the persisted form of a resolved deployment.
type DeploymentRecord struct {
	ID         string
	SessionID  string
	Draft      ContractDraft
	Status     DeploymentStatus
	Address    string
	TxHash     string
	Deployer   string
	Error      string
	Attempt    int
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// WizardSnapshot is the serialisable state of one wizard session.
type WizardSnapshot struct {
	SessionID string             `json:"sessionId"`
	Step      StepID             `json:"step"`
	Draft     ContractDraft      `json:"draft"`
	Outcome   *DeploymentOutcome `json:"outcome,omitempty"`
	Complete  bool               `json:"complete"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
