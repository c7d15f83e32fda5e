package domain

import (
	"fmt"
	"sort"
	"strings"
)

// StepID identifies a wizard step. Steps are visited strictly in order.
type StepID int

const (
	StepNaming StepID = iota
	StepPricing
	StepExpiring
	StepSourcingData
	StepDeploying
)

// StepCount is the number of wizard steps.
const StepCount = int(StepDeploying) + 1

var stepNames = [StepCount]string{
	"naming",
	"pricing",
	"expiring",
	"sourcing_data",
	"deploying",
}

// Valid reports whether s is one of the defined steps.
func (s StepID) Valid() bool {
	return s >= StepNaming && s <= StepDeploying
}

func (s StepID) String() string {
	if !s.Valid() {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// MarshalText encodes the step by name.
func (s StepID) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStep, int(s))
	}
	return []byte(stepNames[s]), nil
}

// UnmarshalText decodes a step name produced by MarshalText.
func (s *StepID) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range stepNames {
		if n == name {
			*s = StepID(i)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidStep, name)
}

// Field names used by the wizard forms and the draft JSON encoding.
const (
	FieldName                = "name"
	FieldBaseTokenAddress    = "baseTokenAddress"
	FieldPriceFloor          = "priceFloor"
	FieldPriceCap            = "priceCap"
	FieldPriceDecimalPlaces  = "priceDecimalPlaces"
	FieldQtyMultiplier       = "qtyMultiplier"
	FieldExpirationTimestamp = "expirationTimestamp"
	FieldOracleDataSource    = "oracleDataSource"
	FieldOracleQuery         = "oracleQuery"
)

var stepFields = map[StepID][]string{
	StepNaming:       {FieldName, FieldBaseTokenAddress},
	StepPricing:      {FieldPriceFloor, FieldPriceCap, FieldPriceDecimalPlaces, FieldQtyMultiplier},
	StepExpiring:     {FieldExpirationTimestamp},
	StepSourcingData: {FieldOracleDataSource, FieldOracleQuery},
}

// StepFields returns the names of the draft fields owned by step. The
// deploying step owns none.
func StepFields(step StepID) []string {
	fields := stepFields[step]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// FieldErrors maps a form field name to a human-readable validation message.
type FieldErrors map[string]string

// Error renders the errors sorted by field so the output is stable.
func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}
