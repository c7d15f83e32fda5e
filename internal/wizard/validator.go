// Package wizard implements the contract deployment wizard: per-step field
// validation, accumulation of validated fields into a draft, and the step
// state machine that ends in a deployment.
package wizard

import (
	"encoding/json"
	"math"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// Validation messages reported per field.
const (
	MsgRequired         = "required"
	MsgInvalidAddress   = "invalid address format"
	MsgNotNumber        = "must be a number"
	MsgNotPositive      = "must be greater than 0"
	MsgCapNotAboveFloor = "must be greater than price floor"
	MsgDecimalPlaces    = "must be an integer between 0 and 18"
	MsgNotInteger       = "must be a whole number"
	MsgTooPrecise       = "has more decimals than priceDecimalPlaces"
	MsgNotFuture        = "must be in the future"
	MsgUnknownStep      = "unknown step"
)

// MaxPriceDecimalPlaces bounds priceDecimalPlaces.
const MaxPriceDecimalPlaces = 18

// StepKey is the FieldErrors key used for errors not tied to a field.
const StepKey = "_step"

// maxExponent bounds the decimal exponent of numeric input so that scaling
// and comparison stay cheap.
const maxExponent = 64

var (
	maxPlaces = decimal.NewFromInt(MaxPriceDecimalPlaces)
	maxInt64  = decimal.NewFromInt(math.MaxInt64)
)

var addressPattern = regexp.MustCompile(`^(0[xX])?[0-9a-fA-F]{40}$`)

// RawFields holds the current form values of a step keyed by field name.
// Values come straight from decoded JSON or TOML, so numbers may arrive as
// float64, int64, json.Number or numeric strings.
type RawFields map[string]any

// ValidationResult is either valid, carrying the parsed fields of the step,
// or invalid, carrying one message per offending field.
type ValidationResult struct {
	Step   domain.StepID
	Fields domain.ContractDraft
	Errors domain.FieldErrors
}

// Valid reports whether validation passed.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Clock returns the current time.
type Clock func() time.Time

// fieldRule parses and checks one raw value. It returns the parsed value or
// a non-empty message.
type fieldRule func(v *Validator, raw any, present bool) (any, string)

// stepRules maps each step to its rule per field. Steps absent here own no
// fields.
var stepRules = map[domain.StepID]map[string]fieldRule{
	domain.StepNaming: {
		domain.FieldName:             requiredString,
		domain.FieldBaseTokenAddress: address,
	},
	domain.StepPricing: {
		domain.FieldPriceFloor:         positiveNumber,
		domain.FieldPriceCap:           positiveNumber,
		domain.FieldQtyMultiplier:      positiveInteger,
		domain.FieldPriceDecimalPlaces: decimalPlaces,
	},
	domain.StepExpiring: {
		domain.FieldExpirationTimestamp: futureTimestamp,
	},
	domain.StepSourcingData: {
		domain.FieldOracleQuery:      requiredString,
		domain.FieldOracleDataSource: optionalDataSource,
	},
}

// Validator checks the raw fields of a wizard step. It is pure apart from
// reading the clock and never panics on malformed input.
type Validator struct {
	now Clock
}

// NewValidator creates a Validator. A nil clock means time.Now.
func NewValidator(now Clock) *Validator {
	if now == nil {
		now = time.Now
	}
	return &Validator{now: now}
}

// Validate checks raw against the rules of step. All invalid fields are
// reported together.
func (v *Validator) Validate(step domain.StepID, raw RawFields) ValidationResult {
	res := ValidationResult{Step: step}
	if !step.Valid() {
		res.Errors = domain.FieldErrors{StepKey: MsgUnknownStep}
		return res
	}

	rules := stepRules[step]
	parsed := make(map[string]any, len(rules))
	errs := domain.FieldErrors{}
	for name, rule := range rules {
		val, present := raw[name]
		out, msg := rule(v, val, present && !isBlank(val))
		if msg != "" {
			errs[name] = msg
			continue
		}
		parsed[name] = out
	}

	if step == domain.StepPricing {
		checkPrices(parsed, errs)
	}

	if len(errs) > 0 {
		res.Errors = errs
		return res
	}
	res.Fields = assemble(step, parsed)
	return res
}

// checkPrices reports prices finer than priceDecimalPlaces and a cap that
// is not above the floor once both are scaled to fixed point.
func checkPrices(parsed map[string]any, errs domain.FieldErrors) {
	places, ok := parsed[domain.FieldPriceDecimalPlaces].(int)
	if !ok {
		return
	}
	scaled := map[string]decimal.Decimal{}
	for _, f := range []string{domain.FieldPriceFloor, domain.FieldPriceCap} {
		d, ok := parsed[f].(decimal.Decimal)
		if !ok {
			continue
		}
		s := d.Shift(int32(places))
		if !s.IsInteger() {
			errs[f] = MsgTooPrecise
			continue
		}
		scaled[f] = s
	}
	floor, okFloor := scaled[domain.FieldPriceFloor]
	ceiling, okCap := scaled[domain.FieldPriceCap]
	if okFloor && okCap && ceiling.LessThanOrEqual(floor) {
		errs[domain.FieldPriceCap] = MsgCapNotAboveFloor
	}
}

// assemble builds a draft carrying the parsed fields of step.
func assemble(step domain.StepID, parsed map[string]any) domain.ContractDraft {
	var d domain.ContractDraft
	switch step {
	case domain.StepNaming:
		d.Name = parsed[domain.FieldName].(string)
		d.BaseTokenAddress = parsed[domain.FieldBaseTokenAddress].(string)
	case domain.StepPricing:
		d.PriceFloor = parsed[domain.FieldPriceFloor].(decimal.Decimal)
		d.PriceCap = parsed[domain.FieldPriceCap].(decimal.Decimal)
		d.QtyMultiplier = parsed[domain.FieldQtyMultiplier].(decimal.Decimal)
		d.PriceDecimalPlaces = parsed[domain.FieldPriceDecimalPlaces].(int)
	case domain.StepExpiring:
		d.ExpirationTimestamp = parsed[domain.FieldExpirationTimestamp].(int64)
	case domain.StepSourcingData:
		d.OracleQuery = parsed[domain.FieldOracleQuery].(string)
		d.OracleDataSource = parsed[domain.FieldOracleDataSource].(string)
	}
	return d
}

// ---------------------------------------------------------------------------
// Rules
// ---------------------------------------------------------------------------

func requiredString(_ *Validator, raw any, present bool) (any, string) {
	if !present {
		return nil, MsgRequired
	}
	s, ok := raw.(string)
	if !ok {
		return nil, MsgRequired
	}
	return strings.TrimSpace(s), ""
}

func address(_ *Validator, raw any, present bool) (any, string) {
	if !present {
		return nil, MsgRequired
	}
	s, ok := raw.(string)
	if !ok {
		return nil, MsgInvalidAddress
	}
	s = strings.TrimSpace(s)
	if !addressPattern.MatchString(s) {
		return nil, MsgInvalidAddress
	}
	return common.HexToAddress(s).Hex(), ""
}

func positiveNumber(_ *Validator, raw any, present bool) (any, string) {
	if !present {
		return nil, MsgRequired
	}
	n, ok := toDecimal(raw)
	if !ok {
		return nil, MsgNotNumber
	}
	if !n.IsPositive() {
		return nil, MsgNotPositive
	}
	return n, ""
}

func positiveInteger(v *Validator, raw any, present bool) (any, string) {
	n, msg := positiveNumber(v, raw, present)
	if msg != "" {
		return nil, msg
	}
	if !n.(decimal.Decimal).IsInteger() {
		return nil, MsgNotInteger
	}
	return n, ""
}

func decimalPlaces(_ *Validator, raw any, present bool) (any, string) {
	if !present {
		return nil, MsgRequired
	}
	n, ok := toDecimal(raw)
	if !ok {
		return nil, MsgNotNumber
	}
	if !n.IsInteger() || n.IsNegative() || n.GreaterThan(maxPlaces) {
		return nil, MsgDecimalPlaces
	}
	return int(n.IntPart()), ""
}

func futureTimestamp(v *Validator, raw any, present bool) (any, string) {
	if !present {
		return nil, MsgRequired
	}
	n, ok := toDecimal(raw)
	if !ok {
		return nil, MsgNotNumber
	}
	if !n.IsInteger() || n.GreaterThan(maxInt64) {
		return nil, MsgNotInteger
	}
	ts := n.IntPart()
	if ts <= v.now().Unix() {
		return nil, MsgNotFuture
	}
	return ts, ""
}

func optionalDataSource(_ *Validator, raw any, present bool) (any, string) {
	if !present {
		return domain.DefaultOracleDataSource, ""
	}
	s, ok := raw.(string)
	if !ok {
		return domain.DefaultOracleDataSource, ""
	}
	return strings.TrimSpace(s), ""
}

// ---------------------------------------------------------------------------
// Coercion helpers
// ---------------------------------------------------------------------------

func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}

// toDecimal reads a numeric form value exactly. Floats go through their
// shortest decimal representation, so 0.1 stays 0.1.
func toDecimal(raw any) (decimal.Decimal, bool) {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		d = decimal.NewFromFloat(v)
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return decimal.Decimal{}, false
		}
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case int32:
		d = decimal.NewFromInt32(v)
	case uint64:
		d = decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
	case decimal.Decimal:
		d = v
	case json.Number:
		d, err = decimal.NewFromString(string(v))
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(v))
	default:
		return decimal.Decimal{}, false
	}
	if err != nil {
		return decimal.Decimal{}, false
	}
	if e := d.Exponent(); e > maxExponent || e < -maxExponent {
		return decimal.Decimal{}, false
	}
	return d, true
}
