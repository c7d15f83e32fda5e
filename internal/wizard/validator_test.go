package wizard_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/alanyoungcy/simexchange/internal/domain"
	"github.com/alanyoungcy/simexchange/internal/wizard"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func TestValidateNaming(t *testing.T) {
	v := wizard.NewValidator(fixedClock)

	tests := []struct {
		name    string
		raw     wizard.RawFields
		wantErr domain.FieldErrors
		want    string
	}{
		{
			name: "valid with prefix",
			raw:  wizard.RawFields{"name": "ETH/USD Dec", "baseTokenAddress": "0x0000000000000000000000000000000000000abc"},
			want: common.HexToAddress("0x0000000000000000000000000000000000000abc").Hex(),
		},
		{
			name: "valid without prefix",
			raw:  wizard.RawFields{"name": "BTC", "baseTokenAddress": strings.Repeat("a", 40)},
			want: common.HexToAddress(strings.Repeat("a", 40)).Hex(),
		},
		{
			name:    "missing everything",
			raw:     wizard.RawFields{},
			wantErr: domain.FieldErrors{"name": wizard.MsgRequired, "baseTokenAddress": wizard.MsgRequired},
		},
		{
			name:    "blank name",
			raw:     wizard.RawFields{"name": "   ", "baseTokenAddress": strings.Repeat("1", 40)},
			wantErr: domain.FieldErrors{"name": wizard.MsgRequired},
		},
		{
			name:    "short address",
			raw:     wizard.RawFields{"name": "x", "baseTokenAddress": "0x1234"},
			wantErr: domain.FieldErrors{"baseTokenAddress": wizard.MsgInvalidAddress},
		},
		{
			name:    "non hex address",
			raw:     wizard.RawFields{"name": "x", "baseTokenAddress": "0x" + strings.Repeat("g", 40)},
			wantErr: domain.FieldErrors{"baseTokenAddress": wizard.MsgInvalidAddress},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(domain.StepNaming, tc.raw)
			if tc.wantErr != nil {
				require.False(t, res.Valid())
				assert.Equal(t, tc.wantErr, res.Errors)
				return
			}
			require.True(t, res.Valid(), res.Errors)
			assert.Equal(t, tc.want, res.Fields.BaseTokenAddress)
			assert.Equal(t, strings.TrimSpace(tc.raw["name"].(string)), res.Fields.Name)
		})
	}
}

func TestValidatePricing(t *testing.T) {
	v := wizard.NewValidator(fixedClock)

	t.Run("cap below floor", func(t *testing.T) {
		res := v.Validate(domain.StepPricing, wizard.RawFields{
			"priceFloor":         60465,
			"priceCap":           20155,
			"priceDecimalPlaces": 2,
			"qtyMultiplier":      1,
		})
		require.False(t, res.Valid())
		assert.Equal(t, domain.FieldErrors{"priceCap": wizard.MsgCapNotAboveFloor}, res.Errors)
	})

	t.Run("cap equal to floor", func(t *testing.T) {
		res := v.Validate(domain.StepPricing, wizard.RawFields{
			"priceFloor":         "100",
			"priceCap":           "100",
			"priceDecimalPlaces": "0",
			"qtyMultiplier":      "1",
		})
		require.False(t, res.Valid())
		assert.Contains(t, res.Errors, "priceCap")
	})

	t.Run("valid", func(t *testing.T) {
		res := v.Validate(domain.StepPricing, wizard.RawFields{
			"priceFloor":         100.0,
			"priceCap":           200.0,
			"priceDecimalPlaces": json.Number("2"),
			"qtyMultiplier":      "10",
		})
		require.True(t, res.Valid(), res.Errors)
		assert.Equal(t, "100", res.Fields.PriceFloor.String())
		assert.Equal(t, "200", res.Fields.PriceCap.String())
		assert.Equal(t, 2, res.Fields.PriceDecimalPlaces)
		assert.Equal(t, "10", res.Fields.QtyMultiplier.String())
	})

	t.Run("floats keep their decimal value", func(t *testing.T) {
		res := v.Validate(domain.StepPricing, wizard.RawFields{
			"priceFloor":         0.1,
			"priceCap":           60465.37,
			"priceDecimalPlaces": 18,
			"qtyMultiplier":      1,
		})
		require.True(t, res.Valid(), res.Errors)
		assert.True(t, decimal.RequireFromString("0.1").Equal(res.Fields.PriceFloor))
		assert.True(t, decimal.RequireFromString("60465.37").Equal(res.Fields.PriceCap))
	})

	t.Run("prices finer than decimal places", func(t *testing.T) {
		tests := []struct {
			name    string
			raw     wizard.RawFields
			wantErr domain.FieldErrors
		}{
			{
				name: "both prices",
				raw: wizard.RawFields{
					"priceFloor": 0.001, "priceCap": 0.002, "priceDecimalPlaces": 2, "qtyMultiplier": 1,
				},
				wantErr: domain.FieldErrors{"priceFloor": wizard.MsgTooPrecise, "priceCap": wizard.MsgTooPrecise},
			},
			{
				name: "cap only",
				raw: wizard.RawFields{
					"priceFloor": "1.5", "priceCap": "2.25", "priceDecimalPlaces": 1, "qtyMultiplier": 1,
				},
				wantErr: domain.FieldErrors{"priceCap": wizard.MsgTooPrecise},
			},
			{
				name: "whole prices at zero places",
				raw: wizard.RawFields{
					"priceFloor": "10.5", "priceCap": 20, "priceDecimalPlaces": 0, "qtyMultiplier": 1,
				},
				wantErr: domain.FieldErrors{"priceFloor": wizard.MsgTooPrecise},
			},
			{
				name: "fractional multiplier",
				raw: wizard.RawFields{
					"priceFloor": 1, "priceCap": 2, "priceDecimalPlaces": 2, "qtyMultiplier": "0.5",
				},
				wantErr: domain.FieldErrors{"qtyMultiplier": wizard.MsgNotInteger},
			},
			{
				name: "trailing zeros are not extra precision",
				raw: wizard.RawFields{
					"priceFloor": "1.500", "priceCap": "2.000", "priceDecimalPlaces": 1, "qtyMultiplier": "10.0",
				},
			},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				res := v.Validate(domain.StepPricing, tc.raw)
				if tc.wantErr == nil {
					require.True(t, res.Valid(), res.Errors)
					return
				}
				assert.Equal(t, tc.wantErr, res.Errors)
			})
		}
	})

	t.Run("reports every offending field", func(t *testing.T) {
		res := v.Validate(domain.StepPricing, wizard.RawFields{
			"priceFloor":         "abc",
			"priceCap":           -1,
			"priceDecimalPlaces": 19,
		})
		require.False(t, res.Valid())
		assert.Equal(t, domain.FieldErrors{
			"priceFloor":         wizard.MsgNotNumber,
			"priceCap":           wizard.MsgNotPositive,
			"priceDecimalPlaces": wizard.MsgDecimalPlaces,
			"qtyMultiplier":      wizard.MsgRequired,
		}, res.Errors)
	})

	t.Run("fractional decimal places", func(t *testing.T) {
		res := v.Validate(domain.StepPricing, wizard.RawFields{
			"priceFloor":         1,
			"priceCap":           2,
			"priceDecimalPlaces": 1.5,
			"qtyMultiplier":      1,
		})
		assert.Equal(t, domain.FieldErrors{"priceDecimalPlaces": wizard.MsgDecimalPlaces}, res.Errors)
	})
}

func TestValidateExpiring(t *testing.T) {
	v := wizard.NewValidator(fixedClock)
	now := fixedNow.Unix()

	res := v.Validate(domain.StepExpiring, wizard.RawFields{"expirationTimestamp": now})
	assert.Equal(t, domain.FieldErrors{"expirationTimestamp": wizard.MsgNotFuture}, res.Errors)

	res = v.Validate(domain.StepExpiring, wizard.RawFields{"expirationTimestamp": now - 3600})
	assert.False(t, res.Valid())

	res = v.Validate(domain.StepExpiring, wizard.RawFields{"expirationTimestamp": float64(now + 1)})
	require.True(t, res.Valid(), res.Errors)
	assert.Equal(t, now+1, res.Fields.ExpirationTimestamp)

	res = v.Validate(domain.StepExpiring, wizard.RawFields{"expirationTimestamp": "soon"})
	assert.Equal(t, domain.FieldErrors{"expirationTimestamp": wizard.MsgNotNumber}, res.Errors)

	for _, raw := range []any{
		float64(math.MaxInt64),
		json.Number("9223372036854775808"),
		float64(now) + 0.5,
	} {
		res = v.Validate(domain.StepExpiring, wizard.RawFields{"expirationTimestamp": raw})
		assert.Equal(t, domain.FieldErrors{"expirationTimestamp": wizard.MsgNotInteger}, res.Errors, "%v", raw)
	}

	res = v.Validate(domain.StepExpiring, wizard.RawFields{"expirationTimestamp": json.Number("9223372036854775807")})
	require.True(t, res.Valid(), res.Errors)
	assert.Equal(t, int64(math.MaxInt64), res.Fields.ExpirationTimestamp)
}

func TestValidateSourcingData(t *testing.T) {
	v := wizard.NewValidator(fixedClock)

	res := v.Validate(domain.StepSourcingData, wizard.RawFields{"oracleQuery": "json(https://api.kraken.com/0/public/Ticker?pair=ETHUSD).result.XETHZUSD.c.0"})
	require.True(t, res.Valid(), res.Errors)
	assert.Equal(t, domain.DefaultOracleDataSource, res.Fields.OracleDataSource)

	res = v.Validate(domain.StepSourcingData, wizard.RawFields{"oracleQuery": "q", "oracleDataSource": "WolframAlpha"})
	require.True(t, res.Valid())
	assert.Equal(t, "WolframAlpha", res.Fields.OracleDataSource)

	res = v.Validate(domain.StepSourcingData, wizard.RawFields{"oracleQuery": ""})
	assert.Equal(t, domain.FieldErrors{"oracleQuery": wizard.MsgRequired}, res.Errors)
}

func TestValidateDeployingAndUnknown(t *testing.T) {
	v := wizard.NewValidator(fixedClock)

	res := v.Validate(domain.StepDeploying, wizard.RawFields{"anything": 1})
	assert.True(t, res.Valid())

	res = v.Validate(domain.StepID(42), nil)
	assert.Equal(t, domain.FieldErrors{wizard.StepKey: wizard.MsgUnknownStep}, res.Errors)
}

func TestValidatePricingProperties(t *testing.T) {
	v := wizard.NewValidator(fixedClock)

	rapid.Check(t, func(t *rapid.T) {
		places := rapid.IntRange(0, wizard.MaxPriceDecimalPlaces).Draw(t, "places").(int)
		floorUnits := rapid.Int64Range(1, 1e12).Draw(t, "floor").(int64)
		capUnits := rapid.Int64Range(1, 1e12).Draw(t, "cap").(int64)
		floor := decimal.New(floorUnits, int32(-places))
		ceiling := decimal.New(capUnits, int32(-places))

		res := v.Validate(domain.StepPricing, wizard.RawFields{
			"priceFloor":         floor.String(),
			"priceCap":           ceiling.String(),
			"priceDecimalPlaces": places,
			"qtyMultiplier":      1,
		})
		if capUnits > floorUnits {
			require.True(t, res.Valid(), res.Errors)
			require.True(t, floor.Equal(res.Fields.PriceFloor))
			require.True(t, ceiling.Equal(res.Fields.PriceCap))
		} else {
			require.Equal(t, domain.FieldErrors{"priceCap": wizard.MsgCapNotAboveFloor}, res.Errors)
		}

		// One more digit than allowed is always rejected.
		finer := decimal.New(floorUnits*10+1, int32(-places-1))
		res = v.Validate(domain.StepPricing, wizard.RawFields{
			"priceFloor":         finer.String(),
			"priceCap":           ceiling.Add(decimal.NewFromInt(1e13)).String(),
			"priceDecimalPlaces": places,
			"qtyMultiplier":      1,
		})
		require.Equal(t, domain.FieldErrors{"priceFloor": wizard.MsgTooPrecise}, res.Errors)
	})
}

func TestValidateNeverPanics(t *testing.T) {
	v := wizard.NewValidator(fixedClock)
	values := []any{nil, "", "x", 1, -1, 1.5, json.Number("oops"), "1e999999", math.NaN(), math.Inf(1), []int{1}, map[string]any{}, true}

	rapid.Check(t, func(t *rapid.T) {
		step := domain.StepID(rapid.IntRange(-1, domain.StepCount).Draw(t, "step").(int))
		raw := wizard.RawFields{}
		for _, f := range domain.StepFields(step) {
			i := rapid.IntRange(0, len(values)-1).Draw(t, f).(int)
			raw[f] = values[i]
		}
		res := v.Validate(step, raw)
		if !res.Valid() {
			require.NotEmpty(t, res.Errors.Error())
		}
	})
}
