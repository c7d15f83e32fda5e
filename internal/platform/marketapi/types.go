package marketapi

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// flexBool unmarshals from JSON bool or string ("true"/"false").
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexString unmarshals from a JSON string or number and keeps the text.
// Contract specs arrive as either depending on the API version.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// decimal parses the text exactly; malformed or empty values read as zero.
func (f flexString) decimal() decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(string(f)))
	if err != nil {
		return decimal.Zero
	}
	return v
}

// --------------------------------------------------------------------------
// Market API DTOs
// --------------------------------------------------------------------------

// APIContract is a deployed contract as listed by the market API.
type APIContract struct {
	Key                         string     `json:"key"`
	ContractName                string     `json:"CONTRACT_NAME"`
	CollateralToken             string     `json:"COLLATERAL_TOKEN"`
	CollateralTokenAddress      string     `json:"COLLATERAL_TOKEN_ADDRESS"`
	CollateralTokenSymbol       string     `json:"COLLATERAL_TOKEN_SYMBOL"`
	MarketCollateralPoolAddress string     `json:"MARKET_COLLATERAL_POOL_ADDRESS"`
	PriceFloor                  flexString `json:"PRICE_FLOOR"`
	PriceCap                    flexString `json:"PRICE_CAP"`
	PriceDecimalPlaces          flexString `json:"PRICE_DECIMAL_PLACES"`
	QtyMultiplier               flexString `json:"QTY_MULTIPLIER"`
	OracleQuery                 string     `json:"ORACLE_QUERY"`
	Expiration                  flexString `json:"EXPIRATION"`
	LastPrice                   flexString `json:"lastPrice"`
	IsSettled                   flexBool   `json:"isSettled"`
}

// ToDomain converts the DTO to a domain.ContractSummary.
func (c APIContract) ToDomain() domain.ContractSummary {
	return domain.ContractSummary{
		Address:                c.Key,
		Name:                   c.ContractName,
		CollateralToken:        c.CollateralToken,
		CollateralTokenAddress: c.CollateralTokenAddress,
		CollateralTokenSymbol:  c.CollateralTokenSymbol,
		CollateralPoolAddress:  c.MarketCollateralPoolAddress,
		PriceFloor:             string(c.PriceFloor),
		PriceCap:               string(c.PriceCap),
		PriceDecimalPlaces:     string(c.PriceDecimalPlaces),
		QtyMultiplier:          string(c.QtyMultiplier),
		OracleQuery:            c.OracleQuery,
		Expiration:             string(c.Expiration),
		LastPrice:              string(c.LastPrice),
		IsSettled:              bool(c.IsSettled),
	}
}

// APIOrder is a resting order in an order book response.
type APIOrder struct {
	OrderHash    string     `json:"orderHash"`
	Maker        string     `json:"maker"`
	Price        flexString `json:"price"`
	Qty          flexString `json:"orderQty"`
	RemainingQty flexString `json:"remainingQty"`
	Expiration   flexString `json:"expirationTimestamp"`
}

// ToDomain converts the DTO to a domain.BookOrder.
func (o APIOrder) ToDomain() domain.BookOrder {
	exp, _ := strconv.ParseInt(string(o.Expiration), 10, 64)
	return domain.BookOrder{
		OrderHash:    o.OrderHash,
		Maker:        o.Maker,
		Price:        o.Price.decimal(),
		Qty:          o.Qty.decimal(),
		RemainingQty: o.RemainingQty.decimal(),
		Expiration:   exp,
	}
}

// APIOrderBook is the response of GET /orders/{address}.
type APIOrderBook struct {
	Bids     []APIOrder  `json:"bids"`
	Asks     []APIOrder  `json:"asks"`
	Contract APIContract `json:"contract"`
}

// ToDomain converts the DTO to a domain.OrderBook stamped with fetchedAt.
func (b APIOrderBook) ToDomain(address string, fetchedAt time.Time) domain.OrderBook {
	book := domain.OrderBook{
		Contract:  b.Contract.ToDomain(),
		Bids:      make([]domain.BookOrder, 0, len(b.Bids)),
		Asks:      make([]domain.BookOrder, 0, len(b.Asks)),
		FetchedAt: fetchedAt,
	}
	if book.Contract.Address == "" {
		book.Contract.Address = address
	}
	for _, o := range b.Bids {
		book.Bids = append(book.Bids, o.ToDomain())
	}
	for _, o := range b.Asks {
		book.Asks = append(book.Asks, o.ToDomain())
	}
	return book
}

// APISuggestion is one oracle query suggestion.
type APISuggestion struct {
	Label      string `json:"label"`
	DataSource string `json:"source"`
	Query      string `json:"query"`
}

// ToDomain converts the DTO, defaulting the data source.
func (s APISuggestion) ToDomain() domain.OracleSuggestion {
	src := s.DataSource
	if src == "" {
		src = domain.DefaultOracleDataSource
	}
	return domain.OracleSuggestion{Label: s.Label, DataSource: src, Query: s.Query}
}
