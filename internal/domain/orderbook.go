package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ContractSummary describes a deployed derivatives contract as reported by
// the market API.
type ContractSummary struct {
	Address                string `json:"address"`
	Name                   string `json:"name"`
	CollateralToken        string `json:"collateralToken"`
	CollateralTokenAddress string `json:"collateralTokenAddress"`
	CollateralTokenSymbol  string `json:"collateralTokenSymbol"`
	CollateralPoolAddress  string `json:"collateralPoolAddress"`
	PriceFloor             string `json:"priceFloor"`
	PriceCap               string `json:"priceCap"`
	PriceDecimalPlaces     string `json:"priceDecimalPlaces"`
	QtyMultiplier          string `json:"qtyMultiplier"`
	OracleQuery            string `json:"oracleQuery"`
	Expiration             string `json:"expiration"`
	LastPrice              string `json:"lastPrice"`
	IsSettled              bool   `json:"isSettled"`
}

// BookOrder is one resting order in a contract's order book.
type BookOrder struct {
	OrderHash    string          `json:"orderHash"`
	Maker        string          `json:"maker"`
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
	RemainingQty decimal.Decimal `json:"remainingQty"`
	Expiration   int64           `json:"expiration"`
}

// OrderBook is a snapshot of bids and asks for one contract.
type OrderBook struct {
	Contract  ContractSummary `json:"contract"`
	Bids      []BookOrder     `json:"bids"`
	Asks      []BookOrder     `json:"asks"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// OracleSuggestion is a candidate oracle query offered while filling in the
// data source step.
type OracleSuggestion struct {
	Label      string `json:"label"`
	DataSource string `json:"dataSource"`
	Query      string `json:"query"`
}

// MarketData is the read side of the market API.
type MarketData interface {
	Contracts(ctx context.Context) ([]ContractSummary, error)
	OrderBook(ctx context.Context, contract string) (OrderBook, error)
	OracleSuggestions(ctx context.Context, query string) ([]OracleSuggestion, error)
}
