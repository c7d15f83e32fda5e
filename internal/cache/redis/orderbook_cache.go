package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// OrderbookCache implements domain.OrderbookCache.
//
// Key schema:
//
//	book:{contract}  - hash with field "data" (JSON order book) and "ts"
//	                   (fetch time, unix millis)
//
// Contract addresses are lower-cased so checksummed and plain forms share
// an entry.
type OrderbookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOrderbookCache creates an OrderbookCache whose entries live for ttl.
func NewOrderbookCache(c *Client, ttl time.Duration) *OrderbookCache {
	return &OrderbookCache{rdb: c.Underlying(), ttl: ttl}
}

func bookKey(contract string) string { return "book:" + strings.ToLower(contract) }

// Set stores book under its contract address.
func (oc *OrderbookCache) Set(ctx context.Context, book domain.OrderBook) error {
	contract := book.Contract.Address
	if contract == "" {
		return fmt.Errorf("redis: set order book: missing contract address")
	}
	data, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("redis: marshal order book %s: %w", contract, err)
	}

	key := bookKey(contract)
	pipe := oc.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "data", data, "ts", book.FetchedAt.UnixMilli())
	if oc.ttl > 0 {
		pipe.Expire(ctx, key, oc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set order book %s: %w", contract, err)
	}
	return nil
}

// Get returns the cached order book of contract or domain.ErrNotFound.
func (oc *OrderbookCache) Get(ctx context.Context, contract string) (domain.OrderBook, error) {
	data, err := oc.rdb.HGet(ctx, bookKey(contract), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.OrderBook{}, domain.ErrNotFound
		}
		return domain.OrderBook{}, fmt.Errorf("redis: get order book %s: %w", contract, err)
	}

	var book domain.OrderBook
	if err := json.Unmarshal(data, &book); err != nil {
		return domain.OrderBook{}, fmt.Errorf("redis: unmarshal order book %s: %w", contract, err)
	}
	return book, nil
}

var _ domain.OrderbookCache = (*OrderbookCache)(nil)
