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

// SuggestionCache implements domain.SuggestionCache. Entries are keyed by
// the normalised lookup string so "ETH USD " and "eth usd" share a result.
type SuggestionCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSuggestionCache creates a SuggestionCache whose entries live for ttl.
func NewSuggestionCache(c *Client, ttl time.Duration) *SuggestionCache {
	return &SuggestionCache{rdb: c.Underlying(), ttl: ttl}
}

func suggestionKey(query string) string {
	return "oracle:suggest:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}

// Set stores suggestions for query. An empty list is cached too.
func (sc *SuggestionCache) Set(ctx context.Context, query string, suggestions []domain.OracleSuggestion) error {
	if suggestions == nil {
		suggestions = []domain.OracleSuggestion{}
	}
	data, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("redis: marshal suggestions %q: %w", query, err)
	}
	if err := sc.rdb.Set(ctx, suggestionKey(query), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set suggestions %q: %w", query, err)
	}
	return nil
}

// Get returns the cached suggestions for query or domain.ErrNotFound.
func (sc *SuggestionCache) Get(ctx context.Context, query string) ([]domain.OracleSuggestion, error) {
	data, err := sc.rdb.Get(ctx, suggestionKey(query)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get suggestions %q: %w", query, err)
	}

	var out []domain.OracleSuggestion
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("redis: unmarshal suggestions %q: %w", query, err)
	}
	return out, nil
}

var _ domain.SuggestionCache = (*SuggestionCache)(nil)
