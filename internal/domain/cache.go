package domain

import (
	"context"
	"time"
)

// SessionStore keeps wizard session snapshots so any instance can serve
// reads and rebuild a controller after a restart.
type SessionStore interface {
	Save(ctx context.Context, snap WizardSnapshot) error
	Load(ctx context.Context, sessionID string) (WizardSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// OrderbookCache stores the last fetched order book per contract.
type OrderbookCache interface {
	Set(ctx context.Context, book OrderBook) error
	Get(ctx context.Context, contract string) (OrderBook, error)
}

// SuggestionCache stores oracle query suggestions per lookup string.
type SuggestionCache interface {
	Set(ctx context.Context, query string, suggestions []OracleSuggestion) error
	Get(ctx context.Context, query string) ([]OracleSuggestion, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Signal bus channel and stream names.
const (
	ChannelDeploy     = "ch:deploy"
	ChannelCollateral = "ch:collateral"
	StreamDeployments = "stream:deployments"
)

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
