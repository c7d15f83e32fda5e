package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

// SessionStore implements domain.SessionStore. Each snapshot is a JSON
// string under wizard:session:{id} whose TTL is refreshed on every save.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore creates a SessionStore; ttl <= 0 keeps sessions forever.
func NewSessionStore(c *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: c.Underlying(), ttl: ttl}
}

func sessionKey(id string) string { return "wizard:session:" + id }

// Save stores snap, replacing any previous snapshot of the same session.
func (s *SessionStore) Save(ctx context.Context, snap domain.WizardSnapshot) error {
	if snap.SessionID == "" {
		return fmt.Errorf("redis: save session: empty session id")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal session %s: %w", snap.SessionID, err)
	}

	ttl := s.ttl
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, sessionKey(snap.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: save session %s: %w", snap.SessionID, err)
	}
	return nil
}

// Load returns the snapshot of sessionID or domain.ErrNotFound.
func (s *SessionStore) Load(ctx context.Context, sessionID string) (domain.WizardSnapshot, error) {
	data, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.WizardSnapshot{}, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
		}
		return domain.WizardSnapshot{}, fmt.Errorf("redis: load session %s: %w", sessionID, err)
	}

	var snap domain.WizardSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.WizardSnapshot{}, fmt.Errorf("redis: unmarshal session %s: %w", sessionID, err)
	}
	return snap, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis: delete session %s: %w", sessionID, err)
	}
	return nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
