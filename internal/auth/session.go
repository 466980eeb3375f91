// Package auth resolves bearer tokens into the caller identity the core
// consumes. Authentication itself (login, password handling, role
// administration) lives outside this service; sessions are written to Redis
// by that collaborator and only read here.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession indicates the token is unknown or expired.
var ErrNoSession = errors.New("auth: no session")

// Identity describes the authenticated caller.
type Identity struct {
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	VesselID string `json:"vesselId"`
}

// SessionStore reads sessions from Redis.
type SessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, prefix string, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, prefix: prefix, ttl: ttl}
}

// Lookup resolves a token to an identity, refreshing the sliding TTL.
func (s *SessionStore) Lookup(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoSession
	}
	payload, err := s.client.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Identity{}, ErrNoSession
		}
		return Identity{}, fmt.Errorf("auth: lookup: %w", err)
	}
	var ident Identity
	if err := json.Unmarshal(payload, &ident); err != nil {
		return Identity{}, fmt.Errorf("auth: decode session: %w", err)
	}
	if ident.UserID == "" {
		return Identity{}, ErrNoSession
	}
	if s.ttl > 0 {
		_ = s.client.Expire(ctx, s.key(token), s.ttl).Err()
	}
	return ident, nil
}

// Put stores a session; used by tests and by the collaborator's seam.
func (s *SessionStore) Put(ctx context.Context, token string, ident Identity) error {
	payload, err := json.Marshal(ident)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(token), payload, s.ttl).Err()
}

func (s *SessionStore) key(token string) string {
	return s.prefix + ":" + token
}
