package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"verity/auth-identity/internal/model"
)

var (
	// ErrSessionExists is returned by Create when the account already has
	// a live session. Login treats it as "lost the create race" and
	// re-reads the winner's session.
	ErrSessionExists = errors.New("refresh session already exists")

	ErrSessionNotFound = errors.New("refresh session not found")
)

// SessionStore keeps refresh sessions in Redis, one key per account.
// Keying by account id makes the one-session-per-account rule structural:
// there is nothing to deduplicate.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(accountID string) string {
	return "refresh_session:" + accountID
}

func (s *SessionStore) Create(ctx context.Context, session model.RefreshSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, sessionKey(session.AccountID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, accountID string) (model.RefreshSession, error) {
	payload, err := s.rdb.Get(ctx, sessionKey(accountID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.RefreshSession{}, ErrSessionNotFound
	}
	if err != nil {
		return model.RefreshSession{}, err
	}
	var session model.RefreshSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return model.RefreshSession{}, err
	}
	return session, nil
}

// Delete removes the account's session. Absence is not an error.
func (s *SessionStore) Delete(ctx context.Context, accountID string) error {
	return s.rdb.Del(ctx, sessionKey(accountID)).Err()
}

// Invalidate marks the session invalid in place, keeping its TTL.
// Subsequent logins on an invalid session fail closed rather than
// silently re-activating it.
func (s *SessionStore) Invalidate(ctx context.Context, accountID string) error {
	session, err := s.Get(ctx, accountID)
	if err != nil {
		return err
	}
	session.Valid = false
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKey(accountID), payload, redis.KeepTTL).Err()
}
