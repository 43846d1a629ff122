package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no entry in a store.
var ErrNotFound = errors.New("not found")

// Token is the opaque OAuth token set obtained for an organization.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

// refreshMargin mirrors the 30-second safety window the platform's own
// clients apply before treating a token as expired.
const refreshMargin = 30 * time.Second

// Expired reports whether the access token is past (or within the refresh
// margin of) its expiry. Tokens without a recorded expiry never expire.
func (t Token) Expired() bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(t.ExpiresAt.Add(-refreshMargin))
}

// Session tracks one organization's active connection.
type Session struct {
	OrgID       string    `json:"org_id"`
	Token       Token     `json:"token"`
	ConnectedAt time.Time `json:"connected_at"`
}

// State is a pending OAuth authorization attempt, keyed by the random
// state parameter issued with the redirect.
type State struct {
	OrgID     string    `json:"org_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionStore holds active organization sessions.
type SessionStore interface {
	Get(ctx context.Context, orgID string) (Session, error)
	Put(ctx context.Context, session Session) error
	Delete(ctx context.Context, orgID string) error
	List(ctx context.Context) ([]Session, error)
}

// StateStore holds pending OAuth states. Consume removes the entry as it
// reads it, so a state can be redeemed at most once.
type StateStore interface {
	Put(ctx context.Context, state string, s State) error
	Consume(ctx context.Context, state string) (State, error)
	DeleteExpired(ctx context.Context, olderThan time.Time) (int, error)
}

// StationCache caches the platform's station entities per organization.
// Entities are kept as raw JSON because their shape belongs to the
// platform, not to us.
type StationCache interface {
	Get(orgID string) ([]json.RawMessage, bool)
	Replace(orgID string, stations []json.RawMessage)
	Append(orgID string, station json.RawMessage)
	Remove(orgID, stationID string)
	Clear(orgID string)
	Sizes() map[string]int
}

// FeedCache caches feed definitions keyed by "{org}-{feed name}".
type FeedCache interface {
	Get(key string) (json.RawMessage, bool)
	Put(key string, def json.RawMessage)
	ClearOrg(orgID string)
}
