// Package store owns persistence for token records and OAuth handshake
// state. It is the only component that touches the database and the only
// place refresh tokens cross the encryption boundary: they are encrypted
// before hitting disk and decrypted on the way out.
package store

import (
	"context"
	"time"
)

// DefaultAccount is the account name used when a caller does not select one.
const DefaultAccount = "default"

// StateTTL is how long an OAuth handshake state stays valid.
const StateTTL = 600 * time.Second

// TokenRecord is one stored credential for a (provider, account) pair.
// RefreshToken is always plaintext in memory; the store handles encryption.
type TokenRecord struct {
	Provider     string
	Account      string
	RefreshToken string
	AccessToken  string // empty when no access token is held
	ExpiresAt    *int64 // unix seconds; nil means treat as immediately stale
	Scopes       *string
	CreatedAt    int64
	UpdatedAt    int64
}

// ID returns the stable record identifier.
func (r *TokenRecord) ID() string {
	return r.Provider + ":" + r.Account
}

// Connection is the listing projection of a TokenRecord: everything except
// the refresh token.
type Connection struct {
	ID        string  `json:"id"`
	Provider  string  `json:"provider"`
	Account   string  `json:"account"`
	Status    string  `json:"status"`
	ExpiresAt *int64  `json:"expires_at,omitempty"`
	Scopes    *string `json:"scopes,omitempty"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
}

// StateBinding is what an OAuth handshake state resolves to on callback.
type StateBinding struct {
	Provider string
	Account  string
}

// Store is the persistence contract. Lookups report absence as a nil
// record with a nil error; every underlying I/O failure surfaces as a
// storage_unavailable error. Callers never retry internally.
type Store interface {
	// Init performs idempotent schema setup.
	Init(ctx context.Context) error

	// StoreToken upserts a record. The (provider, account) pair is unique;
	// an upsert replaces the token fields and bumps updated_at, never
	// created_at.
	StoreToken(ctx context.Context, rec TokenRecord) error

	// GetToken returns the record for an exact (provider, account) pair,
	// refresh token decrypted, or nil when absent.
	GetToken(ctx context.Context, provider, account string) (*TokenRecord, error)

	// GetDefaultToken resolves the fallback account for a provider: the
	// sole record if exactly one exists, otherwise the record named
	// "default", otherwise nil. It never guesses among ambiguous accounts.
	GetDefaultToken(ctx context.Context, provider string) (*TokenRecord, error)

	// UpdateAccessToken replaces the access token and expiry of an existing
	// record. It never alters refresh_token or created_at.
	UpdateAccessToken(ctx context.Context, provider, account, accessToken string, expiresAt int64) error

	// DeleteToken removes a record; deleting an absent record is not an
	// error.
	DeleteToken(ctx context.Context, provider, account string) error

	// ListConnections returns all connections ordered by (provider,
	// account), refresh tokens omitted.
	ListConnections(ctx context.Context) ([]Connection, error)

	// GetTokensNeedingRefresh returns every record whose expiry is null or
	// closer than the threshold, refresh tokens decrypted.
	GetTokensNeedingRefresh(ctx context.Context, threshold time.Duration) ([]TokenRecord, error)

	// SaveOAuthState upserts an in-flight handshake state.
	SaveOAuthState(ctx context.Context, state, provider, account string) error

	// ConsumeOAuthState atomically reads and deletes a state. A state can
	// be consumed at most once; expired or unknown states report nil.
	ConsumeOAuthState(ctx context.Context, state string) (*StateBinding, error)

	// CleanOAuthStates deletes handshake states older than StateTTL.
	CleanOAuthStates(ctx context.Context) error

	// Ping reports whether the database is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying database handle.
	Close() error
}
