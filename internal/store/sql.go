package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/crypto"
)

// schema works on both SQLite and PostgreSQL: timestamps are unix seconds
// stored as integers, so no engine-specific datetime functions are needed.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		account TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		access_token TEXT,
		expires_at BIGINT,
		scopes TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE (provider, account)
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_states (
		state TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		account TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_expires_at ON connections (expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_oauth_states_created_at ON oauth_states (created_at)`,
}

// SQLStore implements Store on top of database/sql. Queries are written
// with ? placeholders and rebound to $n for PostgreSQL.
type SQLStore struct {
	db         *sql.DB
	cipher     *crypto.Cipher
	positional bool // true when the driver wants $n placeholders
	nowFn      func() time.Time
}

// NewSQLStore wraps an open database handle. positional selects $n
// placeholder style (PostgreSQL).
func NewSQLStore(db *sql.DB, cipher *crypto.Cipher, positional bool) *SQLStore {
	return &SQLStore{
		db:         db,
		cipher:     cipher,
		positional: positional,
		nowFn:      time.Now,
	}
}

// rebind converts ? placeholders to $1..$n when the backend requires it.
func (s *SQLStore) rebind(query string) string {
	if !s.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// Init creates the schema; safe to call multiple times.
func (s *SQLStore) Init(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.StorageError("schema setup failed", err)
		}
	}
	return nil
}

func nullInt(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullStr(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// StoreToken upserts a record, encrypting the refresh token first.
func (s *SQLStore) StoreToken(ctx context.Context, rec TokenRecord) error {
	encrypted, err := s.cipher.Encrypt(rec.RefreshToken)
	if err != nil {
		return err
	}

	now := s.nowFn().Unix()
	query := s.rebind(`INSERT INTO connections
		(id, provider, account, refresh_token, access_token, expires_at, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, account) DO UPDATE SET
			refresh_token = excluded.refresh_token,
			access_token = excluded.access_token,
			expires_at = excluded.expires_at,
			scopes = excluded.scopes,
			updated_at = excluded.updated_at`)

	var access interface{}
	if rec.AccessToken != "" {
		access = rec.AccessToken
	}
	_, err = s.db.ExecContext(ctx, query,
		rec.Provider+":"+rec.Account, rec.Provider, rec.Account,
		encrypted, access, nullInt(rec.ExpiresAt), nullStr(rec.Scopes), now, now)
	if err != nil {
		return errors.StorageError("failed to store token", err)
	}
	return nil
}

const recordColumns = `provider, account, refresh_token, access_token, expires_at, scopes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scanRecord(row rowScanner) (*TokenRecord, error) {
	var rec TokenRecord
	var encrypted string
	var access, scopes sql.NullString
	var expires sql.NullInt64
	err := row.Scan(&rec.Provider, &rec.Account, &encrypted, &access, &expires, &scopes, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("failed to read token record", err)
	}

	rec.RefreshToken, err = s.cipher.Decrypt(encrypted)
	if err != nil {
		return nil, err
	}
	if access.Valid {
		rec.AccessToken = access.String
	}
	if expires.Valid {
		v := expires.Int64
		rec.ExpiresAt = &v
	}
	if scopes.Valid {
		v := scopes.String
		rec.Scopes = &v
	}
	return &rec, nil
}

// GetToken returns the record for an exact pair, or nil when absent.
func (s *SQLStore) GetToken(ctx context.Context, provider, account string) (*TokenRecord, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM connections WHERE provider = ? AND account = ?`)
	return s.scanRecord(s.db.QueryRowContext(ctx, query, provider, account))
}

// GetDefaultToken resolves the fallback account for a provider.
func (s *SQLStore) GetDefaultToken(ctx context.Context, provider string) (*TokenRecord, error) {
	query := s.rebind(`SELECT ` + recordColumns + ` FROM connections WHERE provider = ? ORDER BY account`)
	rows, err := s.db.QueryContext(ctx, query, provider)
	if err != nil {
		return nil, errors.StorageError("failed to query tokens", err)
	}
	defer rows.Close()

	var records []*TokenRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to iterate tokens", err)
	}

	switch len(records) {
	case 0:
		return nil, nil
	case 1:
		return records[0], nil
	}
	for _, rec := range records {
		if rec.Account == DefaultAccount {
			return rec, nil
		}
	}
	// multiple accounts, none named "default": refuse to guess
	return nil, nil
}

// UpdateAccessToken replaces the access token and expiry of a record.
func (s *SQLStore) UpdateAccessToken(ctx context.Context, provider, account, accessToken string, expiresAt int64) error {
	query := s.rebind(`UPDATE connections SET access_token = ?, expires_at = ?, updated_at = ?
		WHERE provider = ? AND account = ?`)
	_, err := s.db.ExecContext(ctx, query, accessToken, expiresAt, s.nowFn().Unix(), provider, account)
	if err != nil {
		return errors.StorageError("failed to update access token", err)
	}
	return nil
}

// DeleteToken removes a record; absent records are not an error.
func (s *SQLStore) DeleteToken(ctx context.Context, provider, account string) error {
	query := s.rebind(`DELETE FROM connections WHERE provider = ? AND account = ?`)
	if _, err := s.db.ExecContext(ctx, query, provider, account); err != nil {
		return errors.StorageError("failed to delete token", err)
	}
	return nil
}

// ListConnections returns connection projections ordered by (provider,
// account). Refresh tokens are never selected.
func (s *SQLStore) ListConnections(ctx context.Context) ([]Connection, error) {
	query := `SELECT id, provider, account, access_token, expires_at, scopes, created_at, updated_at
		FROM connections ORDER BY provider, account`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.StorageError("failed to list connections", err)
	}
	defer rows.Close()

	var connections []Connection
	for rows.Next() {
		var c Connection
		var access, scopes sql.NullString
		var expires sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Provider, &c.Account, &access, &expires, &scopes, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, errors.StorageError("failed to scan connection", err)
		}
		if access.Valid && access.String != "" {
			c.Status = "active"
		} else {
			c.Status = "pending"
		}
		if expires.Valid {
			v := expires.Int64
			c.ExpiresAt = &v
		}
		if scopes.Valid {
			v := scopes.String
			c.Scopes = &v
		}
		connections = append(connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to iterate connections", err)
	}
	return connections, nil
}

// GetTokensNeedingRefresh returns records whose expiry is null or within
// the threshold, refresh tokens decrypted.
func (s *SQLStore) GetTokensNeedingRefresh(ctx context.Context, threshold time.Duration) ([]TokenRecord, error) {
	deadline := s.nowFn().Add(threshold).Unix()
	query := s.rebind(`SELECT ` + recordColumns + ` FROM connections
		WHERE expires_at IS NULL OR expires_at < ?
		ORDER BY provider, account`)
	rows, err := s.db.QueryContext(ctx, query, deadline)
	if err != nil {
		return nil, errors.StorageError("failed to query tokens needing refresh", err)
	}
	defer rows.Close()

	var records []TokenRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to iterate tokens needing refresh", err)
	}
	return records, nil
}

// SaveOAuthState upserts a handshake state.
func (s *SQLStore) SaveOAuthState(ctx context.Context, state, provider, account string) error {
	query := s.rebind(`INSERT INTO oauth_states (state, provider, account, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (state) DO UPDATE SET
			provider = excluded.provider,
			account = excluded.account,
			created_at = excluded.created_at`)
	if _, err := s.db.ExecContext(ctx, query, state, provider, account, s.nowFn().Unix()); err != nil {
		return errors.StorageError("failed to save oauth state", err)
	}
	return nil
}

// ConsumeOAuthState atomically reads and deletes a state. The single
// DELETE ... RETURNING statement guarantees at-most-once consumption even
// under concurrent callbacks. States older than StateTTL report nil.
func (s *SQLStore) ConsumeOAuthState(ctx context.Context, state string) (*StateBinding, error) {
	query := s.rebind(`DELETE FROM oauth_states WHERE state = ? RETURNING provider, account, created_at`)
	var binding StateBinding
	var createdAt int64
	err := s.db.QueryRowContext(ctx, query, state).Scan(&binding.Provider, &binding.Account, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("failed to consume oauth state", err)
	}
	if s.nowFn().Unix()-createdAt > int64(StateTTL.Seconds()) {
		return nil, nil
	}
	return &binding, nil
}

// CleanOAuthStates deletes handshake states older than StateTTL.
func (s *SQLStore) CleanOAuthStates(ctx context.Context) error {
	cutoff := s.nowFn().Add(-StateTTL).Unix()
	query := s.rebind(`DELETE FROM oauth_states WHERE created_at < ?`)
	if _, err := s.db.ExecContext(ctx, query, cutoff); err != nil {
		return errors.StorageError("failed to clean oauth states", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.StorageError("database unreachable", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
