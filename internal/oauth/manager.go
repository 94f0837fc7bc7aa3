// Package oauth implements the token lifecycle: resolving which stored
// credential serves a request, deciding when an access token must be
// refreshed, performing the refresh exchange, and running the
// authorization-code handshake. All persistence goes through the store;
// the manager never writes anywhere else.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/common/logging"
	"oauth-bridge/internal/providers"
	"oauth-bridge/internal/store"
)

const (
	// RefreshBuffer is the reactive window: a token expiring within it is
	// refreshed before use, so a just-barely-valid token cannot expire in
	// the middle of an upstream call.
	RefreshBuffer = 300 * time.Second

	// SweepBuffer is the proactive window used by the background sweep. It
	// is wider than RefreshBuffer so the scheduler refreshes tokens before
	// any inbound request would have to.
	SweepBuffer = 600 * time.Second

	// DefaultExpiresIn is assumed when a token response omits expires_in.
	DefaultExpiresIn = 3600
)

// TokenResponse is the standard OAuth 2.0 token endpoint response
// (RFC 6749).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Manager is the token lifecycle manager.
type Manager struct {
	store      store.Store
	registry   *providers.Registry
	httpClient *http.Client
	baseURL    string
	logger     logging.Logger
	nowFn      func() time.Time
}

// NewManager creates a lifecycle manager. baseURL is the externally
// reachable address used to build OAuth redirect URIs.
func NewManager(st store.Store, registry *providers.Registry, client *http.Client, baseURL string, logger logging.Logger) *Manager {
	return &Manager{
		store:      st,
		registry:   registry,
		httpClient: client,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		nowFn:      time.Now,
	}
}

// ResolveToken finds the stored credential serving a request. An explicit
// account is looked up exactly; an empty account tries "default" first and
// then falls back to the store's single-connection resolution. The
// resolved account name is returned alongside the record.
func (m *Manager) ResolveToken(ctx context.Context, provider, account string) (*store.TokenRecord, string, error) {
	if account != "" {
		rec, err := m.store.GetToken(ctx, provider, account)
		if err != nil {
			return nil, "", err
		}
		if rec == nil {
			return nil, "", errors.NoConnectionError(provider, account)
		}
		return rec, rec.Account, nil
	}

	rec, err := m.store.GetToken(ctx, provider, store.DefaultAccount)
	if err != nil {
		return nil, "", err
	}
	if rec == nil {
		rec, err = m.store.GetDefaultToken(ctx, provider)
		if err != nil {
			return nil, "", err
		}
	}
	if rec == nil {
		return nil, "", errors.NoConnectionError(provider, "")
	}
	return rec, rec.Account, nil
}

// NeedsRefresh reports whether a record's access token must be refreshed
// before use: it is absent, has no known expiry, or expires within the
// buffer.
func NeedsRefresh(rec *store.TokenRecord, buffer time.Duration, now time.Time) bool {
	if rec.AccessToken == "" {
		return true
	}
	if rec.ExpiresAt == nil {
		return true
	}
	return *rec.ExpiresAt-now.Unix() < int64(buffer.Seconds())
}

// EnsureFresh returns a record whose access token is valid for at least
// RefreshBuffer, refreshing it first when necessary. On refresh failure
// nothing is persisted and the stored record is untouched.
func (m *Manager) EnsureFresh(ctx context.Context, prov *providers.Provider, rec *store.TokenRecord) (*store.TokenRecord, error) {
	if !NeedsRefresh(rec, RefreshBuffer, m.nowFn()) {
		return rec, nil
	}
	return m.Refresh(ctx, prov, rec)
}

// Refresh performs the refresh exchange and persists the result. The
// refresh token is only rewritten when the provider rotates it; otherwise
// the partial access-token update leaves it untouched. Exactly one
// exchange attempt is made; failures are reported, never retried.
func (m *Manager) Refresh(ctx context.Context, prov *providers.Provider, rec *store.TokenRecord) (*store.TokenRecord, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", rec.RefreshToken)
	data.Set("client_id", prov.ClientID)
	data.Set("client_secret", prov.ClientSecret)

	tokenResp, err := m.requestToken(ctx, prov.TokenURL, data)
	if err != nil {
		return nil, err
	}
	if tokenResp.AccessToken == "" {
		return nil, errors.TokenRefreshFailedError("token endpoint returned no access token", nil)
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	expiresAt := m.nowFn().Unix() + int64(expiresIn)

	updated := *rec
	updated.AccessToken = tokenResp.AccessToken
	updated.ExpiresAt = &expiresAt

	if tokenResp.RefreshToken != "" && tokenResp.RefreshToken != rec.RefreshToken {
		// provider rotated the refresh token
		updated.RefreshToken = tokenResp.RefreshToken
		if tokenResp.Scope != "" {
			scope := tokenResp.Scope
			updated.Scopes = &scope
		}
		if err := m.store.StoreToken(ctx, updated); err != nil {
			return nil, err
		}
	} else if err := m.store.UpdateAccessToken(ctx, rec.Provider, rec.Account, updated.AccessToken, expiresAt); err != nil {
		return nil, err
	}

	m.logger.Info("access token refreshed",
		logging.Field{Key: "provider", Value: rec.Provider},
		logging.Field{Key: "account", Value: rec.Account},
		logging.Field{Key: "expires_at", Value: expiresAt})
	return &updated, nil
}

// requestToken posts a form-encoded request to a token endpoint. Both
// transport failures and non-2xx responses report token_refresh_failed,
// carrying the upstream status or error code but never any credential.
func (m *Manager) requestToken(ctx context.Context, tokenURL string, data url.Values) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.InternalError("failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, errors.TokenRefreshFailedError("token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		msg := fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)
		if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&errResp); err == nil && errResp.Error != "" {
			msg = fmt.Sprintf("token endpoint rejected request: %s", errResp.Error)
			if errResp.Description != "" {
				msg += " - " + errResp.Description
			}
		}
		return nil, errors.TokenRefreshFailedError(msg, nil).WithCode(strconv.Itoa(resp.StatusCode))
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, errors.TokenRefreshFailedError("failed to decode token response", err)
	}
	return &tokenResp, nil
}
