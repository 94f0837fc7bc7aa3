package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/providers"
	"oauth-bridge/internal/store"
)

// newState generates a single-use handshake state token.
func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.InternalError("failed to generate state", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// RedirectURI returns the callback address registered with providers.
func (m *Manager) RedirectURI(slug string) string {
	return m.baseURL + "/auth/" + slug + "/callback"
}

// StartAuth begins an authorization-code handshake: it persists the state
// bound to (provider, account) and returns the authorization URL the
// caller should visit.
func (m *Manager) StartAuth(ctx context.Context, prov *providers.Provider, account string) (string, error) {
	if account == "" {
		account = store.DefaultAccount
	}

	state, err := newState()
	if err != nil {
		return "", err
	}
	if err := m.store.SaveOAuthState(ctx, state, prov.Slug, account); err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", prov.ClientID)
	params.Set("redirect_uri", m.RedirectURI(prov.Slug))
	params.Set("state", state)
	if scope := prov.ScopeString(); scope != "" {
		params.Set("scope", scope)
	}
	for key, value := range prov.ExtraParams {
		params.Set(key, value)
	}

	return prov.AuthURL + "?" + params.Encode(), nil
}

// CompleteAuth finishes the handshake on callback: it consumes the state
// (atomic, single-use), exchanges the code, and stores the resulting token
// record. The provider must grant a refresh token or the exchange is
// rejected; without one the connection could never outlive its first
// access token.
func (m *Manager) CompleteAuth(ctx context.Context, slug, state, code string) (string, error) {
	binding, err := m.store.ConsumeOAuthState(ctx, state)
	if err != nil {
		return "", err
	}
	if binding == nil {
		return "", errors.InvalidStateError("state is unknown, already used, or expired")
	}
	if binding.Provider != slug {
		return "", errors.InvalidStateError("state was issued for a different provider")
	}

	prov, ok := m.registry.Get(slug)
	if !ok {
		return "", errors.UnknownProviderError(slug)
	}

	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", m.RedirectURI(slug))
	data.Set("client_id", prov.ClientID)
	data.Set("client_secret", prov.ClientSecret)

	tokenResp, err := m.requestToken(ctx, prov.TokenURL, data)
	if err != nil {
		return "", err
	}
	if tokenResp.RefreshToken == "" {
		return "", errors.MissingRefreshTokenError(slug)
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	expiresAt := m.nowFn().Unix() + int64(expiresIn)

	rec := store.TokenRecord{
		Provider:     slug,
		Account:      binding.Account,
		RefreshToken: tokenResp.RefreshToken,
		AccessToken:  tokenResp.AccessToken,
		ExpiresAt:    &expiresAt,
	}
	if tokenResp.Scope != "" {
		scope := tokenResp.Scope
		rec.Scopes = &scope
	}
	if err := m.store.StoreToken(ctx, rec); err != nil {
		return "", err
	}
	return binding.Account, nil
}
