package proxy

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/common/logging"
	"oauth-bridge/internal/crypto"
	"oauth-bridge/internal/oauth"
	"oauth-bridge/internal/providers"
	"oauth-bridge/internal/store"
)

const testKey = "0123456789abcdef0123456789abcdef"

type fixture struct {
	store     store.Store
	forwarder *Forwarder

	tokenCalls    int
	tokenStatus   int
	upstreamReqs  []*http.Request
	upstreamBody  []string
	upstreamsSeen int
}

// newFixture wires a real sqlite store, registry, manager and forwarder
// against one httptest server that plays both token endpoint and API.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{tokenStatus: http.StatusOK}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			f.tokenCalls++
			if f.tokenStatus != http.StatusOK {
				w.WriteHeader(f.tokenStatus)
				fmt.Fprint(w, `{"error":"invalid_grant"}`)
				return
			}
			fmt.Fprint(w, `{"access_token":"fresh-token","expires_in":3600}`)
			return
		}
		f.upstreamsSeen++
		body, _ := io.ReadAll(r.Body)
		f.upstreamBody = append(f.upstreamBody, string(body))
		clone := r.Clone(context.Background())
		f.upstreamReqs = append(f.upstreamReqs, clone)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Upstream", "yes")
		w.Header().Set("Keep-Alive", "timeout=5")
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(server.Close)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.NewSQLStore(db, crypto.New(testKey), false)
	require.NoError(t, st.Init(context.Background()))
	f.store = st

	yaml := fmt.Sprintf(`
providers:
  oura:
    display_name: Oura
    base_url: %s/
    auth_url: %s/oauth/authorize
    token_url: %s/oauth/token
    client_id: client-id
    client_secret: client-secret
`, server.URL, server.URL, server.URL)
	result, err := providers.Parse([]byte(yaml), func(string) string { return "" })
	require.NoError(t, err)

	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel, Output: io.Discard})
	require.NoError(t, err)

	client := &http.Client{Timeout: 5 * time.Second}
	manager := oauth.NewManager(st, result.Registry, client, "http://localhost:8080", logger)
	f.forwarder = New(result.Registry, manager, client, logger)
	return f
}

func int64p(v int64) *int64 { return &v }

func TestForwardRefreshesExpiredTokenAndForwards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.StoreToken(ctx, store.TokenRecord{
		Provider: "oura", Account: "daniel", RefreshToken: "r1",
		AccessToken: "a1", ExpiresAt: int64p(time.Now().Unix() - 100),
	}))

	req := httptest.NewRequest(http.MethodGet, "/proxy/oura/x?account=daniel&foo=bar", nil)
	req.Header.Set("Authorization", "Bearer caller-credential")
	req.Header.Set("X-Custom", "kept")
	rr := httptest.NewRecorder()

	require.NoError(t, f.forwarder.Forward(rr, req, "oura", "x"))

	// exactly one refresh happened and was persisted
	assert.Equal(t, 1, f.tokenCalls)
	stored, err := f.store.GetToken(ctx, "oura", "daniel")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", stored.AccessToken)

	// upstream saw the new token, not the caller credential
	require.Len(t, f.upstreamReqs, 1)
	up := f.upstreamReqs[0]
	assert.Equal(t, "/x", up.URL.Path)
	assert.Equal(t, "Bearer fresh-token", up.Header.Get("Authorization"))
	assert.Equal(t, "kept", up.Header.Get("X-Custom"))

	// account selector stripped, other params kept
	assert.Empty(t, up.URL.Query().Get("account"))
	assert.Equal(t, "bar", up.URL.Query().Get("foo"))

	// response mirrored
	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
	assert.Equal(t, "yes", rr.Header().Get("X-Upstream"))
	assert.Empty(t, rr.Header().Get("Keep-Alive"))
}

func TestForwardSkipsRefreshForFreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.StoreToken(ctx, store.TokenRecord{
		Provider: "oura", Account: "default", RefreshToken: "r1",
		AccessToken: "still-good", ExpiresAt: int64p(time.Now().Unix() + 3600),
	}))

	req := httptest.NewRequest(http.MethodGet, "/proxy/oura/v2/user", nil)
	rr := httptest.NewRecorder()
	require.NoError(t, f.forwarder.Forward(rr, req, "oura", "v2/user"))

	assert.Equal(t, 0, f.tokenCalls)
	require.Len(t, f.upstreamReqs, 1)
	assert.Equal(t, "Bearer still-good", f.upstreamReqs[0].Header.Get("Authorization"))
	assert.Equal(t, "/v2/user", f.upstreamReqs[0].URL.Path)
}

func TestForwardUnknownProviderShortCircuits(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/proxy/fitbit/x", nil)
	rr := httptest.NewRecorder()
	err := f.forwarder.Forward(rr, req, "fitbit", "x")

	assert.True(t, errors.IsType(err, errors.ErrTypeUnknownProvider))
	assert.Equal(t, 0, f.upstreamsSeen)
	assert.Equal(t, 0, f.tokenCalls)
}

func TestForwardNoConnection(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/proxy/oura/x", nil)
	rr := httptest.NewRecorder()
	err := f.forwarder.Forward(rr, req, "oura", "x")

	assert.True(t, errors.IsType(err, errors.ErrTypeNoConnection))
	assert.Equal(t, 0, f.upstreamsSeen)
}

func TestForwardRefreshRejectedLeavesRecordIntact(t *testing.T) {
	f := newFixture(t)
	f.tokenStatus = http.StatusBadRequest
	ctx := context.Background()

	require.NoError(t, f.store.StoreToken(ctx, store.TokenRecord{
		Provider: "oura", Account: "default", RefreshToken: "r1",
		AccessToken: "old", ExpiresAt: int64p(time.Now().Unix() - 100),
	}))

	req := httptest.NewRequest(http.MethodGet, "/proxy/oura/x", nil)
	rr := httptest.NewRecorder()
	err := f.forwarder.Forward(rr, req, "oura", "x")

	assert.True(t, errors.IsType(err, errors.ErrTypeTokenRefreshFailed))
	assert.Equal(t, 0, f.upstreamsSeen)

	stored, serr := f.store.GetToken(ctx, "oura", "default")
	require.NoError(t, serr)
	assert.Equal(t, "old", stored.AccessToken)
	assert.Equal(t, "r1", stored.RefreshToken)
}

func TestForwardBodyForwardedVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.StoreToken(ctx, store.TokenRecord{
		Provider: "oura", Account: "default", RefreshToken: "r1",
		AccessToken: "a", ExpiresAt: int64p(time.Now().Unix() + 3600),
	}))

	payload := `{"weight_kg":80.5}`
	req := httptest.NewRequest(http.MethodPost, "/proxy/oura/v2/entry", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	require.NoError(t, f.forwarder.Forward(rr, req, "oura", "v2/entry"))

	require.Len(t, f.upstreamBody, 1)
	assert.Equal(t, payload, f.upstreamBody[0])
	assert.Equal(t, "application/json", f.upstreamReqs[0].Header.Get("Content-Type"))
}

func TestForwardHopByHopHeadersStripped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.StoreToken(ctx, store.TokenRecord{
		Provider: "oura", Account: "default", RefreshToken: "r1",
		AccessToken: "a", ExpiresAt: int64p(time.Now().Unix() + 3600),
	}))

	req := httptest.NewRequest(http.MethodGet, "/proxy/oura/x", nil)
	req.Header.Set("Proxy-Authorization", "Basic secret")
	req.Header.Set("Te", "trailers")
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()
	require.NoError(t, f.forwarder.Forward(rr, req, "oura", "x"))

	up := f.upstreamReqs[0]
	assert.Empty(t, up.Header.Get("Proxy-Authorization"))
	assert.Empty(t, up.Header.Get("Te"))
	assert.Empty(t, up.Header.Get("Upgrade"))
}

func TestForwardUpstreamUnreachable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.StoreToken(ctx, store.TokenRecord{
		Provider: "oura", Account: "default", RefreshToken: "r1",
		AccessToken: "a", ExpiresAt: int64p(time.Now().Unix() + 3600),
	}))

	// swap the registry for one whose base_url refuses connections but
	// keep the stored credential fresh so no refresh is attempted
	yaml := `
providers:
  oura:
    display_name: Oura
    base_url: http://127.0.0.1:1
    auth_url: http://127.0.0.1:1/authorize
    token_url: http://127.0.0.1:1/token
    client_id: id
    client_secret: secret
`
	result, err := providers.Parse([]byte(yaml), func(string) string { return "" })
	require.NoError(t, err)
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel, Output: io.Discard})
	require.NoError(t, err)
	client := &http.Client{Timeout: time.Second}
	manager := oauth.NewManager(f.store, result.Registry, client, "http://localhost:8080", logger)
	forwarder := New(result.Registry, manager, client, logger)

	req := httptest.NewRequest(http.MethodGet, "/proxy/oura/x", nil)
	rr := httptest.NewRecorder()
	err = forwarder.Forward(rr, req, "oura", "x")
	assert.True(t, errors.IsType(err, errors.ErrTypeUpstream))
}
