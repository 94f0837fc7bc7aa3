// Package proxy rewrites inbound requests and forwards them to the
// provider API with a valid access token attached. It makes exactly one
// upstream attempt per inbound request and never retries.
package proxy

import (
	"io"
	"net/http"
	"strings"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/common/logging"
	"oauth-bridge/internal/oauth"
	"oauth-bridge/internal/providers"
)

// AccountParam is the reserved query parameter selecting the account on
// proxy paths; it is always stripped before forwarding.
const AccountParam = "account"

// requestHeaderExclusions are hop-by-hop headers and credentials that must
// not travel upstream. The caller's own authorization header is replaced
// with the provider access token.
var requestHeaderExclusions = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
	"host":                true,
	"authorization":       true,
}

// responseHeaderExclusions are headers that do not survive proxying; the
// transport has already decoded the body, so the upstream content-encoding
// no longer applies.
var responseHeaderExclusions = map[string]bool{
	"connection":        true,
	"keep-alive":        true,
	"transfer-encoding": true,
	"content-encoding":  true,
}

// bodyMethods are the methods whose request body is forwarded verbatim.
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Forwarder resolves a provider and account for each inbound request,
// obtains a fresh access token through the lifecycle manager, and streams
// the upstream response back.
type Forwarder struct {
	registry *providers.Registry
	manager  *oauth.Manager
	client   *http.Client
	logger   logging.Logger
}

// New creates a Forwarder. The client follows redirects and carries the
// configured upstream timeout.
func New(registry *providers.Registry, manager *oauth.Manager, client *http.Client, logger logging.Logger) *Forwarder {
	return &Forwarder{registry: registry, manager: manager, client: client, logger: logger}
}

// Forward proxies one request to the provider identified by slug, with
// rest as the upstream path. On error nothing has been written to w; the
// caller owns the error response. Token refresh is the only step with side
// effects.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, slug, rest string) error {
	prov, ok := f.registry.Get(slug)
	if !ok {
		return errors.UnknownProviderError(slug)
	}

	ctx := r.Context()
	account := r.URL.Query().Get(AccountParam)

	rec, resolvedAccount, err := f.manager.ResolveToken(ctx, slug, account)
	if err != nil {
		return err
	}
	rec, err = f.manager.EnsureFresh(ctx, prov, rec)
	if err != nil {
		return err
	}

	upstreamURL := prov.BaseURL + "/" + strings.TrimLeft(rest, "/")
	query := r.URL.Query()
	query.Del(AccountParam)
	if encoded := query.Encode(); encoded != "" {
		upstreamURL += "?" + encoded
	}

	var body io.Reader
	if bodyMethods[r.Method] {
		body = r.Body
	}

	upstream, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL, body)
	if err != nil {
		return errors.InternalError("failed to build upstream request", err)
	}
	for name, values := range r.Header {
		if requestHeaderExclusions[strings.ToLower(name)] {
			continue
		}
		for _, value := range values {
			upstream.Header.Add(name, value)
		}
	}
	upstream.Header.Set("Authorization", "Bearer "+rec.AccessToken)

	resp, err := f.client.Do(upstream)
	if err != nil {
		return errors.UpstreamError("failed to reach provider API", err)
	}
	defer resp.Body.Close()

	for name, values := range resp.Header {
		if responseHeaderExclusions[strings.ToLower(name)] {
			continue
		}
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// headers are already out; log instead of reporting a new error
		f.logger.Warn("response stream interrupted",
			logging.Field{Key: "provider", Value: slug},
			logging.Field{Key: "account", Value: resolvedAccount},
			logging.Err(err))
	}
	return nil
}
