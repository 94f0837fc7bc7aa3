package handlers

import (
	"fmt"
	"html"
	"net/http"

	"github.com/gorilla/mux"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/common/logging"
)

// StartAuth begins the authorization-code handshake for a provider. The
// optional "account" query parameter names the connection; it defaults to
// "default". The caller visits the returned URL in a browser.
func (h *Handlers) StartAuth(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slug := vars["provider"]

	prov, ok := h.registry.Get(slug)
	if !ok {
		h.sendJSONError(w, errors.UnknownProviderError(slug), "auth start for unknown provider")
		return
	}

	account := r.URL.Query().Get("account")
	authURL, err := h.manager.StartAuth(r.Context(), prov, account)
	if err != nil {
		h.sendJSONError(w, err, "failed to start auth handshake")
		return
	}

	h.logger.Info("auth handshake started",
		logging.Field{Key: "provider", Value: slug},
	)
	h.sendJSONResponse(w, map[string]string{
		"provider":          slug,
		"authorization_url": authURL,
	})
}

// Callback completes the handshake. Providers redirect the user's browser
// here, so the response is a minimal HTML page rather than JSON, and the
// endpoint is unauthenticated.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slug := vars["provider"]
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		h.logger.Warn("provider denied authorization",
			logging.Field{Key: "provider", Value: slug},
			logging.Field{Key: "error", Value: errCode},
		)
		h.sendCallbackPage(w, http.StatusBadRequest, "Connection failed",
			fmt.Sprintf("The provider reported: %s", errCode))
		return
	}

	state := query.Get("state")
	code := query.Get("code")
	if state == "" || code == "" {
		h.sendCallbackPage(w, http.StatusBadRequest, "Connection failed",
			"The callback is missing its state or code parameter.")
		return
	}

	account, err := h.manager.CompleteAuth(r.Context(), slug, state, code)
	if err != nil {
		h.logger.Warn("auth handshake failed",
			logging.Field{Key: "provider", Value: slug},
			logging.Err(err),
		)
		message := "Something went wrong while connecting the account."
		if appErr, ok := err.(*errors.AppError); ok {
			message = appErr.Message
		}
		h.sendCallbackPage(w, errors.HTTPStatus(err), "Connection failed", message)
		return
	}

	h.logger.Info("connection established",
		logging.Field{Key: "provider", Value: slug},
		logging.Field{Key: "account", Value: account},
	)

	name := slug
	if prov, ok := h.registry.Get(slug); ok && prov.DisplayName != "" {
		name = prov.DisplayName
	}
	h.sendCallbackPage(w, http.StatusOK, "Connected",
		fmt.Sprintf("%s is now connected as %q. You can close this window.", name, account))
}

func (h *Handlers) sendCallbackPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; max-width: 40em; margin: 4em auto;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}
