package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/common/logging"
	"oauth-bridge/internal/store"
)

// ListConnections returns every stored connection. Tokens are never
// included, only status metadata.
func (h *Handlers) ListConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.store.ListConnections(r.Context())
	if err != nil {
		h.sendJSONError(w, err, "failed to list connections")
		return
	}

	h.sendJSONResponse(w, map[string]interface{}{
		"connections": connections,
		"count":       len(connections),
	})
}

// DeleteConnection removes a stored connection. The account query
// parameter defaults to "default"; deleting revokes nothing upstream, it
// only forgets the credential.
func (h *Handlers) DeleteConnection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slug := vars["provider"]

	account := r.URL.Query().Get("account")
	if account == "" {
		account = store.DefaultAccount
	}

	rec, err := h.store.GetToken(r.Context(), slug, account)
	if err != nil {
		h.sendJSONError(w, err, "failed to look up connection")
		return
	}
	if rec == nil {
		h.sendJSONError(w, errors.NotFoundError("connection"), "delete of absent connection")
		return
	}

	if err := h.store.DeleteToken(r.Context(), slug, account); err != nil {
		h.sendJSONError(w, err, "failed to delete connection")
		return
	}

	h.logger.Info("connection deleted",
		logging.Field{Key: "provider", Value: slug},
		logging.Field{Key: "account", Value: account},
	)
	w.WriteHeader(http.StatusNoContent)
}
