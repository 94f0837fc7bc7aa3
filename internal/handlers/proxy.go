package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Proxy forwards an authenticated request to the provider's API. The
// forwarder writes the upstream response itself; this handler only
// translates errors that occur before any byte reaches the caller.
func (h *Handlers) Proxy(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slug := vars["provider"]
	rest := vars["rest"]

	if err := h.forwarder.Forward(w, r, slug, rest); err != nil {
		h.sendJSONError(w, err, "proxy request failed")
	}
}
