package handlers

import (
	"encoding/json"
	"net/http"

	"oauth-bridge/internal/common/errors"
	"oauth-bridge/internal/common/logging"
	"oauth-bridge/internal/config"
	"oauth-bridge/internal/oauth"
	"oauth-bridge/internal/providers"
	"oauth-bridge/internal/proxy"
	"oauth-bridge/internal/store"
)

type Handlers struct {
	store     store.Store
	registry  *providers.Registry
	manager   *oauth.Manager
	forwarder *proxy.Forwarder
	config    *config.Config
	logger    logging.Logger
}

func New(st store.Store, registry *providers.Registry, manager *oauth.Manager, forwarder *proxy.Forwarder, cfg *config.Config, logger logging.Logger) *Handlers {
	return &Handlers{
		store:     st,
		registry:  registry,
		manager:   manager,
		forwarder: forwarder,
		config:    cfg,
		logger:    logger,
	}
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// sendJSONError translates an error into a JSON body and status code.
// Only the typed message reaches the caller; causes stay in the logs so
// upstream error bodies and credentials never leak through this surface.
func (h *Handlers) sendJSONError(w http.ResponseWriter, err error, logMsg string) {
	status := errors.HTTPStatus(err)
	if status >= 500 {
		h.logger.Error(logMsg, err)
	} else {
		h.logger.Warn(logMsg, logging.Err(err))
	}

	message := "internal server error"
	if appErr, ok := err.(*errors.AppError); ok {
		message = appErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
		"type":  string(errors.GetType(err)),
	})
}
