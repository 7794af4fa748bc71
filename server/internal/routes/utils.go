package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gregriff/vocall/internal/public"
	"github.com/gregriff/vocall/server/internal/hub"
)

// WriteJSON writes data as the json body of a response with status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf("error writing response: %v", err)
	}
}

// deliver queues env in userID's inbox, counting what happens to it.
func (h *RouteHandler) deliver(userID string, env *public.Envelope) error {
	err := h.hub.Deliver(userID, env)
	switch {
	case err == nil:
		h.metrics.SignalsRelayed.WithLabelValues(string(env.Type)).Inc()
	case errors.Is(err, hub.ErrOffline):
		h.metrics.SignalsDropped.WithLabelValues("offline").Inc()
	case errors.Is(err, hub.ErrInboxFull):
		h.metrics.SignalsDropped.WithLabelValues("inbox_full").Inc()
	}
	return err
}

// notify delivers env to each of userIDs, logging the ones that cannot receive it.
func (h *RouteHandler) notify(env public.Envelope, userIDs ...string) {
	for _, id := range userIDs {
		signal := env
		signal.TargetID = id
		if err := h.deliver(id, &signal); err != nil {
			log.Warnf("could not send %s for call %s to %s: %v", signal.Type, signal.SessionID, id, err)
		}
	}
}
