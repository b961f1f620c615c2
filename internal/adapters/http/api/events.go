package api

import (
	"context"
	"net/http"

	"github.com/okian/stark/internal/domain/model"
	"github.com/okian/stark/internal/domain/policy"
	"github.com/okian/stark/pkg/logger"
)

// EventDependencies defines the interface for listing events.
type EventDependencies interface {
	ListEvents(ctx context.Context, actor policy.Actor) ([]model.Event, error)
}

// EventsHandler handles event listing.
type EventsHandler struct {
	deps   EventDependencies
	logger logger.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies, l logger.Logger) *EventsHandler {
	return &EventsHandler{deps: deps, logger: l}
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
}

// HandleListEvents handles GET /v1/events.
func (h *EventsHandler) HandleListEvents(w http.ResponseWriter, r *http.Request, actor policy.Actor) {
	const op = "api.list_events"

	events, err := h.deps.ListEvents(r.Context(), actor)
	if err != nil {
		fail(r.Context(), h.logger, w, op, err, "store_unavailable", codeInternal)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}
