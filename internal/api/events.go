package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/pyhost/internal/api/models"
	"github.com/smazurov/pyhost/internal/events"
)

// registerSSERoutes registers the backend event stream.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time backend state changes, exits and port announcements",
		Tags:        []string{"events"},
	}, map[string]any{
		"backend-status": models.BackendData{},
		"backend-state":  events.BackendStateChangedEvent{},
		"backend-exited": events.BackendExitedEvent{},
		"backend-port":   events.BackendPortEvent{},
		"window-close":   events.WindowCloseRequestedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		if s.eventBus == nil {
			return
		}

		eventCh := make(chan any, 10)
		defer events.SubscribeBackendEvents(s.eventBus, eventCh)()

		// Current state first so a late subscriber does not miss it.
		if err := send.Data(s.backendResponse().Body); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
