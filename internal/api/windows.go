package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/pyhost/internal/api/models"
	"github.com/smazurov/pyhost/internal/events"
	"github.com/smazurov/pyhost/internal/host"
)

func (s *Server) registerWindowRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "register-window",
		Method:        http.MethodPost,
		Path:          "/api/windows",
		Summary:       "Register window",
		Description:   "Record a newly opened frontend window",
		Tags:          []string{"windows"},
		DefaultStatus: http.StatusCreated,
	}, func(_ context.Context, input *models.RegisterWindowRequest) (*models.WindowResponse, error) {
		return &models.WindowResponse{Body: s.options.Windows.Register(input.Body.Label)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-windows",
		Method:      http.MethodGet,
		Path:        "/api/windows",
		Summary:     "List windows",
		Description: "Open frontend windows, oldest first",
		Tags:        []string{"windows"},
	}, func(_ context.Context, _ *struct{}) (*models.WindowListResponse, error) {
		resp := &models.WindowListResponse{}
		resp.Body.Windows = s.options.Windows.Windows()
		resp.Body.Count = len(resp.Body.Windows)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "unregister-window",
		Method:        http.MethodDelete,
		Path:          "/api/windows/{id}",
		Summary:       "Unregister window",
		Description:   "Forget a window that has been closed",
		Tags:          []string{"windows"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{404},
	}, func(_ context.Context, input *models.WindowIDPath) (*struct{}, error) {
		if err := s.options.Windows.Unregister(input.ID); err != nil {
			return nil, windowError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "window-close-requested",
		Method:        http.MethodPost,
		Path:          "/api/windows/{id}/close-requested",
		Summary:       "Window close requested",
		Description:   "Report that the user asked a window to close",
		Tags:          []string{"windows"},
		DefaultStatus: http.StatusAccepted,
	}, func(_ context.Context, input *models.WindowIDPath) (*struct{}, error) {
		if s.eventBus != nil {
			s.eventBus.Publish(events.WindowCloseRequestedEvent{
				WindowID:  input.ID,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}
		return nil, nil
	})
}

func windowError(err error) error {
	if errors.Is(err, host.ErrWindowNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	return huma.Error500InternalServerError("Window operation failed", err)
}
