package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/pyhost/internal/api/models"
	"github.com/smazurov/pyhost/internal/lifecycle"
	"github.com/smazurov/pyhost/internal/process"
)

func (s *Server) registerBackendRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-backend",
		Method:      http.MethodGet,
		Path:        "/api/backend",
		Summary:     "Backend status",
		Description: "State of the supervised backend process and the port it announced",
		Tags:        []string{"backend"},
	}, func(_ context.Context, _ *struct{}) (*models.BackendResponse, error) {
		return s.backendResponse(), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-backend",
		Method:      http.MethodPost,
		Path:        "/api/backend/restart",
		Summary:     "Restart backend",
		Description: "Stop the backend, wait until it has exited, then start it again",
		Tags:        []string{"backend"},
		Errors:      []int{409, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.BackendResponse, error) {
		if err := s.options.Backend.Restart(ctx); err != nil {
			return nil, backendError(err)
		}
		return s.backendResponse(), nil
	})
}

func (s *Server) backendResponse() *models.BackendResponse {
	return &models.BackendResponse{
		Body: models.BackendData{
			Info: s.options.Backend.Status(),
			Port: int(s.backendPort.Load()),
		},
	}
}

func backendError(err error) error {
	var cfgErr *process.ConfigurationError
	var spawnErr *process.SpawnError
	switch {
	case errors.Is(err, process.ErrAlreadyRunning):
		return huma.Error409Conflict("Backend already running", err)
	case errors.Is(err, lifecycle.ErrStandby):
		return huma.Error409Conflict("Another host instance owns the backend", err)
	case errors.Is(err, process.ErrClosed):
		return huma.Error503ServiceUnavailable("Host is shutting down", err)
	case errors.As(err, &cfgErr):
		return huma.Error503ServiceUnavailable("Backend installation incomplete", err)
	case errors.As(err, &spawnErr):
		return huma.Error503ServiceUnavailable("Backend could not be started", err)
	default:
		return huma.Error500InternalServerError("Backend restart failed", err)
	}
}
