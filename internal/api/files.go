package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/pyhost/internal/api/models"
	"github.com/smazurov/pyhost/internal/files"
)

func (s *Server) registerFileRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "greet",
		Method:      http.MethodGet,
		Path:        "/api/greet",
		Summary:     "Greet",
		Description: "Return a greeting, used by the frontend as a smoke test",
		Tags:        []string{"files"},
	}, func(_ context.Context, input *models.GreetRequest) (*models.GreetResponse, error) {
		resp := &models.GreetResponse{}
		resp.Body.Message = files.Greet(input.Name)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "scan-folder",
		Method:      http.MethodPost,
		Path:        "/api/files/scan",
		Summary:     "Scan folder",
		Description: "Recursively list files with the given extension",
		Tags:        []string{"files"},
		Errors:      []int{400, 404},
	}, func(_ context.Context, input *models.ScanRequest) (*models.ScanResponse, error) {
		found, err := files.Scan(input.Body.Folder, input.Body.Extension)
		if err != nil {
			return nil, fileError(err)
		}
		resp := &models.ScanResponse{}
		resp.Body.Files = found
		resp.Body.Count = len(found)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "path-info",
		Method:      http.MethodGet,
		Path:        "/api/files/info",
		Summary:     "Path type",
		Description: "Report whether a path is a file or a directory",
		Tags:        []string{"files"},
		Errors:      []int{400, 404},
	}, func(_ context.Context, input *models.PathQuery) (*models.PathInfoResponse, error) {
		info, err := files.Inspect(input.Path)
		if err != nil {
			return nil, fileError(err)
		}
		return &models.PathInfoResponse{Body: info}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "read-file",
		Method:      http.MethodGet,
		Path:        "/api/files/content",
		Summary:     "Read file",
		Description: "Return the content of a text file",
		Tags:        []string{"files"},
		Errors:      []int{400, 404},
	}, func(_ context.Context, input *models.PathQuery) (*models.ContentResponse, error) {
		content, err := files.Read(input.Path)
		if err != nil {
			return nil, fileError(err)
		}
		resp := &models.ContentResponse{}
		resp.Body.Path = input.Path
		resp.Body.Content = content
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "write-file",
		Method:        http.MethodPut,
		Path:          "/api/files/content",
		Summary:       "Write file",
		Description:   "Replace the content of a file, creating parent directories",
		Tags:          []string{"files"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{400, 500},
	}, func(_ context.Context, input *models.WriteContentRequest) (*struct{}, error) {
		if err := files.Write(input.Body.Path, input.Body.Content); err != nil {
			return nil, fileError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "join-path",
		Method:      http.MethodPost,
		Path:        "/api/paths/join",
		Summary:     "Join path",
		Description: "Append a file name to a directory using the host's path rules",
		Tags:        []string{"files"},
	}, func(_ context.Context, input *models.JoinRequest) (*models.JoinResponse, error) {
		resp := &models.JoinResponse{}
		resp.Body.Path = files.Join(input.Body.Dir, input.Body.File)
		return resp, nil
	})
}

func fileError(err error) error {
	switch {
	case errors.Is(err, files.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, files.ErrNotDirectory), errors.Is(err, files.ErrEmptyPath):
		return huma.Error400BadRequest(err.Error())
	default:
		return huma.Error500InternalServerError("Filesystem operation failed", err)
	}
}
