// Package models holds the request and response shapes of the host API.
package models

import (
	"github.com/smazurov/pyhost/internal/files"
	"github.com/smazurov/pyhost/internal/host"
	"github.com/smazurov/pyhost/internal/process"
	"github.com/smazurov/pyhost/internal/version"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Backend models
type BackendData struct {
	process.Info
	Port int `json:"port,omitempty" example:"8000" doc:"Port announced by the backend"`
}

type BackendResponse struct {
	Body BackendData
}

// Greeting models
type GreetRequest struct {
	Name string `query:"name" example:"Ada" doc:"Name to greet"`
}

type GreetResponse struct {
	Body struct {
		Message string `json:"message" example:"Hello, Ada! You've been greeted from Go!" doc:"Greeting"`
	}
}

// File models
type ScanRequest struct {
	Body struct {
		Folder    string `json:"folder" minLength:"1" example:"/home/ada/Documents" doc:"Folder to scan recursively"`
		Extension string `json:"extension" minLength:"1" example:"txt" doc:"File extension, with or without the dot"`
	}
}

type ScanResponse struct {
	Body struct {
		Files []string `json:"files" doc:"Matching files, sorted"`
		Count int      `json:"count" example:"3" doc:"Number of matching files"`
	}
}

type PathQuery struct {
	Path string `query:"path" required:"true" minLength:"1" example:"/home/ada/notes.txt" doc:"Filesystem path"`
}

type PathInfoResponse struct {
	Body files.PathInfo
}

type ContentResponse struct {
	Body struct {
		Path    string `json:"path" doc:"File path"`
		Content string `json:"content" doc:"File content"`
	}
}

type WriteContentRequest struct {
	Body struct {
		Path    string `json:"path" minLength:"1" example:"/home/ada/notes.txt" doc:"File path"`
		Content string `json:"content" doc:"New file content"`
	}
}

type JoinRequest struct {
	Body struct {
		Dir  string `json:"dir" example:"/home/ada" doc:"Base directory"`
		File string `json:"file" example:"notes.txt" doc:"Relative file name"`
	}
}

type JoinResponse struct {
	Body struct {
		Path string `json:"path" example:"/home/ada/notes.txt" doc:"Joined path"`
	}
}

// Window models
type RegisterWindowRequest struct {
	Body struct {
		Label string `json:"label" example:"main" doc:"Window label"`
	}
}

type WindowResponse struct {
	Body host.Window
}

type WindowListResponse struct {
	Body struct {
		Windows []host.Window `json:"windows" doc:"Open windows"`
		Count   int           `json:"count" example:"1" doc:"Number of open windows"`
	}
}

type WindowIDPath struct {
	ID string `path:"id" doc:"Window identifier"`
}
