package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/smazurov/pyhost/internal/api/models"
	"github.com/smazurov/pyhost/internal/events"
	"github.com/smazurov/pyhost/internal/host"
	"github.com/smazurov/pyhost/internal/logging"
	"github.com/smazurov/pyhost/internal/process"
	"github.com/smazurov/pyhost/internal/version"
)

// BackendController is the part of the supervisor the API exposes.
type BackendController interface {
	Status() process.Info
	Restart(ctx context.Context) error
}

// WindowRegistry tracks frontend windows.
type WindowRegistry interface {
	Register(label string) host.Window
	Unregister(id string) error
	Windows() []host.Window
}

// Options configures the API server.
type Options struct {
	Backend  BackendController
	Windows  WindowRegistry
	EventBus *events.Bus
	// CORSOrigins lists the frontend origins allowed to call the API.
	// Empty allows any origin.
	CORSOrigins []string
	// PrometheusHandler, when set, is served at /metrics.
	PrometheusHandler http.Handler
}

// Server is the loopback HTTP API used by the frontend.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	mu         sync.Mutex
	httpServer *http.Server
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger

	backendPort atomic.Int64
	unsubscribe func()
}

// NewServer creates a new API server with Huma v2 using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	if len(opts.CORSOrigins) > 0 {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("pyhost API", version.Get().Version)
	config.Info.Description = "Host API for the bundled Python backend and the desktop frontend"
	config.Servers = []*huma.Server{}

	api := humago.New(mux, config)

	server := &Server{
		api:         api,
		mux:         mux,
		options:     opts,
		eventBus:    opts.EventBus,
		logger:      logging.GetLogger("api"),
		unsubscribe: func() {},
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(NewLoggingMiddleware(logging.GetLogger("http")))

	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	if server.eventBus != nil {
		server.unsubscribe = server.eventBus.Subscribe(func(e events.BackendPortEvent) {
			server.backendPort.Store(int64(e.Port))
		})
	}

	server.registerRoutes()
	return server
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GetAPI returns the Huma API instance.
func (s *Server) GetAPI() huma.API {
	return s.api
}

// Start listens on addr and serves until Stop. It returns
// http.ErrServerClosed after a clean Stop.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("Starting pyhost API server", "addr", listener.Addr().String())
	s.logger.Info("OpenAPI documentation available", "url", "http://"+listener.Addr().String()+"/docs")

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	return srv.Serve(listener)
}

// Stop closes the server immediately. SSE streams would otherwise keep a
// graceful shutdown waiting.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")
	s.unsubscribe()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		return srv.Close()
	}
	return nil
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		return &models.VersionResponse{Body: version.Get()}, nil
	})

	s.registerBackendRoutes()
	s.registerFileRoutes()
	s.registerWindowRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}
