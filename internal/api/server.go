package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/catatau597/tubewranglerr/internal/api/models"
	"github.com/catatau597/tubewranglerr/internal/capabilities"
	"github.com/catatau597/tubewranglerr/internal/config"
	"github.com/catatau597/tubewranglerr/internal/events"
	"github.com/catatau597/tubewranglerr/internal/logging"
	"github.com/catatau597/tubewranglerr/internal/player"
	"github.com/catatau597/tubewranglerr/internal/process"
	"github.com/catatau597/tubewranglerr/internal/streams"
	"github.com/catatau597/tubewranglerr/internal/version"
)

// Player is the streaming endpoint behind /stream/{id}.
type Player interface {
	Decide(ctx context.Context, videoID string) (player.Decision, error)
	Serve(ctx context.Context, w io.Writer, d player.Decision, c player.Client) error
	Sessions() []player.SessionInfo
}

// Prober reports installed engine binaries.
type Prober interface {
	Probe(ctx context.Context, forceRefresh bool) capabilities.Capabilities
}

// ProcessLister lists running engine processes.
type ProcessLister interface {
	List() []process.Info
}

// SettingsSource provides the current runtime settings.
type SettingsSource interface {
	Get() config.Settings
}

// Options wires a Server.
type Options struct {
	AuthUsername      string
	AuthPassword      string
	Store             streams.Store
	Player            Player
	Prober            Prober
	Processes         ProcessLister
	Settings          SettingsSource
	EventBus          *events.Bus
	PrometheusHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the Huma v2 API plus the raw /stream handler on one mux.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	cancel     context.CancelFunc
	options    *Options
	eventBus   *events.Bus
	logger     *slog.Logger
}

// basicAuthMiddleware creates middleware for HTTP basic authentication
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		credentials, err := requestCredentials(ctx)
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="tubewranglerr API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, err.Error())
			return
		}

		user, pass, ok := strings.Cut(credentials, ":")
		if !ok || user != username || pass != password {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="tubewranglerr API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// requestCredentials reads "user:pass" from the Authorization header or,
// for SSE clients that cannot set headers, the auth query parameter.
func requestCredentials(ctx huma.Context) (string, error) {
	encoded := ctx.Query("auth")
	if header := ctx.Header("Authorization"); header != "" {
		rest, ok := strings.CutPrefix(header, "Basic ")
		if !ok {
			return "", errors.New("Invalid authentication type")
		}
		encoded = rest
	}
	if encoded == "" {
		return "", errors.New("Authentication required")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.New("Invalid credentials format")
	}
	return string(decoded), nil
}

// NewServer creates a new API server with Huma v2 using Go 1.22+ native routing
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("tubewranglerr API", version.Version)
	config.Info.Description = "Smart player proxy for stored video and broadcast records"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	// Request contexts derive from baseCtx so Stop can end long /stream
	// responses. No WriteTimeout: /stream bodies last up to the player timeout.
	baseCtx, cancel := context.WithCancel(context.Background())
	server := &Server{
		api: api,
		mux: mux,
		httpServer: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return baseCtx },
		},
		cancel:   cancel,
		options:  opts,
		eventBus: opts.EventBus,
		logger:   logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Raw handlers stay outside huma: /metrics is owned by promhttp and
	// /stream writes an unbounded binary body.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}
	mux.Handle("GET /stream/{id}", WithCORS(corsConfig, LogRequests(http.HandlerFunc(server.handleStream))))

	server.registerRoutes()
	return server
}

// GetMux returns the underlying HTTP ServeMux for additional setup
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// Start serves on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting API server", "addr", addr)
	s.logger.Info("OpenAPI documentation available", "url", "http://"+addr+"/docs")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop is called.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop closes the listener and cancels in-flight requests. Cancelling a
// /stream request terminates its engine process.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server")
	s.cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health-live",
		Method:      http.MethodGet,
		Path:        "/api/health/live",
		Summary:     "Liveness",
		Description: "Report that the process is serving requests",
		Tags:        []string{"health"},
		Security:    []map[string][]string{}, // Empty security = no auth required
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{Status: "ok", Message: "API is healthy"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "health-ready",
		Method:      http.MethodGet,
		Path:        "/api/health/ready",
		Summary:     "Readiness",
		Description: "Report whether the record store is reachable",
		Tags:        []string{"health"},
		Errors:      []int{503},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, _ *struct{}) (*models.HealthResponse, error) {
		if err := s.options.Store.Ping(ctx); err != nil {
			return nil, huma.Error503ServiceUnavailable("record store unavailable", err)
		}
		return &models.HealthResponse{
			Body: models.HealthData{Status: "ok", Message: "Record store reachable"},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Name:      info.Name,
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				GoVersion: info.GoVersion,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerStreamRoutes()
	s.registerPlayerRoutes()
	s.registerSSERoutes()
	s.registerLogRoutes()
}

// withAuth returns security requirement for basic auth
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
