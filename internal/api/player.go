package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/catatau597/tubewranglerr/internal/api/models"
	"github.com/catatau597/tubewranglerr/internal/capabilities"
	"github.com/catatau597/tubewranglerr/internal/process"
)

// registerPlayerRoutes registers the runtime introspection endpoints.
func (s *Server) registerPlayerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/capabilities",
		Summary:     "Capabilities",
		Description: "Report which engine binaries are installed. refresh=true re-probes.",
		Tags:        []string{"player"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		Refresh bool `query:"refresh" doc:"Ignore the cached probe result"`
	}) (*models.CapabilitiesResponse, error) {
		caps := s.options.Prober.Probe(ctx, input.Refresh)
		return &models.CapabilitiesResponse{
			Body: models.CapabilitiesData{
				FFmpeg:     caps.FFmpeg,
				Streamlink: caps.Streamlink,
				YtDlp:      caps.YtDlp,
				Mode:       string(capabilities.ParseMode(s.options.Settings.Get().SmartPlayerMode)),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/player/sessions",
		Summary:     "Player Sessions",
		Description: "List active binary streaming sessions",
		Tags:        []string{"player"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SessionsResponse, error) {
		sessions := s.options.Player.Sessions()
		return &models.SessionsResponse{
			Body: models.SessionsData{Sessions: sessions, Count: len(sessions)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-processes",
		Method:      http.MethodGet,
		Path:        "/api/processes",
		Summary:     "Engine Processes",
		Description: "List engine processes spawned by this server that are still running",
		Tags:        []string{"player"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.ProcessesResponse, error) {
		var procs []process.Info
		if s.options.Processes != nil {
			procs = s.options.Processes.List()
		}
		if procs == nil {
			procs = []process.Info{}
		}
		return &models.ProcessesResponse{
			Body: models.ProcessesData{Processes: procs, Count: len(procs)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/api/settings",
		Summary:     "Settings",
		Description: "Current runtime settings, reloaded from settings.toml and the environment",
		Tags:        []string{"player"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.SettingsResponse, error) {
		st := s.options.Settings.Get()
		return &models.SettingsResponse{
			Body: models.SettingsData{
				SmartPlayerMode:      st.SmartPlayerMode,
				ProxyEnableAnalytics: st.ProxyEnableAnalytics,
				PlaceholderImageURL:  st.PlaceholderImageURL,
				StreamUserAgent:      st.StreamUserAgent,
				StreamCookiesPath:    st.StreamCookiesPath,
				CookiesDir:           st.CookiesDir,
				PlaceholderTimezone:  st.PlaceholderTimezone,
			},
		}, nil
	})
}
