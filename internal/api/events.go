package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/catatau597/tubewranglerr/internal/events"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time player decisions, proxy access, engine spawns, restarts and session ends",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"stream-decision":     events.StreamDecisionEvent{},
		"proxy-access":        events.ProxyAccessEvent{},
		"process-spawned":     events.ProcessSpawnedEvent{},
		"process-restarted":   events.ProcessRestartedEvent{},
		"session-ended":       events.SessionEndedEvent{},
		"capabilities-probed": events.CapabilitiesProbedEvent{},
		"settings-reloaded":   events.SettingsReloadedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.StreamDecisionEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProxyAccessEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessSpawnedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ProcessRestartedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SessionEndedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CapabilitiesProbedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.SettingsReloadedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

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
