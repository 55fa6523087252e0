package api

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/catatau597/tubewranglerr/internal/api/models"
	"github.com/catatau597/tubewranglerr/internal/events"
	"github.com/catatau597/tubewranglerr/internal/logging"
)

const defaultLogLimit = 100

var logSeq atomic.Uint64

// LogForwarder republishes every buffered log entry on bus so
// /api/logs/stream clients see it live.
func LogForwarder(bus *events.Bus) logging.LogCallback {
	return func(entry logging.LogEntry) {
		bus.Publish(logEntryEvent(logSeq.Add(1), entry))
	}
}

func logEntryEvent(seq uint64, entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers the log endpoints.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent Logs",
		Description: "Most recent entries from the in-memory log buffer",
		Tags:        []string{"logs"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, input *struct {
		Limit int `query:"limit" minimum:"1" maximum:"1000" default:"100" doc:"Maximum entries to return"`
	}) (*models.LogsResponse, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = defaultLogLimit
		}

		var entries []logging.LogEntry
		if buffer := logging.GetBuffer(); buffer != nil {
			entries = buffer.Tail(limit)
		}

		data := make([]models.LogEntryData, len(entries))
		for i, e := range entries {
			data[i] = models.LogEntryData{
				Timestamp:  e.Timestamp,
				Level:      e.Level,
				Module:     e.Module,
				Message:    e.Message,
				Attributes: e.Attributes,
			}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: data, Count: len(data)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/level",
		Summary:     "Set Log Level",
		Description: "Change one module's log level until the next restart",
		Tags:        []string{"logs"},
		Errors:      []int{400, 401},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.LogLevelRequest) (*struct{}, error) {
		if input.Body.Module == "" {
			return nil, huma.Error400BadRequest("module is required")
		}
		if !logging.SetModuleLevel(input.Body.Module, input.Body.Level) {
			return nil, huma.Error400BadRequest("unknown level " + input.Body.Level)
		}
		s.logger.Info("Log level changed", "target_module", input.Body.Module, "level", input.Body.Level)
		return &struct{}{}, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing falls between the two.
		eventCh := make(chan any, 100)
		unsubscribe := events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		defer unsubscribe()

		if buffer := logging.GetBuffer(); buffer != nil {
			for _, entry := range buffer.ReadAll() {
				if err := send.Data(logEntryEvent(0, entry)); err != nil {
					return
				}
			}
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
