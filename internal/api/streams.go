package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/catatau597/tubewranglerr/internal/api/models"
	"github.com/catatau597/tubewranglerr/internal/capabilities"
	"github.com/catatau597/tubewranglerr/internal/streams"
)

// registerStreamRoutes registers the read-only record endpoints.
func (s *Server) registerStreamRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "List stored stream records with their proxy URLs",
		Tags:        []string{"streams"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.StreamListResponse, error) {
		records, err := s.options.Store.ListStreams(ctx)
		if err != nil {
			return nil, s.mapStreamError(err)
		}

		apiStreams := make([]models.StreamRecordData, len(records))
		for i, rec := range records {
			apiStreams[i] = recordToAPI(rec)
		}

		return &models.StreamListResponse{
			Body: models.StreamListData{
				Streams: apiStreams,
				Count:   len(apiStreams),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-stream",
		Method:      http.MethodGet,
		Path:        "/api/streams/{video_id}",
		Summary:     "Get Stream",
		Description: "Get a stored stream record",
		Tags:        []string{"streams"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *struct {
		VideoID string `path:"video_id" example:"dQw4w9WgXcQ" doc:"Stream identifier"`
	}) (*models.StreamRecordResponse, error) {
		rec, err := s.options.Store.GetStream(ctx, input.VideoID)
		if err != nil {
			return nil, s.mapStreamError(err)
		}

		return &models.StreamRecordResponse{
			Body: recordToAPI(rec),
		}, nil
	})
}

// recordToAPI converts a record to API data
func recordToAPI(rec streams.Record) models.StreamRecordData {
	return models.StreamRecordData{
		VideoID:        rec.VideoID,
		Status:         string(rec.Status),
		WatchURL:       rec.WatchURL,
		ThumbnailURL:   rec.ThumbnailURL,
		Title:          rec.Title,
		ChannelName:    rec.ChannelName,
		ScheduledStart: rec.ScheduledStart,
		ActualStart:    rec.ActualStart,
		ActualEnd:      rec.ActualEnd,
		GenuinelyLive:  rec.GenuinelyLive(),
		RequiredBinary: string(capabilities.RequiredBinary(rec)),
		StreamURL:      "/stream/" + url.PathEscape(rec.VideoID),
	}
}

// mapStreamError maps domain errors to HTTP errors
func (s *Server) mapStreamError(err error) error {
	var streamErr *streams.StreamError
	if errors.As(err, &streamErr) {
		switch streamErr.Code {
		case streams.ErrCodeStreamNotFound:
			return huma.Error404NotFound(streamErr.Message, err)
		case streams.ErrCodeInvalidRecord:
			return huma.Error422UnprocessableEntity(streamErr.Message, err)
		case streams.ErrCodeStoreError:
			return huma.Error500InternalServerError(streamErr.Message, err)
		}
	}
	return huma.Error500InternalServerError("internal server error", err)
}
