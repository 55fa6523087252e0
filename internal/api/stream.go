package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/catatau597/tubewranglerr/internal/player"
	"github.com/catatau597/tubewranglerr/internal/streams"
)

// ContentTypeMPEGTS is served for binary responses; every engine writes
// MPEG-TS to stdout.
const ContentTypeMPEGTS = "video/mp2t"

// handleStream serves GET /stream/{id}: a redirect to the source page, a
// 503 when binary mode cannot be honoured, or the engine's output.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	videoID := r.PathValue("id")

	d, err := s.options.Player.Decide(ctx, videoID)
	if err != nil {
		if streams.IsNotFound(err) {
			http.Error(w, "Stream not found", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to load stream record", "video_id", videoID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set(player.HeaderMode, string(d.Kind))

	switch d.Kind {
	case player.KindRedirect:
		http.Redirect(w, r, d.Record.WatchURL, http.StatusFound)
		return
	case player.KindBinaryUnavailable:
		writeJSONError(w, http.StatusServiceUnavailable, fmt.Sprintf("Required binary not available: %s", d.RequiredBinary))
		return
	}

	w.Header().Set("Content-Type", ContentTypeMPEGTS)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	client := player.Client{
		SessionID:  RequestID(ctx),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	err = s.options.Player.Serve(ctx, newFlushWriter(w), d, client)
	if errors.Is(err, player.ErrRestartsExhausted) {
		// Headers are gone; abort the connection so the client sees a
		// truncated body rather than a clean end of stream.
		panic(http.ErrAbortHandler)
	}
	if err != nil {
		s.logger.Warn("Stream session failed", "video_id", videoID, "error", err)
	}
}

// flushWriter flushes through http.ResponseController so wrapped writers
// that implement Unwrap still reach the connection.
type flushWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newFlushWriter(w http.ResponseWriter) *flushWriter {
	return &flushWriter{w: w, rc: http.NewResponseController(w)}
}

func (f *flushWriter) Write(p []byte) (int, error) { return f.w.Write(p) }

func (f *flushWriter) Flush() error {
	err := f.rc.Flush()
	if errors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
