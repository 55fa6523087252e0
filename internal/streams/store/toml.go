package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"github.com/catatau597/tubewranglerr/internal/streams"
	"github.com/pelletier/go-toml/v2"
)

// document is the on-disk layout of streams.toml.
type document struct {
	Version int                       `toml:"version"`
	Streams map[string]streams.Record `toml:"streams"`
}

// TOMLStore serves records from a hand-edited TOML file. It is read-only;
// Load can be called again to pick up edits.
type TOMLStore struct {
	path string

	mu      sync.RWMutex
	records map[string]streams.Record
}

var _ streams.Store = (*TOMLStore)(nil)

// NewTOML creates a store backed by path, defaulting to streams.toml.
func NewTOML(path string) *TOMLStore {
	if path == "" {
		path = "streams.toml"
	}
	return &TOMLStore{path: path, records: make(map[string]streams.Record)}
}

// Path returns the backing file.
func (s *TOMLStore) Path() string { return s.path }

// Load replaces the in-memory records with the file contents. A missing
// file yields an empty store. Map keys fill in an absent video_id.
func (s *TOMLStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.mu.Lock()
		s.records = make(map[string]streams.Record)
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read streams file: %w", err)
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse streams file: %w", err)
	}

	records := make(map[string]streams.Record, len(doc.Streams))
	for id, rec := range doc.Streams {
		if rec.VideoID == "" {
			rec.VideoID = id
		}
		rec.Status = streams.ParseStatus(string(rec.Status))
		records[rec.VideoID] = rec
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
	return nil
}

// GetStream implements streams.Store.
func (s *TOMLStore) GetStream(_ context.Context, videoID string) (streams.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[videoID]
	if !ok {
		return streams.Record{}, streams.NotFound(videoID)
	}
	return rec, nil
}

// ListStreams implements streams.Store, ordered by video id.
func (s *TOMLStore) ListStreams(_ context.Context) ([]streams.Record, error) {
	s.mu.RLock()
	out := make([]streams.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].VideoID < out[j].VideoID })
	return out, nil
}

// Ping implements streams.Store.
func (s *TOMLStore) Ping(_ context.Context) error {
	if _, err := os.Stat(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("streams file: %w", err)
	}
	return nil
}

// Close implements streams.Store.
func (s *TOMLStore) Close() error { return nil }
