package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/catatau597/tubewranglerr/internal/streams"
	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

// SQLiteConfig tunes the connection pool.
type SQLiteConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// DefaultSQLiteConfig suits a read-mostly WAL database shared with the sync job.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{BusyTimeout: 5 * time.Second, MaxOpenConns: 8}
}

// schema matches the table the sync job writes. Creating it here lets the
// proxy start before the first sync.
const schema = `
CREATE TABLE IF NOT EXISTS streams (
	video_id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'none',
	watch_url TEXT NOT NULL,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	channel_name TEXT NOT NULL DEFAULT '',
	scheduled_start TEXT,
	actual_start TEXT,
	actual_end TEXT,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_streams_status ON streams(status);
`

const selectColumns = `video_id, status, watch_url, thumbnail_url, title, channel_name, scheduled_start, actual_start, actual_end`

// SQLiteStore reads records from the sync job's SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ streams.Store = (*SQLiteStore)(nil)

// NewSQLite opens path with WAL and busy_timeout applied to every pooled
// connection and ensures the streams table exists.
func NewSQLite(path string, cfg SQLiteConfig) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert writes rec. The serving path never writes; the import command does.
func (s *SQLiteStore) Upsert(ctx context.Context, rec streams.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO streams (video_id, status, watch_url, thumbnail_url, title, channel_name, scheduled_start, actual_start, actual_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			status = excluded.status,
			watch_url = excluded.watch_url,
			thumbnail_url = excluded.thumbnail_url,
			title = excluded.title,
			channel_name = excluded.channel_name,
			scheduled_start = excluded.scheduled_start,
			actual_start = excluded.actual_start,
			actual_end = excluded.actual_end,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		rec.VideoID, string(rec.Status), rec.WatchURL, rec.ThumbnailURL, rec.Title, rec.ChannelName,
		formatTime(rec.ScheduledStart), formatTime(rec.ActualStart), formatTime(rec.ActualEnd))
	if err != nil {
		return streams.NewStreamError(streams.ErrCodeStoreError, "upsert "+rec.VideoID, err)
	}
	return nil
}

// GetStream implements streams.Store.
func (s *SQLiteStore) GetStream(ctx context.Context, videoID string) (streams.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM streams WHERE video_id = ?`, videoID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return streams.Record{}, streams.NotFound(videoID)
	}
	if err != nil {
		return streams.Record{}, streams.NewStreamError(streams.ErrCodeStoreError, "get "+videoID, err)
	}
	return rec, nil
}

// ListStreams implements streams.Store, ordered by scheduled start.
func (s *SQLiteStore) ListStreams(ctx context.Context) ([]streams.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM streams ORDER BY scheduled_start IS NULL, scheduled_start, video_id`)
	if err != nil {
		return nil, streams.NewStreamError(streams.ErrCodeStoreError, "list streams", err)
	}
	defer rows.Close()

	var out []streams.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, streams.NewStreamError(streams.ErrCodeStoreError, "scan stream", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, streams.NewStreamError(streams.ErrCodeStoreError, "list streams", err)
	}
	return out, nil
}

// Ping implements streams.Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements streams.Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (streams.Record, error) {
	var (
		rec                          streams.Record
		status                       string
		scheduled, started, finished sql.NullString
	)
	if err := sc.Scan(&rec.VideoID, &status, &rec.WatchURL, &rec.ThumbnailURL, &rec.Title, &rec.ChannelName,
		&scheduled, &started, &finished); err != nil {
		return streams.Record{}, err
	}
	rec.Status = streams.ParseStatus(status)

	var err error
	if rec.ScheduledStart, err = parseTime(scheduled); err != nil {
		return streams.Record{}, fmt.Errorf("scheduled_start: %w", err)
	}
	if rec.ActualStart, err = parseTime(started); err != nil {
		return streams.Record{}, fmt.Errorf("actual_start: %w", err)
	}
	if rec.ActualEnd, err = parseTime(finished); err != nil {
		return streams.Record{}, fmt.Errorf("actual_end: %w", err)
	}
	return rec, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
