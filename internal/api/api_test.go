package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/catatau597/tubewranglerr/internal/api/models"
	"github.com/catatau597/tubewranglerr/internal/capabilities"
	"github.com/catatau597/tubewranglerr/internal/config"
	"github.com/catatau597/tubewranglerr/internal/events"
	"github.com/catatau597/tubewranglerr/internal/player"
	"github.com/catatau597/tubewranglerr/internal/process"
	"github.com/catatau597/tubewranglerr/internal/streams"
)

type memStore struct {
	records map[string]streams.Record
	pingErr error
}

func (m *memStore) GetStream(_ context.Context, id string) (streams.Record, error) {
	rec, ok := m.records[id]
	if !ok {
		return streams.Record{}, streams.NotFound(id)
	}
	return rec, nil
}

func (m *memStore) ListStreams(context.Context) ([]streams.Record, error) {
	out := make([]streams.Record, 0, len(m.records))
	for _, id := range []string{"live1", "rec1", "up1"} {
		if rec, ok := m.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }
func (m *memStore) Close() error               { return nil }

// fakePlayer decides from a fixed kind and serves a fixed body.
type fakePlayer struct {
	store *memStore
	kind  player.Kind
	body  string
	err   error
	// done, when set, makes Serve block until ctx ends and then closes it.
	done chan struct{}

	mu      sync.Mutex
	clients []player.Client
}

func (f *fakePlayer) Decide(ctx context.Context, id string) (player.Decision, error) {
	rec, err := f.store.GetStream(ctx, id)
	if err != nil {
		return player.Decision{}, err
	}
	return player.Decision{
		Record:         rec,
		Mode:           capabilities.ModeBinary,
		Kind:           f.kind,
		RequiredBinary: capabilities.RequiredBinary(rec),
	}, nil
}

func (f *fakePlayer) Serve(ctx context.Context, w io.Writer, _ player.Decision, c player.Client) error {
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
	if _, err := io.WriteString(w, f.body); err != nil {
		return err
	}
	if fl, ok := w.(interface{ Flush() error }); ok {
		if err := fl.Flush(); err != nil {
			return err
		}
	}
	if f.done != nil {
		<-ctx.Done()
		close(f.done)
		return ctx.Err()
	}
	return f.err
}

func (f *fakePlayer) Sessions() []player.SessionInfo { return nil }

func (f *fakePlayer) served() []player.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]player.Client(nil), f.clients...)
}

type fixedProber struct{ caps capabilities.Capabilities }

func (p fixedProber) Probe(context.Context, bool) capabilities.Capabilities { return p.caps }

func newTestStore() *memStore {
	started := time.Now().Add(-time.Hour)
	return &memStore{records: map[string]streams.Record{
		"live1": {VideoID: "live1", Status: streams.StatusLive, WatchURL: "https://www.youtube.com/watch?v=live1", ActualStart: &started},
		"rec1":  {VideoID: "rec1", Status: streams.StatusVOD, WatchURL: "https://www.youtube.com/watch?v=rec1"},
		"up1":   {VideoID: "up1", Status: streams.StatusUpcoming, WatchURL: "https://www.youtube.com/watch?v=up1"},
	}}
}

func newTestServer(t *testing.T, kind player.Kind, opts func(*Options)) (*Server, *fakePlayer) {
	t.Helper()
	store := newTestStore()
	fp := &fakePlayer{store: store, kind: kind, body: "TSDATA"}
	o := &Options{
		Store:    store,
		Player:   fp,
		Prober:   fixedProber{caps: capabilities.Capabilities{FFmpeg: true, YtDlp: true}},
		Settings: config.NewSettingsStore(config.DefaultSettings()),
		EventBus: events.New(),
	}
	if opts != nil {
		opts(o)
	}
	return NewServer(o), fp
}

func TestStreamRedirect(t *testing.T) {
	srv, fp := newTestServer(t, player.KindRedirect, nil)

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/rec1", nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "https://www.youtube.com/watch?v=rec1" {
		t.Errorf("Location = %q", got)
	}
	if got := rec.Header().Get(player.HeaderMode); got != "redirect" {
		t.Errorf("%s = %q, want redirect", player.HeaderMode, got)
	}
	if n := len(fp.served()); n != 0 {
		t.Errorf("Serve called %d times on redirect", n)
	}
}

func TestStreamBinaryUnavailable(t *testing.T) {
	srv, fp := newTestServer(t, player.KindBinaryUnavailable, nil)

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/rec1", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := rec.Header().Get(player.HeaderMode); got != "binary-unavailable" {
		t.Errorf("%s = %q", player.HeaderMode, got)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	want := map[string]string{"error": "Required binary not available: yt-dlp"}
	if diff := cmp.Diff(want, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if n := len(fp.served()); n != 0 {
		t.Errorf("Serve called %d times", n)
	}
}

func TestStreamNotFound(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, nil)

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "Stream not found" {
		t.Errorf("body = %q", got)
	}
}

func TestStreamBinary(t *testing.T) {
	srv, fp := newTestServer(t, player.KindBinary, nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/live1", nil)
	req.Header.Set("User-Agent", "VLC/3.0")
	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != ContentTypeMPEGTS {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get(player.HeaderMode); got != "binary" {
		t.Errorf("%s = %q", player.HeaderMode, got)
	}
	if got := rec.Body.String(); got != "TSDATA" {
		t.Errorf("body = %q", got)
	}
	if !rec.Flushed {
		t.Error("response was never flushed")
	}

	clients := fp.served()
	if len(clients) != 1 {
		t.Fatalf("Serve called %d times, want 1", len(clients))
	}
	requestID := rec.Header().Get(RequestIDHeader)
	if requestID == "" || clients[0].SessionID != requestID {
		t.Errorf("session id %q does not match request id %q", clients[0].SessionID, requestID)
	}
	if clients[0].UserAgent != "VLC/3.0" {
		t.Errorf("user agent = %q", clients[0].UserAgent)
	}
}

func TestStreamExhaustedAbortsConnection(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, nil)
	srv.options.Player.(*fakePlayer).err = player.ErrRestartsExhausted

	ts := httptest.NewServer(srv.GetMux())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream/live1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatal("body ended cleanly, want truncated stream")
	}
	if string(body) != "TSDATA" {
		t.Errorf("body before abort = %q", body)
	}
}

func TestStopCancelsInFlightStream(t *testing.T) {
	srv, fp := newTestServer(t, player.KindBinary, nil)
	fp.done = make(chan struct{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/stream/live1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	buf := make([]byte, len("TSDATA"))
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took %v with a stream in flight", elapsed)
	}

	select {
	case <-fp.done:
	case <-time.After(time.Second):
		t.Fatal("stream request context was not cancelled")
	}
	select {
	case err := <-serveErr:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestListStreams(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, nil)

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got models.StreamListData
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Count != 3 {
		t.Fatalf("count = %d, want 3", got.Count)
	}

	type summary struct{ ID, Binary, URL string }
	var sums []summary
	for _, s := range got.Streams {
		sums = append(sums, summary{s.VideoID, s.RequiredBinary, s.StreamURL})
	}
	want := []summary{
		{"live1", "yt-dlp", "/stream/live1"},
		{"rec1", "yt-dlp", "/stream/rec1"},
		{"up1", "ffmpeg", "/stream/up1"},
	}
	if diff := cmp.Diff(want, sums); diff != "" {
		t.Errorf("streams mismatch (-want +got):\n%s", diff)
	}
}

func TestGetStreamNotFound(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, nil)

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthReady(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, func(o *Options) {
		o.Store.(*memStore).pingErr = errors.New("disk gone")
	})

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live status = %d, want 200", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, func(o *Options) {
		o.AuthUsername = "admin"
		o.AuthPassword = "secret"
	})

	tests := []struct {
		name   string
		path   string
		auth   string
		status int
	}{
		{"public health", "/api/health/live", "", http.StatusOK},
		{"missing credentials", "/api/streams", "", http.StatusUnauthorized},
		{"wrong password", "/api/streams", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:nope")), http.StatusUnauthorized},
		{"valid credentials", "/api/streams", "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret")), http.StatusOK},
		{"bearer rejected", "/api/streams", "Bearer token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			srv.GetMux().ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, nil)

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/capabilities?refresh=true", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got models.CapabilitiesData
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := models.CapabilitiesData{FFmpeg: true, YtDlp: true, Mode: "auto"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("capabilities mismatch (-want +got):\n%s", diff)
	}
}

type staticProcesses []process.Info

func (s staticProcesses) List() []process.Info { return s }

func TestProcessesEmpty(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, func(o *Options) {
		o.Processes = staticProcesses(nil)
	})

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/processes", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"processes":[]`) {
		t.Errorf("body = %s, want empty array", rec.Body.String())
	}
}

func TestSetLogLevel(t *testing.T) {
	srv, _ := newTestServer(t, player.KindBinary, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"module":"player","level":"debug"}`, http.StatusNoContent},
		{"unknown level", `{"module":"player","level":"loud"}`, http.StatusUnprocessableEntity},
		{"missing module", `{"module":"","level":"info"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/logs/level", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			srv.GetMux().ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestCORSExposesModeHeader(t *testing.T) {
	srv, _ := newTestServer(t, player.KindRedirect, nil)

	rec := httptest.NewRecorder()
	srv.GetMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/rec1", nil))

	if got := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, player.HeaderMode) {
		t.Errorf("Access-Control-Expose-Headers = %q", got)
	}
}
