package capabilities

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/catatau597/tubewranglerr/internal/streams"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingLookup struct {
	mu      sync.Mutex
	calls   map[string]int
	present map[string]bool
	delay   time.Duration
}

func newCountingLookup(present ...string) *countingLookup {
	c := &countingLookup{calls: map[string]int{}, present: map[string]bool{}}
	for _, p := range present {
		c.present[p] = true
	}
	return c
}

func (c *countingLookup) lookup(_ context.Context, command string) bool {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[command]++
	return c.present[command]
}

func (c *countingLookup) count(command string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[command]
}

func TestProbeMemoizes(t *testing.T) {
	lk := newCountingLookup("ffmpeg", "yt-dlp")
	var probes atomic.Int32
	p := NewProber(Options{Lookup: lk.lookup, Logger: testLogger(), OnProbe: func(Capabilities) { probes.Add(1) }})

	first := p.Probe(context.Background(), false)
	second := p.Probe(context.Background(), false)

	want := Capabilities{FFmpeg: true, YtDlp: true}
	if first != want || second != want {
		t.Errorf("got %+v / %+v, want %+v", first, second, want)
	}
	for _, b := range All {
		if n := lk.count(string(b)); n != 1 {
			t.Errorf("%s probed %d times, want 1", b, n)
		}
	}
	if probes.Load() != 1 {
		t.Errorf("OnProbe called %d times, want 1", probes.Load())
	}
}

func TestProbeForceRefresh(t *testing.T) {
	lk := newCountingLookup()
	p := NewProber(Options{Lookup: lk.lookup, Logger: testLogger()})

	if p.Probe(context.Background(), false).Streamlink {
		t.Fatal("streamlink should be absent")
	}

	lk.mu.Lock()
	lk.present["streamlink"] = true
	lk.mu.Unlock()

	if p.Probe(context.Background(), false).Streamlink {
		t.Error("memo must survive a non-forced probe")
	}
	if !p.Probe(context.Background(), true).Streamlink {
		t.Error("forced refresh should see the new binary")
	}
	if n := lk.count("streamlink"); n != 2 {
		t.Errorf("streamlink probed %d times, want 2", n)
	}
}

func TestProbeConcurrentFirstCallersShare(t *testing.T) {
	lk := newCountingLookup("ffmpeg")
	lk.delay = 50 * time.Millisecond
	p := NewProber(Options{Lookup: lk.lookup, Logger: testLogger()})

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !p.Probe(context.Background(), false).FFmpeg {
				t.Error("ffmpeg should be present")
			}
		}()
	}
	wg.Wait()

	if n := lk.count("ffmpeg"); n != 1 {
		t.Errorf("ffmpeg probed %d times, want 1", n)
	}
}

func TestProbeIgnoresCallerCancellation(t *testing.T) {
	var sawCanceled atomic.Bool
	lookup := func(ctx context.Context, _ string) bool {
		if ctx.Err() != nil {
			sawCanceled.Store(true)
		}
		return true
	}
	p := NewProber(Options{Lookup: lookup, Logger: testLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !p.Probe(ctx, false).YtDlp {
		t.Error("canceled caller should still get a real result")
	}
	if sawCanceled.Load() {
		t.Error("lookup received a canceled context")
	}
}

func TestCommandOverride(t *testing.T) {
	lk := newCountingLookup("/opt/yt-dlp/bin/yt-dlp")
	p := NewProber(Options{
		Lookup:   lk.lookup,
		Logger:   testLogger(),
		Commands: map[Binary]string{YtDlp: "/opt/yt-dlp/bin/yt-dlp"},
	})
	if !p.Probe(context.Background(), false).YtDlp {
		t.Error("override path should be probed")
	}
	if p.Command(FFmpeg) != "ffmpeg" {
		t.Errorf("ffmpeg command = %q", p.Command(FFmpeg))
	}
}

func TestSetAndReset(t *testing.T) {
	lk := newCountingLookup()
	p := NewProber(Options{Lookup: lk.lookup, Logger: testLogger()})

	p.Set(Capabilities{FFmpeg: true, Streamlink: true, YtDlp: true})
	if !p.Probe(context.Background(), false).Streamlink {
		t.Error("Set should pin the memo")
	}
	if lk.count("ffmpeg") != 0 {
		t.Error("Set must avoid spawning")
	}

	p.Reset()
	if _, ok := p.Cached(); ok {
		t.Error("Reset should clear the memo")
	}
	if p.Probe(context.Background(), false).FFmpeg {
		t.Error("after Reset the lookup result should be used")
	}
}

func TestRequiredBinary(t *testing.T) {
	started := time.Now().Add(-time.Minute)
	ended := time.Now()

	tests := []struct {
		name string
		rec  streams.Record
		want Binary
	}{
		{"genuinely live", streams.Record{Status: streams.StatusLive, ActualStart: &started}, YtDlp},
		{"live without start", streams.Record{Status: streams.StatusLive}, FFmpeg},
		{"live ended", streams.Record{Status: streams.StatusLive, ActualStart: &started, ActualEnd: &ended}, FFmpeg},
		{"upcoming", streams.Record{Status: streams.StatusUpcoming}, FFmpeg},
		{"none", streams.Record{Status: streams.StatusNone}, YtDlp},
		{"vod", streams.Record{Status: streams.StatusVOD}, YtDlp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RequiredBinary(tt.rec); got != tt.want {
				t.Errorf("RequiredBinary = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCanUseBinaryRoute(t *testing.T) {
	p := NewProber(Options{Logger: testLogger()})
	p.Set(Capabilities{FFmpeg: true})

	if !p.CanUseBinaryRoute(context.Background(), streams.Record{Status: streams.StatusUpcoming}) {
		t.Error("upcoming needs only ffmpeg")
	}
	if p.CanUseBinaryRoute(context.Background(), streams.Record{Status: streams.StatusVOD}) {
		t.Error("vod needs yt-dlp")
	}
}

func TestShellLookup(t *testing.T) {
	if !ShellLookup(context.Background(), "sh") {
		t.Error("sh should resolve")
	}
	if ShellLookup(context.Background(), "definitely-not-a-binary-7f3a") {
		t.Error("bogus command resolved")
	}
	if ShellLookup(context.Background(), "sh'; exit 0; '") {
		t.Error("quoted input must not be interpreted by the shell")
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":          ModeAuto,
		"auto":      ModeAuto,
		"BINARY":    ModeBinary,
		" redirect": ModeRedirect,
		"stream":    ModeAuto,
	}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAssumeParsedBinaries(t *testing.T) {
	got := Assume(ParseBinaries(" yt-dlp, bogus ,ffmpeg")...)
	want := Capabilities{FFmpeg: true, YtDlp: true}
	if got != want {
		t.Errorf("Assume = %+v, want %+v", got, want)
	}
	if len(ParseBinaries("")) != 0 {
		t.Error("empty list should yield no binaries")
	}
}
