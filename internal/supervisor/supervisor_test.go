package supervisor

import (
	"errors"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/catatau597/tubewranglerr/internal/process"
	"github.com/catatau597/tubewranglerr/internal/process/processtest"
)

type recorder struct {
	mu        sync.Mutex
	made      []*processtest.Fake
	created   chan *processtest.Fake
	attempts  []int
	backoffs  []time.Duration
	exhausted int
	last      process.Handle
}

func newRecorder() *recorder {
	return &recorder{created: make(chan *processtest.Fake, 16)}
}

func (r *recorder) factory() process.Handle {
	f := processtest.New("yt-dlp")
	r.mu.Lock()
	r.made = append(r.made, f)
	r.mu.Unlock()
	r.created <- f
	return f
}

func (r *recorder) options(maxRestarts int) Options {
	return Options{
		MonitorInterval: time.Hour,
		MaxRestarts:     maxRestarts,
		BaseBackoff:     time.Millisecond,
		OnRestart: func(attempt int, backoff time.Duration) {
			r.mu.Lock()
			r.attempts = append(r.attempts, attempt)
			r.backoffs = append(r.backoffs, backoff)
			r.mu.Unlock()
		},
		OnExhausted: func(last process.Handle) {
			r.mu.Lock()
			r.exhausted++
			r.last = last
			r.mu.Unlock()
		},
	}
}

func (r *recorder) exhaustedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exhausted
}

func (r *recorder) next(t *testing.T) *processtest.Fake {
	t.Helper()
	select {
	case f := <-r.created:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a replacement")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBackoff(t *testing.T) {
	base := 750 * time.Millisecond
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 750 * time.Millisecond},
		{2, 1500 * time.Millisecond},
		{3, 3 * time.Second},
		{4, 6 * time.Second},
		{0, 750 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := Backoff(base, tt.attempt); got != tt.want {
			t.Errorf("Backoff(%v, %d) = %v, want %v", base, tt.attempt, got, tt.want)
		}
	}
}

func TestRestartsUntilExhausted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const maxRestarts = 3
	rec := newRecorder()
	s := New(rec.options(maxRestarts))

	var seen []uint64
	var seenMu sync.Mutex
	initial := processtest.New("streamlink")
	err := s.Attach("abc", initial, rec.factory, func(h process.Handle) {
		seenMu.Lock()
		seen = append(seen, h.ID())
		seenMu.Unlock()
	})
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	// N+1 consecutive abnormal exits.
	initial.Exit(1)
	for i := 0; i < maxRestarts; i++ {
		f := rec.next(t)
		waitFor(t, "replacement installed", func() bool { return s.IsCurrent(f) })
		f.Exit(1)
	}
	waitFor(t, "exhaustion", func() bool { return rec.exhaustedCount() == 1 })

	s.Stop()
	s.Wait()

	if got := s.Restarts(); got != maxRestarts {
		t.Errorf("Restarts() = %d, want %d", got, maxRestarts)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.made) != maxRestarts {
		t.Errorf("factory called %d times, want %d", len(rec.made), maxRestarts)
	}
	if !slices.Equal(rec.attempts, []int{1, 2, 3}) {
		t.Errorf("attempts = %v", rec.attempts)
	}
	if !slices.Equal(rec.backoffs, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}) {
		t.Errorf("backoffs = %v", rec.backoffs)
	}
	if rec.last.ID() != rec.made[maxRestarts-1].ID() {
		t.Error("OnExhausted did not receive the last child")
	}
	seenMu.Lock()
	defer seenMu.Unlock()
	if len(seen) != maxRestarts+1 || seen[0] != initial.ID() {
		t.Errorf("onProcess saw %v", seen)
	}
}

func TestExhaustedStateSticks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	s := New(rec.options(-1))
	initial := processtest.New("ffmpeg")
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}
	initial.Exit(2)
	waitFor(t, "exhaustion", func() bool { return s.State() == StateExhausted })

	s.Fail(initial, errors.New("late"))
	s.Stop()
	s.Wait()

	if n := rec.exhaustedCount(); n != 1 {
		t.Errorf("OnExhausted called %d times, want 1", n)
	}
	if len(rec.made) != 0 {
		t.Errorf("factory called %d times, want 0", len(rec.made))
	}
}

func TestSimultaneousExitAndErrorRestartOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	opts := rec.options(3)
	opts.BaseBackoff = 20 * time.Millisecond
	s := New(opts)

	initial := processtest.New("streamlink")
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); initial.Exit(1) }()
	go func() { defer wg.Done(); s.Fail(initial, errors.New("stdout broken")) }()
	wg.Wait()

	f := rec.next(t)
	waitFor(t, "replacement installed", func() bool { return s.IsCurrent(f) })
	// Late events for the superseded child are dropped.
	s.Fail(initial, errors.New("stale"))
	time.Sleep(50 * time.Millisecond)

	s.Stop()
	s.Wait()

	if got := s.Restarts(); got != 1 {
		t.Errorf("Restarts() = %d, want 1", got)
	}
	if len(rec.made) != 1 {
		t.Errorf("factory called %d times, want 1", len(rec.made))
	}
}

func TestCleanExitIsNotRestarted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	opts := rec.options(3)
	opts.MonitorInterval = 5 * time.Millisecond
	s := New(opts)

	initial := processtest.New("yt-dlp")
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}
	initial.Exit(0)
	time.Sleep(30 * time.Millisecond)

	s.Stop()
	s.Wait()

	if got := s.Restarts(); got != 0 {
		t.Errorf("Restarts() = %d, want 0", got)
	}
}

func TestStopInterruptsBackoff(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	opts := rec.options(3)
	opts.BaseBackoff = time.Hour
	s := New(opts)

	initial := processtest.New("streamlink")
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}
	initial.Exit(1)
	waitFor(t, "restarting", func() bool { return s.State() == StateRestarting })

	s.Stop()
	s.Stop()
	s.Wait()

	if !s.Stopped() || s.State() != StateStopped {
		t.Errorf("state = %s, stopped = %v", s.State(), s.Stopped())
	}
	if len(rec.made) != 0 {
		t.Errorf("factory called %d times after Stop", len(rec.made))
	}
}

func TestNoRestartAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	s := New(rec.options(3))
	initial := processtest.New("streamlink")
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}

	s.Stop()
	initial.Exit(1)
	s.Fail(initial, errors.New("late"))
	s.Wait()

	if got := s.Restarts(); got != 0 {
		t.Errorf("Restarts() = %d, want 0", got)
	}
	if len(rec.made) != 0 {
		t.Errorf("factory called %d times after Stop", len(rec.made))
	}
}

// silentHandle never reports exit through Done, so only the poll can
// notice it died.
type silentHandle struct {
	*processtest.Fake
	never chan struct{}
}

func (h silentHandle) Done() <-chan struct{} { return h.never }

func TestPollDetectsMissedDeath(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	opts := rec.options(3)
	opts.MonitorInterval = 5 * time.Millisecond
	s := New(opts)

	fake := processtest.New("streamlink")
	initial := silentHandle{Fake: fake, never: make(chan struct{})}
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}
	fake.Exit(1)

	f := rec.next(t)
	waitFor(t, "replacement installed", func() bool { return s.IsCurrent(f) })

	s.Stop()
	s.Wait()
	if got := s.Restarts(); got != 1 {
		t.Errorf("Restarts() = %d, want 1", got)
	}
}

func TestSpawnFailureIsRestarted(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	s := New(rec.options(3))

	initial := processtest.Failed("streamlink", errors.New("executable file not found"))
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}

	f := rec.next(t)
	waitFor(t, "replacement installed", func() bool { return s.IsCurrent(f) })
	s.Stop()
	s.Wait()

	if got := s.Restarts(); got != 1 {
		t.Errorf("Restarts() = %d, want 1", got)
	}
}

func TestSupersededChildIsKilled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	s := New(rec.options(3))

	initial := processtest.New("streamlink").IgnoreSignals()
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}
	s.Fail(initial, errors.New("stdout closed"))

	f := rec.next(t)
	waitFor(t, "replacement installed", func() bool { return s.IsCurrent(f) })
	s.Stop()
	s.Wait()

	if !slices.Contains(initial.Signals(), syscall.SIGKILL) {
		t.Errorf("superseded child got %v, want SIGKILL", initial.Signals())
	}
}

func TestAttachErrors(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	s := New(rec.options(3))
	if err := s.Attach("a", processtest.New("ffmpeg"), rec.factory, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Attach("a", processtest.New("ffmpeg"), rec.factory, nil); !errors.Is(err, ErrAlreadyAttached) {
		t.Errorf("second Attach = %v, want ErrAlreadyAttached", err)
	}
	s.Stop()
	s.Wait()

	stopped := New(rec.options(3))
	stopped.Stop()
	if err := stopped.Attach("b", processtest.New("ffmpeg"), rec.factory, nil); !errors.Is(err, ErrStopped) {
		t.Errorf("Attach after Stop = %v, want ErrStopped", err)
	}
}

func TestZeroMaxRestartsTakesDefault(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	s := New(rec.options(0))
	initial := processtest.New("ffmpeg")
	if err := s.Attach("abc", initial, rec.factory, nil); err != nil {
		t.Fatal(err)
	}
	initial.Exit(1)
	f := rec.next(t)
	waitFor(t, "replacement installed", func() bool { return s.IsCurrent(f) })

	s.Stop()
	s.Wait()

	if n := rec.exhaustedCount(); n != 0 {
		t.Errorf("OnExhausted called %d times after the first exit", n)
	}
	if got := s.Restarts(); got != 1 {
		t.Errorf("Restarts() = %d, want 1", got)
	}
}

func TestNegativeMaxRestartsDisablesRestarts(t *testing.T) {
	s := New(Options{MaxRestarts: -1})
	if s.opts.MaxRestarts != 0 {
		t.Errorf("MaxRestarts = %d, want 0", s.opts.MaxRestarts)
	}
}

func TestDefaults(t *testing.T) {
	s := New(Options{})
	if s.opts.MonitorInterval != DefaultMonitorInterval || s.opts.MaxRestarts != DefaultMaxRestarts || s.opts.BaseBackoff != DefaultBaseBackoff {
		t.Errorf("defaults not applied: %+v", s.opts)
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %s, want IDLE", s.State())
	}
}
