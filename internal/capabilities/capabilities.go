// Package capabilities detects which media binaries are installed and
// decides whether a record can be served by spawning one.
package capabilities

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/catatau597/tubewranglerr/internal/streams"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Binary names an external executable the proxy may launch.
type Binary string

// Probed binaries.
const (
	FFmpeg     Binary = "ffmpeg"
	Streamlink Binary = "streamlink"
	YtDlp      Binary = "yt-dlp"
)

// All lists every probed binary.
var All = []Binary{FFmpeg, Streamlink, YtDlp}

const probeTimeout = 5 * time.Second

// Capabilities records which binaries resolved on PATH.
type Capabilities struct {
	FFmpeg     bool `json:"ffmpeg"`
	Streamlink bool `json:"streamlink"`
	YtDlp      bool `json:"yt_dlp"`
}

// Has reports availability of b.
func (c Capabilities) Has(b Binary) bool {
	switch b {
	case FFmpeg:
		return c.FFmpeg
	case Streamlink:
		return c.Streamlink
	case YtDlp:
		return c.YtDlp
	}
	return false
}

// Assume returns a set where exactly bins are available.
func Assume(bins ...Binary) Capabilities {
	var c Capabilities
	for _, b := range bins {
		c.set(b, true)
	}
	return c
}

// ParseBinaries reads a comma-separated list such as "ffmpeg,yt-dlp".
// Unknown names are skipped.
func ParseBinaries(list string) []Binary {
	var out []Binary
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		for _, b := range All {
			if string(b) == name {
				out = append(out, b)
			}
		}
	}
	return out
}

func (c *Capabilities) set(b Binary, ok bool) {
	switch b {
	case FFmpeg:
		c.FFmpeg = ok
	case Streamlink:
		c.Streamlink = ok
	case YtDlp:
		c.YtDlp = ok
	}
}

// LookupFunc reports whether command can be executed.
type LookupFunc func(ctx context.Context, command string) bool

// ShellLookup asks a login shell for `command -v`, so PATH additions made
// in profile scripts are honored.
func ShellLookup(ctx context.Context, command string) bool {
	return exec.CommandContext(ctx, "sh", "-lc", "command -v "+shellQuote(command)).Run() == nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Options configures a Prober.
type Options struct {
	// Lookup defaults to ShellLookup.
	Lookup LookupFunc
	// Commands overrides the executable checked for a binary, e.g. an
	// absolute path to yt-dlp.
	Commands map[Binary]string
	Logger   *slog.Logger
	// OnProbe is called after every fresh population.
	OnProbe func(Capabilities)
}

// Prober memoizes binary availability for the whole process. The memo is
// only replaced by a forced refresh, Set or Reset.
type Prober struct {
	lookup   LookupFunc
	commands map[Binary]string
	logger   *slog.Logger
	onProbe  func(Capabilities)

	group singleflight.Group

	mu     sync.RWMutex
	cached *Capabilities
}

// NewProber creates a prober. Nothing is spawned until the first Probe.
func NewProber(opts Options) *Prober {
	p := &Prober{
		lookup:   opts.Lookup,
		commands: make(map[Binary]string, len(All)),
		logger:   opts.Logger,
		onProbe:  opts.OnProbe,
	}
	if p.lookup == nil {
		p.lookup = ShellLookup
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	for _, b := range All {
		p.commands[b] = string(b)
		if cmd := opts.Commands[b]; cmd != "" {
			p.commands[b] = cmd
		}
	}
	return p
}

// Command returns the executable configured for b.
func (p *Prober) Command(b Binary) string {
	return p.commands[b]
}

// Probe returns the memoized capabilities, populating them on first use or
// when forceRefresh is set. Concurrent callers share one population and
// each binary is checked once per population.
func (p *Prober) Probe(ctx context.Context, forceRefresh bool) Capabilities {
	if !forceRefresh {
		if caps, ok := p.Cached(); ok {
			return caps
		}
	}

	v, _, _ := p.group.Do("probe", func() (any, error) {
		caps := p.populate(ctx)
		p.mu.Lock()
		p.cached = &caps
		p.mu.Unlock()
		return caps, nil
	})
	return v.(Capabilities)
}

func (p *Prober) populate(ctx context.Context) Capabilities {
	// Shared by every waiter, so one caller's cancellation must not
	// turn into a false negative for the others.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
	defer cancel()

	found := make([]bool, len(All))
	var g errgroup.Group
	for i, b := range All {
		g.Go(func() error {
			found[i] = p.lookup(ctx, p.commands[b])
			return nil
		})
	}
	_ = g.Wait()

	var caps Capabilities
	for i, b := range All {
		caps.set(b, found[i])
	}

	p.logger.Info("Binary capabilities probed",
		"ffmpeg", caps.FFmpeg, "streamlink", caps.Streamlink, "yt_dlp", caps.YtDlp)
	if p.onProbe != nil {
		p.onProbe(caps)
	}
	return caps
}

// Cached returns the memo without probing.
func (p *Prober) Cached() (Capabilities, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached == nil {
		return Capabilities{}, false
	}
	return *p.cached, true
}

// Set pins the memo to caps.
func (p *Prober) Set(caps Capabilities) {
	p.mu.Lock()
	p.cached = &caps
	p.mu.Unlock()
}

// Reset clears the memo so the next Probe spawns again.
func (p *Prober) Reset() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}

// CanUseBinaryRoute reports whether the binary rec requires is installed.
func (p *Prober) CanUseBinaryRoute(ctx context.Context, rec streams.Record) bool {
	return p.Probe(ctx, false).Has(RequiredBinary(rec))
}

// RequiredBinary is the binary whose presence gates the binary route.
// Genuinely live and recorded broadcasts need yt-dlp, anything else is
// served by the ffmpeg placeholder. The live check does not follow the
// router's first live engine; see DESIGN.md.
func RequiredBinary(rec streams.Record) Binary {
	if rec.GenuinelyLive() || rec.Status.Recorded() {
		return YtDlp
	}
	return FFmpeg
}
