// Package metrics exposes Prometheus metrics for player sessions and the
// engines they run.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/catatau597/tubewranglerr/internal/events"
)

const namespace = "tubewranglerr"

var (
	decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "player",
		Name:      "decisions_total",
		Help:      "Stream requests by serving decision",
	}, []string{"decision", "mode"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "player",
		Name:      "sessions_active",
		Help:      "Binary sessions currently streaming",
	})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "player",
		Name:      "sessions_total",
		Help:      "Finished binary sessions by end reason",
	}, []string{"reason"})

	bytesServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "player",
		Name:      "bytes_total",
		Help:      "Bytes written to stream clients",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "player",
		Name:      "session_duration_seconds",
		Help:      "Binary session duration",
		Buckets:   []float64{1, 10, 30, 60, 300, 600, 900},
	})

	spawns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "spawns_total",
		Help:      "Engine spawn attempts by result",
	}, []string{"engine", "result"})

	restarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "process",
		Name:      "restarts_total",
		Help:      "Supervisor restart attempts",
	})

	binaryAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "capabilities",
		Name:      "binary_available",
		Help:      "1 when the binary was found on the last probe",
	}, []string{"binary"})
)

// RecordDecision counts a routing decision. Binary decisions open a session.
func RecordDecision(decision, mode string) {
	decisions.WithLabelValues(decision, mode).Inc()
	if decision == "binary" {
		sessionsActive.Inc()
	}
}

// RecordSessionEnd closes a session opened by a binary decision.
func RecordSessionEnd(reason string, bytes int64, d time.Duration) {
	sessionsActive.Dec()
	sessionsEnded.WithLabelValues(reason).Inc()
	bytesServed.Add(float64(bytes))
	sessionDuration.Observe(d.Seconds())
}

// RecordSpawn counts a spawn attempt.
func RecordSpawn(engine string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	spawns.WithLabelValues(engine, result).Inc()
}

// RecordRestart counts a supervisor restart attempt.
func RecordRestart() {
	restarts.Inc()
}

// SetBinaryAvailable publishes a probe result.
func SetBinaryAvailable(binary string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	binaryAvailable.WithLabelValues(binary).Set(v)
}

// Subscribe feeds the metrics from bus events. The returned function
// unsubscribes.
func Subscribe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.StreamDecisionEvent) {
			RecordDecision(e.Decision, e.Mode)
		}),
		bus.Subscribe(func(e events.SessionEndedEvent) {
			RecordSessionEnd(e.Reason, e.Bytes, time.Duration(e.DurationMs)*time.Millisecond)
		}),
		bus.Subscribe(func(e events.ProcessSpawnedEvent) {
			RecordSpawn(e.Engine, e.Success)
		}),
		bus.Subscribe(func(events.ProcessRestartedEvent) {
			RecordRestart()
		}),
		bus.Subscribe(func(e events.CapabilitiesProbedEvent) {
			SetBinaryAvailable("ffmpeg", e.FFmpeg)
			SetBinaryAvailable("streamlink", e.Streamlink)
			SetBinaryAvailable("yt-dlp", e.YtDlp)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// Handler serves every promauto-registered metric.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
