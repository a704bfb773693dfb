// Package metrics provides Prometheus metrics for the supervised backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pyhost"

var (
	backendUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "up",
		Help:      "Whether a backend process is tracked as running",
	})

	backendPort = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "port",
		Help:      "Port announced by the backend, 0 when unknown",
	})

	backendStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "starts_total",
		Help:      "Backend start attempts by result",
	}, []string{"result"})

	backendStops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "stops_total",
		Help:      "Backend stops performed by the supervisor",
	})

	backendStopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "stop_duration_seconds",
		Help:      "Time from termination request until the backend was reaped",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	backendExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backend",
		Name:      "exits_total",
		Help:      "Reaped backend processes by exit class",
	}, []string{"class"})
)

// RecordStart counts a start attempt. result is "ok" or an error kind.
func RecordStart(result string) {
	backendStarts.WithLabelValues(result).Inc()
	if result == "ok" {
		backendUp.Set(1)
	}
}

// RecordStop counts a completed stop and how long it took.
func RecordStop(elapsed time.Duration) {
	backendStops.Inc()
	backendStopDuration.Observe(elapsed.Seconds())
	backendUp.Set(0)
}

// RecordExit counts a reaped process.
func RecordExit(exitCode int) {
	backendExits.WithLabelValues(ExitClass(exitCode)).Inc()
}

// SetBackendDown clears the up gauge after an unexpected exit.
func SetBackendDown() {
	backendUp.Set(0)
}

// SetBackendPort records the announced port.
func SetBackendPort(port int) {
	backendPort.Set(float64(port))
}

// ExitClass buckets an exit code: "clean", "signal" (-1) or "error".
func ExitClass(exitCode int) string {
	switch {
	case exitCode == 0:
		return "clean"
	case exitCode < 0:
		return "signal"
	default:
		return "error"
	}
}

// Handler returns the Prometheus metrics HTTP handler.
// This collects all promauto-registered metrics automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}
