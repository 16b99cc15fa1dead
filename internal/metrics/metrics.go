// Package metrics exposes Prometheus instrumentation for the supervisor and
// the per-pid resource sampler that feeds instance snapshots.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Server lifecycle metrics
	ServerUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minehold_server_up",
			Help: "Server status (1=running, 0=not running)",
		},
		[]string{"server"},
	)

	ServerRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minehold_server_restarts_total",
			Help: "Total number of server restarts",
		},
		[]string{"server", "reason"}, // reason: crash, manual
	)

	ServerCrashes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minehold_server_crashes_total",
			Help: "Total number of unexpected server exits",
		},
		[]string{"server"},
	)

	ServerStartTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minehold_server_start_time_seconds",
			Help: "Unix timestamp when the server process started",
		},
		[]string{"server"},
	)

	// Resource metrics (written by the sampler)
	ServerCPUPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minehold_server_cpu_percent",
			Help: "Server process CPU usage percent",
		},
		[]string{"server"},
	)

	ServerMemoryBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minehold_server_memory_rss_bytes",
			Help: "Server process resident memory in bytes",
		},
		[]string{"server"},
	)

	ServerTPS = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minehold_server_tps",
			Help: "Server simulated ticks per second",
		},
		[]string{"server"},
	)

	ServerPlayers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minehold_server_players",
			Help: "Currently connected players",
		},
		[]string{"server"},
	)

	// Event surface metrics
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minehold_events_published_total",
			Help: "Events published on the fan-out bus",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minehold_events_dropped_total",
			Help: "Events dropped because a subscriber queue was full",
		},
		[]string{"subscriber"},
	)

	// Consumer metrics
	RelayDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minehold_relay_deliveries_total",
			Help: "Chat relay webhook deliveries",
		},
		[]string{"status"}, // status: ok, error
	)

	AlertsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minehold_alerts_fired_total",
			Help: "Threshold alerts fired",
		},
		[]string{"server", "alert"}, // alert: cpu, memory, tps, crash
	)

	// Registry metrics
	RegistryServers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "minehold_registry_servers",
			Help: "Number of registered server definitions",
		},
	)

	ShutdownDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "minehold_shutdown_duration_seconds",
			Help:    "Time taken by coordinated registry shutdown",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
	)
)

// RemoveServer drops all per-server series, called when a definition is
// deleted so dead label sets do not linger.
func RemoveServer(server string) {
	ServerUp.DeleteLabelValues(server)
	ServerStartTime.DeleteLabelValues(server)
	ServerCPUPercent.DeleteLabelValues(server)
	ServerMemoryBytes.DeleteLabelValues(server)
	ServerTPS.DeleteLabelValues(server)
	ServerPlayers.DeleteLabelValues(server)
}
