// Package alert fires threshold alerts on resource usage and crashes.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/minehold/minehold/internal/config"
	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/metrics"
	"github.com/minehold/minehold/internal/server"
)

// checkInterval is how often resource snapshots are evaluated against the
// thresholds. Crash events alert immediately.
const checkInterval = 15 * time.Second

// Alerter evaluates server snapshots against configured thresholds and
// logs structured alerts with a per-server, per-alert cooldown. Thresholds
// are swappable at runtime for config reload.
type Alerter struct {
	logger    *slog.Logger
	snapshots func() []server.Snapshot

	mu        sync.Mutex
	cfg       config.AlertConfig
	lastFired map[string]time.Time // key: serverID + "/" + alert
}

// NewAlerter creates an alerter reading live state through snapshots (the
// registry provides it).
func NewAlerter(cfg config.AlertConfig, snapshots func() []server.Snapshot, logger *slog.Logger) *Alerter {
	return &Alerter{
		logger:    logger.With("component", "alert"),
		snapshots: snapshots,
		cfg:       cfg,
		lastFired: make(map[string]time.Time),
	}
}

func (a *Alerter) enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Enabled
}

// SetConfig swaps the thresholds, used by config reload.
func (a *Alerter) SetConfig(cfg config.AlertConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg = cfg
}

// Run evaluates thresholds on a ticker and crash events as they arrive,
// until the context is cancelled or the bus closes.
func (a *Alerter) Run(ctx context.Context, sub *event.Subscription) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			if e.Kind == event.KindCrashed && a.enabled() {
				a.fire(e.ServerID, e.ServerID, "crash", e.Message)
			}
		case <-ticker.C:
			a.checkThresholds()
		}
	}
}

func (a *Alerter) checkThresholds() {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	if !cfg.Enabled {
		return
	}

	for _, snap := range a.snapshots() {
		if snap.State != server.StateRunning {
			continue
		}

		if cfg.CPUPercent > 0 && snap.Usage.CPUPercent > cfg.CPUPercent {
			a.fire(snap.ID, snap.Name, "cpu",
				"cpu usage above threshold",
				"cpu_percent", snap.Usage.CPUPercent,
				"threshold", cfg.CPUPercent,
			)
		}
		if cfg.MemoryMB > 0 && snap.Usage.MemoryRSS > uint64(cfg.MemoryMB)*1024*1024 {
			a.fire(snap.ID, snap.Name, "memory",
				"memory usage above threshold",
				"memory_rss", snap.Usage.MemoryRSS,
				"threshold_mb", cfg.MemoryMB,
			)
		}
		if cfg.MinTPS > 0 && snap.Usage.TPS > 0 && snap.Usage.TPS < cfg.MinTPS {
			a.fire(snap.ID, snap.Name, "tps",
				"tps below threshold",
				"tps", snap.Usage.TPS,
				"threshold", cfg.MinTPS,
			)
		}
	}
}

// fire logs one alert unless the same alert for the same server is still
// cooling down.
func (a *Alerter) fire(serverID, serverName, kind, msg string, args ...any) {
	a.mu.Lock()
	cooldown := time.Duration(a.cfg.Cooldown) * time.Second
	key := serverID + "/" + kind
	if last, ok := a.lastFired[key]; ok && time.Since(last) < cooldown {
		a.mu.Unlock()
		return
	}
	a.lastFired[key] = time.Now()
	a.mu.Unlock()

	metrics.AlertsFired.WithLabelValues(serverID, kind).Inc()
	a.logger.Warn("ALERT: "+msg,
		append([]any{"server_id", serverID, "server", serverName, "alert", kind}, args...)...,
	)
}
