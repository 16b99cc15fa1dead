package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// SampleTarget is one live process the sampler should measure. Apply writes
// the measurement back into the owning instance's resource snapshot.
type SampleTarget struct {
	ServerID string
	PID      int
	Apply    func(cpuPercent float64, memoryRSS uint64)
}

// Sampler periodically measures cpu and resident memory for every live
// supervised process by pid and publishes the results to instance snapshots
// and Prometheus gauges. Instances never self-sample.
type Sampler struct {
	interval time.Duration
	targets  func() []SampleTarget
	logger   *slog.Logger
}

// NewSampler creates a sampler; targets is called on every tick to get the
// current set of live processes (the registry provides it).
func NewSampler(interval time.Duration, targets func() []SampleTarget, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sampler{
		interval: interval,
		targets:  targets,
		logger:   logger.With("component", "sampler"),
	}
}

// Run samples until the context is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	for _, target := range s.targets() {
		cpu, rss, err := CollectProcessUsage(target.PID)
		if err != nil {
			// The process may have exited between listing and sampling.
			s.logger.Debug("Failed to sample process",
				"server_id", target.ServerID,
				"pid", target.PID,
				"error", err,
			)
			continue
		}

		target.Apply(cpu, rss)
		ServerCPUPercent.WithLabelValues(target.ServerID).Set(cpu)
		ServerMemoryBytes.WithLabelValues(target.ServerID).Set(float64(rss))
	}
}

// CollectProcessUsage measures cpu percent and resident memory for a pid.
func CollectProcessUsage(pid int) (cpuPercent float64, memoryRSS uint64, err error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0, 0, err
	}

	if cpu, err := proc.CPUPercent(); err == nil {
		cpuPercent = cpu
	}
	if memInfo, err := proc.MemoryInfo(); err == nil {
		memoryRSS = memInfo.RSS
	}

	return cpuPercent, memoryRSS, nil
}
