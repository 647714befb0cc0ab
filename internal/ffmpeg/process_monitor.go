package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats is a resource usage snapshot of an ffmpeg subprocess.
type ProcessStats struct {
	PID            int32         `json:"pid"`
	CPUPercent     float64       `json:"cpu_percent"`
	MemoryRSSBytes uint64        `json:"memory_rss_bytes"`
	StartedAt      time.Time     `json:"started_at"`
	Runtime        time.Duration `json:"runtime"`
	LastSampled    time.Time     `json:"last_sampled"`
}

// ProcessMonitor periodically samples CPU and memory usage of a subprocess.
// Samples stop when the process exits or Stop is called.
type ProcessMonitor struct {
	proc      *process.Process
	startedAt time.Time
	interval  time.Duration

	mu    sync.RWMutex
	stats ProcessStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for the given PID. Returns an error
// when the process does not exist.
func NewProcessMonitor(pid int32) (*ProcessMonitor, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	return &ProcessMonitor{
		proc:      proc,
		startedAt: time.Now(),
		interval:  time.Second,
		stats:     ProcessStats{PID: pid, StartedAt: time.Now()},
	}, nil
}

// SetInterval changes the sampling interval. Must be called before Start.
func (pm *ProcessMonitor) SetInterval(d time.Duration) {
	pm.interval = d
}

// Start begins sampling in the background.
func (pm *ProcessMonitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	pm.cancel = cancel

	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()

		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()

		pm.sample(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pm.sample(ctx)
			}
		}
	}()
}

// Stop halts sampling and waits for the sampler goroutine to exit.
func (pm *ProcessMonitor) Stop() {
	if pm.cancel != nil {
		pm.cancel()
	}
	pm.wg.Wait()
}

// Stats returns the most recent sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats
}

func (pm *ProcessMonitor) sample(ctx context.Context) {
	now := time.Now()

	cpu, cpuErr := pm.proc.CPUPercentWithContext(ctx)
	mem, memErr := pm.proc.MemoryInfoWithContext(ctx)

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.stats.Runtime = now.Sub(pm.startedAt)
	pm.stats.LastSampled = now
	if cpuErr == nil {
		pm.stats.CPUPercent = cpu
	}
	if memErr == nil && mem != nil {
		pm.stats.MemoryRSSBytes = mem.RSS
	}
}
