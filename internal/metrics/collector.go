package metrics

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Snapshot holds one collected sample of system metrics.
type Snapshot struct {
	CPUPercent        float64 // System-wide CPU usage (0-100%)
	ProcessCPUPercent float64 // This process, per-core (can exceed 100%)
	ProcessRSSMB      float64
	MemoryUsedGB      float64
	MemoryTotalGB     float64
	MemoryPercent     float64
	TableBytes        int64 // Relation table + stash estimate, if wired
	Timestamp         time.Time
}

// Collector periodically samples and logs system metrics during an
// assembly run. The relation table's own memory estimate is reported
// through TableMemory so long-running passes are observable.
type Collector struct {
	interval time.Duration
	logger   *zap.Logger
	proc     *process.Process

	// TableMemory, when set, is polled on every sample. It must be safe
	// to call from the collector goroutine.
	TableMemory func() int64

	mu   sync.RWMutex
	last *Snapshot
}

// NewCollector creates a collector sampling at the given interval.
func NewCollector(interval time.Duration, logger *zap.Logger) *Collector {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Collector{
		interval: interval,
		logger:   logger,
		proc:     proc,
	}
}

// Start begins periodic collection. Returns when the context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect()

	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("Metrics collection stopped")
			return
		case <-ticker.C:
			c.collect()
		}
	}
}

// Last returns the most recent sample, or nil before the first one.
func (c *Collector) Last() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

func (c *Collector) collect() {
	snap := &Snapshot{Timestamp: time.Now()}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	if c.proc != nil {
		if procCPU, err := c.proc.Percent(0); err == nil {
			snap.ProcessCPUPercent = procCPU
		}
		if info, err := c.proc.MemoryInfo(); err == nil {
			snap.ProcessRSSMB = float64(info.RSS) / (1024 * 1024)
		}
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = vmem.UsedPercent
		snap.MemoryUsedGB = float64(vmem.Used) / (1024 * 1024 * 1024)
		snap.MemoryTotalGB = float64(vmem.Total) / (1024 * 1024 * 1024)
	}
	if c.TableMemory != nil {
		snap.TableBytes = c.TableMemory()
	}

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	fields := []zap.Field{
		zap.Float64("sys_cpu", snap.CPUPercent),
		zap.Float64("proc_cpu", snap.ProcessCPUPercent),
		zap.Float64("proc_rss_mb", snap.ProcessRSSMB),
		zap.Float64("mem_pct", snap.MemoryPercent),
	}
	if c.TableMemory != nil {
		fields = append(fields, zap.Int64("table_bytes", snap.TableBytes))
	}
	c.logger.Info("System metrics", fields...)
}
