package monitor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
)

// SystemMetricsProvider supplies a host resource snapshot on demand.
// Implementations must not block for a measurement window; the snapshot is
// taken right before a script is spawned.
type SystemMetricsProvider interface {
	Snapshot(ctx context.Context) (*model.HostSnapshot, error)
}

// NopProvider is used when metrics collection is disabled
type NopProvider struct{}

// Snapshot implements SystemMetricsProvider
func (NopProvider) Snapshot(context.Context) (*model.HostSnapshot, error) {
	return nil, nil
}

// MetricsCollector samples host metrics with gopsutil
type MetricsCollector struct {
	logger         *zap.Logger
	sampleInterval time.Duration
	diskPath       string

	mu     sync.RWMutex
	latest *model.HostSnapshot
	stop   chan struct{}
	once   sync.Once
}

// NewMetricsCollector creates a new metrics collector. sampleInterval bounds
// the CPU measurement window of each background sample.
func NewMetricsCollector(sampleInterval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:         logger.Named("metrics-collector"),
		sampleInterval: sampleInterval,
		diskPath:       systemDrive(),
		stop:           make(chan struct{}),
	}
}

func systemDrive() string {
	if runtime.GOOS == "windows" {
		if d := os.Getenv("SystemDrive"); d != "" {
			return d + `\`
		}
		return `C:\`
	}
	return "/"
}

// Start refreshes the cached snapshot every interval until ctx is done or
// Stop is called
func (c *MetricsCollector) Start(ctx context.Context, interval time.Duration) {
	c.logger.Info("Starting metrics collector", zap.Duration("interval", interval))
	go c.collectLoop(ctx, interval)
}

// Stop stops the background loop
func (c *MetricsCollector) Stop() {
	c.once.Do(func() {
		c.logger.Info("Stopping metrics collector")
		close(c.stop)
	})
}

func (c *MetricsCollector) collectLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.refresh(ctx)
		}
	}
}

func (c *MetricsCollector) refresh(ctx context.Context) {
	snap, err := c.collect(ctx, c.sampleInterval)
	if err != nil {
		c.logger.Error("Failed to collect metrics", zap.Error(err))
		return
	}
	c.mu.Lock()
	c.latest = snap
	c.mu.Unlock()
}

// Latest returns the last background sample, nil before the first tick
func (c *MetricsCollector) Latest() *model.HostSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return nil
	}
	snap := *c.latest
	return &snap
}

// Snapshot implements SystemMetricsProvider. It returns the background sample
// when one exists. Otherwise it samples without waiting, so CPU usage is
// measured since the previous call.
func (c *MetricsCollector) Snapshot(ctx context.Context) (*model.HostSnapshot, error) {
	if snap := c.Latest(); snap != nil {
		return snap, nil
	}
	return c.collect(ctx, 0)
}

// collect gathers CPU, memory, disk and host information, measuring CPU over
// window. Individual probe failures are logged and leave the corresponding
// field zero.
func (c *MetricsCollector) collect(ctx context.Context, window time.Duration) (*model.HostSnapshot, error) {
	snap := &model.HostSnapshot{
		OS:          runtime.GOOS,
		CollectedAt: time.Now(),
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to get CPU usage: %w", ctx.Err())
		}
		c.logger.Warn("Failed to get CPU usage", zap.Error(err))
	} else if len(cpuPercent) > 0 {
		snap.CPUUsage = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		c.logger.Warn("Failed to get memory usage", zap.Error(err))
	} else {
		snap.MemoryUsage = memInfo.UsedPercent
	}

	usage, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		c.logger.Warn("Failed to get disk usage", zap.String("path", c.diskPath), zap.Error(err))
	} else {
		snap.DiskUsage = usage.UsedPercent
	}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		c.logger.Warn("Failed to get host info", zap.Error(err))
	} else {
		snap.Hostname = info.Hostname
		snap.Platform = info.Platform
		snap.Uptime = info.Uptime
		if info.OS != "" {
			snap.OS = info.OS
		}
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", snap.CPUUsage),
		zap.Float64("memory_usage", snap.MemoryUsage),
		zap.Float64("disk_usage", snap.DiskUsage))

	return snap, nil
}
