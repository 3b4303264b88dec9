// Package monitor samples system resource utilization in the background
// while a detection run is in progress.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/pdetect/pdetect-go/internal/logging"
)

// Usage holds the aggregated resource utilization of one monitoring window.
// All values are percentages. A window with no samples aggregates to zero.
type Usage struct {
	AvgCPU    float64
	MaxCPU    float64
	AvgMemory float64
	MaxMemory float64
	AvgGPU    float64
	MaxGPU    float64
}

// ResourceMonitor periodically samples CPU, memory and GPU utilization into
// mutex guarded buffers. The lifecycle is idle → sampling → idle and the
// monitor is restartable.
type ResourceMonitor struct {
	interval time.Duration

	mu      sync.Mutex
	cpuPct  []float64
	memPct  []float64
	gpuPct  []float64
	running bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *slog.Logger
}

// NewResourceMonitor creates a monitor with the given sampling interval.
// Non-positive intervals fall back to 500ms.
func NewResourceMonitor(interval time.Duration) *ResourceMonitor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ResourceMonitor{
		interval: interval,
		log:      logging.ForService("monitor"),
	}
}

// Start clears prior sample buffers and launches the background sampling
// loop. Calling Start on a monitor that is already sampling is a no-op.
func (m *ResourceMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.cpuPct = m.cpuPct[:0]
	m.memPct = m.memPct[:0]
	m.gpuPct = m.gpuPct[:0]
	m.running = true
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	m.wg.Add(1)
	go m.sampleLoop(ctx)

	m.log.Debug("resource monitoring started", "interval", m.interval)
}

// Stop signals the sampling loop to exit and blocks until it has terminated.
// No sample is appended after Stop returns.
func (m *ResourceMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()

	m.log.Debug("resource monitoring stopped")
}

// Sampling reports whether the background loop is active.
func (m *ResourceMonitor) Sampling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Aggregate computes the average and maximum utilization over the buffered
// samples. With no samples all aggregates are zero, never an error.
func (m *ResourceMonitor) Aggregate() Usage {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Usage{
		AvgCPU:    mean(m.cpuPct),
		MaxCPU:    maxOf(m.cpuPct),
		AvgMemory: mean(m.memPct),
		MaxMemory: maxOf(m.memPct),
		AvgGPU:    mean(m.gpuPct),
		MaxGPU:    maxOf(m.gpuPct),
	}
}

// sampleLoop appends one sample per interval until the context is cancelled.
func (m *ResourceMonitor) sampleLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.takeSample()
		case <-ctx.Done():
			return
		}
	}
}

// takeSample reads current CPU, memory and GPU utilization and appends one
// value to each buffer. Read failures record a zero sample so the buffers
// stay aligned.
func (m *ResourceMonitor) takeSample() {
	cpuVal := 0.0
	// Zero interval gives an instant, non-blocking reading.
	if pct, err := cpu.Percent(0, false); err != nil {
		m.log.Warn("failed to read CPU usage", "error", err)
	} else if len(pct) > 0 {
		cpuVal = pct[0]
	}

	memVal := 0.0
	if vm, err := mem.VirtualMemory(); err != nil {
		m.log.Warn("failed to read memory usage", "error", err)
	} else {
		memVal = vm.UsedPercent
	}

	gpuVal := gpuPercent()

	m.mu.Lock()
	m.cpuPct = append(m.cpuPct, cpuVal)
	m.memPct = append(m.memPct, memVal)
	m.gpuPct = append(m.gpuPct, gpuVal)
	m.mu.Unlock()
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	maxV := values[0]
	for _, v := range values[1:] {
		if v > maxV {
			maxV = v
		}
	}
	return maxV
}
