package monitor

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// gpuQueryTimeout bounds the nvidia-smi call so a wedged driver cannot stall
// the sampling loop.
const gpuQueryTimeout = 2 * time.Second

// gpuPercent returns the current GPU utilization percentage. GPU telemetry is
// best-effort: any failure (no nvidia-smi binary, no GPU, parse error) yields
// 0, which still participates validly in the aggregates.
func gpuPercent() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), gpuQueryTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=utilization.gpu", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0
	}

	// Multi-GPU hosts report one line per device, the first one is used.
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	value, err := strconv.ParseFloat(strings.TrimSpace(line), 64)
	if err != nil || value < 0 {
		return 0
	}

	return value
}
