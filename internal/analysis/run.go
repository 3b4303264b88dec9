// Package analysis orchestrates a detection run: corpus discovery, the
// per-image detection loop, resource monitoring and result persistence.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pdetect/pdetect-go/internal/conf"
	"github.com/pdetect/pdetect-go/internal/dataload"
	"github.com/pdetect/pdetect-go/internal/datastore"
	"github.com/pdetect/pdetect-go/internal/detector"
	"github.com/pdetect/pdetect-go/internal/monitor"
	"github.com/pdetect/pdetect-go/internal/results"
)

// ImageSource yields the classified images of one run.
type ImageSource interface {
	Discover() ([]dataload.ClassifiedImage, error)
}

// Runner executes detection runs.
type Runner struct {
	settings *conf.Settings
	detector detector.Detector
	source   ImageSource
	monitor  *monitor.ResourceMonitor
	recorder *results.Recorder
	log      *slog.Logger
}

// NewRunner assembles a runner from its collaborators.
func NewRunner(settings *conf.Settings, det detector.Detector, source ImageSource, mon *monitor.ResourceMonitor, rec *results.Recorder, log *slog.Logger) *Runner {
	return &Runner{
		settings: settings,
		detector: det,
		source:   source,
		monitor:  mon,
		recorder: rec,
		log:      log,
	}
}

// Run executes one detection run over the discovered corpus and returns the
// run id. A failing image never aborts the run: the failure is recorded as a
// result row and processing continues. Context cancellation stops the run at
// the next image boundary and marks it cancelled. The run record is finalized
// and the monitor stopped on every exit path.
func (r *Runner) Run(ctx context.Context) (string, error) {
	runID := uuid.New().String()
	info := r.detector.Describe()
	startTime := time.Now()

	run := &datastore.Run{
		RunID:        runID,
		ModelName:    info.Name,
		ModelVersion: info.Version,
		StartTime:    startTime,
		Status:       datastore.StatusRunning,
		ConfigJSON:   r.configJSON(info),
	}
	r.recorder.StartRun(run)

	r.log.Info("run started", "run_id", runID, "model", info.Name)

	images, err := r.source.Discover()
	if err != nil {
		r.finalize(run, startTime, datastore.StatusFailed, fmt.Sprintf("image discovery failed: %v", err), runStats{})
		return runID, fmt.Errorf("image discovery failed: %w", err)
	}

	if max := r.settings.Input.MaxImages; max > 0 && len(images) > max {
		images = images[:max]
	}

	if len(images) == 0 {
		r.log.Warn("no images found, completing run with zero counts", "run_id", runID)
		r.finalize(run, startTime, datastore.StatusCompleted, "", runStats{})
		return runID, nil
	}

	r.monitor.Start()

	stats := runStats{}
	status := datastore.StatusCompleted
	pause := time.Duration(r.settings.PauseMs) * time.Millisecond

	for i, img := range images {
		if ctx.Err() != nil {
			status = datastore.StatusCancelled
			r.log.Info("run cancelled", "run_id", runID, "processed", stats.processed)
			break
		}

		detectStart := time.Now()
		outcome := r.safeDetect(ctx, img.Path)
		elapsed := time.Since(detectStart).Seconds()

		result := results.BuildResult(runID, img, outcome, elapsed)
		r.recorder.RecordResult(result)

		stats.processed++
		stats.totalTime += elapsed
		if outcome.Err == "" {
			stats.successful++
		} else {
			stats.failed++
			r.log.Warn("detection failed", "image", img.Path, "error", outcome.Err)
		}

		if r.settings.Debug {
			r.log.Debug("image processed",
				"image", img.Path,
				"classification", img.Classification,
				"persons", outcome.PersonsDetected,
				"seconds", elapsed,
			)
		}

		if pause > 0 && i < len(images)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(pause):
			}
		}
	}

	r.finalize(run, startTime, status, "", stats)

	r.log.Info("run finished",
		"run_id", runID,
		"status", status,
		"processed", stats.processed,
		"successful", stats.successful,
		"failed", stats.failed,
	)
	return runID, nil
}

type runStats struct {
	processed  int
	successful int
	failed     int
	totalTime  float64
}

// safeDetect invokes the detector behind a panic boundary so a misbehaving
// model degrades to a failed result row.
func (r *Runner) safeDetect(ctx context.Context, imagePath string) (outcome detector.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome = detector.ErrorOutcome(fmt.Sprintf("detector panic: %v", rec), nil)
		}
	}()
	return r.detector.Detect(ctx, imagePath)
}

// finalize stops the monitor, folds the resource aggregates and counters into
// the run record and writes it to the sinks. Runs unconditionally on every
// exit path of Run.
func (r *Runner) finalize(run *datastore.Run, startTime time.Time, status, errorMessage string, stats runStats) {
	r.monitor.Stop()
	usage := r.monitor.Aggregate()

	endTime := time.Now()
	run.EndTime = &endTime
	run.Status = status
	run.ErrorMessage = errorMessage

	run.TotalImages = stats.processed
	run.SuccessfulDetections = stats.successful
	run.FailedDetections = stats.failed
	run.TotalProcessingTime = stats.totalTime
	if stats.processed > 0 {
		run.AvgProcessingTime = stats.totalTime / float64(stats.processed)
	}

	run.AvgCPUUsage = usage.AvgCPU
	run.MaxCPUUsage = usage.MaxCPU
	run.AvgMemoryUsage = usage.AvgMemory
	run.MaxMemoryUsage = usage.MaxMemory
	run.AvgGPUUsage = usage.AvgGPU
	run.MaxGPUUsage = usage.MaxGPU

	r.recorder.CompleteRun(run)
}

// configJSON serializes the run configuration together with the detector's
// model metadata for the run record.
func (r *Runner) configJSON(info detector.ModelInfo) string {
	cfg := map[string]any{
		"run_name":             r.settings.RunName,
		"job_id":               r.settings.JobID,
		"input_path":           r.settings.Input.Path,
		"max_depth":            r.settings.Input.MaxDepth,
		"max_images":           r.settings.Input.MaxImages,
		"randomize":            r.settings.Input.Randomize,
		"classifications":      r.settings.Input.Classifications,
		"detector_type":        r.settings.Detector.Type,
		"confidence_threshold": r.settings.Detector.ConfidenceThreshold,
		"pause_ms":             r.settings.PauseMs,
		"model_info":           info,
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	return string(data)
}
