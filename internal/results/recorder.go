package results

import (
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/pdetect/pdetect-go/internal/dataload"
	"github.com/pdetect/pdetect-go/internal/datastore"
	"github.com/pdetect/pdetect-go/internal/detector"
	"github.com/pdetect/pdetect-go/internal/export"
	"github.com/pdetect/pdetect-go/internal/logging"
)

// Recorder writes run metadata and per-image results to the configured
// sinks. Each sink is optional and each write is best-effort: a failing sink
// is logged and never interrupts the run.
type Recorder struct {
	store    datastore.Interface
	exporter *export.Exporter
	log      *slog.Logger
}

// NewRecorder creates a recorder over the given sinks. Either sink may be
// nil, in which case it is skipped.
func NewRecorder(store datastore.Interface, exporter *export.Exporter) *Recorder {
	return &Recorder{
		store:    store,
		exporter: exporter,
		log:      logging.ForService("results"),
	}
}

// StartRun registers a new run with both sinks.
func (r *Recorder) StartRun(run *datastore.Run) {
	if r.store != nil {
		if err := r.store.CreateRun(run); err != nil {
			r.log.Error("failed to create run record", "run_id", run.RunID, "error", err)
		}
	}
	if r.exporter != nil {
		if err := r.exporter.CreateRunFiles(run.RunID, run.ModelName); err != nil {
			r.log.Error("failed to create CSV export files", "run_id", run.RunID, "error", err)
		}
	}
}

// RecordResult writes one per-image result to both sinks.
func (r *Recorder) RecordResult(result *datastore.Result) {
	if r.store != nil {
		if err := r.store.SaveResult(result); err != nil {
			r.log.Error("failed to save result", "image", result.ImagePath, "error", err)
		}
	}
	if r.exporter != nil {
		if err := r.exporter.AppendResult(result); err != nil {
			r.log.Error("failed to append result to CSV", "image", result.ImagePath, "error", err)
		}
	}
}

// CompleteRun writes the final run record to both sinks.
func (r *Recorder) CompleteRun(run *datastore.Run) {
	if r.store != nil {
		if err := r.store.UpdateRun(run); err != nil {
			r.log.Error("failed to update run record", "run_id", run.RunID, "error", err)
		}
	}
	if r.exporter != nil {
		if err := r.exporter.WriteRunSummary(run); err != nil {
			r.log.Error("failed to write run summary CSV", "run_id", run.RunID, "error", err)
		}
	}
}

// BuildResult maps a detector outcome onto a persistable result row.
// Confidence aggregates pass through SafeFloat so that NaN or infinite values
// from a misbehaving model never reach the sinks.
func BuildResult(runID string, img dataload.ClassifiedImage, outcome detector.Outcome, processingTime float64) *datastore.Result {
	result := &datastore.Result{
		RunID:            runID,
		ImagePath:        img.Path,
		ImageFilename:    filepath.Base(img.Path),
		Classification:   img.Classification,
		ProcessingTime:   processingTime,
		Success:          outcome.Err == "",
		PersonsDetected:  outcome.PersonsDetected,
		AvgConfidence:    scrubFloat(outcome.AvgConfidence),
		MaxConfidence:    scrubFloat(outcome.MaxConfidence),
		MinConfidence:    scrubFloat(outcome.MinConfidence),
		IsUncertain:      outcome.Uncertain,
		ErrorMessage:     outcome.Err,
		ConfidenceScores: FormatConfidences(outcome.Confidences),
		ModelOutput:      marshalRaw(outcome.Raw),
		Timestamp:        time.Now(),
	}
	return result
}

func scrubFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return SafeFloat(*v)
}

func marshalRaw(raw map[string]any) string {
	if len(raw) == 0 {
		return ""
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(data)
}
