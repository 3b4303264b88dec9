// Package export writes per-run CSV file pairs mirroring the structured
// store: one summary file per run and one append-only results file.
package export

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/pdetect/pdetect-go/internal/datastore"
	"github.com/pdetect/pdetect-go/internal/logging"
)

// Header rows. The column sets match the structured store schema
// field-for-field so both sinks stay cross-checkable.
var (
	runHeaders = []string{
		"run_id", "model_name", "model_version", "start_time", "end_time",
		"total_images", "successful_detections", "failed_detections",
		"avg_processing_time", "total_processing_time", "avg_cpu_usage",
		"max_cpu_usage", "avg_memory_usage", "max_memory_usage",
		"avg_gpu_usage", "max_gpu_usage", "status", "error_message",
		"config_json",
	}

	resultHeaders = []string{
		"run_id", "image_path", "image_filename", "classification",
		"processing_time", "success", "persons_detected", "avg_confidence",
		"max_confidence", "min_confidence", "is_uncertain", "error_message",
		"confidence_scores", "model_output_json", "timestamp",
	}
)

// unsafeFilenameChars matches characters that are stripped from model names
// before they are used in export file names.
var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// maxFilenamePartLength caps the sanitized model name.
const maxFilenamePartLength = 50

// Exporter writes the CSV file pair of a single run.
type Exporter struct {
	outputDir   string
	runPath     string
	resultsPath string
	log         *slog.Logger
}

// NewExporter creates an exporter rooted at the given directory, creating it
// when missing.
func NewExporter(outputDir string) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory %s: %w", outputDir, err)
	}
	return &Exporter{
		outputDir: outputDir,
		log:       logging.ForService("export"),
	}, nil
}

// CreateRunFiles creates the run summary and results files for a new run and
// writes their header rows. File names are derived from the current
// timestamp, the sanitized model name and the first 8 characters of the
// run id.
func (e *Exporter) CreateRunFiles(runID, modelName string) error {
	timestamp := time.Now().Format("20060102_150405")
	safeModelName := sanitizeFilename(modelName)
	shortID := runID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	e.runPath = filepath.Join(e.outputDir,
		fmt.Sprintf("%s_%s_run_%s.csv", timestamp, safeModelName, shortID))
	e.resultsPath = filepath.Join(e.outputDir,
		fmt.Sprintf("%s_%s_results_%s.csv", timestamp, safeModelName, shortID))

	if err := writeRows(e.runPath, [][]string{runHeaders}); err != nil {
		return fmt.Errorf("failed to create run info CSV: %w", err)
	}
	if err := writeRows(e.resultsPath, [][]string{resultHeaders}); err != nil {
		return fmt.Errorf("failed to create results CSV: %w", err)
	}

	e.log.Info("CSV export files created",
		"run_info", e.runPath,
		"results", e.resultsPath,
	)
	return nil
}

// RunFilePath returns the path of the run summary file.
func (e *Exporter) RunFilePath() string { return e.runPath }

// ResultsFilePath returns the path of the per-image results file.
func (e *Exporter) ResultsFilePath() string { return e.resultsPath }

// AppendResult appends one detection result row to the results file.
func (e *Exporter) AppendResult(result *datastore.Result) error {
	if e.resultsPath == "" {
		return fmt.Errorf("results CSV not created, call CreateRunFiles first")
	}

	file, err := os.OpenFile(e.resultsPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open results CSV: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(resultRow(result)); err != nil {
		return fmt.Errorf("failed to write result row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// WriteRunSummary rewrites the run summary file with the header and the
// single run row. Called once at run completion.
func (e *Exporter) WriteRunSummary(run *datastore.Run) error {
	if e.runPath == "" {
		return fmt.Errorf("run info CSV not created, call CreateRunFiles first")
	}
	if err := writeRows(e.runPath, [][]string{runHeaders, runRow(run)}); err != nil {
		return fmt.Errorf("failed to write run summary: %w", err)
	}
	return nil
}

// resultRow serializes one result in resultHeaders order.
func resultRow(r *datastore.Result) []string {
	return []string{
		r.RunID,
		r.ImagePath,
		r.ImageFilename,
		r.Classification,
		formatFloat(r.ProcessingTime),
		formatBool(r.Success),
		strconv.Itoa(r.PersonsDetected),
		formatFloatPtr(r.AvgConfidence),
		formatFloatPtr(r.MaxConfidence),
		formatFloatPtr(r.MinConfidence),
		formatBool(r.IsUncertain),
		r.ErrorMessage,
		r.ConfidenceScores,
		r.ModelOutput,
		r.Timestamp.Format(time.RFC3339),
	}
}

// runRow serializes one run in runHeaders order.
func runRow(r *datastore.Run) []string {
	endTime := ""
	if r.EndTime != nil {
		endTime = r.EndTime.Format(time.RFC3339)
	}
	return []string{
		r.RunID,
		r.ModelName,
		r.ModelVersion,
		r.StartTime.Format(time.RFC3339),
		endTime,
		strconv.Itoa(r.TotalImages),
		strconv.Itoa(r.SuccessfulDetections),
		strconv.Itoa(r.FailedDetections),
		formatFloat(r.AvgProcessingTime),
		formatFloat(r.TotalProcessingTime),
		formatFloat(r.AvgCPUUsage),
		formatFloat(r.MaxCPUUsage),
		formatFloat(r.AvgMemoryUsage),
		formatFloat(r.MaxMemoryUsage),
		formatFloat(r.AvgGPUUsage),
		formatFloat(r.MaxGPUUsage),
		r.Status,
		r.ErrorMessage,
		r.ConfigJSON,
	}
}

// writeRows creates or truncates the file and writes the given rows.
func writeRows(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// sanitizeFilename strips characters that are problematic in file names and
// caps the length.
func sanitizeFilename(name string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(name, "_")
	sanitized = whitespaceRun.ReplaceAllString(sanitized, "_")
	if len(sanitized) > maxFilenamePartLength {
		sanitized = sanitized[:maxFilenamePartLength]
	}
	return sanitized
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatBool(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
