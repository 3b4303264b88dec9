package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdetect/pdetect-go/internal/datastore"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCreateRunFiles(t *testing.T) {
	dir := t.TempDir()
	e, err := NewExporter(dir)
	require.NoError(t, err)

	require.NoError(t, e.CreateRunFiles("12345678-aaaa-bbbb-cccc-000000000000", "gemma3:4b"))

	runName := filepath.Base(e.RunFilePath())
	resultsName := filepath.Base(e.ResultsFilePath())

	// 20240101_120000_<model>_run_<id8>.csv, colon in the model name sanitized.
	pattern := regexp.MustCompile(`^\d{8}_\d{6}_gemma3_4b_run_12345678\.csv$`)
	assert.True(t, pattern.MatchString(runName), "unexpected run file name %q", runName)
	assert.Regexp(t, `_results_12345678\.csv$`, resultsName)

	runRows := readCSV(t, e.RunFilePath())
	require.Len(t, runRows, 1)
	assert.Equal(t, runHeaders, runRows[0])

	resultRows := readCSV(t, e.ResultsFilePath())
	require.Len(t, resultRows, 1)
	assert.Equal(t, resultHeaders, resultRows[0])
}

func TestHeaderOrder(t *testing.T) {
	assert.Equal(t, []string{
		"run_id", "model_name", "model_version", "start_time", "end_time",
		"total_images", "successful_detections", "failed_detections",
		"avg_processing_time", "total_processing_time", "avg_cpu_usage",
		"max_cpu_usage", "avg_memory_usage", "max_memory_usage",
		"avg_gpu_usage", "max_gpu_usage", "status", "error_message",
		"config_json",
	}, runHeaders)

	assert.Equal(t, []string{
		"run_id", "image_path", "image_filename", "classification",
		"processing_time", "success", "persons_detected", "avg_confidence",
		"max_confidence", "min_confidence", "is_uncertain", "error_message",
		"confidence_scores", "model_output_json", "timestamp",
	}, resultHeaders)
}

func TestAppendResult(t *testing.T) {
	e, err := NewExporter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.CreateRunFiles("run-1", "face"))

	avg := 0.8
	ts := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	result := &datastore.Result{
		RunID:            "run-1",
		ImagePath:        "/corpus/cats/a.jpg",
		ImageFilename:    "a.jpg",
		Classification:   "cats",
		ProcessingTime:   0.25,
		Success:          true,
		PersonsDetected:  2,
		AvgConfidence:    &avg,
		ConfidenceScores: "0.900,0.700",
		Timestamp:        ts,
	}

	require.NoError(t, e.AppendResult(result))
	require.NoError(t, e.AppendResult(result))

	rows := readCSV(t, e.ResultsFilePath())
	require.Len(t, rows, 3, "header plus two appended rows")

	row := rows[1]
	assert.Equal(t, "run-1", row[0])
	assert.Equal(t, "/corpus/cats/a.jpg", row[1])
	assert.Equal(t, "cats", row[3])
	assert.Equal(t, "0.25", row[4])
	assert.Equal(t, "true", row[5])
	assert.Equal(t, "2", row[6])
	assert.Equal(t, "0.8", row[7])
	assert.Equal(t, "", row[8], "absent confidence serializes empty")
	assert.Equal(t, "2026-08-26T12:00:00Z", row[14])
}

func TestWriteRunSummaryRewrites(t *testing.T) {
	e, err := NewExporter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.CreateRunFiles("run-1", "face"))

	end := time.Date(2026, 8, 26, 12, 5, 0, 0, time.UTC)
	run := &datastore.Run{
		RunID:                "run-1",
		ModelName:            "face",
		ModelVersion:         "1.0",
		StartTime:            end.Add(-5 * time.Minute),
		EndTime:              &end,
		TotalImages:          10,
		SuccessfulDetections: 9,
		FailedDetections:     1,
		Status:               datastore.StatusCompleted,
	}

	require.NoError(t, e.WriteRunSummary(run))
	require.NoError(t, e.WriteRunSummary(run)) // rewrite must not duplicate rows

	rows := readCSV(t, e.RunFilePath())
	require.Len(t, rows, 2)
	assert.Equal(t, runHeaders, rows[0])
	assert.Equal(t, "run-1", rows[1][0])
	assert.Equal(t, "10", rows[1][5])
	assert.Equal(t, "completed", rows[1][16])
}

func TestExporterRequiresCreatedFiles(t *testing.T) {
	e, err := NewExporter(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, e.AppendResult(&datastore.Result{}))
	assert.Error(t, e.WriteRunSummary(&datastore.Run{}))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "gemma3_4b", sanitizeFilename("gemma3:4b"))
	assert.Equal(t, "a_b_c", sanitizeFilename(`a/b\c`))
	assert.Equal(t, "my_model", sanitizeFilename("my model"))
	assert.LessOrEqual(t, len(sanitizeFilename(strings.Repeat("x", 100))), 50)
}
