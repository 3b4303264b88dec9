// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pdetect/pdetect-go/internal/conf"
)

// Interface abstracts the underlying database implementation and defines the
// operations the run pipeline and later analysis need.
type Interface interface {
	Open() error
	Close() error

	CreateRun(run *Run) error
	UpdateRun(run *Run) error
	SaveResult(result *Result) error

	GetRun(runID string) (Run, error)
	RunResults(runID string) ([]Result, error)
	RecentRuns(limit int) ([]Run, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new store instance based on the provided output settings.
// SQLite takes precedence when both stores are enabled. Returns nil when no
// structured store is enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// CreateRun inserts a new run record.
func (ds *DataStore) CreateRun(run *Run) error {
	if ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	if err := ds.DB.Create(run).Error; err != nil {
		return fmt.Errorf("creating run %s: %w", run.RunID, err)
	}
	return nil
}

// UpdateRun persists the completion fields of an existing run record.
func (ds *DataStore) UpdateRun(run *Run) error {
	if ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	result := ds.DB.Model(&Run{}).Where("run_id = ?", run.RunID).Updates(map[string]any{
		"end_time":              run.EndTime,
		"total_images":          run.TotalImages,
		"successful_detections": run.SuccessfulDetections,
		"failed_detections":     run.FailedDetections,
		"avg_processing_time":   run.AvgProcessingTime,
		"total_processing_time": run.TotalProcessingTime,
		"avg_cpu_usage":         run.AvgCPUUsage,
		"max_cpu_usage":         run.MaxCPUUsage,
		"avg_memory_usage":      run.AvgMemoryUsage,
		"max_memory_usage":      run.MaxMemoryUsage,
		"avg_gpu_usage":         run.AvgGPUUsage,
		"max_gpu_usage":         run.MaxGPUUsage,
		"status":                run.Status,
		"error_message":         run.ErrorMessage,
	})
	if result.Error != nil {
		return fmt.Errorf("updating run %s: %w", run.RunID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("updating run %s: no such run", run.RunID)
	}
	return nil
}

// SaveResult inserts one detection result record.
func (ds *DataStore) SaveResult(result *Result) error {
	if ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	if err := ds.DB.Create(result).Error; err != nil {
		return fmt.Errorf("saving result for %s: %w", result.ImageFilename, err)
	}
	return nil
}

// GetRun retrieves a run by its run id.
func (ds *DataStore) GetRun(runID string) (Run, error) {
	var run Run
	if err := ds.DB.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return Run{}, fmt.Errorf("getting run %s: %w", runID, err)
	}
	return run, nil
}

// RunResults retrieves all detection results of a run in insertion order.
func (ds *DataStore) RunResults(runID string) ([]Result, error) {
	var results []Result
	if err := ds.DB.Where("run_id = ?", runID).Order("id ASC").Find(&results).Error; err != nil {
		return nil, fmt.Errorf("getting results for run %s: %w", runID, err)
	}
	return results, nil
}

// RecentRuns retrieves the most recently started runs.
func (ds *DataStore) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	if err := ds.DB.Order("start_time DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting recent runs: %w", err)
	}
	return runs, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Run{}, &Result{}); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}
