// model.go this code defines the data model for the application
package datastore

import "time"

// Run statuses. A run is created as running and ends in exactly one of the
// terminal states.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run represents one end-to-end execution of a detector over an image corpus.
type Run struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"uniqueIndex:idx_runs_run_id;size:36;not null"`
	ModelName    string `gorm:"size:100;not null"`
	ModelVersion string `gorm:"size:50"`
	StartTime    time.Time
	EndTime      *time.Time

	TotalImages          int `gorm:"default:0"`
	SuccessfulDetections int `gorm:"default:0"`
	FailedDetections     int `gorm:"default:0"`

	AvgProcessingTime   float64
	TotalProcessingTime float64

	AvgCPUUsage    float64
	MaxCPUUsage    float64
	AvgMemoryUsage float64
	MaxMemoryUsage float64
	AvgGPUUsage    float64
	MaxGPUUsage    float64

	Status       string `gorm:"size:20;default:running;index:idx_runs_status"`
	ErrorMessage string `gorm:"type:text"`
	ConfigJSON   string `gorm:"type:text"`

	// Results are keyed by the public run id, not the surrogate primary key,
	// so the constraint survives export/import of run records.
	Results []Result `gorm:"foreignKey:RunID;references:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// Result represents the recorded outcome for one (run, image) pair.
// Results are written once and never mutated.
type Result struct {
	ID    uint   `gorm:"primaryKey"`
	RunID string `gorm:"index:idx_results_run_id;size:36;not null"`

	ImagePath      string `gorm:"size:500;not null"`
	ImageFilename  string `gorm:"size:255;not null"`
	Classification string `gorm:"size:100;index:idx_results_classification"`

	ProcessingTime float64 // seconds
	Success        bool

	PersonsDetected int
	AvgConfidence   *float64
	MaxConfidence   *float64
	MinConfidence   *float64
	IsUncertain     bool

	ErrorMessage     string `gorm:"type:text"`
	ConfidenceScores string `gorm:"type:text"`
	ModelOutput      string `gorm:"type:text"` // serialized detector payload

	Timestamp time.Time `gorm:"index:idx_results_timestamp;autoCreateTime"`
}
