// config.go: This file contains the configuration for the pdetect application. It defines the
// settings struct and the functions to load settings from file, environment and flags.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// InputSettings describes the image corpus to process.
type InputSettings struct {
	Path            string   // root directory of the classified image corpus
	MaxDepth        int      // maximum directory depth below the root, 0 means unlimited
	Randomize       bool     // shuffle the discovered image order
	MaxImages       int      // cap on the number of images to process, 0 means all
	Classifications []string // process only these classifications, empty means all
}

// FaceSettings contains settings for the DNN face detector.
type FaceSettings struct {
	ModelPath      string  // path to the face detection model file
	ScoreThreshold float64 // minimum confidence for a face detection
	NMSThreshold   float64 // IoU threshold for non-maximum suppression
}

// ObjectSettings contains settings for the DNN object detector.
type ObjectSettings struct {
	ModelPath      string  // path to the object detection model file
	ConfigPath     string  // optional path to the model config file
	PersonClassID  int     // class id of "person" in the model's label set
	ScoreThreshold float64 // minimum confidence for a person detection
	NMSThreshold   float64 // IoU threshold for non-maximum suppression
}

// OllamaSettings contains settings for the Ollama vision-language detector.
type OllamaSettings struct {
	Host    string // Ollama server URL
	Model   string // model tag, e.g. gemma3:4b
	Timeout int    // request timeout in seconds
}

// DetectorSettings selects and configures the detection model.
type DetectorSettings struct {
	Type                string  // detector implementation: "face", "object" or "ollama"
	ConfidenceThreshold float64 // detections below this confidence mark the outcome uncertain
	Face                FaceSettings
	Object              ObjectSettings
	Ollama              OllamaSettings
}

// SQLiteSettings contains settings for the SQLite output sink.
type SQLiteSettings struct {
	Enabled bool
	Path    string // path to the SQLite database file
}

// MySQLSettings contains settings for the MySQL output sink.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// CSVSettings contains settings for the flat CSV export sink.
type CSVSettings struct {
	Enabled bool
	Path    string // directory for per-run CSV file pairs
}

// OutputSettings groups all result sinks.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
	CSV    CSVSettings
}

// MonitorSettings configures the background resource sampler.
type MonitorSettings struct {
	IntervalMs int // sampling interval in milliseconds
}

// Settings is the aggregated runtime configuration.
type Settings struct {
	Debug bool // enable debug output

	RunName string // optional human friendly name for the run
	JobID   string // optional job id for scheduler tracking

	Input    InputSettings
	Detector DetectorSettings
	Output   OutputSettings
	Monitor  MonitorSettings

	PauseMs int // pause between processed images in milliseconds
}

// Load reads the configuration from file and environment and returns the settings.
// A missing config file is not an error, defaults apply.
func Load() (*Settings, error) {
	setDefaults()

	viper.SetConfigName("pdetect")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(filepath.Join(home, ".config", "pdetect"))
	}
	viper.SetEnvPrefix("PDETECT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return settings, nil
}

// setDefaults registers default values for all configuration keys.
func setDefaults() {
	viper.SetDefault("debug", false)

	viper.SetDefault("input.maxdepth", 0)
	viper.SetDefault("input.randomize", true)
	viper.SetDefault("input.maximages", 0)

	viper.SetDefault("detector.type", "face")
	viper.SetDefault("detector.confidencethreshold", 0.5)
	viper.SetDefault("detector.face.scorethreshold", 0.5)
	viper.SetDefault("detector.face.nmsthreshold", 0.5)
	viper.SetDefault("detector.object.personclassid", 15)
	viper.SetDefault("detector.object.scorethreshold", 0.5)
	viper.SetDefault("detector.object.nmsthreshold", 0.5)
	viper.SetDefault("detector.ollama.host", "http://localhost:11434")
	viper.SetDefault("detector.ollama.model", "gemma3:4b")
	viper.SetDefault("detector.ollama.timeout", 120)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "pdetect.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.csv.enabled", true)
	viper.SetDefault("output.csv.path", "csv_exports")

	viper.SetDefault("monitor.intervalms", 500)
	viper.SetDefault("pausems", 50)
}

// GetBasePath expands the given path and makes sure the directory exists.
func GetBasePath(path string) string {
	expandedPath := os.ExpandEnv(path)
	basePath := filepath.Clean(expandedPath)

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(basePath, 0o755); err != nil {
			fmt.Printf("failed to create directory '%s': %v\n", basePath, err)
		}
	}

	return basePath
}
