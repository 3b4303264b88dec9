package conf

import (
	"fmt"
	"os"
)

// Validate checks the settings for obvious misconfiguration before a run starts.
func (s *Settings) Validate() error {
	if s.Input.Path == "" {
		return fmt.Errorf("input path is required")
	}
	info, err := os.Stat(s.Input.Path)
	if err != nil {
		return fmt.Errorf("input path %s is not accessible: %w", s.Input.Path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("input path %s is not a directory", s.Input.Path)
	}

	if s.Input.MaxDepth < 0 {
		return fmt.Errorf("input maxdepth must not be negative")
	}
	if s.Input.MaxImages < 0 {
		return fmt.Errorf("input maximages must not be negative")
	}

	switch s.Detector.Type {
	case "face", "object", "ollama":
	default:
		return fmt.Errorf("unknown detector type: %s", s.Detector.Type)
	}

	if s.Detector.ConfidenceThreshold < 0 || s.Detector.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0.0 and 1.0")
	}

	if s.Output.MySQL.Enabled && s.Output.MySQL.Database == "" {
		return fmt.Errorf("mysql output requires a database name")
	}

	if s.Monitor.IntervalMs <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}

	return nil
}
