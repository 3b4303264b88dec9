package detector

import (
	"fmt"

	"github.com/pdetect/pdetect-go/internal/conf"
)

// New creates the detector selected by the configuration.
func New(settings *conf.DetectorSettings) (Detector, error) {
	switch settings.Type {
	case "face":
		return NewFaceDetector(settings)
	case "object":
		return NewObjectDetector(settings)
	case "ollama":
		return NewOllamaDetector(settings)
	default:
		return nil, fmt.Errorf("unknown detector type: %s (available: face, object, ollama)", settings.Type)
	}
}
