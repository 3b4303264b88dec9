// Package detector defines the contract every pluggable detection model
// implements and provides the built-in detector implementations.
package detector

import "context"

// ModelInfo is the static metadata a detector reports about itself. It is
// recorded with the run configuration and otherwise opaque to the pipeline.
type ModelInfo struct {
	Name    string         `json:"model_name"`
	Version string         `json:"model_version"`
	Task    string         `json:"task"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Outcome is the normalized result of one detection call.
//
// Detectors never return a Go error from Detect: any internal failure is
// captured in the outcome with zero detections, Uncertain set and Err
// populated. This keeps detector failures uniform with detector-reported
// empty results.
type Outcome struct {
	PersonsDetected int
	Confidences     []float64
	AvgConfidence   *float64
	MaxConfidence   *float64
	MinConfidence   *float64
	Uncertain       bool
	Raw             map[string]any
	Err             string
}

// Detector is the contract every detection model satisfies.
type Detector interface {
	// Detect analyzes a single image. It must not panic and must not
	// signal failure other than through the returned Outcome.
	Detect(ctx context.Context, imagePath string) Outcome

	// Describe returns the detector's static model metadata.
	Describe() ModelInfo
}

// ErrorOutcome builds the canonical failure outcome for a detector-internal
// error: zero detections, uncertain, with the error message preserved.
func ErrorOutcome(msg string, raw map[string]any) Outcome {
	if raw == nil {
		raw = map[string]any{}
	}
	raw["error_details"] = msg
	return Outcome{
		PersonsDetected: 0,
		Confidences:     []float64{},
		Uncertain:       true,
		Raw:             raw,
		Err:             msg,
	}
}

// withStats fills the aggregate confidence fields of an outcome from its
// confidence list. An empty list leaves the aggregates absent.
func withStats(o Outcome, threshold float64) Outcome {
	if len(o.Confidences) == 0 {
		return o
	}

	sum := 0.0
	maxC := o.Confidences[0]
	minC := o.Confidences[0]
	for _, c := range o.Confidences {
		sum += c
		if c > maxC {
			maxC = c
		}
		if c < minC {
			minC = c
		}
	}
	avg := sum / float64(len(o.Confidences))

	o.AvgConfidence = &avg
	o.MaxConfidence = &maxC
	o.MinConfidence = &minC
	if avg < threshold {
		o.Uncertain = true
	}

	return o
}
