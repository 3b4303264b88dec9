package detector

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdetect/pdetect-go/internal/conf"
)

func newTestOllamaDetector(t *testing.T) *OllamaDetector {
	t.Helper()
	d, err := NewOllamaDetector(&conf.DetectorSettings{
		ConfidenceThreshold: 0.5,
		Ollama: conf.OllamaSettings{
			Host:    "http://ollama.test",
			Model:   "gemma3:4b",
			Timeout: 5,
		},
	})
	require.NoError(t, err)

	httpmock.ActivateNonDefault(d.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return d
}

func registerTags(models ...string) {
	type tag struct {
		Name string `json:"name"`
	}
	tags := make([]tag, len(models))
	for i, m := range models {
		tags[i] = tag{Name: m}
	}
	httpmock.RegisterResponder(http.MethodGet, "http://ollama.test/api/tags",
		httpmock.NewJsonResponderOrPanic(200, map[string]any{"models": tags}))
}

func registerGenerate(response string) {
	httpmock.RegisterResponder(http.MethodPost, "http://ollama.test/api/generate",
		httpmock.NewJsonResponderOrPanic(200, map[string]any{"response": response}))
}

func testImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake image bytes"), 0o644))
	return path
}

func TestNewOllamaDetectorValidation(t *testing.T) {
	_, err := NewOllamaDetector(&conf.DetectorSettings{
		Ollama: conf.OllamaSettings{Model: "gemma3:4b"},
	})
	assert.Error(t, err)

	_, err = NewOllamaDetector(&conf.DetectorSettings{
		Ollama: conf.OllamaSettings{Host: "http://ollama.test"},
	})
	assert.Error(t, err)
}

func TestOllamaDetect(t *testing.T) {
	d := newTestOllamaDetector(t)
	registerTags("gemma3:4b")
	registerGenerate("2")

	outcome := d.Detect(context.Background(), testImage(t))

	assert.Empty(t, outcome.Err)
	assert.Equal(t, 2, outcome.PersonsDetected)
	assert.Len(t, outcome.Confidences, 2)
	require.NotNil(t, outcome.AvgConfidence)
	assert.InDelta(t, 0.85, *outcome.AvgConfidence, 1e-9)
	assert.False(t, outcome.Uncertain)
	assert.Equal(t, "2", outcome.Raw["raw_response"])
}

func TestOllamaDetectServerUnreachable(t *testing.T) {
	d := newTestOllamaDetector(t)
	// No responders registered: every request fails at the transport.

	outcome := d.Detect(context.Background(), testImage(t))

	assert.NotEmpty(t, outcome.Err)
	assert.Zero(t, outcome.PersonsDetected)
	assert.True(t, outcome.Uncertain)
}

func TestOllamaDetectModelMissing(t *testing.T) {
	d := newTestOllamaDetector(t)
	registerTags("llava:7b")

	outcome := d.Detect(context.Background(), testImage(t))

	assert.Contains(t, outcome.Err, "not available")
	assert.Zero(t, outcome.PersonsDetected)
}

func TestOllamaDetectGenerateHTTPError(t *testing.T) {
	d := newTestOllamaDetector(t)
	registerTags("gemma3:4b")
	httpmock.RegisterResponder(http.MethodPost, "http://ollama.test/api/generate",
		httpmock.NewStringResponder(500, "internal error"))

	outcome := d.Detect(context.Background(), testImage(t))

	assert.Contains(t, outcome.Err, "HTTP 500")
}

func TestOllamaDetectUnparsableBody(t *testing.T) {
	d := newTestOllamaDetector(t)
	registerTags("gemma3:4b")
	httpmock.RegisterResponder(http.MethodPost, "http://ollama.test/api/generate",
		httpmock.NewStringResponder(200, "not json"))

	outcome := d.Detect(context.Background(), testImage(t))

	assert.NotEmpty(t, outcome.Err)
	assert.Zero(t, outcome.PersonsDetected)
}

func TestOllamaDetectMissingImage(t *testing.T) {
	d := newTestOllamaDetector(t)
	registerTags("gemma3:4b")

	outcome := d.Detect(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))

	assert.Contains(t, outcome.Err, "image encoding failed")
}

func TestOllamaTagsCached(t *testing.T) {
	d := newTestOllamaDetector(t)
	registerTags("gemma3:4b")
	registerGenerate("1")

	img := testImage(t)
	d.Detect(context.Background(), img)
	d.Detect(context.Background(), img)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["GET http://ollama.test/api/tags"], "tag list is cached between detections")
	assert.Equal(t, 2, info["POST http://ollama.test/api/generate"])
}

func TestParseResponse(t *testing.T) {
	d := newTestOllamaDetector(t)

	t.Run("bare number", func(t *testing.T) {
		outcome := d.parseResponse("3")
		assert.Equal(t, 3, outcome.PersonsDetected)
		require.Len(t, outcome.Confidences, 3)
		assert.InDelta(t, 0.85, outcome.Confidences[0], 1e-9)
		assert.InDelta(t, 0.85*0.95, outcome.Confidences[1], 1e-9)
		assert.False(t, outcome.Uncertain)
	})

	t.Run("zero persons", func(t *testing.T) {
		outcome := d.parseResponse("0")
		assert.Zero(t, outcome.PersonsDetected)
		assert.Empty(t, outcome.Confidences)
		assert.Nil(t, outcome.AvgConfidence)
	})

	t.Run("hedging answer is uncertain", func(t *testing.T) {
		outcome := d.parseResponse("maybe 2 people")
		assert.Equal(t, 2, outcome.PersonsDetected)
		assert.True(t, outcome.Uncertain)
	})

	t.Run("count capped", func(t *testing.T) {
		outcome := d.parseResponse("500")
		assert.Equal(t, 50, outcome.PersonsDetected)
	})

	t.Run("no number in answer", func(t *testing.T) {
		outcome := d.parseResponse("I see some people in the picture")
		assert.Zero(t, outcome.PersonsDetected)
	})

	t.Run("confidence floor on long decay", func(t *testing.T) {
		outcome := d.parseResponse("50")
		require.Len(t, outcome.Confidences, 50)
		assert.InDelta(t, 0.2, outcome.Confidences[49], 1e-9)
	})
}

func TestEstimateConfidence(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected float64
	}{
		{"empty", "", 0.3},
		{"bare number", "3", 0.85},
		{"bare number padded", " 12 ", 0.85},
		{"hedging", "maybe two", 0.4},
		{"assertive", "clearly 2 people", 0.9},
		{"long rambling answer", "the image shows a busy street scene with several figures near the crossing", 0.6},
		{"short non-numeric", "two people", 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, estimateConfidence(tt.response), 1e-9)
		})
	}
}
