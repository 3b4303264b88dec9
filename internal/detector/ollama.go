package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pdetect/pdetect-go/internal/conf"
	"github.com/pdetect/pdetect-go/internal/logging"
)

const (
	// countPrompt asks the vision model for a bare number.
	countPrompt = "Look at this image carefully and count the number of people you can see. " +
		"Give me ONLY a number as your answer - nothing else. If you see no people, answer 0."

	// maxPersonCount bounds parsed counts to a sane range.
	maxPersonCount = 50

	tagsCacheKey = "tags"
	tagsCacheTTL = 5 * time.Minute
)

var numberPattern = regexp.MustCompile(`\b(\d+)\b`)
var bareNumberPattern = regexp.MustCompile(`^\s*\d+\s*$`)

// OllamaDetector counts persons by prompting a vision-language model served
// by an Ollama instance. The model returns free text which is parsed into a
// person count with an estimated confidence.
type OllamaDetector struct {
	host          string
	model         string
	confThreshold float64
	client        *http.Client
	tags          *gocache.Cache
	log           *slog.Logger
}

// NewOllamaDetector creates the detector. The server is not contacted here;
// model availability is checked lazily on the first detection and cached.
func NewOllamaDetector(settings *conf.DetectorSettings) (*OllamaDetector, error) {
	if settings.Ollama.Host == "" {
		return nil, fmt.Errorf("ollama detector requires a host URL")
	}
	if settings.Ollama.Model == "" {
		return nil, fmt.Errorf("ollama detector requires a model tag")
	}

	timeout := time.Duration(settings.Ollama.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &OllamaDetector{
		host:          strings.TrimRight(settings.Ollama.Host, "/"),
		model:         settings.Ollama.Model,
		confThreshold: settings.ConfidenceThreshold,
		client:        &http.Client{Timeout: timeout},
		tags:          gocache.New(tagsCacheTTL, 10*time.Minute),
		log:           logging.ForService("detector"),
	}, nil
}

// Describe implements Detector.
func (d *OllamaDetector) Describe() ModelInfo {
	return ModelInfo{
		Name:    "Ollama-Vision",
		Version: d.model,
		Task:    "person_detection_via_vision_prompt",
		Extra: map[string]any{
			"ollama_host":  d.host,
			"ollama_model": d.model,
		},
	}
}

// Detect implements Detector. All failures are captured in the outcome.
func (d *OllamaDetector) Detect(ctx context.Context, imagePath string) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = d.errorOutcome(fmt.Sprintf("ollama detection panic: %v", r), "")
		}
	}()

	if err := d.ensureModelAvailable(ctx); err != nil {
		return d.errorOutcome(err.Error(), "")
	}

	imageB64, err := encodeImageFile(imagePath)
	if err != nil {
		return d.errorOutcome(fmt.Sprintf("image encoding failed: %v", err), "")
	}

	response, err := d.generate(ctx, imageB64)
	if err != nil {
		return d.errorOutcome(err.Error(), "")
	}

	return d.parseResponse(response)
}

// generate posts the counting prompt with the encoded image and returns the
// model's raw text response.
func (d *OllamaDetector) generate(ctx context.Context, imageB64 string) (string, error) {
	payload := map[string]any{
		"model":  d.model,
		"prompt": countPrompt,
		"images": []string{imageB64},
		"stream": false,
		"options": map[string]any{
			"temperature": 0.1,
			"top_p":       0.9,
			"num_predict": 10,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error contacting ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama API error: HTTP %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("error unmarshaling ollama response: %w", err)
	}

	return strings.TrimSpace(result.Response), nil
}

// ensureModelAvailable verifies the configured model tag is present on the
// server. The tag list is cached to avoid hitting /api/tags for every image.
func (d *OllamaDetector) ensureModelAvailable(ctx context.Context) error {
	if cached, found := d.tags.Get(tagsCacheKey); found {
		if modelInTags(cached.([]string), d.model) {
			return nil
		}
		return fmt.Errorf("model %s not available on ollama server", d.model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.host+"/api/tags", http.NoBody)
	if err != nil {
		return fmt.Errorf("error creating tags request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama server not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama tags request failed: HTTP %d", resp.StatusCode)
	}

	var tagList struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tagList); err != nil {
		return fmt.Errorf("error decoding tags response: %w", err)
	}

	names := make([]string, 0, len(tagList.Models))
	for _, m := range tagList.Models {
		names = append(names, m.Name)
	}
	d.tags.Set(tagsCacheKey, names, gocache.DefaultExpiration)

	if !modelInTags(names, d.model) {
		return fmt.Errorf("model %s not available on ollama server", d.model)
	}
	return nil
}

// parseResponse turns the model's free-text answer into an outcome.
func (d *OllamaDetector) parseResponse(response string) Outcome {
	personCount := 0
	if match := numberPattern.FindString(response); match != "" {
		n := 0
		fmt.Sscanf(match, "%d", &n)
		if n < 0 {
			n = 0
		}
		if n > maxPersonCount {
			n = maxPersonCount
		}
		personCount = n
	}

	confidence := estimateConfidence(response)

	var confidences []float64
	if personCount > 0 {
		base := confidence
		if base < 0.4 {
			base = 0.4
		}
		confidences = make([]float64, 0, personCount)
		decay := 1.0
		for i := 0; i < personCount; i++ {
			c := base * decay
			if c < 0.2 {
				c = 0.2
			}
			confidences = append(confidences, c)
			decay *= 0.95
		}
	}

	hedging := containsAny(strings.ToLower(response), "unsure", "maybe", "difficult")

	outcome := withStats(Outcome{
		PersonsDetected: personCount,
		Confidences:     confidences,
		Uncertain:       confidence < 0.7 || hedging,
		Raw: map[string]any{
			"raw_response":         response,
			"ollama_model":         d.model,
			"estimated_confidence": confidence,
		},
	}, d.confThreshold)

	// The estimated confidence stands in for the per-person average.
	if personCount > 0 {
		avg := confidence
		outcome.AvgConfidence = &avg
	}

	return outcome
}

// estimateConfidence scores how definite the model's answer is.
func estimateConfidence(response string) float64 {
	if response == "" {
		return 0.3
	}

	if bareNumberPattern.MatchString(response) {
		return 0.85
	}

	lower := strings.ToLower(response)
	if containsAny(lower, "unsure", "difficult", "hard to tell", "maybe", "possibly") {
		return 0.4
	}
	if containsAny(lower, "clearly", "obviously", "definitely", "certain") {
		return 0.9
	}
	if len(response) > 50 {
		return 0.6
	}

	return 0.7
}

func (d *OllamaDetector) errorOutcome(msg, response string) Outcome {
	return ErrorOutcome(msg, map[string]any{
		"raw_response": response,
		"ollama_model": d.model,
	})
}

func encodeImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("image file %s is empty", path)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func modelInTags(tags []string, model string) bool {
	for _, t := range tags {
		if t == model {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
