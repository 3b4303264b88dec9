package results

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeBool(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected bool
	}{
		{"bool true", true, true},
		{"bool false", false, false},
		{"string TRUE", "TRUE", true},
		{"string yes", "yes", true},
		{"string on", "on", true},
		{"string 1", "1", true},
		{"string false", "false", false},
		{"string off", "off", false},
		{"string 0", "0", false},
		{"empty string", "", false},
		{"unrecognized string", "maybe", false},
		{"numeric string nonzero", "2.5", true},
		{"numeric string zero", "0.0", false},
		{"padded string", "  True  ", true},
		{"int nonzero", 3, true},
		{"int zero", 0, false},
		{"float nonzero", 0.1, true},
		{"float zero", 0.0, false},
		{"NaN is falsy", math.NaN(), false},
		{"nil", nil, false},
		{"unsupported type", []string{"true"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SafeBool(tt.value))
		})
	}
}

func TestSafeFloat(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected *float64
	}{
		{"float64", 0.85, ptr(0.85)},
		{"float32", float32(0.5), ptr(0.5)},
		{"int", 7, ptr(7.0)},
		{"numeric string", "3.14", ptr(3.14)},
		{"padded numeric string", " 2 ", ptr(2.0)},
		{"bool true", true, ptr(1.0)},
		{"bool false", false, ptr(0.0)},
		{"non-numeric string", "abc", nil},
		{"NaN", math.NaN(), nil},
		{"positive infinity", math.Inf(1), nil},
		{"nil", nil, nil},
		{"unsupported type", map[string]int{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeFloat(tt.value)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.expected, *got, 1e-9)
		})
	}
}

func TestSafeInt(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		expected *int64
	}{
		{"int", 5, iptr(5)},
		{"int64", int64(-3), iptr(-3)},
		{"float truncates", 2.9, iptr(2)},
		{"negative float truncates toward zero", -2.9, iptr(-2)},
		{"integer string", "42", iptr(42)},
		{"float string truncates", "3.7", iptr(3)},
		{"bool true", true, iptr(1)},
		{"non-numeric string", "many", nil},
		{"NaN", math.NaN(), nil},
		{"nil", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeInt(tt.value)
			if tt.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.expected, *got)
		})
	}
}

func TestFormatConfidences(t *testing.T) {
	assert.Equal(t, "", FormatConfidences(nil))
	assert.Equal(t, "0.850", FormatConfidences([]float64{0.85}))
	assert.Equal(t, "0.850,0.720,0.333", FormatConfidences([]float64{0.85, 0.72, 1.0 / 3}))
}

func ptr(f float64) *float64 { return &f }
func iptr(n int64) *int64    { return &n }
