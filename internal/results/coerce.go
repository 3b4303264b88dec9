// Package results maps detector outcomes into the persistence sinks.
package results

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SafeBool coerces an arbitrary value to a boolean. The coercion is total:
// any input yields a defined result and unrecognized values are false.
func SafeBool(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return boolFromString(v)
	case float64:
		return v != 0 && !math.IsNaN(v)
	case float32:
		return v != 0 && !math.IsNaN(float64(v))
	case int:
		return v != 0
	case int8:
		return v != 0
	case int16:
		return v != 0
	case int32:
		return v != 0
	case int64:
		return v != 0
	case uint:
		return v != 0
	case uint8:
		return v != 0
	case uint16:
		return v != 0
	case uint32:
		return v != 0
	case uint64:
		return v != 0
	default:
		return false
	}
}

func boolFromString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off", "":
		return false
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return f != 0 && !math.IsNaN(f)
	}
	return false
}

// SafeFloat coerces an arbitrary value to a float, returning nil when the
// value carries no usable number. NaN and infinities map to nil so they never
// reach the stores.
func SafeFloat(value any) *float64 {
	var f float64
	switch v := value.(type) {
	case nil:
		return nil
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case bool:
		if v {
			f = 1
		}
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// SafeInt coerces an arbitrary value to an integer, returning nil when no
// usable number is present. Fractional inputs are truncated toward zero.
func SafeInt(value any) *int64 {
	switch v := value.(type) {
	case nil:
		return nil
	case int:
		n := int64(v)
		return &n
	case int8:
		n := int64(v)
		return &n
	case int16:
		n := int64(v)
		return &n
	case int32:
		n := int64(v)
		return &n
	case int64:
		return &v
	case uint:
		n := int64(v)
		return &n
	case uint8:
		n := int64(v)
		return &n
	case uint16:
		n := int64(v)
		return &n
	case uint32:
		n := int64(v)
		return &n
	case uint64:
		n := int64(v)
		return &n
	case bool:
		var n int64
		if v {
			n = 1
		}
		return &n
	case float64:
		return intFromFloat(v)
	case float32:
		return intFromFloat(float64(v))
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return &n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return intFromFloat(f)
		}
		return nil
	default:
		return nil
	}
}

func intFromFloat(f float64) *int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	n := int64(f)
	return &n
}

// FormatConfidences renders per-detection confidences as a comma-separated
// list with three decimals, e.g. "0.850,0.720".
func FormatConfidences(confidences []float64) string {
	if len(confidences) == 0 {
		return ""
	}
	parts := make([]string, len(confidences))
	for i, c := range confidences {
		parts[i] = fmt.Sprintf("%.3f", c)
	}
	return strings.Join(parts, ",")
}
