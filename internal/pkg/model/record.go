package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NoInstance marks a record or identity without a usable instance tag.
const NoInstance = -1

var (
	ErrNoValue    = errors.New("no value")
	ErrNotNumeric = errors.New("value is not numeric")
)

// DiagnosticRecord is one normalised row of the diagnostics feed.
// RawValue is nil, float64 or string.
type DiagnosticRecord struct {
	Kind        DeviceKind
	Label       string
	Instance    int
	Description string
	RawValue    any
}

func (r DiagnosticRecord) HasValue() bool {
	return r.RawValue != nil
}

// Desc is the lower-cased, trimmed description used for rule matching.
func (r DiagnosticRecord) Desc() string {
	return strings.ToLower(strings.TrimSpace(r.Description))
}

type DiagnosticsBatch struct {
	Records    []DiagnosticRecord
	CapturedAt time.Time
}

func (b *DiagnosticsBatch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Records)
}

// ToFloat converts a raw upstream value into a float64.
func ToFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, ErrNoValue
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %v", ErrNotNumeric, v)
		}
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case fmt.Stringer:
		return ToFloat(v.String())
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, v)
		}
		return ToFloat(f)
	}
	return 0, fmt.Errorf("%w: %T", ErrNotNumeric, raw)
}

// ToInt truncates a numeric raw value towards zero.
func ToInt(raw any) (int64, error) {
	f, err := ToFloat(raw)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// ToText renders a raw value as a string, numbers without trailing zeros.
func ToText(raw any) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", ErrNoValue
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	return fmt.Sprint(raw), nil
}
