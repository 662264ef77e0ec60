package device

import (
	"errors"
	"fmt"

	"github.com/anicoll/vrm-integration/internal/pkg/model"
)

var ErrAllStrategiesFailed = errors.New("all resolution strategies failed")

type Reason string

const (
	NoMatchingRecords Reason = "no_matching_records"
	MalformedPayload  Reason = "malformed_payload"
	SourceUnavailable Reason = "source_unavailable"
	NoUsableFields    Reason = "no_usable_fields"
)

// ResolutionFailure is reported by a strategy that produced no update.
type ResolutionFailure struct {
	Strategy string
	Reason   Reason
	Err      error
}

func (e *ResolutionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Strategy, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Strategy, e.Reason)
}

func (e *ResolutionFailure) Unwrap() error {
	return e.Err
}

func failure(reason Reason) error {
	return &ResolutionFailure{Reason: reason}
}

// FieldConversionError is a classified value that could not be converted.
// The field is dropped and the pass continues.
type FieldConversionError struct {
	Field model.Field
	Raw   any
	Err   error
}

func (e *FieldConversionError) Error() string {
	return fmt.Sprintf("convert %s from %#v: %v", e.Field, e.Raw, e.Err)
}

func (e *FieldConversionError) Unwrap() error {
	return e.Err
}
