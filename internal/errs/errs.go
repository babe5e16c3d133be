// Package errs defines the error types shared by the staging pipeline and
// its collaborators. Callers match them with errors.As.
package errs

import (
	"fmt"
	"strings"
)

// InputValidationError reports an invalid argument detected when a
// pipeline, recording or configuration is constructed.
type InputValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InputValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Invalid is a shorthand constructor for InputValidationError.
func Invalid(field string, value any, format string, args ...any) error {
	return &InputValidationError{Field: field, Value: value, Reason: fmt.Sprintf(format, args...)}
}

// FeatureMismatchError reports that a feature table and a classifier do
// not agree on the exact set of feature names.
type FeatureMismatchError struct {
	// ClassifierOnly lists names the classifier requires but the table lacks.
	ClassifierOnly []string
	// TableOnly lists names the table provides but the classifier does not use.
	TableOnly []string
	// Duplicated lists names the classifier requires more than once.
	Duplicated []string
}

func (e *FeatureMismatchError) Error() string {
	var parts []string
	if len(e.ClassifierOnly) > 0 {
		parts = append(parts, fmt.Sprintf("present in classifier but not in feature table: [%s]", strings.Join(e.ClassifierOnly, ", ")))
	}
	if len(e.TableOnly) > 0 {
		parts = append(parts, fmt.Sprintf("present in feature table but not in classifier: [%s]", strings.Join(e.TableOnly, ", ")))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, fmt.Sprintf("required more than once by classifier: [%s]", strings.Join(e.Duplicated, ", ")))
	}
	return "feature mismatch: " + strings.Join(parts, "; ")
}

// ModelNotFoundError reports a model reference that does not resolve to a file.
type ModelNotFoundError struct {
	Path string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.Path)
}

// DataQualityError reports signal data that cannot be turned into
// features, such as non-finite filter output.
type DataQualityError struct {
	Channel string
	Stage   string
	Detail  string
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: channel %q (%s): %s", e.Channel, e.Stage, e.Detail)
}
