// Package errors provides severity-aware error types.
package errors

import (
	"errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// TopologyError is a structured error with context.
type TopologyError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	ResourceID  string   `json:"resource_id,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *TopologyError) Error() string {
	if e.ResourceID != "" {
		return fmt.Sprintf("[%s] %s: %s (resource: %s)", e.Severity, e.Code, e.Message, e.ResourceID)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

func (e *TopologyError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeInventoryUnavailable = "INVENTORY_UNAVAILABLE"
	ErrCodeExtractionFailed     = "EXTRACTION_FAILED"
	ErrCodeLookupFailed         = "LOOKUP_FAILED"
	ErrCodeExtractionTimeout    = "EXTRACTION_TIMEOUT"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
)

// ErrInventoryUnavailable marks a discovery that could not obtain any resources.
var ErrInventoryUnavailable = errors.New("resource inventory unavailable")

// NewInventoryUnavailableError wraps the cause of a whole-inventory failure.
func NewInventoryUnavailableError(cause error) *TopologyError {
	return &TopologyError{
		Code:        ErrCodeInventoryUnavailable,
		Message:     fmt.Sprintf("inventory could not be listed: %v", cause),
		Severity:    SeverityFatal,
		Recoverable: false,
		Err:         fmt.Errorf("%w: %v", ErrInventoryUnavailable, cause),
	}
}

// NewExtractionError records a per-resource extractor failure.
func NewExtractionError(resourceID string, cause error) *TopologyError {
	return &TopologyError{
		Code:        ErrCodeExtractionFailed,
		Message:     cause.Error(),
		Severity:    SeverityWarning,
		ResourceID:  resourceID,
		Recoverable: true,
		Err:         cause,
	}
}

// NewLookupError records a failed provider lookup.
func NewLookupError(lookup, id string, cause error) *TopologyError {
	return &TopologyError{
		Code:        ErrCodeLookupFailed,
		Message:     fmt.Sprintf("%s lookup failed: %v", lookup, cause),
		Severity:    SeverityWarning,
		ResourceID:  id,
		Recoverable: true,
		Err:         cause,
	}
}

// NewTimeoutError records an extractor that ran out of time.
func NewTimeoutError(resourceID string) *TopologyError {
	return &TopologyError{
		Code:        ErrCodeExtractionTimeout,
		Message:     "extractor exceeded its time budget",
		Severity:    SeverityWarning,
		ResourceID:  resourceID,
		Recoverable: true,
	}
}

// Code returns the TopologyError code in err's chain, or "".
func Code(err error) string {
	var te *TopologyError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
