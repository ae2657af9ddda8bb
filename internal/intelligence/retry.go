package intelligence

import (
	"errors"
	"strings"
	"time"

	"assetintel/internal/models"
)

// Stable failure categories. They prefix error messages and drive the
// auto-retry decision, so their string values must never change.
const (
	FailureDependencyMissing    = "dependency_missing"
	FailurePDFDependencyMissing = "pdf_dependency_missing"
	FailurePDFRasterizeFailed   = "pdf_rasterize_failed"
	FailureUnsupportedType      = "unsupported_content_type"
	FailureNotImage             = "not_image"
	FailureNetworkError         = "network_error"
	FailureHTTPError            = "http_error"
	FailureUnknown              = "unknown"
)

// Auto-retry policy bounds.
const (
	MinRetryDelay             = 60 * time.Second
	MaxOCRRetriesPerSignature = 2
)

// ProcessorError carries a stable failure category alongside the cause.
type ProcessorError struct {
	Category string
	Err      error
}

func (e *ProcessorError) Error() string {
	if e.Err == nil {
		return e.Category
	}
	return e.Category + ": " + e.Err.Error()
}

func (e *ProcessorError) Unwrap() error { return e.Err }

// ClassifyFailure extracts the category from a stored error message. Messages
// written by processors start with "<category>: "; anything else is unknown.
func ClassifyFailure(errorMessage string) string {
	for _, cat := range []string{
		FailureDependencyMissing, FailurePDFDependencyMissing, FailurePDFRasterizeFailed,
		FailureUnsupportedType, FailureNotImage, FailureNetworkError, FailureHTTPError,
	} {
		if errorMessage == cat || strings.HasPrefix(errorMessage, cat+":") {
			return cat
		}
	}
	return FailureUnknown
}

// CategoryOf returns the category of an error, unknown for plain errors.
func CategoryOf(err error) string {
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return FailureUnknown
}

// ShouldAutoRetryOCR decides whether a failed OCR run qualifies for an
// automatic retry during index reconciliation. Retrying a dependency-missing
// failure is pointless until the deployment changes, and a signature mismatch
// means the content moved on, so a fresh enqueue is the right path instead.
func ShouldAutoRetryOCR(run *models.Run, currentSignature *string, now time.Time) bool {
	if run == nil || run.Status != models.RunStatusFailed {
		return false
	}
	if run.ErrorMessage != nil {
		cat := ClassifyFailure(*run.ErrorMessage)
		if cat == FailureDependencyMissing || cat == FailurePDFDependencyMissing {
			return false
		}
	}
	if !SignaturesMatch(run.InputFingerprintSignature, currentSignature) {
		return false
	}
	if run.RetryCount >= MaxOCRRetriesPerSignature {
		return false
	}
	if run.LastRetryAt != nil && now.Sub(*run.LastRetryAt) < MinRetryDelay {
		return false
	}
	return true
}
