package intelligence

import (
	"testing"
	"time"

	"assetintel/internal/models"
)

func TestClassifyFailure(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    string
	}{
		{"dependency_missing: ocr engine not configured", FailureDependencyMissing},
		{"pdf_dependency_missing: pdf engine not configured", FailurePDFDependencyMissing},
		{"pdf_rasterize_failed: page 2 corrupt", FailurePDFRasterizeFailed},
		{"unsupported_content_type: cannot extract text from \"video/mp4\"", FailureUnsupportedType},
		{"not_image: content type \"text/html\" is not an image", FailureNotImage},
		{"network_error: dial tcp: connection refused", FailureNetworkError},
		{"http_error: GET https://x returned 503", FailureHTTPError},
		{"http_error", FailureHTTPError},
		{"something completely different", FailureUnknown},
		{"", FailureUnknown},
		// A category name embedded mid-message must not match.
		{"run hit a network_error somewhere", FailureUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyFailure(tt.message); got != tt.want {
			t.Errorf("ClassifyFailure(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestShouldAutoRetryOCR(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sig := strPtr("sha256:abc")
	otherSig := strPtr("sha256:def")
	recent := now.Add(-30 * time.Second)
	old := now.Add(-5 * time.Minute)

	failedRun := func(mutate func(*models.Run)) *models.Run {
		run := &models.Run{
			Status:                    models.RunStatusFailed,
			ErrorMessage:              strPtr("network_error: timeout"),
			InputFingerprintSignature: sig,
		}
		if mutate != nil {
			mutate(run)
		}
		return run
	}

	tests := []struct {
		name string
		run  *models.Run
		sig  *string
		want bool
	}{
		{"eligible failure", failedRun(nil), sig, true},
		{"nil run", nil, sig, false},
		{"completed run never retries", failedRun(func(r *models.Run) { r.Status = models.RunStatusCompleted }), sig, false},
		{"dependency missing never retries", failedRun(func(r *models.Run) { r.ErrorMessage = strPtr("dependency_missing: no engine") }), sig, false},
		{"pdf dependency missing never retries", failedRun(func(r *models.Run) { r.ErrorMessage = strPtr("pdf_dependency_missing: no engine") }), sig, false},
		{"signature mismatch blocks retry", failedRun(nil), otherSig, false},
		{"nil stored signature still matches", failedRun(func(r *models.Run) { r.InputFingerprintSignature = nil }), sig, true},
		{"retry budget exhausted", failedRun(func(r *models.Run) { r.RetryCount = MaxOCRRetriesPerSignature }), sig, false},
		{"too soon after last retry", failedRun(func(r *models.Run) { r.LastRetryAt = &recent }), sig, false},
		{"delay elapsed", failedRun(func(r *models.Run) { r.LastRetryAt = &old; r.RetryCount = 1 }), sig, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ShouldAutoRetryOCR(tt.run, tt.sig, now); got != tt.want {
				t.Errorf("ShouldAutoRetryOCR() = %v, want %v", got, tt.want)
			}
		})
	}
}
