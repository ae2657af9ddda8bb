package intelligence

import (
	"context"
	"errors"
)

// Engine abstracts the actual text extraction backends. Deployments plug in
// real OCR and PDF tooling; the default UnavailableEngine turns every call
// into a classified dependency failure so the pipeline degrades cleanly.
type Engine interface {
	// RecognizeImage runs OCR over a raster image and returns the text.
	RecognizeImage(ctx context.Context, data []byte, contentType string) (string, error)

	// ExtractPDFText pulls embedded text from a PDF, returning the text and
	// the total page count.
	ExtractPDFText(ctx context.Context, data []byte) (string, int, error)

	// RecognizePDFPage rasterizes one page (zero-based) and OCRs it.
	RecognizePDFPage(ctx context.Context, data []byte, page int) (string, error)
}

var (
	ErrEngineUnavailable    = errors.New("ocr engine not configured")
	ErrPDFEngineUnavailable = errors.New("pdf engine not configured")
)

// UnavailableEngine is the no-tooling default.
type UnavailableEngine struct{}

func (UnavailableEngine) RecognizeImage(context.Context, []byte, string) (string, error) {
	return "", &ProcessorError{Category: FailureDependencyMissing, Err: ErrEngineUnavailable}
}

func (UnavailableEngine) ExtractPDFText(context.Context, []byte) (string, int, error) {
	return "", 0, &ProcessorError{Category: FailurePDFDependencyMissing, Err: ErrPDFEngineUnavailable}
}

func (UnavailableEngine) RecognizePDFPage(context.Context, []byte, int) (string, error) {
	return "", &ProcessorError{Category: FailurePDFDependencyMissing, Err: ErrPDFEngineUnavailable}
}
