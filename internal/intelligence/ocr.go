package intelligence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"assetintel/internal/models"
)

const (
	// MaxTextChars caps extracted text; anything beyond it is discarded and
	// the result is flagged truncated.
	MaxTextChars = 100000

	// MaxPDFOCRPages bounds the expensive rasterize-and-recognize fallback.
	MaxPDFOCRPages = 3

	// Embedded PDF text shorter than this is treated as absent (scanned
	// documents often carry a few stray characters).
	minEmbeddedTextChars = 30

	indexPreviewChars = 1000
)

// runOCRText extracts text from an asset. Plain text bodies are used
// directly; PDFs prefer embedded text and fall back to per-page OCR with
// progressive partial results; images go straight to OCR.
func runOCRText(ctx context.Context, svc *Service, run *models.Run) error {
	if err := svc.checkCancel(ctx, run); err != nil {
		return err
	}
	if err := svc.Store.MarkRunning(ctx, run.ID); err != nil {
		return err
	}
	svc.notifyByID(ctx, run)

	asset, err := svc.Store.GetAssetAny(ctx, run.AssetID)
	if err != nil {
		return fmt.Errorf("failed to load asset: %w", err)
	}

	_ = svc.Store.UpdateProgress(ctx, run.ID, 0, nil, "downloading")

	res, err := svc.Fetcher.Get(ctx, asset.SourceURI, OCRFetchTimeout)
	if err != nil {
		return err
	}

	if err := svc.checkCancel(ctx, run); err != nil {
		return err
	}

	var data models.OCRData
	var confidence float64

	kind, _ := classifyContent(res.ContentType, res.Body)
	switch kind {
	case kindText:
		text, truncated := truncateText(sanitizeText(string(res.Body)))
		data = models.OCRData{Text: text, Source: "http_text", Truncated: truncated}
		confidence = 1.0

	case kindImage:
		_ = svc.Store.UpdateProgress(ctx, run.ID, 0, nil, "recognizing")
		raw, err := svc.Engine.RecognizeImage(ctx, res.Body, res.ContentType)
		if err != nil {
			return err
		}
		text, truncated := truncateText(sanitizeText(raw))
		data = models.OCRData{Text: text, Source: "ocr", Truncated: truncated}
		confidence = 0.9

	case kindPDF:
		data, confidence, err = extractPDF(ctx, svc, run, res.Body)
		if err != nil {
			return err
		}

	default:
		return &ProcessorError{
			Category: FailureUnsupportedType,
			Err:      fmt.Errorf("cannot extract text from %q", res.ContentType),
		}
	}

	if err := svc.checkCancel(ctx, run); err != nil {
		return err
	}
	if err := svc.Store.CompleteOCRRun(ctx, run, data, confidence, previewOf(data.Text, indexPreviewChars)); err != nil {
		return err
	}
	_ = svc.Store.MarkAssetProcessed(ctx, run.AssetID)
	svc.notifyByID(ctx, run)
	return nil
}

// extractPDF prefers the embedded text layer and falls back to OCRing a
// bounded number of rasterized pages, publishing a partial result after each.
func extractPDF(ctx context.Context, svc *Service, run *models.Run, body []byte) (models.OCRData, float64, error) {
	embedded, pageCount, err := svc.Engine.ExtractPDFText(ctx, body)
	if err != nil {
		var pe *ProcessorError
		if errors.As(err, &pe) && pe.Category == FailurePDFDependencyMissing {
			return models.OCRData{}, 0, err
		}
		// Extraction failed but the rasterize path may still work.
		embedded = ""
	}

	if cleaned := sanitizeText(embedded); len(cleaned) >= minEmbeddedTextChars {
		text, truncated := truncateText(cleaned)
		pagesTotal := optInt(pageCount)
		return models.OCRData{
			Text:           text,
			Source:         "pdf_text",
			Truncated:      truncated,
			PagesProcessed: pageCount,
			PagesTotal:     pagesTotal,
		}, 1.0, nil
	}

	pages := pageCount
	if pages <= 0 || pages > MaxPDFOCRPages {
		pages = MaxPDFOCRPages
	}
	pagesTotal := optInt(pages)

	var sb strings.Builder
	truncated := false
	processed := 0
	for page := 0; page < pages; page++ {
		_ = svc.Store.UpdateProgress(ctx, run.ID, page, pagesTotal, fmt.Sprintf("ocr page %d/%d", page+1, pages))

		pageText, err := svc.Engine.RecognizePDFPage(ctx, body, page)
		if err != nil {
			var pe *ProcessorError
			if errors.As(err, &pe) {
				return models.OCRData{}, 0, err
			}
			return models.OCRData{}, 0, &ProcessorError{Category: FailurePDFRasterizeFailed, Err: err}
		}

		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(sanitizeText(pageText))
		processed = page + 1

		text, cut := truncateText(sb.String())
		if cut {
			truncated = true
		}

		partial := models.OCRPartialData{
			Text:           text,
			PagesProcessed: processed,
			PagesTotal:     pagesTotal,
			Truncated:      truncated,
		}
		if err := svc.Store.UpsertOCRPartial(ctx, run, partial, previewOf(text, indexPreviewChars)); err != nil {
			return models.OCRData{}, 0, err
		}
		_ = svc.Store.UpdateProgress(ctx, run.ID, processed, pagesTotal, fmt.Sprintf("ocr page %d/%d done", processed, pages))
		svc.notifyByID(ctx, run)

		cancelMsg := fmt.Sprintf("canceled at page %d/%d", processed, pages)
		if err := svc.checkCancelWith(ctx, run, cancelMsg); err != nil {
			return models.OCRData{}, 0, err
		}
		if truncated {
			break
		}
	}

	text, wasTruncated := truncateText(sb.String())
	return models.OCRData{
		Text:           text,
		Source:         "ocr",
		Truncated:      truncated || wasTruncated,
		PagesProcessed: processed,
		PagesTotal:     pagesTotal,
	}, 0.9, nil
}

func sanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}

func truncateText(s string) (string, bool) {
	if len(s) > MaxTextChars {
		return cutUTF8(s, MaxTextChars), true
	}
	return s, false
}

// previewOf returns a single-line prefix suitable for index storage.
func previewOf(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	return cutUTF8(s, max)
}

// cutUTF8 truncates s to at most max bytes without splitting a rune, so the
// result always stays valid UTF-8 for Postgres text columns.
func cutUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func optInt(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
