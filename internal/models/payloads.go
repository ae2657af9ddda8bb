package models

// FingerprintData is the payload of a "fingerprint" result.
type FingerprintData struct {
	SHA256        *string `json:"sha256,omitempty"`
	ETag          *string `json:"etag,omitempty"`
	ContentType   *string `json:"content_type,omitempty"`
	ContentLength *int64  `json:"content_length,omitempty"`
	LastModified  *string `json:"last_modified,omitempty"`
	Method        string  `json:"method"`
	Signature     *string `json:"signature,omitempty"`
}

// ImageMetadataData is the payload of an "image_metadata" result.
type ImageMetadataData struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

// OCRData is the payload of a final "ocr_text" result.
type OCRData struct {
	Text           string  `json:"text"`
	Source         string  `json:"source"`
	Truncated      bool    `json:"truncated"`
	PagesProcessed int     `json:"pages_processed,omitempty"`
	PagesTotal     *int    `json:"pages_total,omitempty"`
	Language       *string `json:"language,omitempty"`
}

// OCRPartialData is the payload of the per-page "ocr_text_partial" result.
// One row per run, replaced on each page boundary.
type OCRPartialData struct {
	Text           string `json:"text"`
	PagesProcessed int    `json:"pages_processed"`
	PagesTotal     *int   `json:"pages_total,omitempty"`
	Truncated      bool   `json:"truncated"`
}
