package intelligence

import (
	"bytes"
	"strings"
)

// Sniffed content kinds.
const (
	kindText    = "text"
	kindImage   = "image"
	kindPDF     = "pdf"
	kindUnknown = "unknown"
)

// classifyContent decides how to treat a downloaded body, preferring the
// declared Content-Type and falling back to magic bytes for the generic
// application/octet-stream case.
func classifyContent(contentType string, body []byte) (kind string, format string) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}

	switch {
	case strings.HasPrefix(ct, "text/"),
		ct == "application/json", ct == "application/xml":
		return kindText, ct
	case ct == "application/pdf":
		return kindPDF, "pdf"
	case strings.HasPrefix(ct, "image/"):
		return kindImage, strings.TrimPrefix(ct, "image/")
	case ct == "" || ct == "application/octet-stream":
		return sniffMagic(body)
	}
	return kindUnknown, ct
}

func sniffMagic(body []byte) (string, string) {
	switch {
	case bytes.HasPrefix(body, []byte("%PDF-")):
		return kindPDF, "pdf"
	case bytes.HasPrefix(body, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}):
		return kindImage, "png"
	case bytes.HasPrefix(body, []byte{0xFF, 0xD8, 0xFF}):
		return kindImage, "jpeg"
	case len(body) >= 12 && bytes.Equal(body[:4], []byte("RIFF")) && bytes.Equal(body[8:12], []byte("WEBP")):
		return kindImage, "webp"
	case bytes.HasPrefix(body, []byte{'I', 'I', 0x2A, 0x00}),
		bytes.HasPrefix(body, []byte{'M', 'M', 0x00, 0x2A}):
		return kindImage, "tiff"
	}
	return kindUnknown, ""
}
