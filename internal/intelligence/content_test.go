package intelligence

import (
	"strings"
	"testing"
)

func TestClassifyContent(t *testing.T) {
	t.Parallel()

	pngMagic := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0}
	jpegMagic := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	webpMagic := append([]byte("RIFF\x00\x00\x00\x00WEBP"), 0)
	tiffMagic := []byte{'I', 'I', 0x2A, 0x00}

	tests := []struct {
		name        string
		contentType string
		body        []byte
		wantKind    string
		wantFormat  string
	}{
		{"plain text", "text/plain; charset=utf-8", []byte("hello"), kindText, "text/plain"},
		{"html", "text/html", []byte("<html>"), kindText, "text/html"},
		{"json", "application/json", []byte("{}"), kindText, "application/json"},
		{"declared pdf", "application/pdf", []byte("%PDF-1.7"), kindPDF, "pdf"},
		{"declared image", "image/png", pngMagic, kindImage, "png"},
		{"octet-stream png sniffed", "application/octet-stream", pngMagic, kindImage, "png"},
		{"octet-stream jpeg sniffed", "application/octet-stream", jpegMagic, kindImage, "jpeg"},
		{"octet-stream webp sniffed", "application/octet-stream", webpMagic, kindImage, "webp"},
		{"octet-stream tiff sniffed", "application/octet-stream", tiffMagic, kindImage, "tiff"},
		{"octet-stream pdf sniffed", "application/octet-stream", []byte("%PDF-1.4"), kindPDF, "pdf"},
		{"empty content type sniffs", "", jpegMagic, kindImage, "jpeg"},
		{"unsniffable octet-stream", "application/octet-stream", []byte{0, 1, 2, 3}, kindUnknown, ""},
		{"video rejected", "video/mp4", []byte("...."), kindUnknown, "video/mp4"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			kind, format := classifyContent(tt.contentType, tt.body)
			if kind != tt.wantKind || format != tt.wantFormat {
				t.Errorf("classifyContent(%q) = (%q, %q), want (%q, %q)",
					tt.contentType, kind, format, tt.wantKind, tt.wantFormat)
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	short := "hello world"
	if got, truncated := truncateText(short); got != short || truncated {
		t.Errorf("short text should pass through untouched")
	}

	long := strings.Repeat("a", MaxTextChars+100)
	got, truncated := truncateText(long)
	if !truncated {
		t.Error("expected truncation flag")
	}
	if len(got) != MaxTextChars {
		t.Errorf("truncated length = %d, want %d", len(got), MaxTextChars)
	}
}

func TestPreviewOf(t *testing.T) {
	t.Parallel()

	got := previewOf("line one\nline two\t\ttabbed", 100)
	if got != "line one line two tabbed" {
		t.Errorf("previewOf collapsed = %q", got)
	}

	long := strings.Repeat("x", 50)
	if got := previewOf(long, 10); len(got) != 10 {
		t.Errorf("preview length = %d, want 10", len(got))
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	got := sanitizeText("  ok\x00text \xff ")
	if strings.Contains(got, "\x00") {
		t.Error("NUL bytes must be removed")
	}
	if strings.HasPrefix(got, " ") || strings.HasSuffix(got, " ") {
		t.Error("surrounding whitespace must be trimmed")
	}
}
