package intelligence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"assetintel/internal/models"
)

func TestTruncateTextRuneBoundary(t *testing.T) {
	t.Parallel()

	t.Run("short text passes through", func(t *testing.T) {
		t.Parallel()
		got, truncated := truncateText("hello")
		if got != "hello" || truncated {
			t.Errorf("got %q truncated=%v", got, truncated)
		}
	})

	t.Run("ascii text cuts at the limit", func(t *testing.T) {
		t.Parallel()
		got, truncated := truncateText(strings.Repeat("a", MaxTextChars+50))
		if !truncated || len(got) != MaxTextChars {
			t.Errorf("len = %d truncated=%v", len(got), truncated)
		}
	})

	t.Run("multibyte rune at the limit stays intact", func(t *testing.T) {
		t.Parallel()
		got, truncated := truncateText(strings.Repeat("a", MaxTextChars-1) + "世界")
		if !truncated {
			t.Error("expected truncation")
		}
		if !utf8.ValidString(got) {
			t.Error("truncated text is not valid UTF-8")
		}
		if len(got) > MaxTextChars {
			t.Errorf("len = %d exceeds cap", len(got))
		}
	})
}

func TestPreviewOfRuneBoundary(t *testing.T) {
	t.Parallel()

	t.Run("collapses whitespace", func(t *testing.T) {
		t.Parallel()
		if got := previewOf("a\n b\tc", 100); got != "a b c" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("accented rune at the limit stays intact", func(t *testing.T) {
		t.Parallel()
		got := previewOf(strings.Repeat("a", 999)+"éx", 1000)
		if !utf8.ValidString(got) {
			t.Errorf("preview is not valid UTF-8: last bytes %x", got[len(got)-2:])
		}
		if len(got) > 1000 {
			t.Errorf("len = %d exceeds cap", len(got))
		}
	})
}

// fakePDFEngine serves a fixed page count with recognizable per-page text.
type fakePDFEngine struct {
	pages int
}

func (fakePDFEngine) RecognizeImage(context.Context, []byte, string) (string, error) {
	return "", &ProcessorError{Category: FailureDependencyMissing, Err: ErrEngineUnavailable}
}

func (e fakePDFEngine) ExtractPDFText(context.Context, []byte) (string, int, error) {
	return "", e.pages, nil
}

func (fakePDFEngine) RecognizePDFPage(_ context.Context, _ []byte, page int) (string, error) {
	return "recognized page text", nil
}

func TestPDFCancelReferencesLastCompletedPage(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 scanned document"))
	}))
	defer server.Close()

	store := newFakeStore()
	store.cancelAfterPartials = 1
	orgID := uuid.New()
	store.asset = &models.Asset{ID: uuid.New(), OrgID: orgID, SourceURI: server.URL}

	run := store.addRun(models.Run{
		ID:            uuid.New(),
		OrgID:         orgID,
		AssetID:       store.asset.ID,
		ProcessorName: ProcessorOCRText,
		Status:        models.RunStatusPending,
	})

	svc := NewService(store, nil, NewFetcher(), fakePDFEngine{pages: 3}, false, 0)

	err := runOCRText(ctx, svc, run)
	require.ErrorIs(t, err, ErrCanceled)

	after, getErr := store.GetRun(ctx, run.ID)
	require.NoError(t, getErr)
	require.Equal(t, models.RunStatusCanceled, after.Status)
	require.NotNil(t, after.ProgressMessage)
	require.Equal(t, "canceled at page 1/3", *after.ProgressMessage)
}
