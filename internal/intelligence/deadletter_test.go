package intelligence

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"assetintel/internal/models"
	"assetintel/internal/queue"
)

func TestSanitizeErrorSummary(t *testing.T) {
	t.Parallel()

	t.Run("short message passes through", func(t *testing.T) {
		t.Parallel()
		if got := SanitizeErrorSummary("network_error: timeout"); got != "network_error: timeout" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("newlines collapse to spaces", func(t *testing.T) {
		t.Parallel()
		got := SanitizeErrorSummary("line one\nline two\r\nline three")
		if got != "line one line two line three" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("long message truncates with ellipsis", func(t *testing.T) {
		t.Parallel()
		got := SanitizeErrorSummary(strings.Repeat("e", 500))
		if !strings.HasSuffix(got, "…") {
			t.Error("expected ellipsis suffix")
		}
		if len([]rune(got)) != errorSummaryMaxChars+1 {
			t.Errorf("summary rune length = %d, want %d", len([]rune(got)), errorSummaryMaxChars+1)
		}
	})

	t.Run("stack trace flattens under the limit", func(t *testing.T) {
		t.Parallel()
		raw := "failed\n\tat step one\n\tat step two"
		got := SanitizeErrorSummary(raw)
		if strings.ContainsAny(got, "\n\t") {
			t.Errorf("summary still contains control whitespace: %q", got)
		}
	})

	t.Run("multibyte message cuts on a rune boundary", func(t *testing.T) {
		t.Parallel()
		// Place a CJK rune across the byte limit; the cut must not split it.
		raw := strings.Repeat("e", errorSummaryMaxChars-1) + "世界"
		got := SanitizeErrorSummary(raw)
		if !utf8.ValidString(got) {
			t.Errorf("summary is not valid UTF-8: %q", got)
		}
		if !strings.HasSuffix(got, "…") {
			t.Error("expected ellipsis suffix")
		}
	})
}

func TestDeadletterRunOverwritesFailedRun(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	svc := NewService(store, nil, nil, nil, false, 0)

	// On the final attempt the dispatcher has already written the plain
	// failure; dead-lettering must still land its message and progress marker.
	prior := "network_error: connection refused"
	priorProgress := "failed"
	run := store.addRun(models.Run{
		ID:               uuid.New(),
		OrgID:            uuid.New(),
		AssetID:          uuid.New(),
		ProcessorName:    ProcessorOCRText,
		ProcessorVersion: "1",
		Status:           models.RunStatusFailed,
		ErrorMessage:     &prior,
		ProgressMessage:  &priorProgress,
	})

	job := queue.Job{RunID: run.ID, Task: TaskOCRText, JobTry: 3}
	runErr := &ProcessorError{Category: FailureNetworkError, Err: context.DeadlineExceeded}
	require.NoError(t, svc.DeadletterRun(ctx, job, run, runErr))

	after, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, after.Status)
	require.True(t, strings.HasPrefix(*after.ErrorMessage, "Dead-lettered after repeated failures: "))
	require.Equal(t, "dead-lettered", *after.ProgressMessage)

	require.Len(t, store.events, 1)
	ev := store.events[0]
	require.Equal(t, run.ID, ev.RunID)
	require.Equal(t, 3, ev.JobTry)
	require.NotNil(t, ev.ErrorSummary)
	require.NotNil(t, ev.ErrorRaw)
}
