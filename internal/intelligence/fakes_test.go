package intelligence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"assetintel/internal/models"
	"assetintel/internal/repository"
)

// fakeStore is an in-memory Store for lifecycle tests. It mirrors the
// repository's guarded UPDATE semantics: terminal runs ignore MarkFailed and
// MarkCanceled, MarkRunning only claims pending runs, and completion only
// flips running runs. Methods a test never reaches fall through to the
// embedded nil interface and panic, which keeps the fakes honest.
type fakeStore struct {
	Store

	mu     sync.Mutex
	asset  *models.Asset
	org    *models.Organization
	usage  *models.OrgUsage
	fp     *models.FingerprintData
	runs   map[uuid.UUID]*models.Run
	events []models.DeadletterEvent

	createdSigs    []*string
	partialUpserts int
	// cancelAfterPartials makes CancelRequested report true once that many
	// partial results have been upserted, simulating a cancel racing a
	// multi-page OCR run.
	cancelAfterPartials int
	usageCompletions    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: map[uuid.UUID]*models.Run{}}
}

func (f *fakeStore) addRun(run models.Run) *models.Run {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := run
	f.runs[run.ID] = &stored
	return &stored
}

func (f *fakeStore) GetAsset(_ context.Context, orgID, assetID uuid.UUID) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.asset == nil || f.asset.ID != assetID || f.asset.OrgID != orgID {
		return nil, repository.ErrNotFound
	}
	a := *f.asset
	return &a, nil
}

func (f *fakeStore) GetAssetAny(_ context.Context, assetID uuid.UUID) (*models.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.asset == nil || f.asset.ID != assetID {
		return nil, repository.ErrNotFound
	}
	a := *f.asset
	return &a, nil
}

func (f *fakeStore) MarkAssetProcessed(context.Context, uuid.UUID) error { return nil }

func (f *fakeStore) GetOrganization(_ context.Context, orgID uuid.UUID) (*models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.org == nil || f.org.ID != orgID {
		return nil, repository.ErrNotFound
	}
	o := *f.org
	return &o, nil
}

func (f *fakeStore) GetUsage(_ context.Context, orgID uuid.UUID, period string) (*models.OrgUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usage == nil {
		return &models.OrgUsage{OrgID: orgID, Period: period}, nil
	}
	u := *f.usage
	return &u, nil
}

func (f *fakeStore) GetLatestFingerprintData(context.Context, uuid.UUID, uuid.UUID) (*models.FingerprintData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fp == nil {
		return nil, repository.ErrNotFound
	}
	fp := *f.fp
	return &fp, nil
}

func (f *fakeStore) CreateRun(_ context.Context, orgID, assetID uuid.UUID, processorName, processorVersion string, costCents int, inputSignature *string) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := &models.Run{
		ID:                        uuid.New(),
		OrgID:                     orgID,
		AssetID:                   assetID,
		ProcessorName:             processorName,
		ProcessorVersion:          processorVersion,
		Status:                    models.RunStatusPending,
		EstimatedCostCents:        costCents,
		InputFingerprintSignature: inputSignature,
		CreatedAt:                 time.Now(),
	}
	f.runs[run.ID] = run
	f.createdSigs = append(f.createdSigs, inputSignature)
	return run, nil
}

func (f *fakeStore) GetRun(_ context.Context, runID uuid.UUID) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeStore) LatestRunFor(_ context.Context, orgID, assetID uuid.UUID, processorName, processorVersion string) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Run
	for _, run := range f.runs {
		if run.OrgID != orgID || run.AssetID != assetID ||
			run.ProcessorName != processorName || run.ProcessorVersion != processorVersion {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeStore) MarkRunning(_ context.Context, runID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok || run.Status != models.RunStatusPending {
		return repository.ErrNotFound
	}
	run.Status = models.RunStatusRunning
	run.ErrorMessage = nil
	return nil
}

func (f *fakeStore) UpdateProgress(_ context.Context, runID uuid.UUID, current int, total *int, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[runID]; ok {
		run.ProgressCurrent = current
		run.ProgressTotal = total
		run.ProgressMessage = &message
	}
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, runID uuid.UUID, errorMessage, progressMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok || run.IsTerminal() {
		return nil
	}
	now := time.Now()
	run.Status = models.RunStatusFailed
	run.ErrorMessage = &errorMessage
	run.ProgressMessage = &progressMessage
	run.CompletedAt = &now
	return nil
}

func (f *fakeStore) MarkDeadlettered(_ context.Context, runID uuid.UUID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok || run.Status == models.RunStatusCompleted || run.Status == models.RunStatusCanceled {
		return repository.ErrNotFound
	}
	now := time.Now()
	msg := "dead-lettered"
	run.Status = models.RunStatusFailed
	run.ErrorMessage = &errorMessage
	run.ProgressMessage = &msg
	run.CompletedAt = &now
	return nil
}

func (f *fakeStore) MarkCanceled(_ context.Context, runID uuid.UUID, progressMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok || run.IsTerminal() {
		return nil
	}
	now := time.Now()
	run.Status = models.RunStatusCanceled
	run.ProgressMessage = &progressMessage
	run.CanceledAt = &now
	run.CompletedAt = &now
	return nil
}

func (f *fakeStore) CancelRequested(_ context.Context, runID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if f.cancelAfterPartials > 0 && f.partialUpserts >= f.cancelAfterPartials {
		return true, nil
	}
	return run.CancelRequested, nil
}

func (f *fakeStore) SetInputSignature(_ context.Context, runID uuid.UUID, signature *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if run, ok := f.runs[runID]; ok {
		run.InputFingerprintSignature = signature
	}
	return nil
}

func (f *fakeStore) RequestCancelLatest(_ context.Context, orgID, assetID uuid.UUID, processorName string) (*models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.Run
	for _, run := range f.runs {
		if run.OrgID != orgID || run.AssetID != assetID || run.ProcessorName != processorName || run.IsTerminal() {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, repository.ErrNotFound
	}
	latest.CancelRequested = true
	if latest.Status == models.RunStatusPending {
		now := time.Now()
		msg := "canceled"
		latest.Status = models.RunStatusCanceled
		latest.CanceledAt = &now
		latest.CompletedAt = &now
		latest.ProgressMessage = &msg
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeStore) RequestCancelForProcessors(_ context.Context, orgID, assetID uuid.UUID, processors []string) ([]models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Run
	for _, run := range f.runs {
		if run.OrgID != orgID || run.AssetID != assetID || run.IsTerminal() {
			continue
		}
		for _, p := range processors {
			if run.ProcessorName != p {
				continue
			}
			run.CancelRequested = true
			if run.Status == models.RunStatusPending {
				now := time.Now()
				msg := "canceled"
				run.Status = models.RunStatusCanceled
				run.CanceledAt = &now
				run.CompletedAt = &now
				run.ProgressMessage = &msg
			}
			out = append(out, *run)
		}
	}
	return out, nil
}

func (f *fakeStore) UpsertOCRPartial(context.Context, *models.Run, models.OCRPartialData, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partialUpserts++
	return nil
}

func (f *fakeStore) CompleteOCRRun(_ context.Context, run *models.Run, _ models.OCRData, _ float64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.runs[run.ID]
	if !ok || stored.Status != models.RunStatusRunning {
		return repository.ErrNotFound
	}
	now := time.Now()
	msg := "done"
	stored.Status = models.RunStatusCompleted
	stored.CompletedAt = &now
	stored.ProgressMessage = &msg
	f.usageCompletions++
	return nil
}

func (f *fakeStore) InsertDeadletterEvent(_ context.Context, ev *models.DeadletterEvent) (*models.DeadletterEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *ev
	stored.ID = uuid.New()
	stored.FailedAt = time.Now()
	f.events = append(f.events, stored)
	return &stored, nil
}
