package intelligence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"assetintel/internal/models"
	"assetintel/internal/queue"
	"assetintel/internal/repository"
)

// Canonical processor names.
const (
	ProcessorFingerprint   = "asset-fingerprint"
	ProcessorImageMetadata = "image-metadata"
	ProcessorOCRText       = "ocr-text"
)

// Queue task names, one per processor.
const (
	TaskFingerprint   = "run_asset_fingerprint"
	TaskImageMetadata = "run_image_metadata"
	TaskOCRText       = "run_ocr_text"
)

// NormalizeProcessorName maps accepted aliases onto canonical names. Unknown
// names pass through unchanged so the registry lookup can reject them.
func NormalizeProcessorName(name string) string {
	switch name {
	case "fingerprint", "asset_fingerprint", ProcessorFingerprint:
		return ProcessorFingerprint
	case "image_metadata", ProcessorImageMetadata:
		return ProcessorImageMetadata
	case "ocr", "ocr_text", ProcessorOCRText:
		return ProcessorOCRText
	}
	return name
}

// Handler executes one run to a terminal state.
type Handler func(ctx context.Context, svc *Service, run *models.Run) error

// ProcessorSpec describes a registered processor.
type ProcessorSpec struct {
	Name           string
	Version        string
	TaskName       string
	PriceCents     int
	SupportsCancel bool
	Handler        Handler
}

var registry = map[string]ProcessorSpec{
	ProcessorFingerprint: {
		Name:           ProcessorFingerprint,
		Version:        "1",
		TaskName:       TaskFingerprint,
		PriceCents:     0,
		SupportsCancel: true,
		Handler:        runFingerprint,
	},
	ProcessorImageMetadata: {
		Name:           ProcessorImageMetadata,
		Version:        "1",
		TaskName:       TaskImageMetadata,
		PriceCents:     1,
		SupportsCancel: true,
		Handler:        runImageMetadata,
	},
	ProcessorOCRText: {
		Name:           ProcessorOCRText,
		Version:        "1",
		TaskName:       TaskOCRText,
		PriceCents:     5,
		SupportsCancel: true,
		Handler:        runOCRText,
	},
}

// LookupProcessor resolves a (possibly aliased) processor name.
func LookupProcessor(name string) (ProcessorSpec, bool) {
	spec, ok := registry[NormalizeProcessorName(name)]
	return spec, ok
}

// LookupTask resolves a queue task name to its processor.
func LookupTask(task string) (ProcessorSpec, bool) {
	for _, spec := range registry {
		if spec.TaskName == task {
			return spec, true
		}
	}
	return ProcessorSpec{}, false
}

// Processors returns every registered processor.
func Processors() []ProcessorSpec {
	out := make([]ProcessorSpec, 0, len(registry))
	for _, spec := range registry {
		out = append(out, spec)
	}
	return out
}

// Store is the persistence surface the lifecycle engine depends on.
// *repository.Repository implements it; tests substitute in-memory fakes.
type Store interface {
	GetAsset(ctx context.Context, orgID, assetID uuid.UUID) (*models.Asset, error)
	GetAssetAny(ctx context.Context, assetID uuid.UUID) (*models.Asset, error)
	MarkAssetProcessed(ctx context.Context, assetID uuid.UUID) error
	GetOrganization(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	GetUsage(ctx context.Context, orgID uuid.UUID, period string) (*models.OrgUsage, error)

	CreateRun(ctx context.Context, orgID, assetID uuid.UUID, processorName, processorVersion string, costCents int, inputSignature *string) (*models.Run, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	LatestRunFor(ctx context.Context, orgID, assetID uuid.UUID, processorName, processorVersion string) (*models.Run, error)
	LatestRunByProcessor(ctx context.Context, orgID, assetID uuid.UUID, processorName string) (*models.Run, error)
	ListCompletedRunsForAsset(ctx context.Context, orgID, assetID uuid.UUID) ([]models.Run, error)
	MarkRunning(ctx context.Context, runID uuid.UUID) error
	UpdateProgress(ctx context.Context, runID uuid.UUID, current int, total *int, message string) error
	MarkFailed(ctx context.Context, runID uuid.UUID, errorMessage, progressMessage string) error
	MarkDeadlettered(ctx context.Context, runID uuid.UUID, errorMessage string) error
	MarkCanceled(ctx context.Context, runID uuid.UUID, progressMessage string) error
	RequestCancel(ctx context.Context, orgID, runID uuid.UUID) (*models.Run, error)
	RequestCancelLatest(ctx context.Context, orgID, assetID uuid.UUID, processorName string) (*models.Run, error)
	RequestCancelForProcessors(ctx context.Context, orgID, assetID uuid.UUID, processors []string) ([]models.Run, error)
	CancelRequested(ctx context.Context, runID uuid.UUID) (bool, error)
	SetInputSignature(ctx context.Context, runID uuid.UUID, signature *string) error
	IncrementRetry(ctx context.Context, runID uuid.UUID, now time.Time) error
	ResetRunForRequeue(ctx context.Context, runID uuid.UUID) error

	GetLatestResultByType(ctx context.Context, orgID, assetID uuid.UUID, resultType string) (*models.Result, error)
	GetResultsByRunIDs(ctx context.Context, runIDs []uuid.UUID) (map[uuid.UUID][]models.Result, error)
	GetLatestFingerprintData(ctx context.Context, orgID, assetID uuid.UUID) (*models.FingerprintData, error)
	UpsertOCRPartial(ctx context.Context, run *models.Run, data models.OCRPartialData, preview string) error
	CompleteFingerprintRun(ctx context.Context, run *models.Run, data models.FingerprintData, confidence float64) error
	CompleteImageMetadataRun(ctx context.Context, run *models.Run, data models.ImageMetadataData, confidence float64) error
	CompleteOCRRun(ctx context.Context, run *models.Run, data models.OCRData, confidence float64, preview string) error

	InsertDeadletterEvent(ctx context.Context, ev *models.DeadletterEvent) (*models.DeadletterEvent, error)
	LatestDeadletterForRun(ctx context.Context, runID uuid.UUID) (*models.DeadletterEvent, error)
	LatestDeadletterForAsset(ctx context.Context, orgID, assetID uuid.UUID, processorName string) (*models.DeadletterEvent, error)
	MarkDeadletterRequeued(ctx context.Context, id uuid.UUID) error

	GetIndexEntry(ctx context.Context, orgID, assetID uuid.UUID) (*models.SearchIndexEntry, error)
	SearchAssets(ctx context.Context, orgID uuid.UUID, query string, limit, offset int) ([]repository.SearchResult, error)
	FindDuplicates(ctx context.Context, orgID uuid.UUID, sha256, etag string, limit int) ([]models.SearchIndexEntry, error)
	FindBySHA256(ctx context.Context, orgID, excludeAssetID uuid.UUID, sha256 string, limit int) ([]models.SearchIndexEntry, error)
	FindByETag(ctx context.Context, orgID, excludeAssetID uuid.UUID, etag string, limit int) ([]models.SearchIndexEntry, error)
	FindNearSize(ctx context.Context, orgID, excludeAssetID uuid.UUID, contentType string, minLen, maxLen int64, limit int) ([]models.SearchIndexEntry, error)
	FindTextRelated(ctx context.Context, orgID, excludeAssetID uuid.UUID, seed string, limit int) ([]repository.SearchResult, error)
}

// Service bundles the dependencies the lifecycle engine needs. One Service is
// shared by the API and each worker job gets its own against a fresh store.
type Service struct {
	Store      Store
	Queue      *queue.Queue
	Fetcher    *Fetcher
	Engine     Engine
	UseQueue   bool
	JobTimeout time.Duration

	// Notify is called after every run status transition, if set. The API
	// server points this at its websocket hub.
	Notify func(run *models.Run)
}

func NewService(store Store, q *queue.Queue, fetcher *Fetcher, engine Engine, useQueue bool, jobTimeout time.Duration) *Service {
	if engine == nil {
		engine = UnavailableEngine{}
	}
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	return &Service{
		Store:      store,
		Queue:      q,
		Fetcher:    fetcher,
		Engine:     engine,
		UseQueue:   useQueue,
		JobTimeout: jobTimeout,
	}
}

func (s *Service) notify(run *models.Run) {
	if s.Notify != nil && run != nil {
		s.Notify(run)
	}
}

func (s *Service) notifyByID(ctx context.Context, run *models.Run) {
	if s.Notify == nil {
		return
	}
	fresh, err := s.Store.GetRun(ctx, run.ID)
	if err != nil {
		return
	}
	s.Notify(fresh)
}

// PriceForProcessor returns the per-run price in cents, zero for unknown names.
func PriceForProcessor(name string) int {
	if spec, ok := LookupProcessor(name); ok {
		return spec.PriceCents
	}
	return 0
}
