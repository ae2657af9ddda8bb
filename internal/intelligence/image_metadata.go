package intelligence

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"assetintel/internal/models"
)

// runImageMetadata extracts pixel dimensions and format from an image asset.
func runImageMetadata(ctx context.Context, svc *Service, run *models.Run) error {
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

	total := 2
	_ = svc.Store.UpdateProgress(ctx, run.ID, 0, &total, "downloading")

	res, err := svc.Fetcher.Get(ctx, asset.SourceURI, GetTimeout)
	if err != nil {
		return err
	}

	if err := svc.checkCancel(ctx, run); err != nil {
		return err
	}
	_ = svc.Store.UpdateProgress(ctx, run.ID, 1, &total, "decoding")

	kind, _ := classifyContent(res.ContentType, res.Body)
	if kind != kindImage {
		return &ProcessorError{
			Category: FailureNotImage,
			Err:      fmt.Errorf("content type %q is not an image", res.ContentType),
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(res.Body))
	if err != nil {
		return &ProcessorError{Category: FailureNotImage, Err: err}
	}

	data := models.ImageMetadataData{
		Width:       cfg.Width,
		Height:      cfg.Height,
		Format:      format,
		ContentType: res.ContentType,
	}
	if res.ContentLength != nil {
		data.SizeBytes = *res.ContentLength
	}

	if err := svc.checkCancel(ctx, run); err != nil {
		return err
	}
	if err := svc.Store.CompleteImageMetadataRun(ctx, run, data, 1.0); err != nil {
		return err
	}
	_ = svc.Store.MarkAssetProcessed(ctx, run.AssetID)
	svc.notifyByID(ctx, run)
	return nil
}
