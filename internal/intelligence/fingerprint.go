package intelligence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"assetintel/internal/models"
)

// runFingerprint computes content identity for an asset. A HEAD request is
// tried first; when the server provides no usable validators the body is
// downloaded and hashed.
func runFingerprint(ctx context.Context, svc *Service, run *models.Run) error {
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
	_ = svc.Store.UpdateProgress(ctx, run.ID, 0, &total, "probing")

	data, confidence, err := fingerprintAsset(ctx, svc, asset.SourceURI)
	if err != nil {
		return err
	}

	if err := svc.checkCancel(ctx, run); err != nil {
		return err
	}
	_ = svc.Store.UpdateProgress(ctx, run.ID, 1, &total, "finalizing")

	data.Signature = DeriveSignature(data)
	if err := svc.Store.SetInputSignature(ctx, run.ID, data.Signature); err != nil {
		return err
	}

	if err := svc.checkCancel(ctx, run); err != nil {
		return err
	}
	if err := svc.Store.CompleteFingerprintRun(ctx, run, *data, confidence); err != nil {
		return err
	}
	_ = svc.Store.MarkAssetProcessed(ctx, run.AssetID)
	svc.notifyByID(ctx, run)
	return nil
}

func fingerprintAsset(ctx context.Context, svc *Service, uri string) (*models.FingerprintData, float64, error) {
	head, err := svc.Fetcher.Head(ctx, uri)
	if err == nil && (head.ETag != "" || (head.ContentLength != nil && head.LastModified != "")) {
		data := &models.FingerprintData{
			ContentType:   optString(head.ContentType),
			ContentLength: head.ContentLength,
			Method:        "head",
		}
		if head.ETag != "" {
			data.ETag = &head.ETag
		}
		if head.LastModified != "" {
			data.LastModified = &head.LastModified
		}
		return data, 0.9, nil
	}

	// HEAD gave nothing to identify the content by. Download and hash.
	res, err := svc.Fetcher.Get(ctx, uri, GetTimeout)
	if err != nil {
		return nil, 0, err
	}

	sum := sha256.Sum256(res.Body)
	hash := hex.EncodeToString(sum[:])
	data := &models.FingerprintData{
		SHA256:        &hash,
		ContentType:   optString(res.ContentType),
		ContentLength: res.ContentLength,
		Method:        "get",
	}
	if res.ETag != "" {
		data.ETag = &res.ETag
	}
	if res.LastModified != "" {
		data.LastModified = &res.LastModified
	}
	return data, 1.0, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
