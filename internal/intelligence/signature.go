package intelligence

import (
	"fmt"

	"assetintel/internal/models"
)

// DeriveSignature produces the input fingerprint signature from fingerprint
// data, strongest available identifier first:
//
//	sha256:<hex>            content hash
//	etag:<value>            server-provided validator
//	lenlm:<length>:<lastmod> weak length + last-modified pair
//
// Returns nil when none of the inputs are present.
func DeriveSignature(fp *models.FingerprintData) *string {
	if fp == nil {
		return nil
	}
	if fp.SHA256 != nil && *fp.SHA256 != "" {
		s := "sha256:" + *fp.SHA256
		return &s
	}
	if fp.ETag != nil && *fp.ETag != "" {
		s := "etag:" + *fp.ETag
		return &s
	}
	if fp.ContentLength != nil && fp.LastModified != nil && *fp.LastModified != "" {
		s := fmt.Sprintf("lenlm:%d:%s", *fp.ContentLength, *fp.LastModified)
		return &s
	}
	return nil
}

// SignaturesMatch compares two signatures, treating a missing side as a match.
// A run recorded without a signature stays reusable; only a definite mismatch
// between two concrete signatures invalidates reuse.
func SignaturesMatch(a, b *string) bool {
	if a == nil || b == nil {
		return true
	}
	return *a == *b
}
