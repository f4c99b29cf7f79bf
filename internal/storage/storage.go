// Package storage writes rendered report artifacts to a blob store.
package storage

import (
	"context"
	"fmt"
	"path"

	"github.com/sitereport/sitereport/internal/model"
)

// Artifact content types.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypePDF  = "application/pdf"
)

// BlobStore writes whole objects by key. Writing an existing key replaces it.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// ArtifactKeys returns the deterministic keys of a client's report month.
func ArtifactKeys(clientID, monthKey string) model.ArtifactKeys {
	base := path.Join("reports", clientID, monthKey)
	return model.ArtifactKeys{
		HTML: base + ".html",
		PDF:  base + ".pdf",
	}
}

// Backend names.
const (
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Backend            string
	S3Bucket           string
	S3Region           string
	S3Endpoint         string
	GCSBucket          string
	GCSCredentialsFile string
}

// New opens the configured backend.
func New(ctx context.Context, opts Options) (BlobStore, error) {
	switch opts.Backend {
	case BackendS3:
		return NewS3Store(ctx, opts.S3Bucket, opts.S3Region, opts.S3Endpoint)
	case BackendGCS:
		return NewGCSStore(ctx, opts.GCSBucket, opts.GCSCredentialsFile)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", opts.Backend)
	}
}
