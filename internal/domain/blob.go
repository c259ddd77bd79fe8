package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is one object in the archive bucket.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobWriter stores archive objects.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader reads archive objects back for operators and for the
// archiver's post-upload check. A missing path from Get is ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves trades recorded before a cutoff out of the primary store
// and reports how many rows it removed. Zero means nothing is left.
type Archiver interface {
	ArchiveTrades(ctx context.Context, before time.Time) (int64, error)
}
