package storage

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound is returned by Open when nothing is stored at the path.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore persists raw image bytes outside the metadata table.
type BlobStore interface {
	// Save writes the content under name and returns the path to store in
	// metadata. Saving the same name twice replaces the earlier content.
	Save(ctx context.Context, name string, r io.Reader, size int64) (string, error)
	// Open returns a reader over the content saved at path, or ErrBlobNotFound.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Delete removes the content at path. Missing content is not an error.
	Delete(ctx context.Context, path string) error
}
