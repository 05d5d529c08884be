// Package storage keeps the uploaded document files. Keys have the form
// "{company}/{filename}".
package storage

import (
	"context"
	"io"
)

// Store is a blob store addressed by key.
type Store interface {
	// Put writes a new blob. It fails with errors.ErrDuplicate when key exists.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	// Get opens a blob. A missing key is reported as errors.ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes a blob. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
