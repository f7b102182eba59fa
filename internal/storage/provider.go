// Package storage holds payload providers: places where entry bytes live
// when they are not chunked into the catalog itself.
//
// A payload is addressed by its collection (a partition's ".chunks"
// collection) and the entry's object ref. Payloads are write-once.
package storage

import (
	"context"
	"io"
)

// Provider is the interface for entry payload storage.
type Provider interface {
	// Write stores the full contents of r and returns the bytes consumed.
	Write(ctx context.Context, collection, ref string, r io.Reader) (int64, error)
	// Open streams a payload; a missing payload is blobstore.ErrNotFound.
	Open(ctx context.Context, collection, ref string) (io.ReadCloser, error)
	// Delete removes a payload; a missing payload is blobstore.ErrNotFound.
	Delete(ctx context.Context, collection, ref string) error
}
