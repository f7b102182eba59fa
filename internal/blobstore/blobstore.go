// Package blobstore is the narrow facade the namespace engine uses to talk
// to a flat, versioned object store.
//
// The store never overwrites by key: every Put creates a new entry with its
// own ObjectRef and creation timestamp, and several entries may share a key.
// Implementations add no retry policy; store faults surface as-is.
package blobstore

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/starford/dirstore/internal/models"
)

// Store-level faults.
var (
	ErrNotFound     = errors.New("blobstore: object not found")
	ErrUnauthorized = errors.New("blobstore: not authorized")
	ErrAuthFailed   = errors.New("blobstore: authentication failed")
	ErrDuplicate    = errors.New("blobstore: duplicate key")
	ErrClosed       = errors.New("blobstore: connection closed")
)

// ObjectRef is the store-assigned identity of one entry. It is distinct from
// the entry's key and stays stable across Rename.
type ObjectRef string

// Metadata is the caller-controlled part of an entry.
type Metadata struct {
	IsDir bool `json:"is_dir"`
}

// Object describes one stored entry.
type Object struct {
	Ref       ObjectRef `json:"ref"`
	Key       string    `json:"key"`
	IsDir     bool      `json:"is_dir"`
	Length    int64     `json:"length"`
	Checksum  string    `json:"checksum,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Bucket is one tenant partition of the store.
type Bucket interface {
	// Put always creates a new entry, even when key is already in use.
	Put(ctx context.Context, key string, r io.Reader, meta Metadata) (ObjectRef, error)
	// FindLatest returns the entry with the greatest creation time for an
	// exact key match. ok is false when no entry has that key.
	FindLatest(ctx context.Context, key string) (obj Object, ok bool, err error)
	// FindByPrefix lazily yields every entry whose key starts with prefix,
	// in no particular order.
	FindByPrefix(ctx context.Context, prefix string) iter.Seq2[Object, error]
	// Stat returns the entry for ref, or ErrNotFound.
	Stat(ctx context.Context, ref ObjectRef) (Object, error)
	// Open streams the payload of ref. The caller closes the reader.
	Open(ctx context.Context, ref ObjectRef) (io.ReadCloser, error)
	Delete(ctx context.Context, ref ObjectRef) error
	// Rename changes only the key; payload and ref are untouched.
	Rename(ctx context.Context, ref ObjectRef, newKey string) error
}

// Conn is an authenticated connection scoped to one user's privileges.
type Conn interface {
	// Bucket binds a partition by name. Access is checked per call.
	Bucket(name string) Bucket
	Username() string
	Close() error
}

// Connector opens connections to a store database.
type Connector interface {
	Connect(ctx context.Context, creds models.Credentials, database string) (Conn, error)
}

// Collect drains a FindByPrefix sequence into a slice.
func Collect(seq iter.Seq2[Object, error]) ([]Object, error) {
	var out []Object
	for obj, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
