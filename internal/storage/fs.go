package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/starford/dirstore/internal/blobstore"
)

// Compression modes for FS.
const (
	CompressionNone = "none"
	CompressionZstd = "zstd"
	CompressionLZ4  = "lz4"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root        string // absolute path to payload directory
	compression string
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root, compression string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	switch compression {
	case "":
		compression = CompressionNone
	case CompressionNone, CompressionZstd, CompressionLZ4:
	default:
		return nil, fmt.Errorf("storage: unknown compression %q", compression)
	}
	return &FS{root: abs, compression: compression}, nil
}

// safePath maps collection/ref onto root, sharded by the first two
// characters of ref, and rejects anything that would escape root.
func (f *FS) safePath(collection, ref string) (string, error) {
	for _, part := range []string{collection, ref} {
		if part == "" || part == "." || strings.Contains(part, "..") || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("storage: invalid payload address %q/%q", collection, ref)
		}
	}
	shard := ref
	if len(shard) > 2 {
		shard = shard[:2]
	}
	abs := filepath.Join(f.root, collection, shard, ref)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes payload root: %s", abs)
	}
	return abs, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(ctx context.Context, collection, ref string, r io.Reader) (int64, error) {
	abs, err := f.safePath(collection, ref)
	if err != nil {
		return 0, err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".dirstore-tmp-*")
	if err != nil {
		return 0, fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := f.copyInto(ctx, tmp, r)
	if err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return 0, fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return n, nil
}

func (f *FS) copyInto(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	enc, err := f.encoder(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(enc, ctxReader{ctx: ctx, r: src})
	if err != nil {
		_ = enc.Close()
		return 0, fmt.Errorf("storage: write temp: %w", err)
	}
	if err := enc.Close(); err != nil {
		return 0, fmt.Errorf("storage: flush %s: %w", f.compression, err)
	}
	return n, nil
}

func (f *FS) encoder(dst io.Writer) (io.WriteCloser, error) {
	switch f.compression {
	case CompressionZstd:
		enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("storage: zstd writer: %w", err)
		}
		return enc, nil
	case CompressionLZ4:
		return lz4.NewWriter(dst), nil
	}
	return nopWriteCloser{dst}, nil
}

// Open returns a reader over the stored payload.
func (f *FS) Open(_ context.Context, collection, ref string) (io.ReadCloser, error) {
	abs, err := f.safePath(collection, ref)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("storage: open %s/%s: %w", collection, ref, blobstore.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: open %s/%s: %w", collection, ref, err)
	}
	switch f.compression {
	case CompressionZstd:
		dec, err := zstd.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("storage: zstd reader: %w", err)
		}
		return &zstdReadCloser{dec: dec, file: file}, nil
	case CompressionLZ4:
		return &readCloser{Reader: lz4.NewReader(file), file: file}, nil
	}
	return file, nil
}

// Delete removes a payload file.
func (f *FS) Delete(_ context.Context, collection, ref string) error {
	abs, err := f.safePath(collection, ref)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("storage: delete %s/%s: %w", collection, ref, blobstore.ErrNotFound)
		}
		return fmt.Errorf("storage: delete %s/%s: %w", collection, ref, err)
	}
	return nil
}

type zstdReadCloser struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.file.Close()
}

type readCloser struct {
	io.Reader
	file *os.File
}

func (r *readCloser) Close() error { return r.file.Close() }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
