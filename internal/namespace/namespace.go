// Package namespace makes a flat, versioned bucket behave like a directory
// tree.
//
// Directories are zero-length marker entries whose key ends in "/". The
// hierarchy is recomputed from key strings on every call; nothing is cached.
// Multi-entry operations (replace upload, recursive delete, move) are plain
// sequences of store calls. A failure partway through leaves whatever the
// completed calls produced and is not rolled back.
package namespace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/models"
	"github.com/starford/dirstore/internal/pathutil"
)

// Namespace is the directory view of one tenant partition. Calls on one
// Namespace are expected to be sequential; concurrent handles on the same
// partition may race.
type Namespace struct {
	bucket    blobstore.Bucket
	partition string
	logger    *slog.Logger
	notify    func(models.Event)
}

// Option configures a Namespace.
type Option func(*Namespace)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Namespace) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithPartition labels published events with the partition name.
func WithPartition(name string) Option {
	return func(n *Namespace) {
		n.partition = name
	}
}

// WithNotifier registers fn to receive an event after each successful
// mutation.
func WithNotifier(fn func(models.Event)) Option {
	return func(n *Namespace) {
		n.notify = fn
	}
}

// New binds a namespace to bucket.
func New(bucket blobstore.Bucket, opts ...Option) *Namespace {
	n := &Namespace{bucket: bucket, logger: slog.Default()}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Partition returns the partition label.
func (n *Namespace) Partition() string {
	return n.partition
}

func (n *Namespace) publish(kind, path, target string) {
	if n.notify == nil {
		return
	}
	n.notify(models.Event{Kind: kind, Partition: n.partition, Path: path, Target: target})
}

// FindFile resolves the latest entry stored at path.
func (n *Namespace) FindFile(ctx context.Context, path string) (blobstore.Object, bool, error) {
	return n.bucket.FindLatest(ctx, pathutil.NormalizeFile(path))
}

// FindDir resolves the directory marker for path. A file entry at the same
// key does not count. The root always exists and has no marker.
func (n *Namespace) FindDir(ctx context.Context, path string) (blobstore.Object, bool, error) {
	dir := pathutil.NormalizeDir(path)
	if dir == pathutil.Root {
		return blobstore.Object{Key: pathutil.Root, IsDir: true}, true, nil
	}
	obj, ok, err := n.bucket.FindLatest(ctx, dir)
	if err != nil || !ok {
		return blobstore.Object{}, false, err
	}
	if !obj.IsDir {
		return blobstore.Object{}, false, nil
	}
	return obj, true, nil
}

// Stat returns the entry behind ref. A ref that no longer resolves is
// apperr.ErrInvalidFile.
func (n *Namespace) Stat(ctx context.Context, ref blobstore.ObjectRef) (blobstore.Object, error) {
	obj, err := n.bucket.Stat(ctx, ref)
	if err != nil {
		return blobstore.Object{}, refError("stat", string(ref), err)
	}
	return obj, nil
}

// Upload stores r at target. An existing file is deleted first when replace
// is set, otherwise the call fails with apperr.ErrAlreadyExists. Missing
// parent directories are created.
func (n *Namespace) Upload(ctx context.Context, r io.Reader, target string, replace bool) (blobstore.ObjectRef, error) {
	target = pathutil.NormalizeFile(target)
	if pathutil.IsDir(target) {
		return "", fmt.Errorf("namespace: upload %s: target is a directory path: %w", target, apperr.ErrInvalidPath)
	}

	existing, ok, err := n.FindFile(ctx, target)
	if err != nil {
		return "", fmt.Errorf("namespace: upload %s: %w", target, err)
	}
	if ok {
		if !replace {
			return "", fmt.Errorf("namespace: upload %s: %w", target, apperr.ErrAlreadyExists)
		}
		if err := n.bucket.Delete(ctx, existing.Ref); err != nil {
			return "", refError("upload "+target, string(existing.Ref), err)
		}
	}

	if err := n.MakeDirs(ctx, pathutil.Dirname(target)); err != nil {
		return "", fmt.Errorf("namespace: upload %s: %w", target, err)
	}

	ref, err := n.bucket.Put(ctx, target, r, blobstore.Metadata{})
	if err != nil {
		return "", fmt.Errorf("namespace: upload %s: %w", target, err)
	}
	n.logger.Debug("namespace: uploaded", slog.String("path", target), slog.Bool("replaced", ok))
	n.publish(models.EventFileCreated, target, "")
	return ref, nil
}

// Download streams the latest version of path into w and returns the
// resolved key. apperr.ErrNoFile is returned when nothing resolves or the
// entry vanishes mid-stream.
func (n *Namespace) Download(ctx context.Context, path string, w io.Writer) (string, error) {
	obj, rc, err := n.OpenFile(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return "", vanished(obj.Key, err)
	}
	return obj.Key, nil
}

// OpenFile resolves path once and opens that version's payload. The
// returned object describes exactly the bytes rc yields, even if a newer
// version is uploaded before rc is drained. The caller closes rc.
func (n *Namespace) OpenFile(ctx context.Context, path string) (blobstore.Object, io.ReadCloser, error) {
	obj, err := n.resolveFile(ctx, "download", path)
	if err != nil {
		return blobstore.Object{}, nil, err
	}
	rc, err := n.bucket.Open(ctx, obj.Ref)
	if err != nil {
		return blobstore.Object{}, nil, vanished(obj.Key, err)
	}
	return obj, rc, nil
}

func (n *Namespace) resolveFile(ctx context.Context, op, path string) (blobstore.Object, error) {
	path = pathutil.NormalizeFile(path)
	obj, ok, err := n.FindFile(ctx, path)
	if err != nil {
		return blobstore.Object{}, fmt.Errorf("namespace: %s %s: %w", op, path, err)
	}
	if !ok {
		return blobstore.Object{}, fmt.Errorf("namespace: %s %s: %w", op, path, apperr.ErrNoFile)
	}
	return obj, nil
}

func (n *Namespace) copyPayload(ctx context.Context, obj blobstore.Object, w io.Writer) error {
	rc, err := n.bucket.Open(ctx, obj.Ref)
	if err != nil {
		return vanished(obj.Key, err)
	}
	defer rc.Close()
	if _, err := io.Copy(w, rc); err != nil {
		return vanished(obj.Key, err)
	}
	return nil
}

func vanished(key string, err error) error {
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("namespace: download %s: %w", key, apperr.ErrNoFile)
	}
	return fmt.Errorf("namespace: download %s: %w", key, err)
}

// ReadFile returns the whole latest payload of path.
func (n *Namespace) ReadFile(ctx context.Context, path string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := n.Download(ctx, path, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MakeDir creates the marker for one directory. An existing marker is
// returned unchanged; an existing file at that key is
// apperr.ErrAlreadyExists. Parents are not created.
func (n *Namespace) MakeDir(ctx context.Context, path string) (blobstore.ObjectRef, error) {
	dir := pathutil.NormalizeDir(path)
	if dir == pathutil.Root {
		return "", nil
	}
	obj, ok, err := n.bucket.FindLatest(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("namespace: mkdir %s: %w", dir, err)
	}
	if ok {
		if !obj.IsDir {
			return "", fmt.Errorf("namespace: mkdir %s: %w", dir, apperr.ErrAlreadyExists)
		}
		return obj.Ref, nil
	}

	ref, err := n.bucket.Put(ctx, dir, bytes.NewReader(nil), blobstore.Metadata{IsDir: true})
	if err != nil {
		return "", fmt.Errorf("namespace: mkdir %s: %w", dir, err)
	}
	n.logger.Debug("namespace: dir created", slog.String("path", dir))
	n.publish(models.EventDirCreated, dir, "")
	return ref, nil
}

// MakeDirs creates path and every missing ancestor, outermost first. It
// stops at the first ancestor that exists as a file.
func (n *Namespace) MakeDirs(ctx context.Context, path string) error {
	for _, dir := range pathutil.Ancestors(path) {
		if _, err := n.MakeDir(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// ListFiles returns the keys directly below dir: files without a trailing
// "/" and subdirectories with one. Each key appears once. Order follows the
// store and is not sorted.
func (n *Namespace) ListFiles(ctx context.Context, dir string) ([]string, error) {
	dir = pathutil.NormalizeDir(dir)
	seen := make(map[string]struct{})
	var out []string
	for obj, err := range n.bucket.FindByPrefix(ctx, dir) {
		if err != nil {
			return nil, fmt.Errorf("namespace: list %s: %w", dir, err)
		}
		if !pathutil.IsDirectChild(dir, obj.Key) {
			continue
		}
		if _, dup := seen[obj.Key]; dup {
			continue
		}
		seen[obj.Key] = struct{}{}
		out = append(out, obj.Key)
	}
	return out, nil
}

// Remove deletes the latest version of path. Older versions stay.
func (n *Namespace) Remove(ctx context.Context, path string) error {
	obj, err := n.resolveFile(ctx, "remove", path)
	if err != nil {
		return err
	}
	if err := n.bucket.Delete(ctx, obj.Ref); err != nil {
		return refError("remove "+obj.Key, string(obj.Ref), err)
	}
	n.logger.Debug("namespace: removed", slog.String("path", obj.Key))
	n.publish(models.EventFileDeleted, obj.Key, "")
	return nil
}

// RemoveDir deletes dir's marker and, when recursive, everything below it.
// Without recursive a directory holding anything besides its own marker
// fails with apperr.ErrDirNotEmpty. The deleted entries are returned.
func (n *Namespace) RemoveDir(ctx context.Context, dir string, recursive bool) ([]blobstore.Object, error) {
	dir = pathutil.NormalizeDir(dir)
	entries, err := blobstore.Collect(n.bucket.FindByPrefix(ctx, dir))
	if err != nil {
		return nil, fmt.Errorf("namespace: rmdir %s: %w", dir, err)
	}
	if !recursive {
		for _, e := range entries {
			if e.Key != dir {
				return nil, fmt.Errorf("namespace: rmdir %s: %w", dir, apperr.ErrDirNotEmpty)
			}
		}
	}

	for i, e := range entries {
		if err := n.bucket.Delete(ctx, e.Ref); err != nil {
			n.logger.Warn("namespace: rmdir interrupted",
				slog.String("path", dir), slog.Int("deleted", i), slog.Int("total", len(entries)))
			return entries[:i], refError("rmdir "+e.Key, string(e.Ref), err)
		}
	}
	n.logger.Debug("namespace: dir removed", slog.String("path", dir), slog.Int("entries", len(entries)))
	n.publish(models.EventDirDeleted, dir, "")
	return entries, nil
}

// MoveDir rewrites the prefix dir to target on every entry below dir,
// marker included, and returns the number of entries renamed. Entries are
// collected before the first rename. Missing parents of target are created.
func (n *Namespace) MoveDir(ctx context.Context, dir, target string) (int, error) {
	dir = pathutil.NormalizeDir(dir)
	target = pathutil.NormalizeDir(target)
	if dir == target {
		return 0, nil
	}
	if strings.HasPrefix(target, dir) {
		return 0, fmt.Errorf("namespace: move %s into %s: %w", dir, target, apperr.ErrInvalidPath)
	}

	entries, err := blobstore.Collect(n.bucket.FindByPrefix(ctx, dir))
	if err != nil {
		return 0, fmt.Errorf("namespace: move %s: %w", dir, err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := n.MakeDirs(ctx, pathutil.Dirname(strings.TrimSuffix(target, pathutil.Separator))); err != nil {
		return 0, fmt.Errorf("namespace: move %s: %w", dir, err)
	}

	for i, e := range entries {
		newKey := pathutil.ReplacePrefix(e.Key, dir, target)
		if err := n.bucket.Rename(ctx, e.Ref, newKey); err != nil {
			n.logger.Warn("namespace: move interrupted",
				slog.String("from", dir), slog.String("to", target),
				slog.Int("moved", i), slog.Int("total", len(entries)))
			return i, refError("move "+e.Key, string(e.Ref), err)
		}
	}
	n.logger.Debug("namespace: dir moved",
		slog.String("from", dir), slog.String("to", target), slog.Int("entries", len(entries)))
	n.publish(models.EventDirMoved, dir, target)
	return len(entries), nil
}

// Rename moves the latest version of one file to newPath. An existing file
// at newPath is apperr.ErrAlreadyExists. Missing parents are created.
func (n *Namespace) Rename(ctx context.Context, path, newPath string) error {
	obj, err := n.resolveFile(ctx, "rename", path)
	if err != nil {
		return err
	}
	newPath = pathutil.NormalizeFile(newPath)
	if newPath == obj.Key {
		return nil
	}
	if _, ok, err := n.FindFile(ctx, newPath); err != nil {
		return fmt.Errorf("namespace: rename %s: %w", obj.Key, err)
	} else if ok {
		return fmt.Errorf("namespace: rename %s: %s: %w", obj.Key, newPath, apperr.ErrAlreadyExists)
	}
	if err := n.MakeDirs(ctx, pathutil.Dirname(newPath)); err != nil {
		return fmt.Errorf("namespace: rename %s: %w", obj.Key, err)
	}
	if err := n.bucket.Rename(ctx, obj.Ref, newPath); err != nil {
		return refError("rename "+obj.Key, string(obj.Ref), err)
	}
	n.logger.Debug("namespace: renamed", slog.String("from", obj.Key), slog.String("to", newPath))
	n.publish(models.EventFileMoved, obj.Key, newPath)
	return nil
}

// refError maps a store miss on an already resolved ref to
// apperr.ErrInvalidFile. Other faults pass through.
func refError(op, ref string, err error) error {
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("namespace: %s: ref %s: %w", op, ref, apperr.ErrInvalidFile)
	}
	return fmt.Errorf("namespace: %s: %w", op, err)
}
