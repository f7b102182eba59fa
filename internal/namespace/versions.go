package namespace

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/pathutil"
)

// Versions lists every stored version of the file at path, newest first.
func (n *Namespace) Versions(ctx context.Context, path string) ([]blobstore.Object, error) {
	path = pathutil.NormalizeFile(path)
	var out []blobstore.Object
	for obj, err := range n.bucket.FindByPrefix(ctx, path) {
		if err != nil {
			return nil, fmt.Errorf("namespace: versions %s: %w", path, err)
		}
		if obj.Key == path {
			out = append(out, obj)
		}
	}
	slices.SortStableFunc(out, func(a, b blobstore.Object) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Prune deletes every version of path except the latest one and reports how
// many were removed. Superseded versions are otherwise kept forever.
func (n *Namespace) Prune(ctx context.Context, path string) (int, error) {
	path = pathutil.NormalizeFile(path)
	latest, ok, err := n.FindFile(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("namespace: prune %s: %w", path, err)
	}
	if !ok {
		return 0, nil
	}
	versions, err := n.Versions(ctx, path)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, v := range versions {
		if v.Ref == latest.Ref {
			continue
		}
		if err := n.bucket.Delete(ctx, v.Ref); err != nil {
			return removed, refError("prune "+path, string(v.Ref), err)
		}
		removed++
	}
	if removed > 0 {
		n.logger.Debug("namespace: pruned", slog.String("path", path), slog.Int("versions", removed))
	}
	return removed, nil
}

// Walk returns the latest entry of every key below dir at any depth,
// sorted by key. dir's own marker is not included.
func (n *Namespace) Walk(ctx context.Context, dir string) ([]blobstore.Object, error) {
	dir = pathutil.NormalizeDir(dir)
	latest := make(map[string]blobstore.Object)
	for obj, err := range n.bucket.FindByPrefix(ctx, dir) {
		if err != nil {
			return nil, fmt.Errorf("namespace: walk %s: %w", dir, err)
		}
		if obj.Key == dir {
			continue
		}
		if cur, ok := latest[obj.Key]; !ok || obj.CreatedAt.After(cur.CreatedAt) {
			latest[obj.Key] = obj
		}
	}
	out := make([]blobstore.Object, 0, len(latest))
	for _, obj := range latest {
		out = append(out, obj)
	}
	slices.SortFunc(out, func(a, b blobstore.Object) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return out, nil
}
