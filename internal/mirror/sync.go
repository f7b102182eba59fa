// Package mirror keeps a namespace subtree in step with a local directory.
// The local side is authoritative: Sync and Watch push changes up and never
// write to disk.
package mirror

import (
	"cmp"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/checksum"
	"github.com/starford/dirstore/internal/namespace"
	"github.com/starford/dirstore/internal/pathutil"
)

// Report counts what a Sync pass changed.
type Report struct {
	Uploaded  int
	Removed   int
	Unchanged int
}

// skipName reports local files the mirror never uploads.
func skipName(name string) bool {
	return strings.HasPrefix(name, ".dirstore-")
}

// keyFor maps an absolute local path under root to its key under target.
func keyFor(root, target, abs string, isDir bool) (string, error) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	base := pathutil.NormalizeDir(target)
	if rel == "." {
		return base, nil
	}
	key := base + filepath.ToSlash(rel)
	if isDir {
		key += pathutil.Separator
	}
	return key, nil
}

type localTree struct {
	files map[string]string // key -> absolute path
	dirs  map[string]struct{}
}

func scan(root, target string) (localTree, error) {
	tree := localTree{files: make(map[string]string), dirs: make(map[string]struct{})}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if skipName(d.Name()) {
			return nil
		}
		key, err := keyFor(root, target, path, d.IsDir())
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			tree.dirs[key] = struct{}{}
		case d.Type().IsRegular():
			tree.files[key] = path
		}
		return nil
	})
	return tree, err
}

// Sync brings the namespace subtree at target up to date with the local
// directory root:
//   - new or changed files are uploaded (checksum comparison)
//   - local directories get markers, including empty ones
//   - files and directories missing locally are removed from the namespace
//
// Failures on single entries are logged and skipped. Only failing to read
// either side aborts the pass.
func Sync(ctx context.Context, ns *namespace.Namespace, root, target string, logger *slog.Logger) (Report, error) {
	var rep Report
	local, err := scan(root, target)
	if err != nil {
		return rep, err
	}
	remote, err := ns.Walk(ctx, target)
	if err != nil {
		return rep, err
	}

	sums := make(map[string]string, len(remote))
	var remoteDirs []string
	for _, obj := range remote {
		if obj.IsDir {
			remoteDirs = append(remoteDirs, obj.Key)
			continue
		}
		sums[obj.Key] = obj.Checksum
	}

	for dir := range local.dirs {
		if err := ns.MakeDirs(ctx, dir); err != nil {
			logger.Warn("mirror: mkdir failed", slog.String("path", dir), slog.String("error", err.Error()))
		}
	}

	for key, abs := range local.files {
		sum, err := checksum.File(abs)
		if err != nil {
			logger.Warn("mirror: read failed", slog.String("path", abs), slog.String("error", err.Error()))
			continue
		}
		if cur, ok := sums[key]; ok && cur == sum {
			rep.Unchanged++
			continue
		}
		if _, err := ns.UploadFile(ctx, abs, key, true); err != nil {
			logger.Warn("mirror: upload failed", slog.String("path", key), slog.String("error", err.Error()))
			continue
		}
		rep.Uploaded++
		logger.Debug("mirror: uploaded", slog.String("path", key))
	}

	for key := range sums {
		if _, ok := local.files[key]; ok {
			continue
		}
		// Older versions would resurface as latest once the current one
		// is gone.
		if _, err := ns.Prune(ctx, key); err != nil {
			logger.Warn("mirror: prune failed", slog.String("path", key), slog.String("error", err.Error()))
			continue
		}
		if err := ns.Remove(ctx, key); err != nil && !errors.Is(err, apperr.ErrNoFile) {
			logger.Warn("mirror: remove failed", slog.String("path", key), slog.String("error", err.Error()))
			continue
		}
		rep.Removed++
		logger.Debug("mirror: removed stale", slog.String("path", key))
	}

	// Deepest first so parents are empty by the time they are reached.
	slices.SortFunc(remoteDirs, func(a, b string) int {
		return cmp.Compare(strings.Count(b, pathutil.Separator), strings.Count(a, pathutil.Separator))
	})
	for _, dir := range remoteDirs {
		if _, ok := local.dirs[dir]; ok {
			continue
		}
		if _, err := ns.RemoveDir(ctx, dir, false); err != nil {
			logger.Warn("mirror: rmdir failed", slog.String("path", dir), slog.String("error", err.Error()))
			continue
		}
		rep.Removed++
		logger.Debug("mirror: removed stale dir", slog.String("path", dir))
	}

	return rep, nil
}
