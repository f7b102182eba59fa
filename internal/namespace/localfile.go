package namespace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/pathutil"
)

// UploadFile uploads the local file at source to target.
func (n *Namespace) UploadFile(ctx context.Context, source, target string, replace bool) (blobstore.ObjectRef, error) {
	f, err := os.Open(source)
	if err != nil {
		return "", fmt.Errorf("namespace: open %s: %w", source, err)
	}
	defer f.Close()
	return n.Upload(ctx, f, target, replace)
}

// DownloadToFile writes the latest version of path to the local file
// target and returns the local path written. An empty target means the
// basename of path in the working directory. Missing local parent
// directories are created. Nothing is written when path does not resolve.
func (n *Namespace) DownloadToFile(ctx context.Context, path, target string) (string, error) {
	obj, err := n.resolveFile(ctx, "download", path)
	if err != nil {
		return "", err
	}
	if target == "" {
		target = pathutil.Basename(obj.Key)
	}
	if dir := filepath.Dir(target); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("namespace: create %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".dirstore-dl-*")
	if err != nil {
		return "", fmt.Errorf("namespace: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if err := n.copyPayload(ctx, obj, tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("namespace: close temp: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return "", fmt.Errorf("namespace: rename to %s: %w", target, err)
	}
	tmpName = ""
	return target, nil
}
