package mirror

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/dirstore/internal/namespace"
	"github.com/starford/dirstore/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testNamespace(t *testing.T) *namespace.Namespace {
	t.Helper()
	srv := testutil.TestServer(t)
	ns, err := testutil.TestClient(t, srv, "alice").Namespace()
	if err != nil {
		t.Fatal(err)
	}
	return ns
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestKeyFor(t *testing.T) {
	root := filepath.FromSlash("/data/local")
	tests := []struct {
		target string
		abs    string
		isDir  bool
		want   string
	}{
		{"/m", "/data/local", true, "/m/"},
		{"/m/", "/data/local/a.txt", false, "/m/a.txt"},
		{"/", "/data/local/sub", true, "/sub/"},
		{"m", "/data/local/sub/b.txt", false, "/m/sub/b.txt"},
	}
	for _, tt := range tests {
		got, err := keyFor(root, tt.target, filepath.FromSlash(tt.abs), tt.isDir)
		if err != nil {
			t.Fatalf("keyFor(%q): %v", tt.abs, err)
		}
		if got != tt.want {
			t.Errorf("keyFor(%q, %q) = %q, want %q", tt.target, tt.abs, got, tt.want)
		}
	}
}

func TestSync(t *testing.T) {
	ctx := context.Background()
	ns := testNamespace(t)
	root := t.TempDir()
	logger := quietLogger()

	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(root, ".dirstore-tmp"), "scratch")
	if err := os.Mkdir(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	rep, err := Sync(ctx, ns, root, "/m", logger)
	if err != nil {
		t.Fatal(err)
	}
	if rep != (Report{Uploaded: 2}) {
		t.Errorf("first sync = %+v", rep)
	}

	keys, err := ns.ListFiles(ctx, "/m")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"/m/a.txt": true, "/m/sub/": true, "/m/empty/": true}
	if len(keys) != len(want) {
		t.Fatalf("ListFiles(/m) = %v", keys)
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
	}

	rep, err = Sync(ctx, ns, root, "/m", logger)
	if err != nil {
		t.Fatal(err)
	}
	if rep != (Report{Unchanged: 2}) {
		t.Errorf("second sync = %+v", rep)
	}

	writeFile(t, filepath.Join(root, "a.txt"), "changed")
	if err := os.RemoveAll(filepath.Join(root, "sub")); err != nil {
		t.Fatal(err)
	}
	rep, err = Sync(ctx, ns, root, "/m", logger)
	if err != nil {
		t.Fatal(err)
	}
	// sub/b.txt and the sub/ marker.
	if rep != (Report{Uploaded: 1, Removed: 2}) {
		t.Errorf("third sync = %+v", rep)
	}

	data, err := ns.ReadFile(ctx, "/m/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "changed" {
		t.Errorf("a.txt = %q", data)
	}
	if _, ok, _ := ns.FindDir(ctx, "/m/sub"); ok {
		t.Error("/m/sub/ should be gone")
	}
	if _, ok, _ := ns.FindFile(ctx, "/m/.dirstore-tmp"); ok {
		t.Error("scratch files must not be uploaded")
	}
}

func TestSyncMissingRoot(t *testing.T) {
	ns := testNamespace(t)
	if _, err := Sync(context.Background(), ns, filepath.Join(t.TempDir(), "nope"), "/m", quietLogger()); err == nil {
		t.Error("expected error for missing local root")
	}
}
