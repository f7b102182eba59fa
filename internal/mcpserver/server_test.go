package mcpserver

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/dirstore/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	srv := testutil.TestServer(t)
	client := testutil.TestClient(t, srv, "alice")
	s := New(client)
	// httptest servers listen on loopback.
	s.checkHost = func(string) error { return nil }
	return s
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_files":        srv.listFiles,
		"read_file":         srv.readFile,
		"write_file":        srv.writeFile,
		"make_dirs":         srv.makeDirs,
		"remove_file":       srv.removeFile,
		"remove_dir":        srv.removeDir,
		"move_dir":          srv.moveDir,
		"rename_file":       srv.renameFile,
		"prune_file":        srv.pruneFile,
		"fetch_file":        srv.fetchFile,
		"get_path_contract": srv.getPathContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestWriteAndReadFile(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "write_file", map[string]any{"path": "notes/a.txt", "content": "hello"})
	if r.IsError || resultText(r) != "written: /notes/a.txt" {
		t.Fatalf("write result = %q", resultText(r))
	}

	r = callTool(t, srv, "read_file", map[string]any{"path": "/notes/a.txt"})
	if resultText(r) != "hello" {
		t.Errorf("read result = %q", resultText(r))
	}

	r = callTool(t, srv, "write_file", map[string]any{"path": "/notes/a.txt", "content": "x", "replace": false})
	if !r.IsError {
		t.Error("write with replace=false over existing file should fail")
	}
}

func TestReadFileMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_file", map[string]any{"path": "/nope.txt"})
	if !r.IsError {
		t.Error("expected error for missing file")
	}
	r = callTool(t, srv, "read_file", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing argument")
	}
}

func TestListAndDirectories(t *testing.T) {
	srv := testServer(t)

	if r := callTool(t, srv, "list_files", map[string]any{}); resultText(r) != "empty directory" {
		t.Errorf("empty list = %q", resultText(r))
	}

	callTool(t, srv, "make_dirs", map[string]any{"dir": "/a/b"})
	callTool(t, srv, "write_file", map[string]any{"path": "/a/f.txt", "content": "f"})

	r := callTool(t, srv, "list_files", map[string]any{"dir": "/a"})
	got := strings.Split(resultText(r), "\n")
	if len(got) != 2 {
		t.Fatalf("list /a = %q", resultText(r))
	}

	if r := callTool(t, srv, "remove_dir", map[string]any{"dir": "/a"}); !r.IsError {
		t.Error("removing non-empty dir without recursive should fail")
	}
	r = callTool(t, srv, "remove_dir", map[string]any{"dir": "/a", "recursive": true})
	if r.IsError || resultText(r) != "removed 3 entries" {
		t.Errorf("recursive remove = %q", resultText(r))
	}
}

func TestMoveRenameRemove(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "write_file", map[string]any{"path": "/src/a.txt", "content": "a"})

	r := callTool(t, srv, "move_dir", map[string]any{"from": "/src", "to": "/dst"})
	if r.IsError || resultText(r) != "moved 2 entries" {
		t.Fatalf("move = %q", resultText(r))
	}
	r = callTool(t, srv, "rename_file", map[string]any{"from": "/dst/a.txt", "to": "/dst/b.txt"})
	if r.IsError {
		t.Fatalf("rename = %q", resultText(r))
	}
	if r := callTool(t, srv, "read_file", map[string]any{"path": "/dst/b.txt"}); resultText(r) != "a" {
		t.Errorf("read renamed = %q", resultText(r))
	}
	if r := callTool(t, srv, "remove_file", map[string]any{"path": "/dst/b.txt"}); r.IsError {
		t.Errorf("remove = %q", resultText(r))
	}
	if r := callTool(t, srv, "remove_file", map[string]any{"path": "/dst/b.txt"}); !r.IsError {
		t.Error("second remove should fail")
	}
}

func TestPruneFile(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "write_file", map[string]any{"path": "/p.txt", "content": "1"})
	r := callTool(t, srv, "prune_file", map[string]any{"path": "/p.txt"})
	if resultText(r) != `{"pruned":0}` {
		t.Errorf("prune = %q", resultText(r))
	}
}

func TestFetchFileDataURI(t *testing.T) {
	srv := testServer(t)
	uri := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("inline"))

	r := callTool(t, srv, "fetch_file", map[string]any{"url": uri, "dir": "/in", "filename": "x.txt"})
	if r.IsError || resultText(r) != "stored 6 bytes at /in/x.txt" {
		t.Fatalf("fetch = %q", resultText(r))
	}
	if r := callTool(t, srv, "read_file", map[string]any{"path": "/in/x.txt"}); resultText(r) != "inline" {
		t.Errorf("read = %q", resultText(r))
	}
}

func TestFetchFileHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("remote body"))
	}))
	defer ts.Close()
	srv := testServer(t)

	r := callTool(t, srv, "fetch_file", map[string]any{"url": ts.URL + "/files/report.txt"})
	if r.IsError || resultText(r) != "stored 11 bytes at /report.txt" {
		t.Fatalf("fetch = %q", resultText(r))
	}
	// Fetching never overwrites.
	if r := callTool(t, srv, "fetch_file", map[string]any{"url": ts.URL + "/files/report.txt"}); !r.IsError {
		t.Error("second fetch to the same name should fail")
	}
}

func TestFetchFileBlockedHost(t *testing.T) {
	srv := testServer(t)
	srv.checkHost = checkBlockedHost
	for _, u := range []string{"http://127.0.0.1/x.txt", "http://169.254.169.254/latest", "ftp://example.com/x"} {
		if r := callTool(t, srv, "fetch_file", map[string]any{"url": u}); !r.IsError {
			t.Errorf("fetch %s should fail", u)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.txt":      "report.txt",
		"../../etc/pass":  "pass",
		`dir\evil name.c`: "evil_name.c",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	if got := sanitizeFilename(".."); got == ".." || got == "" {
		t.Errorf("sanitizeFilename(..) = %q", got)
	}
}

func TestToolsFailAfterSessionClose(t *testing.T) {
	srv := testServer(t)
	srv.client.Close()
	if r := callTool(t, srv, "list_files", map[string]any{}); !r.IsError {
		t.Error("tools should fail on a closed session")
	}
}

func TestPathContract(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_path_contract", nil)
	if !strings.Contains(resultText(r), "dirstore Path Contract") {
		t.Errorf("contract = %q", resultText(r))
	}
}
