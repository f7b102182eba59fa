// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes one tenant's namespace as tools for LLM integration via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/dirstore/internal/namespace"
	"github.com/starford/dirstore/internal/pathutil"
	"github.com/starford/dirstore/internal/session"
)

const maxReadSize = 10 << 20 // 10 MB

// Server wraps the MCP server with dirstore tools bound to one session.
type Server struct {
	mcp       *server.MCPServer
	client    *session.Client
	checkHost func(host string) error
}

// New creates an MCP server acting as the user logged in on client.
func New(client *session.Client) *Server {
	s := &Server{client: client, checkHost: checkBlockedHost}

	s.mcp = server.NewMCPServer(
		"dirstore",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_files",
		mcp.WithDescription("List the direct children of a directory. Subdirectories end with \"/\"."),
		mcp.WithString("dir", mcp.Description("Directory to list (default /)")),
	), s.listFiles)

	s.mcp.AddTool(mcp.NewTool("read_file",
		mcp.WithDescription("Read the latest version of a file as text."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path (e.g. /docs/readme.md)")),
	), s.readFile)

	s.mcp.AddTool(mcp.NewTool("write_file",
		mcp.WithDescription("Store text at a file path, creating missing parent directories. "+
			"Read the path contract first via get_path_contract or the dirstore://path-contract resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path; must not end with /")),
		mcp.WithString("content", mcp.Required(), mcp.Description("File content")),
		mcp.WithBoolean("replace", mcp.Description("Replace an existing file (default true)")),
	), s.writeFile)

	s.mcp.AddTool(mcp.NewTool("make_dirs",
		mcp.WithDescription("Create a directory and every missing ancestor."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Directory path")),
	), s.makeDirs)

	s.mcp.AddTool(mcp.NewTool("remove_file",
		mcp.WithDescription("Delete the latest version of a file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
	), s.removeFile)

	s.mcp.AddTool(mcp.NewTool("remove_dir",
		mcp.WithDescription("Delete a directory. Non-empty directories need recursive=true."),
		mcp.WithString("dir", mcp.Required(), mcp.Description("Directory path")),
		mcp.WithBoolean("recursive", mcp.Description("Delete the whole subtree")),
	), s.removeDir)

	s.mcp.AddTool(mcp.NewTool("move_dir",
		mcp.WithDescription("Move a directory and everything below it to a new prefix."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source directory")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target directory")),
	), s.moveDir)

	s.mcp.AddTool(mcp.NewTool("rename_file",
		mcp.WithDescription("Rename one file. Fails if the target exists."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Source file path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("Target file path")),
	), s.renameFile)

	s.mcp.AddTool(mcp.NewTool("prune_file",
		mcp.WithDescription("Delete every stored version of a file except the latest."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path")),
	), s.pruneFile)

	s.mcp.AddTool(mcp.NewTool("fetch_file",
		mcp.WithDescription("Download an http(s) URL or decode a base64 data: URI and store it in a directory."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("dir", mcp.Description("Target directory (default /)")),
		mcp.WithString("filename", mcp.Description("Stored file name (default derived from the URL)")),
	), s.fetchFile)

	s.mcp.AddTool(mcp.NewTool("get_path_contract",
		mcp.WithDescription("Returns the dirstore path contract. Call this before writing files."),
	), s.getPathContract)

	s.mcp.AddResource(
		mcp.NewResource("dirstore://path-contract", "Path Contract",
			mcp.WithResourceDescription("How dirstore paths, directories and versions behave."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPathContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) namespace() (*namespace.Namespace, *mcp.CallToolResult) {
	ns, err := s.client.Namespace()
	if err != nil {
		return nil, mcp.NewToolResultError(err.Error())
	}
	return ns, nil
}

func (s *Server) listFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	dir := req.GetString("dir", pathutil.Root)
	keys, err := ns.ListFiles(ctx, dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(keys) == 0 {
		return mcp.NewToolResultText("empty directory"), nil
	}
	return mcp.NewToolResultText(strings.Join(keys, "\n")), nil
}

func (s *Server) readFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	obj, ok, err := ns.FindFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	if obj.Length > maxReadSize {
		return mcp.NewToolResultError(fmt.Sprintf("file too large: %d bytes (max %d)", obj.Length, maxReadSize)), nil
	}
	data, err := ns.ReadFile(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) writeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	target := pathutil.NormalizeFile(path)
	if _, err := ns.Upload(ctx, strings.NewReader(content), target, req.GetBool("replace", true)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("written: %s", target)), nil
}

func (s *Server) makeDirs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	if err := ns.MakeDirs(ctx, dir); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", pathutil.NormalizeDir(dir))), nil
}

func (s *Server) removeFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	if err := ns.Remove(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", pathutil.NormalizeFile(path))), nil
}

func (s *Server) removeDir(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, err := req.RequireString("dir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	removed, err := ns.RemoveDir(ctx, dir, req.GetBool("recursive", false))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%v (removed %d entries before failing)", err, len(removed))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed %d entries", len(removed))), nil
}

func (s *Server) moveDir(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	n, err := ns.MoveDir(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%v (moved %d entries before failing)", err, n)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved %d entries", n)), nil
}

func (s *Server) renameFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	if err := ns.Rename(ctx, from, to); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed: %s", pathutil.NormalizeFile(to))), nil
}

func (s *Server) pruneFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ns, fail := s.namespace()
	if fail != nil {
		return fail, nil
	}
	n, err := ns.Prune(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.Marshal(map[string]int{"pruned": n})
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getPathContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PathContract), nil
}

func (s *Server) readPathContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "dirstore://path-contract",
			MIMEType: "text/markdown",
			Text:     PathContract,
		},
	}, nil
}
