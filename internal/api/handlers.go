package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/namespace"
	"github.com/starford/dirstore/internal/pathutil"
)

const maxBodyBytes = 50 << 20 // 50 MB

// Handler holds the tenant filesystem handlers. Each request works on the
// namespace of the session opened by TenantAuth.
type Handler struct{}

// NewHandler creates a new Handler.
func NewHandler() *Handler {
	return &Handler{}
}

// entryPath extracts the store path from the URL (everything after the
// route prefix). Supports encoded slashes from OpenAPI clients.
func entryPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return pathutil.Root + raw
}

func boolParam(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// namespaceOf returns the caller's namespace or writes the failure.
func namespaceOf(w http.ResponseWriter, r *http.Request) (*namespace.Namespace, bool) {
	client := clientFrom(r)
	if client == nil {
		writeError(w, apperr.ErrNotAuthenticated)
		return nil, false
	}
	ns, err := client.Namespace()
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return ns, true
}

func fail(w http.ResponseWriter, op, path string, err error) {
	if statusOf(err) == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	writeError(w, err)
}

// ListFiles handles GET /api/fs/list/*.
//
//	@Summary		List the direct children of a directory
//	@Tags			fs
//	@Produce		json
//	@Param			path	path		string	true	"Directory path"
//	@Success		200		{object}	ListResponse
//	@Security		BasicAuth
//	@Router			/fs/list/{path} [get]
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	dir := pathutil.NormalizeDir(entryPath(r))
	keys, err := ns.ListFiles(r.Context(), dir)
	if err != nil {
		fail(w, "list", dir, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Dir: dir, Entries: keys})
}

// Download handles GET /api/fs/files/*.
//
//	@Summary		Download the latest version of a file
//	@Tags			fs
//	@Produce		application/octet-stream
//	@Param			path	path	string	true	"File path"
//	@Success		200		"Payload"
//	@Failure		404		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/fs/files/{path} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	path := entryPath(r)
	obj, rc, err := ns.OpenFile(r.Context(), path)
	if err != nil {
		fail(w, "download", path, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Length, 10))
	if obj.Checksum != "" {
		w.Header().Set("ETag", `"`+obj.Checksum+`"`)
	}
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; the client sees a truncated body.
		slog.Error("download interrupted", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// Upload handles PUT /api/fs/files/*.
//
//	@Summary		Upload a file from the raw request body
//	@Tags			fs
//	@Accept			application/octet-stream
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Param			replace	query		bool	false	"Replace an existing file (default true)"
//	@Success		201		{object}	UploadResponse
//	@Failure		409		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/fs/files/{path} [put]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := pathutil.NormalizeFile(entryPath(r))
	ref, err := ns.Upload(r.Context(), r.Body, path, boolParam(r, "replace", true))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("payload too large"))
			return
		}
		fail(w, "upload", path, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{Ref: string(ref), Path: path})
}

// Remove handles DELETE /api/fs/files/*.
//
//	@Summary		Delete the latest version of a file
//	@Tags			fs
//	@Param			path	path	string	true	"File path"
//	@Success		204		"File deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/fs/files/{path} [delete]
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	path := entryPath(r)
	if err := ns.Remove(r.Context(), path); err != nil {
		fail(w, "remove", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MakeDir handles POST /api/fs/dirs/*.
//
//	@Summary		Create a directory
//	@Tags			fs
//	@Param			path	path	string	true	"Directory path"
//	@Param			parents	query	bool	false	"Create missing ancestors (default true)"
//	@Success		201		"Directory created"
//	@Failure		409		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/fs/dirs/{path} [post]
func (h *Handler) MakeDir(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	dir := pathutil.NormalizeDir(entryPath(r))
	var err error
	if boolParam(r, "parents", true) {
		err = ns.MakeDirs(r.Context(), dir)
	} else {
		_, found, ferr := ns.FindDir(r.Context(), pathutil.Dirname(dir))
		switch {
		case ferr != nil:
			err = ferr
		case !found:
			err = apperr.ErrNoFile
		default:
			_, err = ns.MakeDir(r.Context(), dir)
		}
	}
	if err != nil {
		fail(w, "mkdir", dir, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RemoveDir handles DELETE /api/fs/dirs/*.
//
//	@Summary		Delete a directory
//	@Tags			fs
//	@Produce		json
//	@Param			path		path		string	true	"Directory path"
//	@Param			recursive	query		bool	false	"Delete the whole subtree"
//	@Success		200			{object}	EntriesResponse
//	@Failure		409			{object}	errResponse
//	@Security		BasicAuth
//	@Router			/fs/dirs/{path} [delete]
func (h *Handler) RemoveDir(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	dir := pathutil.NormalizeDir(entryPath(r))
	removed, err := ns.RemoveDir(r.Context(), dir, boolParam(r, "recursive", false))
	if err != nil {
		fail(w, "rmdir", dir, err)
		return
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Entries: entriesOf(removed)})
}

func decodeMove(w http.ResponseWriter, r *http.Request) (MoveRequest, bool) {
	var req MoveRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return req, false
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return req, false
	}
	return req, true
}

// MoveDir handles POST /api/fs/move.
//
//	@Summary		Move a directory subtree
//	@Tags			fs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveRequest	true	"Source and target directories"
//	@Success		200		{object}	CountResponse
//	@Failure		400		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/fs/move [post]
func (h *Handler) MoveDir(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	req, ok := decodeMove(w, r)
	if !ok {
		return
	}
	n, err := ns.MoveDir(r.Context(), req.From, req.To)
	if err != nil {
		fail(w, "move", req.From, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// Rename handles POST /api/fs/rename.
//
//	@Summary		Rename a file
//	@Tags			fs
//	@Accept			json
//	@Param			body	body	MoveRequest	true	"Source and target paths"
//	@Success		204		"File renamed"
//	@Failure		409		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/fs/rename [post]
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	req, ok := decodeMove(w, r)
	if !ok {
		return
	}
	if err := ns.Rename(r.Context(), req.From, req.To); err != nil {
		fail(w, "rename", req.From, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Versions handles GET /api/fs/versions/*.
//
//	@Summary		List every stored version of a file, newest first
//	@Tags			fs
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	EntriesResponse
//	@Security		BasicAuth
//	@Router			/fs/versions/{path} [get]
func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	path := entryPath(r)
	versions, err := ns.Versions(r.Context(), path)
	if err != nil {
		fail(w, "versions", path, err)
		return
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Entries: entriesOf(versions)})
}

// Prune handles POST /api/fs/prune/*.
//
//	@Summary		Delete every version of a file except the latest
//	@Tags			fs
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	CountResponse
//	@Security		BasicAuth
//	@Router			/fs/prune/{path} [post]
func (h *Handler) Prune(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	path := entryPath(r)
	n, err := ns.Prune(r.Context(), path)
	if err != nil {
		fail(w, "prune", path, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
