package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/starford/dirstore/internal/pathutil"
)

// safeName validates that a multipart filename is a plain name: no
// separators and no traversal.
func safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	return name, nil
}

// UploadForm handles POST /api/fs/upload/* (multipart/form-data, field
// "file"). The file is stored directly below the directory in the URL under
// its own filename.
//
//	@Summary		Upload a file into a directory from a browser form
//	@Tags			fs
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			path	path		string	true	"Target directory"
//	@Param			file	formData	file	true	"File to upload"
//	@Param			replace	query		bool	false	"Replace an existing file (default true)"
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BasicAuth
//	@Router			/fs/upload/{path} [post]
func (h *Handler) UploadForm(w http.ResponseWriter, r *http.Request) {
	ns, ok := namespaceOf(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name, err := safeName(header.Filename)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	target := pathutil.NormalizeDir(entryPath(r)) + name
	ref, err := ns.Upload(r.Context(), file, target, boolParam(r, "replace", true))
	if err != nil {
		fail(w, "upload form", target, err)
		return
	}
	writeJSON(w, http.StatusCreated, UploadResponse{Ref: string(ref), Path: target})
}
