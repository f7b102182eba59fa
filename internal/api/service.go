package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/tenant"
)

// AdminHandler exposes tenant provisioning.
type AdminHandler struct {
	srv *tenant.Server
}

// NewAdminHandler creates an AdminHandler backed by srv.
func NewAdminHandler(srv *tenant.Server) *AdminHandler {
	return &AdminHandler{srv: srv}
}

func adminFail(w http.ResponseWriter, op, user string, err error) {
	if statusOf(err) == http.StatusInternalServerError || errors.Is(err, apperr.ErrInvalidResponse) {
		slog.Error(op+" failed", slog.String("user", user), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("store rejected the request"))
		return
	}
	writeError(w, err)
}

// SignUp handles POST /api/admin/users.
//
//	@Summary		Provision a tenant role and user
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SignUpRequest	true	"Tenant credentials"
//	@Success		201		{object}	UserResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/users [post]
func (h *AdminHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("password is required"))
		return
	}
	if err := h.srv.CreateUser(r.Context(), req.Username, req.Password); err != nil {
		adminFail(w, "sign up", req.Username, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{
		Username:  req.Username,
		Partition: h.srv.PartitionName(req.Username),
		Exists:    true,
	})
}

// DropUser handles DELETE /api/admin/users/{name}.
//
//	@Summary		Remove a tenant user and its role
//	@Tags			admin
//	@Param			name	path	string	true	"User name"
//	@Success		204		"User dropped"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/admin/users/{name} [delete]
func (h *AdminHandler) DropUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.srv.DropUser(r.Context(), name); err != nil {
		adminFail(w, "drop user", name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UserExists handles GET /api/admin/users/{name}.
//
//	@Summary		Report whether a tenant user exists
//	@Tags			admin
//	@Produce		json
//	@Param			name	path		string	true	"User name"
//	@Success		200		{object}	UserResponse
//	@Security		BearerAuth
//	@Router			/admin/users/{name} [get]
func (h *AdminHandler) UserExists(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ok, err := h.srv.UserExists(r.Context(), name)
	if err != nil {
		adminFail(w, "user exists", name, err)
		return
	}
	resp := UserResponse{Username: name, Exists: ok}
	if ok {
		resp.Partition = h.srv.PartitionName(name)
	}
	writeJSON(w, http.StatusOK, resp)
}
