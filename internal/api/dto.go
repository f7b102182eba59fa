package api

import (
	"time"

	"github.com/starford/dirstore/internal/blobstore"
)

// SignUpRequest is the request body for provisioning a tenant.
type SignUpRequest struct {
	Username string `json:"username" example:"alice" validate:"required"`
	Password string `json:"password" example:"s3cret" validate:"required"`
}

// UserResponse describes a provisioned tenant.
type UserResponse struct {
	Username  string `json:"username" example:"alice" validate:"required"`
	Partition string `json:"partition,omitempty" example:"alice_fs"`
	Exists    bool   `json:"exists"`
}

// MoveRequest is the request body for moves and renames.
type MoveRequest struct {
	From string `json:"from" example:"/docs/" validate:"required"`
	To   string `json:"to" example:"/archive/docs/" validate:"required"`
}

// ListResponse wraps the keys of a directory listing.
type ListResponse struct {
	Dir     string   `json:"dir" example:"/docs/" validate:"required"`
	Entries []string `json:"entries" validate:"required"`
}

// EntryResponse describes one stored entry.
type EntryResponse struct {
	Ref       string    `json:"ref" example:"6f1c..." validate:"required"`
	Key       string    `json:"key" example:"/docs/a.txt" validate:"required"`
	IsDir     bool      `json:"is_dir"`
	Length    int64     `json:"length" example:"42"`
	Checksum  string    `json:"checksum,omitempty" example:"abc123..."`
	CreatedAt time.Time `json:"created_at"`
}

func entryOf(obj blobstore.Object) EntryResponse {
	return EntryResponse{
		Ref:       string(obj.Ref),
		Key:       obj.Key,
		IsDir:     obj.IsDir,
		Length:    obj.Length,
		Checksum:  obj.Checksum,
		CreatedAt: obj.CreatedAt,
	}
}

func entriesOf(objs []blobstore.Object) []EntryResponse {
	out := make([]EntryResponse, len(objs))
	for i, o := range objs {
		out[i] = entryOf(o)
	}
	return out
}

// EntriesResponse wraps entry listings (versions, removals, walks).
type EntriesResponse struct {
	Entries []EntryResponse `json:"entries" validate:"required"`
}

// CountResponse reports how many entries an operation touched.
type CountResponse struct {
	Count int `json:"count" example:"3"`
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Ref  string `json:"ref" example:"6f1c..." validate:"required"`
	Path string `json:"path" example:"/docs/a.txt" validate:"required"`
}
