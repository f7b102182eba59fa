// Package models defines the value types shared across dirstore layers.
package models

import "log/slog"

// Credentials identifies one tenant. It is an immutable value: copy it,
// never mutate it in place.
type Credentials struct {
	Username string
	Password string
}

// LogValue keeps the password out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", c.Username))
}

// Event kinds published after a successful namespace mutation.
const (
	EventFileCreated = "entry.created"
	EventFileDeleted = "entry.deleted"
	EventFileMoved   = "entry.moved"
	EventDirCreated  = "dir.created"
	EventDirDeleted  = "dir.deleted"
	EventDirMoved    = "dir.moved"
)

// Event describes one namespace change within a tenant partition.
type Event struct {
	Kind      string `json:"kind"`
	Partition string `json:"partition"`
	Path      string `json:"path"`
	Target    string `json:"target,omitempty"` // destination of moves
}
