// Package catalog is a SQLite-backed object store with role-based access
// control. It is the reference backend behind blobstore.Connector and
// access.Admin.
//
// Entries live in the objects table keyed by a generated ref; several rows
// may share a key and the newest one wins. Payloads go through a
// storage.Provider, by default the chunks table of the same database.
// Every partition ("bucket") spans two collections, "<bucket>.files" for
// entries and "<bucket>.chunks" for payloads, and each call is checked
// against the connected user's role for the collection it touches.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/dirstore/internal/access"
	"github.com/starford/dirstore/internal/storage"
)

// RootRole is the built-in role with every privilege, including
// provisioning. It cannot be created or dropped.
const RootRole = "root"

// DefaultChunkSize matches the classic GridFS chunk size.
const DefaultChunkSize = 255 << 10

const schemaSQL = `
CREATE TABLE IF NOT EXISTS objects (
	id         TEXT PRIMARY KEY,
	db         TEXT NOT NULL,
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	is_dir     INTEGER NOT NULL DEFAULT 0,
	length     INTEGER NOT NULL DEFAULT 0,
	checksum   TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_objects_key ON objects(db, bucket, key, created_at);

CREATE TABLE IF NOT EXISTS chunks (
	collection TEXT NOT NULL,
	object_id  TEXT NOT NULL,
	n          INTEGER NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (collection, object_id, n)
);

CREATE TABLE IF NOT EXISTS roles (
	db         TEXT NOT NULL,
	name       TEXT NOT NULL,
	privileges TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (db, name)
);

CREATE TABLE IF NOT EXISTS users (
	db            TEXT NOT NULL,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	PRIMARY KEY (db, name)
);
`

// DB wraps a sql.DB with catalog operations.
type DB struct {
	conn       *sql.DB
	provider   storage.Provider
	chunkSize  int
	bcryptCost int
	logger     *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithProvider stores payloads in p instead of the chunks table.
func WithProvider(p storage.Provider) Option {
	return func(db *DB) {
		db.provider = p
	}
}

// WithChunkSize sets the chunk size of the built-in chunk store.
func WithChunkSize(n int) Option {
	return func(db *DB) {
		if n > 0 {
			db.chunkSize = n
		}
	}
}

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(db *DB) {
		db.bcryptCost = cost
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		db.logger = l
	}
}

const pragmas = "_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// withPragmas appends the connection pragmas to dsn, keeping any query
// parameters it already carries.
func withPragmas(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + pragmas
	}
	return dsn + "?" + pragmas
}

// Open opens (or creates) the SQLite catalog and applies the schema. dsn is
// a file path or a "file:" URI and may carry its own query parameters.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", withPragmas(dsn))
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}

	db := &DB{
		conn:       conn,
		chunkSize:  DefaultChunkSize,
		bcryptCost: bcrypt.DefaultCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.provider == nil {
		db.provider = &chunkStore{db: db}
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Bootstrap creates the admin user with the root role in database when it
// does not exist yet. An existing admin keeps its password.
func (db *DB) Bootstrap(ctx context.Context, database, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), db.bcryptCost)
	if err != nil {
		return fmt.Errorf("catalog: hash admin password: %w", err)
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (db, name, password_hash, role) VALUES (?, ?, ?, ?)`,
		database, username, string(hash), RootRole)
	if err != nil {
		return fmt.Errorf("catalog: bootstrap admin: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		db.logger.Info("catalog: admin user created",
			slog.String("db", database), slog.String("user", username))
	}
	return nil
}

// loadRole reads a role definition.
func (db *DB) loadRole(ctx context.Context, database, name string) (access.Role, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx,
		`SELECT privileges FROM roles WHERE db = ? AND name = ?`, database, name).Scan(&raw)
	if err != nil {
		return access.Role{}, err
	}
	role := access.Role{Name: name}
	if err := unmarshalPrivileges(raw, &role.Privileges); err != nil {
		return access.Role{}, fmt.Errorf("catalog: decode role %s: %w", name, err)
	}
	return role, nil
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrConstraint
}
