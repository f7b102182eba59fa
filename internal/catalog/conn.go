package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/dirstore/internal/access"
	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/models"
)

// Conn is one authenticated connection. Privileges are resolved when the
// connection is made.
type Conn struct {
	db       *DB
	database string
	user     string
	role     access.Role
	root     bool
	closed   atomic.Bool
}

var (
	_ blobstore.Connector = (*DB)(nil)
	_ blobstore.Conn      = (*Conn)(nil)
	_ access.Admin        = (*Conn)(nil)
)

// Connect authenticates creds against the users of database. Wrong
// credentials are blobstore.ErrAuthFailed; an expired ctx is reported
// with its own error.
func (db *DB) Connect(ctx context.Context, creds models.Credentials, database string) (blobstore.Conn, error) {
	if err := db.conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("catalog: connect: %w", err)
	}

	var hash, roleName string
	err := db.conn.QueryRowContext(ctx,
		`SELECT password_hash, role FROM users WHERE db = ? AND name = ?`,
		database, creds.Username).Scan(&hash, &roleName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: connect %s: %w", creds.Username, blobstore.ErrAuthFailed)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: connect %s: %w", creds.Username, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return nil, fmt.Errorf("catalog: connect %s: %w", creds.Username, blobstore.ErrAuthFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("catalog: connect %s: %w", creds.Username, err)
	}

	c := &Conn{db: db, database: database, user: creds.Username}
	if roleName == RootRole {
		c.root = true
		c.role = access.Role{Name: RootRole}
		return c, nil
	}
	role, err := db.loadRole(ctx, database, roleName)
	if errors.Is(err, sql.ErrNoRows) {
		// A user whose role was dropped keeps no privileges.
		role = access.Role{Name: roleName}
	} else if err != nil {
		return nil, fmt.Errorf("catalog: connect %s: %w", creds.Username, err)
	}
	c.role = role
	return c, nil
}

// Bucket binds the named partition.
func (c *Conn) Bucket(name string) blobstore.Bucket {
	return &Bucket{conn: c, name: name}
}

// Username returns the authenticated user.
func (c *Conn) Username() string {
	return c.user
}

// Close marks the connection unusable. The shared database stays open.
func (c *Conn) Close() error {
	c.closed.Store(true)
	return nil
}

func (c *Conn) check(collection, action string) error {
	if c.closed.Load() {
		return blobstore.ErrClosed
	}
	if c.root {
		return nil
	}
	res := access.Resource{DB: c.database, Collection: collection}
	if !c.role.Allows(res, action) {
		return fmt.Errorf("catalog: %s on %s.%s by %s: %w",
			action, c.database, collection, c.user, blobstore.ErrUnauthorized)
	}
	return nil
}

func (c *Conn) requireRoot(op string) error {
	if c.closed.Load() {
		return blobstore.ErrClosed
	}
	if !c.root {
		return fmt.Errorf("catalog: %s by %s: %w", op, c.user, blobstore.ErrUnauthorized)
	}
	return nil
}

// CreateRole stores a new role. A taken name is blobstore.ErrDuplicate.
func (c *Conn) CreateRole(ctx context.Context, role access.Role) error {
	if err := c.requireRoot("createRole"); err != nil {
		return err
	}
	if role.Name == RootRole {
		return fmt.Errorf("catalog: create role %s: %w", role.Name, blobstore.ErrDuplicate)
	}
	raw, err := json.Marshal(role.Privileges)
	if err != nil {
		return fmt.Errorf("catalog: encode role %s: %w", role.Name, err)
	}
	_, err = c.db.conn.ExecContext(ctx,
		`INSERT INTO roles (db, name, privileges) VALUES (?, ?, ?)`,
		c.database, role.Name, string(raw))
	if isConstraint(err) {
		return fmt.Errorf("catalog: create role %s: %w", role.Name, blobstore.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("catalog: create role %s: %w", role.Name, err)
	}
	c.db.logger.Debug("catalog: role created", slog.String("role", role.Name))
	return nil
}

// DropRole deletes a role.
func (c *Conn) DropRole(ctx context.Context, name string) error {
	if err := c.requireRoot("dropRole"); err != nil {
		return err
	}
	res, err := c.db.conn.ExecContext(ctx, `DELETE FROM roles WHERE db = ? AND name = ?`, c.database, name)
	if err != nil {
		return fmt.Errorf("catalog: drop role %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: drop role %s: %w", name, blobstore.ErrNotFound)
	}
	return nil
}

// CreateUser registers credentials bound to an existing role.
func (c *Conn) CreateUser(ctx context.Context, username, password, role string) error {
	if err := c.requireRoot("createUser"); err != nil {
		return err
	}
	if role != RootRole {
		if _, err := c.db.loadRole(ctx, c.database, role); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("catalog: create user %s: role %s: %w", username, role, blobstore.ErrNotFound)
		} else if err != nil {
			return fmt.Errorf("catalog: create user %s: %w", username, err)
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.db.bcryptCost)
	if err != nil {
		return fmt.Errorf("catalog: hash password: %w", err)
	}
	_, err = c.db.conn.ExecContext(ctx,
		`INSERT INTO users (db, name, password_hash, role) VALUES (?, ?, ?, ?)`,
		c.database, username, string(hash), role)
	if isConstraint(err) {
		return fmt.Errorf("catalog: create user %s: %w", username, blobstore.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("catalog: create user %s: %w", username, err)
	}
	return nil
}

// DropUser deletes a user's credentials.
func (c *Conn) DropUser(ctx context.Context, username string) error {
	if err := c.requireRoot("dropUser"); err != nil {
		return err
	}
	res, err := c.db.conn.ExecContext(ctx, `DELETE FROM users WHERE db = ? AND name = ?`, c.database, username)
	if err != nil {
		return fmt.Errorf("catalog: drop user %s: %w", username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: drop user %s: %w", username, blobstore.ErrNotFound)
	}
	return nil
}

// UsersInfo lists every user of the connection's database.
func (c *Conn) UsersInfo(ctx context.Context) ([]access.UserInfo, error) {
	if err := c.requireRoot("usersInfo"); err != nil {
		return nil, err
	}
	rows, err := c.db.conn.QueryContext(ctx,
		`SELECT name, db, role FROM users WHERE db = ? ORDER BY name`, c.database)
	if err != nil {
		return nil, fmt.Errorf("catalog: users info: %w", err)
	}
	defer rows.Close()

	var out []access.UserInfo
	for rows.Next() {
		var u access.UserInfo
		if err := rows.Scan(&u.User, &u.DB, &u.Role); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func unmarshalPrivileges(raw string, out *[]access.Privilege) error {
	return json.Unmarshal([]byte(raw), out)
}
