// Package tenant provisions tenants: one role scoped to the tenant's own
// partition plus one user bound to that role.
//
// A Server owns a single admin connection for its whole lifetime.
// Provisioning sequences are not transactional; see CreateUser and DropUser
// for the windows they leave open.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dirstore/internal/access"
	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/models"
	"github.com/starford/dirstore/internal/session"
)

// Recorder receives one observation per provisioning call.
type Recorder interface {
	ObserveTenantOp(op string, err error)
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Server performs provisioning through an admin connection.
type Server struct {
	cfg         Config
	connector   blobstore.Connector
	conn        blobstore.Conn
	admin       access.Admin
	adminName   string
	logger      *slog.Logger
	recorder    Recorder
	sessionOpts []session.Option
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder reports provisioning outcomes to rec.
func WithRecorder(rec Recorder) Option {
	return func(s *Server) {
		s.recorder = rec
	}
}

// WithSessionOptions applies opts to every session the server opens.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// NewServer validates cfg and then connects as admin. Configuration
// problems are apperr.ErrConfig and are reported before the store is
// contacted.
func NewServer(ctx context.Context, cfg Config, connector blobstore.Connector, admin models.Credentials, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if connector == nil {
		return nil, fmt.Errorf("%w: no store connector", apperr.ErrConfig)
	}
	s := &Server{cfg: cfg, connector: connector, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	timeout := cfg.Store.ConnectTimeout
	if timeout <= 0 {
		timeout = session.DefaultConnectTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := connector.Connect(cctx, admin, cfg.Store.StorageDB)
	if err != nil {
		if errors.Is(err, blobstore.ErrAuthFailed) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("tenant: admin login: %w", apperr.ErrAuth)
		}
		return nil, fmt.Errorf("tenant: admin login: %w", err)
	}
	adm, ok := conn.(access.Admin)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("tenant: store connection does not support provisioning: %w", apperr.ErrInvalidResponse)
	}
	s.conn = conn
	s.admin = adm
	s.adminName = admin.Username
	s.logger.Info("tenant: admin connected",
		slog.String("db", cfg.Store.StorageDB), slog.Any("admin", admin))
	return s, nil
}

// Close releases the admin connection.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Config returns the configuration the server was built with.
func (s *Server) Config() Config {
	return s.cfg
}

// RoleName derives the role owned by username.
func (s *Server) RoleName(username string) string {
	return username + s.cfg.Users.RoleSuffix
}

// PartitionName derives the partition owned by username.
func (s *Server) PartitionName(username string) string {
	return session.PartitionName(username, s.cfg.Users.DBSuffix)
}

func (s *Server) observe(op string, err error) {
	if s.recorder != nil {
		s.recorder.ObserveTenantOp(op, err)
	}
}

func validateUsername(username string) error {
	err := validation.Validate(username, validation.Required, validation.Match(usernamePattern))
	if err != nil {
		return fmt.Errorf("tenant: username %q: %w: %w", username, apperr.ErrInvalidUsername, err)
	}
	return nil
}

// Role builds the role definition for username: the configured actions on
// the two collections of the tenant's partition and nothing else.
func (s *Server) Role(username string) access.Role {
	partition := s.PartitionName(username)
	role := access.Role{Name: s.RoleName(username)}
	for _, suffix := range []string{".files", ".chunks"} {
		role.Privileges = append(role.Privileges, access.Privilege{
			Resource: access.Resource{DB: s.cfg.Store.StorageDB, Collection: partition + suffix},
			Actions:  append([]string(nil), s.cfg.Users.AllowedActions...),
		})
	}
	return role
}

// CreateRole provisions the tenant role. A taken name is
// apperr.ErrRoleExists; any other rejection is apperr.ErrInvalidResponse.
func (s *Server) CreateRole(ctx context.Context, username string) (err error) {
	defer func() { s.observe("create_role", err) }()
	if err := validateUsername(username); err != nil {
		return err
	}
	role := s.Role(username)
	if err := s.admin.CreateRole(ctx, role); err != nil {
		if errors.Is(err, blobstore.ErrDuplicate) {
			return fmt.Errorf("tenant: create role %s: %w", role.Name, apperr.ErrRoleExists)
		}
		return fmt.Errorf("tenant: create role %s: %w: %w", role.Name, apperr.ErrInvalidResponse, err)
	}
	s.logger.Info("tenant: role created", slog.String("role", role.Name))
	return nil
}

// CreateUser provisions the role and then the credentials bound to it. If
// the credentials cannot be stored the role stays behind as an orphan.
func (s *Server) CreateUser(ctx context.Context, username, password string) (err error) {
	defer func() { s.observe("create_user", err) }()
	if err := s.CreateRole(ctx, username); err != nil {
		return err
	}
	if err := s.admin.CreateUser(ctx, username, password, s.RoleName(username)); err != nil {
		s.logger.Warn("tenant: user creation failed after role creation",
			slog.String("user", username), slog.String("role", s.RoleName(username)),
			slog.String("error", err.Error()))
		if errors.Is(err, blobstore.ErrDuplicate) {
			return fmt.Errorf("tenant: create user %s: %w", username, apperr.ErrUserExists)
		}
		return fmt.Errorf("tenant: create user %s: %w: %w", username, apperr.ErrInvalidResponse, err)
	}
	s.logger.Info("tenant: user created", slog.String("user", username))
	return nil
}

// SignUpNewUser provisions username and returns a client already logged in
// as that user.
func (s *Server) SignUpNewUser(ctx context.Context, username, password string) (*session.Client, error) {
	if err := s.CreateUser(ctx, username, password); err != nil {
		return nil, err
	}
	return s.Login(ctx, models.Credentials{Username: username, Password: password})
}

// Login opens a client authenticated with the tenant's own credentials.
func (s *Server) Login(ctx context.Context, creds models.Credentials) (*session.Client, error) {
	c := s.NewClient()
	if err := c.Login(ctx, creds); err != nil {
		return nil, err
	}
	return c, nil
}

// NewClient returns an unauthenticated client configured for this store.
func (s *Server) NewClient() *session.Client {
	cfg := session.Config{
		Database:       s.cfg.Store.StorageDB,
		DBSuffix:       s.cfg.Users.DBSuffix,
		ConnectTimeout: s.cfg.Store.ConnectTimeout,
	}
	opts := append([]session.Option{session.WithLogger(s.logger)}, s.sessionOpts...)
	return session.New(s.connector, cfg, opts...)
}

// DropUser removes the credentials and then the role. A missing user is
// apperr.ErrNoUser. Only tenant accounts can be dropped: the provisioning
// account and users bound to any role other than RoleName(username) are
// apperr.ErrInvalidUsername. If the role removal fails the role is left
// orphaned. Stored entries of the tenant are not touched.
func (s *Server) DropUser(ctx context.Context, username string) (err error) {
	defer func() { s.observe("drop_user", err) }()
	if err := validateUsername(username); err != nil {
		return err
	}
	if username == s.adminName {
		return fmt.Errorf("tenant: drop user %s: provisioning account: %w", username, apperr.ErrInvalidUsername)
	}
	info, ok, err := s.lookupUser(ctx, username)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tenant: drop user %s: %w", username, apperr.ErrNoUser)
	}
	if info.Role != s.RoleName(username) {
		return fmt.Errorf("tenant: drop user %s: role %s is not a tenant role: %w", username, info.Role, apperr.ErrInvalidUsername)
	}
	if err := s.admin.DropUser(ctx, username); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return fmt.Errorf("tenant: drop user %s: %w", username, apperr.ErrNoUser)
		}
		return fmt.Errorf("tenant: drop user %s: %w: %w", username, apperr.ErrInvalidResponse, err)
	}
	role := s.RoleName(username)
	if err := s.admin.DropRole(ctx, role); err != nil {
		s.logger.Warn("tenant: role left orphaned", slog.String("role", role), slog.String("error", err.Error()))
		return fmt.Errorf("tenant: drop role %s: %w: %w", role, apperr.ErrInvalidResponse, err)
	}
	s.logger.Info("tenant: user dropped", slog.String("user", username))
	return nil
}

// UserExists scans the full user listing, so it costs O(n) in the number of
// provisioned users.
func (s *Server) UserExists(ctx context.Context, username string) (bool, error) {
	_, ok, err := s.lookupUser(ctx, username)
	return ok, err
}

func (s *Server) lookupUser(ctx context.Context, username string) (access.UserInfo, bool, error) {
	users, err := s.admin.UsersInfo(ctx)
	if err != nil {
		return access.UserInfo{}, false, fmt.Errorf("tenant: users info: %w: %w", apperr.ErrInvalidResponse, err)
	}
	for _, u := range users {
		if u.User == "" {
			return access.UserInfo{}, false, fmt.Errorf("tenant: users info: entry without user name: %w", apperr.ErrInvalidResponse)
		}
		if u.User == username {
			return u, true, nil
		}
	}
	return access.UserInfo{}, false, nil
}
