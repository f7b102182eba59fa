// Package session binds a namespace handle to one tenant's credentials.
//
// A Client moves through Unauthenticated, Authenticated and Closed. Only an
// Authenticated client hands out a Namespace; SwitchUser passes through
// Unauthenticated while the new login is in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/blobstore"
	"github.com/starford/dirstore/internal/models"
	"github.com/starford/dirstore/internal/namespace"
)

// DefaultConnectTimeout bounds Login when the config leaves it unset.
const DefaultConnectTimeout = 2 * time.Second

// State is the lifecycle position of a Client.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("session: client closed")

// Config is what a client needs to reach a tenant partition.
type Config struct {
	Database       string        // store database holding every partition
	DBSuffix       string        // partition name = username + DBSuffix
	ConnectTimeout time.Duration // bound on Login
}

// PartitionName derives the partition owned by username.
func PartitionName(username, suffix string) string {
	return username + suffix
}

// Client is one namespace handle.
type Client struct {
	connector blobstore.Connector
	cfg       Config
	logger    *slog.Logger
	recorder  blobstore.Recorder
	notify    func(models.Event)

	mu    sync.Mutex
	state State
	user  string
	conn  blobstore.Conn
	ns    *namespace.Namespace
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder reports every store call of the bound partition to rec.
func WithRecorder(rec blobstore.Recorder) Option {
	return func(c *Client) {
		c.recorder = rec
	}
}

// WithNotifier forwards namespace events to fn.
func WithNotifier(fn func(models.Event)) Option {
	return func(c *Client) {
		c.notify = fn
	}
}

// New returns an unauthenticated client.
func New(connector blobstore.Connector, cfg Config, opts ...Option) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	c := &Client{connector: connector, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Username returns the authenticated user, or "" when not authenticated.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Partition returns the bound partition name, or "" when not
// authenticated.
func (c *Client) Partition() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Authenticated {
		return ""
	}
	return PartitionName(c.user, c.cfg.DBSuffix)
}

// Login authenticates with the tenant's own credentials and binds the
// tenant's partition. Rejected credentials and an elapsed connect timeout
// are both apperr.ErrAuth.
func (c *Client) Login(ctx context.Context, creds models.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Closed:
		return ErrClosed
	case Authenticated:
		return fmt.Errorf("session: login %s: logged in as %s: %w", creds.Username, c.user, apperr.ErrAlreadyLoggedIn)
	}
	return c.login(ctx, creds)
}

func (c *Client) login(ctx context.Context, creds models.Credentials) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.connector.Connect(ctx, creds, c.cfg.Database)
	if err != nil {
		c.logger.Info("session: login rejected", slog.Any("user", creds), slog.String("error", err.Error()))
		if errors.Is(err, blobstore.ErrAuthFailed) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("session: login %s: %w", creds.Username, apperr.ErrAuth)
		}
		return fmt.Errorf("session: login %s: %w", creds.Username, err)
	}

	partition := PartitionName(creds.Username, c.cfg.DBSuffix)
	bucket := blobstore.Instrument(conn.Bucket(partition), c.recorder)
	c.conn = conn
	c.user = creds.Username
	c.ns = namespace.New(bucket,
		namespace.WithLogger(c.logger),
		namespace.WithPartition(partition),
		namespace.WithNotifier(c.notify),
	)
	c.state = Authenticated
	c.logger.Debug("session: logged in", slog.Any("user", creds), slog.String("partition", partition))
	return nil
}

// SwitchUser closes the current connection and logs in as creds. When the
// new login fails the client is left Unauthenticated.
func (c *Client) SwitchUser(ctx context.Context, creds models.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return ErrClosed
	}
	if err := c.release(); err != nil {
		c.logger.Warn("session: close previous connection", slog.String("error", err.Error()))
	}
	return c.login(ctx, creds)
}

// Namespace returns the namespace bound to the logged-in tenant.
func (c *Client) Namespace() (*namespace.Namespace, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case Authenticated:
		return c.ns, nil
	case Closed:
		return nil, ErrClosed
	}
	return nil, apperr.ErrNotAuthenticated
}

// Close releases the connection. The client cannot be reused.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Closed {
		return nil
	}
	err := c.release()
	c.state = Closed
	return err
}

func (c *Client) release() error {
	var err error
	if c.conn != nil {
		err = c.conn.Close()
	}
	c.conn = nil
	c.ns = nil
	c.user = ""
	c.state = Unauthenticated
	return err
}
