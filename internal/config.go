package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dirstore/internal/api"
	"github.com/starford/dirstore/internal/models"
	"github.com/starford/dirstore/internal/storage"
	"github.com/starford/dirstore/internal/tenant"
)

// Payload drivers.
const (
	PayloadSQLite = "sqlite"
	PayloadFS     = "fs"
	PayloadS3     = "s3"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig  `yaml:"app"`
	Store   tenant.StoreConfig `yaml:"store"`
	Users   tenant.UsersConfig `yaml:"users"`
	Admin   AdminConfig        `yaml:"admin"`
	Payload PayloadConfig      `yaml:"payload"`
	Auth    AuthConfig         `yaml:"auth"`
	Events  EventsConfig       `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	tc := c.Tenant()
	if err := tc.Validate(); err != nil {
		return err
	}
	if err := c.Admin.Validate(); err != nil {
		return fmt.Errorf("admin: %w", err)
	}
	if err := c.Payload.Validate(); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	return c.Auth.Validate()
}

// Tenant returns the provisioning part of the configuration.
func (c *Config) Tenant() tenant.Config {
	return tenant.Config{Store: c.Store, Users: c.Users}
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// AdminConfig holds the provisioning credentials.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Validate validates the admin credentials.
func (c *AdminConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// Credentials returns the admin credentials.
func (c *AdminConfig) Credentials() models.Credentials {
	return models.Credentials{Username: c.Username, Password: c.Password}
}

// PayloadConfig selects where entry payloads live. The sqlite driver keeps
// them chunked in the catalog itself.
type PayloadConfig struct {
	Driver string   `yaml:"driver"`
	FS     FSConfig `yaml:"fs"`
	S3     S3Config `yaml:"s3"`
}

// Validate validates the payload configuration.
func (c *PayloadConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = PayloadSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(PayloadSQLite, PayloadFS, PayloadS3)),
	); err != nil {
		return err
	}
	switch c.Driver {
	case PayloadFS:
		return c.FS.Validate()
	case PayloadS3:
		return c.S3.Validate()
	}
	return nil
}

// FSConfig holds the local payload directory.
type FSConfig struct {
	Root        string `yaml:"root"`
	Compression string `yaml:"compression"`
}

// Validate validates the fs payload configuration.
func (c *FSConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Compression, validation.In(
			storage.CompressionNone, storage.CompressionZstd, storage.CompressionLZ4)),
	)
}

// S3Config holds the S3 payload bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// Validate validates the s3 payload configuration.
func (c *S3Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Bucket, validation.Required),
		validation.Field(&c.SecretAccessKey, validation.When(c.AccessKeyID != "", validation.Required)),
	)
}

// Storage converts c to the provider's construction parameters.
func (c *S3Config) Storage() storage.S3Config {
	return storage.S3Config{
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PathStyle:       c.PathStyle,
	}
}

// AuthConfig holds authentication configuration for the admin routes.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
//   - "jwt": Bearer HS256 JWT signed with JWTSecret.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = api.AuthDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(api.AuthDisabled, api.AuthToken, api.AuthJWT)),
	); err != nil {
		return err
	}
	if c.Mode == api.AuthToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", api.AuthToken)
	}
	if c.Mode == api.AuthJWT && c.JWTSecret == "" {
		return fmt.Errorf("auth: mode is %q but jwt_secret is empty", api.AuthJWT)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == api.AuthToken || c.Mode == api.AuthJWT
}

// API converts c to the router's auth settings.
func (c *AuthConfig) API() api.AuthConfig {
	return api.AuthConfig{Mode: c.Mode, Token: c.Token, JWTSecret: c.JWTSecret}
}

// EventsConfig tunes the SSE broker.
type EventsConfig struct {
	TreeThrottle time.Duration `yaml:"tree_throttle"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	tc := tenant.DefaultConfig()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: tc.Store,
		Users: tc.Users,
		Admin: AdminConfig{
			Username: "admin",
		},
		Payload: PayloadConfig{
			Driver: PayloadSQLite,
			FS: FSConfig{
				Root:        "./payloads",
				Compression: storage.CompressionZstd,
			},
		},
		Auth: AuthConfig{
			Mode: api.AuthDisabled,
		},
		Events: EventsConfig{
			TreeThrottle: 2 * time.Second,
		},
	}
}
