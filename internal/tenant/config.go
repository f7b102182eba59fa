package tenant

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dirstore/internal/access"
	"github.com/starford/dirstore/internal/apperr"
)

// Config is the part of the configuration provisioning and sessions
// depend on.
type Config struct {
	Store StoreConfig `yaml:"store"`
	Users UsersConfig `yaml:"users"`
}

// Validate reports missing or malformed keys as apperr.ErrConfig.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("%w: store: %w", apperr.ErrConfig, err)
	}
	if err := c.Users.Validate(); err != nil {
		return fmt.Errorf("%w: users: %w", apperr.ErrConfig, err)
	}
	return nil
}

// StoreConfig locates the object store.
type StoreConfig struct {
	Host           string        `yaml:"host"`
	StorageDB      string        `yaml:"storage_db"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ChunkSize      int           `yaml:"chunk_size"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.StorageDB, validation.Required),
		validation.Field(&c.ConnectTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ChunkSize, validation.Min(0)),
	)
}

// UsersConfig holds the per-user naming convention and the actions granted
// to every tenant role.
type UsersConfig struct {
	DBSuffix       string   `yaml:"db_suffix"`
	RoleSuffix     string   `yaml:"role_suffix"`
	AllowedActions []string `yaml:"allowed_actions"`
}

// Validate validates the users configuration.
func (c *UsersConfig) Validate() error {
	known := make([]any, len(access.KnownActions))
	for i, a := range access.KnownActions {
		known[i] = a
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.DBSuffix, validation.Required),
		validation.Field(&c.RoleSuffix, validation.Required),
		validation.Field(&c.AllowedActions, validation.Required, validation.Each(validation.In(known...))),
	)
}

// DefaultConfig mirrors the shipped config.yaml.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Host:           "./dirstore.db",
			StorageDB:      "storage",
			ConnectTimeout: 2 * time.Second,
		},
		Users: UsersConfig{
			DBSuffix:       "_fs",
			RoleSuffix:     "_role",
			AllowedActions: append([]string(nil), access.KnownActions...),
		},
	}
}
