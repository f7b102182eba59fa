// Package testutil provides shared test helpers for catalogs, tenant
// servers and sessions.
package testutil

import (
	"context"
	"os"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/dirstore/internal/catalog"
	"github.com/starford/dirstore/internal/models"
	"github.com/starford/dirstore/internal/session"
	"github.com/starford/dirstore/internal/storage"
	"github.com/starford/dirstore/internal/tenant"
)

// Admin is the administrator every test catalog is bootstrapped with.
var Admin = models.Credentials{Username: "admin", Password: "admin"}

// TestCatalog creates a temporary catalog database bootstrapped with Admin.
// It is automatically cleaned up.
func TestCatalog(t *testing.T, opts ...catalog.Option) (*catalog.DB, string) {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dirstore-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	opts = append([]catalog.Option{catalog.WithBcryptCost(bcrypt.MinCost)}, opts...)
	db, err := catalog.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Bootstrap(context.Background(), tenant.DefaultConfig().Store.StorageDB, Admin.Username, Admin.Password); err != nil {
		t.Fatal(err)
	}
	return db, dbFile.Name()
}

// TestProvider creates a filesystem payload provider in a temp directory.
func TestProvider(t *testing.T, compression string) storage.Provider {
	t.Helper()
	p, err := storage.NewFS(t.TempDir(), compression)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

// TestServer creates a tenant server on a fresh catalog.
func TestServer(t *testing.T, opts ...tenant.Option) *tenant.Server {
	t.Helper()
	db, dsn := TestCatalog(t)
	cfg := tenant.DefaultConfig()
	cfg.Store.Host = dsn
	srv, err := tenant.NewServer(context.Background(), cfg, db, Admin, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

// TestClient provisions username on srv and returns its logged-in client.
func TestClient(t *testing.T, srv *tenant.Server, username string) *session.Client {
	t.Helper()
	c, err := srv.SignUpNewUser(context.Background(), username, username+"-pw")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
