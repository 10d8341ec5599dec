package admin

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/climbs/internal/database"
	"github.com/dukerupert/climbs/internal/store"
)

func setupService(t *testing.T) (*Service, *store.AdminStore) {
	t.Helper()
	db, err := database.Open(":memory:", 1)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	as := store.NewAdminStore(db)
	s := NewService(as, slog.Default())
	s.bcryptCost = bcrypt.MinCost
	return s, as
}

func TestBootstrapThenAuthenticate(t *testing.T) {
	s, _ := setupService(t)
	ctx := context.Background()

	if err := s.EnsureBootstrap(ctx, "admin", "secret", "Cooperative Admin"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	a, err := s.Authenticate(ctx, "admin", "secret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if a.FullName != "Cooperative Admin" {
		t.Errorf("full name = %q", a.FullName)
	}

	if _, err := s.Authenticate(ctx, "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v", err)
	}
	if _, err := s.Authenticate(ctx, "ghost", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown admin: err = %v", err)
	}
}

func TestBootstrapOnlyOnce(t *testing.T) {
	s, as := setupService(t)
	ctx := context.Background()

	s.EnsureBootstrap(ctx, "admin", "secret", "Admin")
	if err := s.EnsureBootstrap(ctx, "second", "secret", "Second"); err != nil {
		t.Fatalf("second bootstrap: %v", err)
	}
	n, _ := as.Count(ctx)
	if n != 1 {
		t.Errorf("admin count = %d, want 1", n)
	}
}

func TestBootstrapSkippedWithoutUsername(t *testing.T) {
	s, as := setupService(t)
	if err := s.EnsureBootstrap(context.Background(), "", "", ""); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	n, _ := as.Count(context.Background())
	if n != 0 {
		t.Errorf("admin count = %d, want 0", n)
	}
}
