package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/climbs/internal/model"
	"github.com/dukerupert/climbs/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

type Service struct {
	admins     *store.AdminStore
	bcryptCost int
	logger     *slog.Logger
}

func NewService(as *store.AdminStore, logger *slog.Logger) *Service {
	return &Service{admins: as, bcryptCost: bcrypt.DefaultCost, logger: logger}
}

func (s *Service) Authenticate(ctx context.Context, username, password string) (*model.Admin, error) {
	a, err := s.admins.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

// EnsureBootstrap creates the first administrator when none exists. It is a
// no-op when username is empty or an admin is already present.
func (s *Service) EnsureBootstrap(ctx context.Context, username, password, fullName string) error {
	if username == "" {
		return nil
	}
	n, err := s.admins.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.admins.Create(ctx, username, string(hash), fullName); err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", "username", username)
	return nil
}
