package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/climbs/internal/model"
)

type AdminStore struct {
	db *sql.DB
}

func NewAdminStore(db *sql.DB) *AdminStore {
	return &AdminStore{db: db}
}

func scanAdmin(scanner interface{ Scan(...any) error }) (*model.Admin, error) {
	var a model.Admin
	err := scanner.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.FullName, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const adminCols = `id, username, password, full_name, created_at`

func (s *AdminStore) Create(ctx context.Context, username, passwordHash, fullName string) (*model.Admin, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO admins (username, password, full_name) VALUES (?, ?, ?)`,
		username, passwordHash, fullName,
	)
	if err != nil {
		return nil, fmt.Errorf("insert admin: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *AdminStore) GetByID(ctx context.Context, id int64) (*model.Admin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminCols+` FROM admins WHERE id = ?`, id)
	a, err := scanAdmin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return a, nil
}

func (s *AdminStore) GetByUsername(ctx context.Context, username string) (*model.Admin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adminCols+` FROM admins WHERE username = ?`, username)
	a, err := scanAdmin(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get admin by username: %w", err)
	}
	return a, nil
}

func (s *AdminStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}
