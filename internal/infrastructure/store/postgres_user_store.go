package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/ec-storefront/internal/auth"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, country_code`

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, `WHERE email = $1`, email)
}

func (s *PostgresUserStore) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	return s.findOne(ctx, `WHERE id = $1`, id)
}

func (s *PostgresUserStore) findOne(ctx context.Context, where string, arg any) (*auth.User, error) {
	var u auth.User
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users `+where, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role, &u.CountryCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return &u, nil
}
