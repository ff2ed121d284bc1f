package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
)

const (
	getUserByEmailSQL = `SELECT id, email, name, role, password_hash FROM users WHERE lower(email) = lower($1)`

	upsertUserSQL = `INSERT INTO users (id, email, name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE
			SET name = EXCLUDED.name, role = EXCLUDED.role, password_hash = EXCLUDED.password_hash
		RETURNING id`
)

var _ auth.Authenticator = (*UserRepository)(nil)

// UserRepository stores operator accounts with bcrypt password hashes.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Authenticate checks password against the stored hash. Unknown emails and
// wrong passwords both yield auth.ErrInvalidCredentials. The identity carries
// no store credential.
func (r *UserRepository) Authenticate(ctx context.Context, email, password string) (*auth.Identity, error) {
	var (
		u    auth.User
		role string
		hash string
	)
	err := r.pool.QueryRow(ctx, getUserByEmailSQL, strings.TrimSpace(email)).
		Scan(&u.ID, &u.Email, &u.Name, &role, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, auth.ErrInvalidCredentials
	}
	u.Role = auth.Role(role)
	return &auth.Identity{User: u}, nil
}

// Upsert creates the account or resets its name, role and password.
func (r *UserRepository) Upsert(ctx context.Context, u auth.User, password string) (string, error) {
	if !u.Role.IsValid() {
		return "", errors.Errorf("invalid role %q", u.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}
	var stored string
	err = r.pool.QueryRow(ctx, upsertUserSQL, id, strings.TrimSpace(u.Email), u.Name, string(u.Role), string(hash)).
		Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	return stored, nil
}
