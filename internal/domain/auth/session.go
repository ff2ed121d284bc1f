// Package auth defines operators, their sessions, and the boundary to where
// sessions are persisted.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for authentication.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionInvalid     = errors.New("session is no longer valid")
)

// Role is the permission level of an operator.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleOperator
}

// User is an operator of the play center.
type User struct {
	ID    string
	Email string
	Name  string
	Role  Role
}

// IsAdmin reports whether u may manage the catalog.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Identity is an authenticated user together with the credential the catalog
// store issued for it, if any.
type Identity struct {
	User User
	// Credential is forwarded to the catalog store on behalf of the user.
	Credential string
}

// Session is the state of one login. It is passed explicitly to whatever
// needs it and loaded from or saved to a Store at the request boundary.
type Session struct {
	ID         string
	User       User
	Credential string
	Valid      bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Active reports whether s can still be used at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.Valid && now.Before(s.ExpiresAt)
}

// Store persists sessions across restarts.
type Store interface {
	// Load returns ErrSessionNotFound when no session has the given ID.
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// Authenticator checks operator credentials.
type Authenticator interface {
	// Authenticate returns ErrInvalidCredentials when the email or password
	// is wrong.
	Authenticate(ctx context.Context, email, password string) (*Identity, error)
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext extracts the session stored by WithSession.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}
