package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Service logs operators in and resolves bearer tokens back to sessions.
type Service struct {
	authn  Authenticator
	store  Store
	tokens TokenConfig
	now    func() time.Time
}

// Option tunes a Service.
type Option func(*Service)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(authn Authenticator, store Store, tokens TokenConfig, opts ...Option) *Service {
	s := &Service{
		authn:  authn,
		store:  store,
		tokens: tokens,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks credentials, persists a new session and returns its token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	id, err := s.authn.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	user := id.User
	if !user.Role.IsValid() {
		user.Role = RoleOperator
	}

	now := s.now()
	sess := &Session{
		ID:         uuid.NewString(),
		User:       user,
		Credential: id.Credential,
		Valid:      true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.tokens.TTL),
	}
	token, err := MintToken(s.tokens, sess)
	if err != nil {
		return "", nil, errors.Wrap(err, "mint token")
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return "", nil, errors.Wrap(err, "save session")
	}
	return token, sess, nil
}

// Resolve validates token and loads the session it names.
func (s *Service) Resolve(ctx context.Context, token string) (*Session, error) {
	now := s.now()
	claims, err := ParseToken(s.tokens, token, now)
	if err != nil {
		return nil, errors.Wrap(ErrSessionInvalid, err.Error())
	}

	sess, err := s.store.Load(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if !sess.Active(now) {
		if err := s.store.Delete(ctx, sess.ID); err != nil {
			return nil, errors.Wrap(err, "delete inactive session")
		}
		return nil, ErrSessionInvalid
	}
	return sess, nil
}

// Live reports whether session id can still be used. A session that expired
// or was invalidated is deleted from the store.
func (s *Service) Live(ctx context.Context, id string) (bool, error) {
	sess, err := s.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if sess.Active(s.now()) {
		return true, nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return false, errors.Wrap(err, "delete inactive session")
	}
	return false, nil
}

// Logout invalidates and forgets the session.
func (s *Service) Logout(ctx context.Context, sess *Session) error {
	if err := s.store.Delete(ctx, sess.ID); err != nil {
		return errors.Wrap(err, "delete session")
	}
	sess.Valid = false
	return nil
}
