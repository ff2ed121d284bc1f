// Package redis persists operator sessions in Redis.
package redis

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
)

const sessionPrefix = "astroplay:session:"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Del(context.Context, ...string) *redis.IntCmd
}

var _ auth.Store = (*SessionStore)(nil)

// SessionStore implements auth.Store. Keys expire together with the session.
type SessionStore struct {
	store cmdable
	now   func() time.Time
}

// Open connects to the server at url and verifies connectivity.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// NewSessionStore creates a store on top of client.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{store: client, now: time.Now}
}

func sessionKey(id string) string { return sessionPrefix + id }

// Load fetches session id.
func (s *SessionStore) Load(ctx context.Context, id string) (*auth.Session, error) {
	raw, err := s.store.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "get session")
	}
	sess, err := decodeSession(raw)
	if err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	sess.ID = id
	return sess, nil
}

// Save stores sess until it expires. An already expired session is not
// stored.
func (s *SessionStore) Save(ctx context.Context, sess *auth.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, sess.ID)
	}
	if err := s.store.Set(ctx, sessionKey(sess.ID), encodeSession(sess), ttl).Err(); err != nil {
		return errors.Wrap(err, "set session")
	}
	return nil
}

// Delete removes session id.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Del(ctx, sessionKey(id)).Err(); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}

// Ping checks the connection.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx).Err()
}

func encodeSession(sess *auth.Session) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("user", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(sess.User.ID) })
				e.Field("email", func(e *jx.Encoder) { e.Str(sess.User.Email) })
				e.Field("name", func(e *jx.Encoder) { e.Str(sess.User.Name) })
				e.Field("role", func(e *jx.Encoder) { e.Str(string(sess.User.Role)) })
			})
		})
		e.Field("credential", func(e *jx.Encoder) { e.Str(sess.Credential) })
		e.Field("valid", func(e *jx.Encoder) { e.Bool(sess.Valid) })
		e.Field("created_at", func(e *jx.Encoder) { e.Str(sess.CreatedAt.UTC().Format(time.RFC3339Nano)) })
		e.Field("expires_at", func(e *jx.Encoder) { e.Str(sess.ExpiresAt.UTC().Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}

func decodeSession(raw []byte) (*auth.Session, error) {
	sess := &auth.Session{}
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "user":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				v, err := d.Str()
				if err != nil {
					return err
				}
				switch key {
				case "id":
					sess.User.ID = v
				case "email":
					sess.User.Email = v
				case "name":
					sess.User.Name = v
				case "role":
					sess.User.Role = auth.Role(v)
				}
				return nil
			})
		case "credential":
			sess.Credential, err = d.Str()
		case "valid":
			sess.Valid, err = d.Bool()
		case "created_at":
			sess.CreatedAt, err = decodeTime(d)
		case "expires_at":
			sess.ExpiresAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
