package docstore

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
)

var _ auth.Authenticator = (*Client)(nil)

// Authenticate logs in against the users collection. The returned identity
// carries the server token, which later writes are made with.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*auth.Identity, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("identity", func(e *jx.Encoder) { e.Str(email) })
		e.Field("password", func(e *jx.Encoder) { e.Str(password) })
	})

	body, err := c.do(ctx, request{
		method:      http.MethodPost,
		url:         c.endpoint(nil, "api", "collections", c.users, "auth-with-password"),
		body:        e.Bytes(),
		contentType: "application/json",
		anonymous:   true,
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "authenticate")
	}

	id := &auth.Identity{}
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "token":
			tok, err := d.Str()
			id.Credential = tok
			return err
		case "record":
			return decodeUser(d, &id.User)
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode auth response")
	}
	if id.Credential == "" || id.User.ID == "" {
		return nil, errors.New("auth response is missing token or record")
	}
	return id, nil
}

func decodeUser(d *jx.Decoder, u *auth.User) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var (
			s   string
			err error
		)
		switch key {
		case "id", "email", "name", "role":
			s, err = decodeOptionalStr(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return err
		}
		switch key {
		case "id":
			u.ID = s
		case "email":
			u.Email = s
		case "name":
			u.Name = s
		case "role":
			u.Role = auth.Role(s)
		}
		return nil
	})
}
