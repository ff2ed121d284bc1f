package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
)

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var email, password string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			email, err = d.Str()
		case "password":
			password, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}

	token, sess, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	zctx.From(r.Context()).Info("Operator logged in",
		zap.String("user_id", sess.User.ID),
		zap.String("role", string(sess.User.Role)),
	)

	respond(w, func(e *jx.Encoder) {
		e.Field("token", func(e *jx.Encoder) { e.Str(token) })
		e.Field("expiresAt", func(e *jx.Encoder) { e.Str(sess.ExpiresAt.UTC().Format(time.RFC3339)) })
		e.Field("user", func(e *jx.Encoder) { encodeUser(e, sess.User) })
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	if err := h.auth.Logout(r.Context(), sess); err != nil {
		writeError(w, r, err)
		return
	}
	h.terminals.Drop(sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.FromContext(r.Context())
	respond(w, func(e *jx.Encoder) {
		e.Field("user", func(e *jx.Encoder) { encodeUser(e, sess.User) })
		e.Field("expiresAt", func(e *jx.Encoder) { e.Str(sess.ExpiresAt.UTC().Format(time.RFC3339)) })
	})
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	const prefix = "bearer "
	v := r.Header.Get("Authorization")
	if len(v) <= len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(v[len(prefix):])
}

// requireSession resolves the bearer token to a session and stores it in the
// request context.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, r, errUnauthorized)
			return
		}
		sess, err := h.auth.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ctx := auth.WithSession(r.Context(), sess)
		ctx = zctx.With(ctx, zap.String("user_id", sess.User.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, r, errUnauthorized)
			return
		}
		if !sess.User.IsAdmin() {
			writeError(w, r, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
