package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
	"github.com/xenking/astroplay-pos/internal/domain/catalog"
	"github.com/xenking/astroplay-pos/internal/domain/pos"
	"github.com/xenking/astroplay-pos/internal/domain/product"
	"github.com/xenking/astroplay-pos/internal/handler"
	"github.com/xenking/astroplay-pos/internal/storage/memory"
)

type staticAuthenticator struct{}

func (staticAuthenticator) Authenticate(_ context.Context, email, _ string) (*auth.Identity, error) {
	return &auth.Identity{User: auth.User{ID: email, Email: email, Role: auth.RoleOperator}}, nil
}

func TestSessionSweeper_ExpiredSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	sessions := memory.NewSessionStore(memory.WithClock(clock))
	authSvc := auth.NewService(staticAuthenticator{}, sessions,
		auth.TokenConfig{Secret: "secret", Issuer: "astroplay", TTL: time.Hour},
		auth.WithClock(clock),
	)
	terminals := pos.NewRegistry()
	routes := handler.New(handler.Config{}, handler.Deps{
		Auth:      authSvc,
		Catalog:   catalog.New(nil, product.DefaultListParams),
		Terminals: terminals,
	}).Routes()
	sweeper := &sessionSweeper{auth: authSvc, terminals: terminals, memory: sessions}

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		routes.ServeHTTP(w, req)
		return w
	}
	login := func(email string) string {
		w := do(http.MethodPost, "/api/auth/login", "", fmt.Sprintf(`{"email":%q,"password":"pw"}`, email))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var body struct {
			Token string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		return body.Token
	}

	var tokens []string
	for i := range 5 {
		token := login(fmt.Sprintf("caja%d@astroplay.mx", i))
		require.Equal(t, http.StatusOK, do(http.MethodGet, "/api/cart", token, "").Code)
		tokens = append(tokens, token)
	}
	require.Equal(t, 5, terminals.Len())
	require.Equal(t, 5, sessions.Len())

	sweeper.sweep(context.Background())
	assert.Equal(t, 5, terminals.Len(), "live sessions keep their carts")

	now = now.Add(2 * time.Hour)
	fresh := login("nueva@astroplay.mx")
	require.Equal(t, http.StatusOK, do(http.MethodGet, "/api/cart", fresh, "").Code)

	sweeper.sweep(context.Background())
	assert.Equal(t, 1, terminals.Len())
	assert.Equal(t, 1, sessions.Len())
	assert.Equal(t, http.StatusUnauthorized, do(http.MethodGet, "/api/cart", tokens[0], "").Code)
	assert.Equal(t, 1, terminals.Len(), "rejected requests open no terminal")
}
