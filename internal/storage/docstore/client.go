// Package docstore talks to the remote document database that holds the
// product catalog and operator accounts (a PocketBase-compatible REST API).
package docstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/astroplay-pos/internal/domain/auth"
)

// Config describes where the document database lives.
type Config struct {
	// BaseURL is the server root, e.g. https://db.astroplay.mx.
	BaseURL string
	// Products is the name of the product collection.
	Products string
	// Users is the name of the auth collection operators log in against.
	Users string
	// Token is a service credential used when a request carries no
	// operator session.
	Token   string
	Timeout time.Duration
}

// Client is a document database client.
type Client struct {
	base     *url.URL
	products string
	users    string
	token    string
	http     *http.Client
}

// New creates a Client. It does not contact the server.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	c := &Client{
		base:     base,
		products: cfg.Products,
		users:    cfg.Users,
		token:    cfg.Token,
		http:     httpClient,
	}
	if c.products == "" {
		c.products = "products"
	}
	if c.users == "" {
		c.users = "users"
	}
	return c, nil
}

func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := c.base.JoinPath(segments...)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// request describes one API call.
type request struct {
	method      string
	url         string
	body        []byte
	contentType string
	// anonymous skips the Authorization header.
	anonymous bool
}

// do executes r and returns the response body of a 2xx response. Any other
// status is decoded into an *APIError.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if !r.anonymous {
		if token := c.credential(ctx); token != "" {
			req.Header.Set("Authorization", token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", r.method, req.URL.Path)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	return data, nil
}

// credential prefers the store credential of the operator session in ctx.
func (c *Client) credential(ctx context.Context) string {
	if s, ok := auth.FromContext(ctx); ok && s.Credential != "" {
		return s.Credential
	}
	return c.token
}

// Ping checks that the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, request{
		method:    http.MethodGet,
		url:       c.endpoint(nil, "api", "health"),
		anonymous: true,
	})
	return err
}
