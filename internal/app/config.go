package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Catalog store backends.
const (
	BackendDocstore = "docstore"
	BackendPostgres = "postgres"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	PublicURL   string `default:"" usage:"Externally visible base URL used in file links" flag:"public-url"`
	DatabaseURL string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis URL for sessions; in-memory sessions when empty (POS_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Catalog     CatalogConfig
	Docstore    DocstoreConfig
	Auth        AuthConfig
	Checkout    CheckoutConfig
	Upload      UploadConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// CatalogConfig selects the catalog store and how the snapshot is fetched.
type CatalogConfig struct {
	Backend      string        `default:"docstore" usage:"Catalog store backend: docstore or postgres"`
	PerPage      int           `default:"50" usage:"Products fetched per reload" flag:"catalog-per-page"`
	Sort         string        `default:"-created" usage:"Catalog sort order" flag:"catalog-sort"`
	RefreshEvery time.Duration `default:"0s" usage:"Periodic catalog reload interval, 0 disables" flag:"catalog-refresh"`
	MaxAge       time.Duration `default:"0s" usage:"Readiness fails when the snapshot is older, 0 disables" flag:"catalog-max-age"`
}

// DocstoreConfig locates the document database.
type DocstoreConfig struct {
	URL        string        `default:"http://127.0.0.1:8090" usage:"Document database base URL" flag:"docstore-url"`
	Token      string        `usage:"Service token used when no operator is logged in" flag:"docstore-token"`
	Collection string        `default:"products" usage:"Product collection" flag:"docstore-collection"`
	Users      string        `default:"users" usage:"Operator auth collection" flag:"docstore-users"`
	Timeout    time.Duration `default:"10s" usage:"Request timeout" flag:"docstore-timeout"`
}

// AuthConfig configures session tokens.
type AuthConfig struct {
	JWTSecret  string        `usage:"HMAC secret for session tokens (POS_AUTH_JWT_SECRET)" flag:"jwt-secret"`
	Issuer     string        `default:"astroplay-pos" usage:"Session token issuer"`
	TTL        time.Duration `default:"12h" usage:"Session lifetime" flag:"session-ttl"`
	SweepEvery time.Duration `default:"1m" usage:"How often carts and sessions of expired logins are dropped" flag:"session-sweep"`
}

// CheckoutConfig tunes the sale flow.
type CheckoutConfig struct {
	Delay          time.Duration `default:"1500ms" usage:"Simulated payment processing time" flag:"checkout-delay"`
	DecrementStock bool          `default:"false" usage:"Take sold units out of the catalog store" flag:"decrement-stock"`
}

// UploadConfig bounds product forms.
type UploadConfig struct {
	MaxSize         int64  `default:"10485760" usage:"Maximum product form size in bytes" flag:"upload-max-size"`
	CaptureEndpoint string `default:"" usage:"Camera capture endpoint advertised to the check-in screen" flag:"capture-endpoint"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window, 0 disables"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/astroplay/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	c.Catalog.Backend = strings.ToLower(strings.TrimSpace(c.Catalog.Backend))
	switch c.Catalog.Backend {
	case BackendDocstore:
		if c.Docstore.URL == "" {
			return errors.New("docstore URL is required: set POS_DOCSTORE_URL")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown catalog backend %q", c.Catalog.Backend)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT secret is required: set POS_AUTH_JWT_SECRET")
	}
	if c.Auth.TTL <= 0 {
		return errors.Errorf("session TTL must be positive, got %s", c.Auth.TTL)
	}
	if c.Auth.SweepEvery <= 0 {
		return errors.Errorf("session sweep interval must be positive, got %s", c.Auth.SweepEvery)
	}
	if c.Catalog.PerPage <= 0 {
		return errors.Errorf("catalog page size must be positive, got %d", c.Catalog.PerPage)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// filesURL is the base of product image links served by this API.
func (c *Config) filesURL() string {
	return strings.TrimRight(c.PublicURL, "/") + "/api/files"
}
