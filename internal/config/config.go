package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // application environment (e.g. "development", "production")
	Port string // HTTP port to listen on

	DBDriver string // mysql | sqlite | postgres
	DBUser   string // mysql user
	DBPass   string // mysql password (optional)
	DBHost   string // mysql host
	DBPort   string // mysql port
	DBName   string // mysql database name
	DBPath   string // sqlite file path
	DBURL    string // postgres connection string

	JWTSecret  string        // secret used to sign session tokens
	SessionTTL time.Duration // session token lifetime

	ClientID        string        // platform OAuth client id
	ClientSecret    string        // platform OAuth client secret
	CallbackURL     string        // base URL the platform redirects back to (optional)
	AuthorizeURL    string        // platform authorize endpoint
	TokenURL        string        // platform token endpoint
	APIBaseURL      string        // platform REST base URL
	Scopes          []string      // scopes requested on authorize
	PopupState      string        // state value marking a popup authorization
	DashboardURL    string        // workspace dashboard redirect target
	DesignerURL     string        // designer entry point, %s is the site short name
	UpstreamTimeout time.Duration // timeout around exchange and identity calls

	CredentialSealKey string // optional key sealing stored access credentials
	AMQPURL           string // optional broker URL for invalidation events
}

// DefaultScopes are requested when WEBFLOW_SCOPES is not set.
var DefaultScopes = []string{
	"sites:read",
	"sites:write",
	"pages:read",
	"custom_code:read",
	"custom_code:write",
	"authorized_user:read",
}

// Load reads configuration values from environment variables.  Every
// missing required variable is reported in the returned error.
func Load() (Config, error) {
	var missing []error
	must := func(key string) string {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			missing = append(missing, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}

	cfg := Config{
		Env:  envStr("APP_ENV", "development"),
		Port: envStr("APP_PORT", "3000"),

		DBDriver: strings.ToLower(envStr("DB_DRIVER", "sqlite")),
		DBUser:   os.Getenv("DB_USER"),
		DBPass:   os.Getenv("DB_PASS"),
		DBHost:   envStr("DB_HOST", "localhost"),
		DBPort:   envStr("DB_PORT", "3306"),
		DBName:   envStr("DB_NAME", "designer_bridge"),
		DBPath:   envStr("DB_PATH", "./db/database.db"),
		DBURL:    firstEnv("DB_URL", "DATABASE_URL"),

		JWTSecret:  must("JWT_SECRET"),
		SessionTTL: envDur("SESSION_TTL", 24*time.Hour),

		ClientID:        must("WEBFLOW_CLIENT_ID"),
		ClientSecret:    must("WEBFLOW_CLIENT_SECRET"),
		CallbackURL:     os.Getenv("WEBFLOW_REDIRECT_URI"),
		AuthorizeURL:    envStr("WEBFLOW_AUTHORIZE_URL", "https://webflow.com/oauth/authorize"),
		TokenURL:        envStr("WEBFLOW_TOKEN_URL", "https://api.webflow.com/oauth/access_token"),
		APIBaseURL:      envStr("WEBFLOW_API_URL", "https://api.webflow.com"),
		Scopes:          envList("WEBFLOW_SCOPES", DefaultScopes),
		PopupState:      envStr("POPUP_STATE", "webflow_designer"),
		DashboardURL:    envStr("WEBFLOW_DASHBOARD_URL", "https://webflow.com/dashboard"),
		DesignerURL:     envStr("WEBFLOW_DESIGNER_URL", "https://%s.design.webflow.com"),
		UpstreamTimeout: envDur("UPSTREAM_TIMEOUT", 30*time.Second),

		CredentialSealKey: os.Getenv("CREDENTIAL_SEAL_KEY"),
		AMQPURL:           firstEnv("RABBITMQ_URL", "AMQP_URL"),
	}

	switch cfg.DBDriver {
	case "mysql":
		if cfg.DBUser == "" {
			missing = append(missing, errors.New("missing required env var: DB_USER"))
		}
	case "postgres":
		if cfg.DBURL == "" {
			missing = append(missing, errors.New("missing required env var: DB_URL"))
		}
	case "sqlite":
	default:
		missing = append(missing, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver))
	}

	if len(missing) > 0 {
		return Config{}, errors.Join(missing...)
	}
	return cfg, nil
}

// IsDevelopment reports whether the development-only endpoints are enabled.
func (c Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev"
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func envList(k string, d []string) []string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
