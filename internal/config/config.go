// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/joeshaw/envdecode"
)

const (
	DefaultName    = "transcripter-mcp-server"
	DefaultVersion = "1.0.0"
	DefaultPort    = 3501
)

// Config for the transcripter server. Defaults are provided via struct tags.
type Config struct {
	// Name and Version are reported in the MCP implementation info and on GET /.
	Name    string `env:"TRANSCRIPTER_NAME,default=transcripter-mcp-server"`
	Version string `env:"TRANSCRIPTER_VERSION,default=1.0.0"`

	// Port for the "start" command. ENV: TRANSCRIPTER_PORT
	Port int `env:"TRANSCRIPTER_PORT,default=3501"`
	// Host the HTTP listener binds to.
	Host string `env:"TRANSCRIPTER_HOST"`

	// APIBaseURL is the base of the upstream API exercised by test-api.
	APIBaseURL string `env:"TRANSCRIPTER_API_URL,default=http://localhost:3000"`
	// BackendURL points transcription tools at a real REST backend. Empty uses
	// the built-in mock.
	BackendURL string `env:"TRANSCRIPTER_BACKEND_URL"`
	// NewsFile is an optional YAML article catalog reloaded on change.
	NewsFile string `env:"TRANSCRIPTER_NEWS_FILE"`
	// Instructions are sent to clients in the initialize result.
	Instructions string `env:"TRANSCRIPTER_INSTRUCTIONS"`
	// MessageBuffer is how many posted messages may queue per SSE session.
	MessageBuffer int `env:"TRANSCRIPTER_MESSAGE_BUFFER,default=100"`

	HTTPTimeout     time.Duration `env:"TRANSCRIPTER_HTTP_TIMEOUT,default=10s"`
	ShutdownTimeout time.Duration `env:"TRANSCRIPTER_SHUTDOWN_TIMEOUT,default=10s"`

	Log   Log
	Redis Redis
	Auth  Auth
}

type Log struct {
	Level  string `env:"TRANSCRIPTER_LOG_LEVEL,default=info"`
	Format string `env:"TRANSCRIPTER_LOG_FORMAT,default=text"`
	// Dir receives combined.log and error.log. Empty disables file logging.
	Dir string `env:"TRANSCRIPTER_LOG_DIR"`
}

type Redis struct {
	// Addr like "localhost:6379". Empty keeps the session directory in memory.
	Addr      string        `env:"REDIS_ADDR"`
	KeyPrefix string        `env:"SESSIONS_KEY_PREFIX,default=transcripter:sessions:"`
	TTL       time.Duration `env:"SESSIONS_TTL,default=1h"`
}

type Auth struct {
	// HMACSecret enables HS256 bearer tokens.
	HMACSecret string `env:"AUTH_HMAC_SECRET"`
	// JWKSURL enables JWKS-verified bearer tokens.
	JWKSURL string `env:"AUTH_JWKS_URL"`
	// Issuer is required with JWKSURL and enables OIDC discovery on its own.
	Issuer   string `env:"AUTH_ISSUER"`
	Audience string `env:"AUTH_AUDIENCE"`
	// RequiredScopes lists scopes every token must carry, separated by
	// commas or spaces. Tokens without them get 403 insufficient_scope.
	RequiredScopes string `env:"AUTH_REQUIRED_SCOPES"`
}

// Scopes splits RequiredScopes.
func (a Auth) Scopes() []string {
	return strings.FieldsFunc(a.RequiredScopes, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Enabled reports whether any authentication mode is configured.
func (a Auth) Enabled() bool {
	return a.HMACSecret != "" || a.JWKSURL != "" || a.Issuer != ""
}

// Load decodes the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MessageBuffer < 1 {
		return fmt.Errorf("invalid message buffer %d", c.MessageBuffer)
	}
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid api url %q: %w", c.APIBaseURL, err)
	}
	if c.BackendURL != "" {
		if _, err := url.ParseRequestURI(c.BackendURL); err != nil {
			return fmt.Errorf("invalid backend url %q: %w", c.BackendURL, err)
		}
	}
	if c.Auth.JWKSURL != "" && c.Auth.Issuer == "" {
		return fmt.Errorf("AUTH_ISSUER is required with AUTH_JWKS_URL")
	}
	if (c.Auth.JWKSURL != "" || c.Auth.Issuer != "") && c.Auth.Audience == "" {
		return fmt.Errorf("AUTH_AUDIENCE is required for JWT authentication")
	}
	return nil
}

// Addr returns the listen address for port.
func (c *Config) Addr(port int) string {
	return fmt.Sprintf("%s:%d", c.Host, port)
}
