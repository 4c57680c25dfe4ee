package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("config invalid")

type Config struct {
	HTTP      HTTPConfig
	JWT       JWTConfig
	Admin     AdminConfig
	OAuth     OAuthConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Store     StoreConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

type HTTPConfig struct {
	Addr                 string   `env:"HTTP_ADDR" envDefault:":8080"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
}

// JWTConfig holds the signing secret and token lifetimes. TTLs are kept in
// milliseconds to match the documented option names.
type JWTConfig struct {
	SecretKey    string `env:"JWT_SECRET_KEY,required,notEmpty"`
	AccessTTLMs  int64  `env:"JWT_ACCESS_TTL_MS" envDefault:"3600000"`
	RefreshTTLMs int64  `env:"JWT_REFRESH_TTL_MS" envDefault:"2592000000"`
}

func (c JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLMs) * time.Millisecond
}

func (c JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLMs) * time.Millisecond
}

// AdminConfig seeds a local ADMIN account at startup when both values are
// set and no account with that email exists.
type AdminConfig struct {
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
}

func (a AdminConfig) Enabled() bool {
	return a.Email != "" && a.Password != ""
}

type OAuthConfig struct {
	FrontendRedirectURL string         `env:"OAUTH_FRONTEND_REDIRECT_URL"`
	CallbackBaseURL     string         `env:"OAUTH_CALLBACK_BASE_URL" envDefault:"http://localhost:8080/login/oauth2/code"`
	StateTTL            time.Duration  `env:"OAUTH_STATE_TTL" envDefault:"10m"`
	Google              ProviderConfig `envPrefix:"GOOGLE_"`
	GitHub              ProviderConfig `envPrefix:"GITHUB_"`
}

type ProviderConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES" envSeparator:","`
}

func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type PostgresConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`
	Host        string `env:"PGHOST" envDefault:"localhost"`
	Port        string `env:"PGPORT" envDefault:"5432"`
	User        string `env:"PGUSER"`
	Password    string `env:"PGPASSWORD"`
	Database    string `env:"PGDATABASE"`
	SSLMode     string `env:"PGSSLMODE" envDefault:"disable"`
}

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

type RateLimitConfig struct {
	LoginPerMinute int `env:"RATELIMIT_LOGIN_PER_MINUTE" envDefault:"10"`
	LoginBurst     int `env:"RATELIMIT_LOGIN_BURST" envDefault:"10"`
}

// Load reads an optional .env file and then the process environment.
// A missing JWT_SECRET_KEY is an error so the process fails at startup.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.JWT.AccessTTLMs <= 0 {
		return fmt.Errorf("%w: JWT_ACCESS_TTL_MS must be positive", ErrInvalid)
	}
	if c.JWT.RefreshTTLMs <= 0 {
		return fmt.Errorf("%w: JWT_REFRESH_TTL_MS must be positive", ErrInvalid)
	}
	switch strings.ToLower(c.Store.Driver) {
	case "postgres", "memory":
	default:
		return fmt.Errorf("%w: unknown STORE_DRIVER %q", ErrInvalid, c.Store.Driver)
	}
	if c.RateLimit.LoginPerMinute <= 0 {
		return fmt.Errorf("%w: RATELIMIT_LOGIN_PER_MINUTE must be positive", ErrInvalid)
	}
	if c.RateLimit.LoginBurst <= 0 {
		return fmt.Errorf("%w: RATELIMIT_LOGIN_BURST must be positive", ErrInvalid)
	}
	if c.OAuth.StateTTL <= 0 {
		return fmt.Errorf("%w: OAUTH_STATE_TTL must be positive", ErrInvalid)
	}
	return nil
}
