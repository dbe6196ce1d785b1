package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "SchoolPortal"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultOAuthProvider    = "google"
	defaultSessionExpiry    = 7 * 24 * time.Hour
	defaultVerifyTimeout    = 3 * time.Second
	defaultRefreshInterval  = 10 * time.Minute
	defaultBackoffWindow    = 5 * time.Second
	defaultMaxVerifyAttempt = 10
	defaultSessionIdleTTL   = 30 * time.Minute
	defaultDocsAttempts     = 5
	defaultNeisBaseURL      = "https://open.neis.go.kr/hub"
	defaultNeisOfficeCode   = "B10"
	defaultNeisSchoolCode   = "7010170"
	defaultBannerCount      = 5
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	PublicURL      string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	Auth    AuthConfig
	Session SessionConfig
	Storage StorageConfig
	Docs    DocsConfig
	Neis    NeisConfig
}

// AuthConfig points at the hosted identity provider.
type AuthConfig struct {
	URL           string
	AnonKey       string
	JWTSecret     string
	OAuthProvider string
	// AuthorEmail is the only account allowed to publish posts.
	AuthorEmail string
}

// SessionConfig tunes the per-browser session cache.
type SessionConfig struct {
	Expiry            time.Duration
	VerifyTimeout     time.Duration
	RefreshInterval   time.Duration
	BackoffWindow     time.Duration
	MaxVerifyAttempts int
	IdleTTL           time.Duration
	SecureCookie      bool
}

// StorageConfig describes the S3-compatible bucket used for images.
type StorageConfig struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	BannerBaseURL string
	BannerCount   int
}

// DocsConfig guards the legal document editor.
type DocsConfig struct {
	AdminPasswordHash string
	AdminPassword     string
	AttemptsPerMinute int
}

// NeisConfig configures the education office open API used by the meal and timetable widgets.
type NeisConfig struct {
	BaseURL    string
	APIKey     string
	OfficeCode string
	SchoolCode string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		PublicURL:      strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		Auth: AuthConfig{
			URL:           strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			AnonKey:       os.Getenv("SUPABASE_ANON_KEY"),
			JWTSecret:     os.Getenv("SUPABASE_JWT_SECRET"),
			OAuthProvider: getEnv("OAUTH_PROVIDER", defaultOAuthProvider),
			AuthorEmail:   strings.ToLower(strings.TrimSpace(os.Getenv("AUTHOR_EMAIL"))),
		},
		Storage: StorageConfig{
			Endpoint:      os.Getenv("STORAGE_ENDPOINT"),
			Region:        getEnv("STORAGE_REGION", "auto"),
			AccessKey:     os.Getenv("STORAGE_ACCESS_KEY"),
			SecretKey:     os.Getenv("STORAGE_SECRET_KEY"),
			Bucket:        os.Getenv("STORAGE_BUCKET"),
			PublicBaseURL: os.Getenv("STORAGE_PUBLIC_URL"),
			BannerBaseURL: strings.TrimRight(getEnv("BANNER_BASE_URL", "https://example.com"), "/"),
		},
		Docs: DocsConfig{
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		},
		Neis: NeisConfig{
			BaseURL:    strings.TrimRight(getEnv("NEIS_BASE_URL", defaultNeisBaseURL), "/"),
			APIKey:     os.Getenv("NEIS_API_KEY"),
			OfficeCode: getEnv("NEIS_OFFICE_CODE", defaultNeisOfficeCode),
			SchoolCode: getEnv("NEIS_SCHOOL_CODE", defaultNeisSchoolCode),
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.Session.Expiry, err = durationEnv("SESSION_CACHE_EXPIRY_SECONDS", "SESSION_CACHE_EXPIRY", defaultSessionExpiry); err != nil {
		return Config{}, err
	}
	if cfg.Session.VerifyTimeout, err = durationEnv("SESSION_VERIFY_TIMEOUT_SECONDS", "SESSION_VERIFY_TIMEOUT", defaultVerifyTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Session.RefreshInterval, err = durationEnv("SESSION_REFRESH_INTERVAL_SECONDS", "SESSION_REFRESH_INTERVAL", defaultRefreshInterval); err != nil {
		return Config{}, err
	}
	if cfg.Session.BackoffWindow, err = durationEnv("SESSION_BACKOFF_SECONDS", "SESSION_BACKOFF", defaultBackoffWindow); err != nil {
		return Config{}, err
	}
	if cfg.Session.IdleTTL, err = durationEnv("SESSION_IDLE_TTL_SECONDS", "SESSION_IDLE_TTL", defaultSessionIdleTTL); err != nil {
		return Config{}, err
	}
	if cfg.Session.MaxVerifyAttempts, err = intEnv("SESSION_MAX_VERIFY_ATTEMPTS", defaultMaxVerifyAttempt); err != nil {
		return Config{}, err
	}
	if cfg.Docs.AttemptsPerMinute, err = intEnv("DOCS_ATTEMPTS_PER_MINUTE", defaultDocsAttempts); err != nil {
		return Config{}, err
	}
	if cfg.Storage.BannerCount, err = intEnv("BANNER_COUNT", defaultBannerCount); err != nil {
		return Config{}, err
	}
	cfg.Session.SecureCookie = !cfg.IsDev()

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.Auth.URL == "" {
			return Config{}, fmt.Errorf("SUPABASE_URL must be set")
		}
		if cfg.Docs.AdminPasswordHash == "" && cfg.Docs.AdminPassword == "" {
			return Config{}, fmt.Errorf("ADMIN_PASSWORD_HASH or ADMIN_PASSWORD must be set")
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local/development environment,
// where in-memory backends stand in for Postgres and Redis.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads a whole number of seconds from secondsKey, or a Go
// duration string from durationKey, in that order of precedence.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
