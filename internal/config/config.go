package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	UploadPolicyAdmin = "admin"
	UploadPolicyAny   = "any"

	MediaBackendLocal = "local"
	MediaBackendMinio = "minio"
)

const minSecretLen = 32

// Config holds every runtime setting. Values come from an optional YAML
// file and are then overridden by environment variables.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"databaseURL"`
	SiteURL     string `yaml:"siteURL"`
	LogLevel    string `yaml:"logLevel"`
	LogJSON     bool   `yaml:"logJSON"`

	JWTSecret     string        `yaml:"jwtSecret"`
	SessionSecret string        `yaml:"sessionSecret"`
	SessionTTL    time.Duration `yaml:"sessionTTL"`
	CookieName    string        `yaml:"cookieName"`
	CookieSecure  bool          `yaml:"cookieSecure"`

	BookUploadPolicy     string `yaml:"bookUploadPolicy"`
	RequireVerifiedEmail bool   `yaml:"requireVerifiedEmail"`

	RedisAddr                  string `yaml:"redisAddr"`
	RedisPassword              string `yaml:"redisPassword"`
	LoginRateLimitPerMinute    int    `yaml:"loginRateLimitPerMinute"`
	RegisterRateLimitPerMinute int    `yaml:"registerRateLimitPerMinute"`

	MediaBackend   string `yaml:"mediaBackend"`
	MediaDir       string `yaml:"mediaDir"`
	MediaBaseURL   string `yaml:"mediaBaseURL"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`

	SMTPHost string `yaml:"smtpHost"`
	SMTPPort string `yaml:"smtpPort"`
	SMTPUser string `yaml:"smtpUser"`
	SMTPPass string `yaml:"smtpPass"`
	SMTPFrom string `yaml:"smtpFrom"`

	AdminEmail           string `yaml:"adminEmail"`
	AdminInitialPassword string `yaml:"adminInitialPassword"`

	BroadcastWorkers   int `yaml:"broadcastWorkers"`
	BroadcastQueueSize int `yaml:"broadcastQueueSize"`
}

// Default returns a config with local development defaults.
func Default() Config {
	return Config{
		Port:                       "8080",
		DatabaseURL:                "host=localhost user=postgres password=postgres dbname=bookcircle port=5432 sslmode=disable",
		SiteURL:                    "http://localhost:8080",
		LogLevel:                   "info",
		SessionTTL:                 7 * 24 * time.Hour,
		CookieName:                 "bookcircle_session",
		BookUploadPolicy:           UploadPolicyAny,
		LoginRateLimitPerMinute:    10,
		RegisterRateLimitPerMinute: 5,
		MediaBackend:               MediaBackendLocal,
		MediaDir:                   "uploads",
		MediaBaseURL:               "/media",
		MinioBucket:                "bookcircle",
		MaxUploadBytes:             10 * 1024 * 1024,
		BroadcastWorkers:           2,
		BroadcastQueueSize:         256,
	}
}

// Load reads .env, then the YAML file at path (skipped when empty or
// missing), then environment overrides, and validates the result.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, reading env vars from system")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("config file not found, using defaults", "path", path)
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.SiteURL, "SITE_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setBool(&cfg.LogJSON, "LOG_JSON")

	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.SessionSecret, "SESSION_SECRET")
	setDuration(&cfg.SessionTTL, "SESSION_TTL")
	setString(&cfg.CookieName, "COOKIE_NAME")
	setBool(&cfg.CookieSecure, "COOKIE_SECURE")

	setString(&cfg.BookUploadPolicy, "BOOK_UPLOAD_POLICY")
	setBool(&cfg.RequireVerifiedEmail, "REQUIRE_VERIFIED_EMAIL")

	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.LoginRateLimitPerMinute, "LOGIN_RATE_LIMIT_PER_MINUTE")
	setInt(&cfg.RegisterRateLimitPerMinute, "REGISTER_RATE_LIMIT_PER_MINUTE")

	setString(&cfg.MediaBackend, "MEDIA_BACKEND")
	setString(&cfg.MediaDir, "MEDIA_DIR")
	setString(&cfg.MediaBaseURL, "MEDIA_BASE_URL")
	setString(&cfg.MinioEndpoint, "MINIO_ENDPOINT")
	setString(&cfg.MinioAccessKey, "MINIO_ACCESS_KEY")
	setString(&cfg.MinioSecretKey, "MINIO_SECRET_KEY")
	setString(&cfg.MinioBucket, "MINIO_BUCKET")
	setBool(&cfg.MinioUseSSL, "MINIO_USE_SSL")
	if v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}

	setString(&cfg.SMTPHost, "SMTP_HOST")
	setString(&cfg.SMTPPort, "SMTP_PORT")
	setString(&cfg.SMTPUser, "SMTP_USER")
	setString(&cfg.SMTPPass, "SMTP_PASS")
	setString(&cfg.SMTPFrom, "SMTP_FROM")

	setString(&cfg.AdminEmail, "ADMIN_EMAIL")
	setString(&cfg.AdminInitialPassword, "ADMIN_INITIAL_PASSWORD")

	setInt(&cfg.BroadcastWorkers, "BROADCAST_WORKERS")
	setInt(&cfg.BroadcastQueueSize, "BROADCAST_QUEUE_SIZE")
}

// Validate checks settings that would otherwise fail at request time.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("config: port is required")
	}
	if len(c.JWTSecret) < minSecretLen {
		return fmt.Errorf("config: JWT_SECRET must be at least %d characters", minSecretLen)
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	switch c.BookUploadPolicy {
	case UploadPolicyAdmin, UploadPolicyAny:
	default:
		return fmt.Errorf("config: unknown BOOK_UPLOAD_POLICY %q", c.BookUploadPolicy)
	}
	switch c.MediaBackend {
	case MediaBackendLocal:
	case MediaBackendMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return errors.New("config: MINIO_ENDPOINT and MINIO_BUCKET are required for the minio backend")
		}
	default:
		return fmt.Errorf("config: unknown MEDIA_BACKEND %q", c.MediaBackend)
	}
	if c.LoginRateLimitPerMinute < 0 || c.RegisterRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

// SessionKey returns the cookie store key, falling back to the JWT secret.
func (c Config) SessionKey() []byte {
	if c.SessionSecret != "" {
		return []byte(c.SessionSecret)
	}
	return []byte(c.JWTSecret)
}

// MailEnabled reports whether SMTP delivery is fully configured.
func (c Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPUser != "" && c.SMTPPass != "" && c.SMTPFrom != ""
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
