package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	AIProviderMock   = "mock"
	AIProviderGemini = "gemini"
	AIProviderGroq   = "groq"

	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

type Config struct {
	Env      string
	LogLevel string
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	AI       AIConfig
	Storage  StorageConfig
	Upload   UploadConfig
	Cache    CacheConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type AuthConfig struct {
	JWTSecret          string
	JWTIssuer          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
}

// AIConfig описывает провайдера распознавания чеков. mock работает без сети.
type AIConfig struct {
	Provider           string
	APIKey             string
	BaseURL            string
	Model              string
	Timeout            time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	MaxOutputTokens    int
}

type StorageConfig struct {
	Driver        string
	LocalDir      string
	PublicBaseURL string
	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
}

type UploadConfig struct {
	MaxImageBytes     int64
	MaxImageDimension int
}

type CacheConfig struct {
	ReferenceTTL time.Duration
}

type AdminConfig struct {
	Emails []string
}

// Load читает конфигурацию из окружения, предварительно подгрузив .env
// (или файл из ENV_FILE). Ошибки разбора собираются все сразу.
func Load() (Config, error) {
	if err := loadEnv(); err != nil {
		return Config{}, err
	}

	env := &envReader{}
	provider := strings.ToLower(env.str("AI_PROVIDER", AIProviderMock))
	defaultBaseURL, defaultModel := aiDefaults(provider)

	cfg := Config{
		Env:      env.str("APP_ENV", "local"),
		LogLevel: strings.ToLower(env.str("LOG_LEVEL", "info")),
		Server: ServerConfig{
			Host:         env.str("SERVER_HOST", "0.0.0.0"),
			Port:         env.positive("SERVER_PORT", 8080),
			ReadTimeout:  env.duration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: env.duration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  env.duration("SERVER_IDLE_TIMEOUT", time.Minute),
		},
		Database: DatabaseConfig{
			Host:            env.str("DB_HOST", "localhost"),
			Port:            env.positive("DB_PORT", 5432),
			User:            env.str("DB_USER", "receipts"),
			Password:        env.str("DB_PASSWORD", "receipts"),
			Name:            env.str("DB_NAME", "receipt_tracker"),
			SSLMode:         env.str("DB_SSLMODE", "disable"),
			MaxOpenConns:    env.positive("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    env.positive("DB_MAX_IDLE_CONNS", 2),
			ConnMaxIdleTime: env.duration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			ConnMaxLifetime: env.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     env.boolean("DB_AUTO_MIGRATE", true),
		},
		Auth: AuthConfig{
			JWTSecret:          env.str("JWT_SECRET", ""),
			JWTIssuer:          env.str("JWT_ISSUER", "receipt-tracker"),
			AccessTokenTTL:     env.duration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL:    env.duration("JWT_REFRESH_TTL", 7*24*time.Hour),
			RateLimitPerMinute: env.positive("AUTH_RATE_LIMIT_PER_MINUTE", 60),
			RateLimitBurst:     env.positive("AUTH_RATE_LIMIT_BURST", 10),
		},
		AI: AIConfig{
			Provider:           provider,
			APIKey:             env.str("AI_API_KEY", ""),
			BaseURL:            env.str("AI_BASE_URL", defaultBaseURL),
			Model:              env.str("AI_MODEL", defaultModel),
			Timeout:            env.duration("AI_TIMEOUT", 30*time.Second),
			RateLimitPerMinute: env.positive("AI_RATE_LIMIT_PER_MINUTE", 20),
			RateLimitBurst:     env.positive("AI_RATE_LIMIT_BURST", 5),
			MaxOutputTokens:    env.positive("AI_MAX_OUTPUT_TOKENS", 2048),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(env.str("STORAGE_DRIVER", StorageDriverLocal)),
			LocalDir:      env.str("STORAGE_LOCAL_DIR", "storage/public"),
			PublicBaseURL: strings.TrimRight(env.str("STORAGE_PUBLIC_URL", "/storage"), "/"),
			S3Endpoint:    env.str("S3_ENDPOINT", ""),
			S3Region:      env.str("S3_REGION", "us-east-1"),
			S3Bucket:      env.str("S3_BUCKET", ""),
			S3AccessKey:   env.str("S3_ACCESS_KEY_ID", ""),
			S3SecretKey:   env.str("S3_SECRET_ACCESS_KEY", ""),
		},
		Upload: UploadConfig{
			MaxImageBytes:     int64(env.positive("UPLOAD_MAX_IMAGE_KB", 10240)) * 1024,
			MaxImageDimension: env.positive("UPLOAD_MAX_IMAGE_DIMENSION", 2048),
		},
		Cache: CacheConfig{
			ReferenceTTL: env.duration("CACHE_REFERENCE_TTL", 10*time.Minute),
		},
		Admin: AdminConfig{
			Emails: env.list("ADMIN_EMAILS"),
		},
	}
	// GEMINI_API_KEY оставлен для старых .env.
	if cfg.AI.APIKey == "" && provider == AIProviderGemini {
		cfg.AI.APIKey = env.str("GEMINI_API_KEY", "")
	}

	if err := env.err(); err != nil {
		return cfg, err
	}
	return cfg, cfg.validate()
}

// DSN возвращает строку подключения к базе данных.
func (c DatabaseConfig) DSN() string {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return dsn.String()
}

func aiDefaults(provider string) (baseURL, model string) {
	switch provider {
	case AIProviderGemini:
		return "https://generativelanguage.googleapis.com/v1beta", "gemini-1.5-flash"
	case AIProviderGroq:
		return "https://api.groq.com/openai/v1", "llama-3.2-11b-vision-preview"
	default:
		return "", "fixture"
	}
}

func (c Config) validate() error {
	var errs []error
	require := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	require(c.Server.Port > 0, "SERVER_PORT must be greater than 0")
	require(c.Database.Host != "", "DB_HOST is required")
	require(c.Database.User != "", "DB_USER is required")
	require(c.Database.Name != "", "DB_NAME is required")
	require(c.Database.MaxIdleConns <= c.Database.MaxOpenConns, "DB_MAX_IDLE_CONNS cannot exceed DB_MAX_OPEN_CONNS")
	require(c.Auth.JWTSecret != "", "JWT_SECRET is required")

	switch c.AI.Provider {
	case AIProviderMock:
	case AIProviderGemini, AIProviderGroq:
		require(c.AI.APIKey != "", "AI_API_KEY is required for provider "+c.AI.Provider)
	default:
		require(false, "AI_PROVIDER must be one of mock, gemini, groq")
	}

	switch c.Storage.Driver {
	case StorageDriverLocal:
		require(c.Storage.LocalDir != "", "STORAGE_LOCAL_DIR is required")
	case StorageDriverS3:
		require(c.Storage.S3Bucket != "", "S3_BUCKET is required")
		require(c.Storage.S3AccessKey != "" && c.Storage.S3SecretKey != "", "S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY are required")
	default:
		require(false, "STORAGE_DRIVER must be one of local, s3")
	}

	return errors.Join(errs...)
}

// envReader читает переменные окружения и копит ошибки разбора.
type envReader struct {
	errs []error
}

func (r *envReader) str(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func (r *envReader) positive(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	switch {
	case err != nil:
		r.errs = append(r.errs, fmt.Errorf("%s must be an integer: %w", key, err))
	case parsed <= 0:
		r.errs = append(r.errs, fmt.Errorf("%s must be greater than 0", key))
	default:
		return parsed
	}
	return fallback
}

func (r *envReader) duration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	switch {
	case err != nil:
		r.errs = append(r.errs, fmt.Errorf("%s must be a duration: %w", key, err))
	case parsed <= 0:
		r.errs = append(r.errs, fmt.Errorf("%s must be greater than 0", key))
	default:
		return parsed
	}
	return fallback
}

func (r *envReader) boolean(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a boolean: %w", key, err))
		return fallback
	}
	return parsed
}

// list разбирает список через запятую, приводя элементы к нижнему регистру.
func (r *envReader) list(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if item := strings.ToLower(strings.TrimSpace(part)); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}

func loadEnv() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}
