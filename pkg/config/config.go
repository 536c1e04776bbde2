package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Mongo    MongoConfig
	Database DatabaseConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Auth     AuthConfig
	Pricing  PricingConfig
	Storage  StorageConfig
	Email    EmailConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type MongoConfig struct {
	URI      string
	Database string
}

// DatabaseConfig points at the Postgres instance that backs request rate limits.
// An empty URL disables rate limiting.
type DatabaseConfig struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxLifetime time.Duration
}

// RedisConfig points at the cache used for booking idempotency keys.
// An empty URL disables the Idempotency-Key handling.
type RedisConfig struct {
	URL            string
	DB             int
	IdempotencyTTL time.Duration
}

type NATSConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	CookieName      string
	LoginRateLimit  int
	RateLimitWindow time.Duration
}

type PricingConfig struct {
	PeakStartHour int
	PeakEndHour   int
	TimeZone      string
	MaxSurge      float64
}

type StorageConfig struct {
	Driver        string // "s3" or "local"
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	LocalDir      string
	Folder        string
}

type EmailConfig struct {
	MailerSendKey string
	FromName      string
	FromEmail     string
	DevMode       bool // log emails instead of sending
}

type JobsConfig struct {
	DurationSweepSpec    string
	SweepConcurrency     int
	ReconcileSpec        string
	RateLimitCleanupSpec string
	// ReservationGrace is how long an unavailable listing without an open
	// booking is left alone before the reconcile sweep frees it.
	ReservationGrace time.Duration
}

// IsProduction reports whether cookies should be issued as Secure.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func Load() *Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "5000"),
			Env:            getEnv("APP_ENV", "development"),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowedOrigins: getList("CLIENT_URL", []string{"http://localhost:5173"}),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "parkspot"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			MaxConns:    getInt("DB_MAX_CONNS", 10),
			MinConns:    getInt("DB_MIN_CONNS", 1),
			MaxLifetime: getDuration("DB_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			URL:            getEnv("REDIS_URL", ""),
			DB:             getInt("REDIS_DB", 0),
			IdempotencyTTL: getDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		NATS: NATSConfig{
			URL: getEnv("NATS_URL", "nats://localhost:4222"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("JWT_KEY", "dev-only-secret-change-in-prod"),
			AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
			CookieName:      getEnv("ACCESS_COOKIE_NAME", "accessToken"),
			LoginRateLimit:  getInt("AUTH_RATE_LIMIT", 10),
			RateLimitWindow: getDuration("AUTH_RATE_LIMIT_WINDOW", time.Minute),
		},
		Pricing: PricingConfig{
			PeakStartHour: getInt("PEAK_START_HOUR", 8),
			PeakEndHour:   getInt("PEAK_END_HOUR", 18),
			TimeZone:      getEnv("PEAK_TIMEZONE", "Local"),
			MaxSurge:      getFloat("MAX_SURGE_MULTIPLIER", 10),
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			Bucket:        getEnv("S3_BUCKET", ""),
			Region:        getEnv("S3_REGION", "us-east-1"),
			Endpoint:      getEnv("S3_ENDPOINT", ""),
			AccessKey:     getEnv("S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("S3_SECRET_KEY", ""),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_URL", "http://localhost:5000/uploads"),
			LocalDir:      getEnv("STORAGE_LOCAL_DIR", "./uploads"),
			Folder:        getEnv("STORAGE_FOLDER", "parkspot"),
		},
		Email: EmailConfig{
			MailerSendKey: getEnv("MAILERSEND_API_KEY", ""),
			FromName:      getEnv("EMAIL_FROM_NAME", "ParkSpot"),
			FromEmail:     getEnv("EMAIL_FROM", "noreply@parkspot.local"),
			DevMode:       getBool("EMAIL_DEV_MODE", true),
		},
		Jobs: JobsConfig{
			DurationSweepSpec:    getEnv("DURATION_SWEEP_CRON", "0 */15 * * * *"),
			SweepConcurrency:     getInt("DURATION_SWEEP_CONCURRENCY", 4),
			ReconcileSpec:        getEnv("RECONCILE_CRON", "30 */5 * * * *"),
			RateLimitCleanupSpec: getEnv("RATE_LIMIT_CLEANUP_CRON", "0 0 * * * *"),
			ReservationGrace:     getDuration("RESERVATION_GRACE", 10*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
