package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	dedupe "saferide/pkg/platform/strings"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	Server   Server
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Engine   EngineConfig
	LogLevel slog.Level
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// AllowedOrigins lists the browser origins allowed to open tracking
	// streams, lowercased. Empty means same-origin only.
	AllowedOrigins []string
}

// PostgresConfig selects the durable store. Empty URL means in-memory stores.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate applies the schema at startup.
	AutoMigrate bool
}

// RedisConfig selects the cross-instance tracking hub. Empty URL means the
// in-process hub.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables publishing escalation intents for the telephony
// integration. Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers         []string
	EscalationTopic string
	ClientID        string
}

// AuthConfig verifies operator bearer tokens.
type AuthConfig struct {
	OperatorJWTKey string
	Issuer         string
	// PlatformToken guards the routes the ride platform uses to raise and
	// reopen alerts. Empty disables those routes.
	PlatformToken string
}

// EngineConfig tunes the verification engine.
type EngineConfig struct {
	StoreTimeout       time.Duration
	StoreRetryAttempts int
	AnswerHashCost     int
	FallbackLatitude   float64
	FallbackLongitude  float64
	TrackingOpenWait   time.Duration
}

// Safe default location used when an alert has no position at call time
// (San José, Costa Rica).
const (
	DefaultFallbackLatitude  = 9.9281
	DefaultFallbackLongitude = -84.0907
)

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	jwtKey := os.Getenv("OPERATOR_JWT_KEY")
	if jwtKey == "" {
		// Use a default for development - should be overridden in production
		jwtKey = "dev-operator-key-change-in-production"
	}

	return Config{
		Server: Server{
			Addr:            envString("SAFERIDE_ADDR", ":8080"),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  dedupe.DedupeAndTrimLower(envList("TRACKING_ALLOWED_ORIGINS")),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     envBool("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:         dedupe.DedupeAndTrim(envList("KAFKA_BROKERS")),
			EscalationTopic: envString("KAFKA_ESCALATION_TOPIC", "saferide.escalation.intents"),
			ClientID:        envString("KAFKA_CLIENT_ID", "saferide"),
		},
		Auth: AuthConfig{
			OperatorJWTKey: jwtKey,
			Issuer:         envString("OPERATOR_JWT_ISSUER", "saferide"),
			PlatformToken:  os.Getenv("PLATFORM_TOKEN"),
		},
		Engine: EngineConfig{
			StoreTimeout:       envDuration("STORE_TIMEOUT", 3*time.Second),
			StoreRetryAttempts: envInt("STORE_RETRY_ATTEMPTS", 3),
			AnswerHashCost:     envInt("ANSWER_HASH_COST", 0),
			FallbackLatitude:   envFloat("FALLBACK_LAT", DefaultFallbackLatitude),
			FallbackLongitude:  envFloat("FALLBACK_LNG", DefaultFallbackLongitude),
			TrackingOpenWait:   envDuration("TRACKING_OPEN_WAIT", 5*time.Second),
		},
		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func envLevel(key string, fallback slog.Level) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(os.Getenv(key))); err != nil {
		return fallback
	}
	return lvl
}
