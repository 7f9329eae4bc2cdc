package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Log           LogConfig
	CORS          CORSConfig
	Auth          AuthConfig
	Routing       RoutingConfig
	Rollback      RollbackConfig
	Notifications NotificationConfig
	Reports       ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// AuthConfig secures the operator-facing admin endpoints.
type AuthConfig struct {
	JWTSecret            string
	TokenExpiry          time.Duration
	OperatorEmail        string
	OperatorPasswordHash string
}

// RoutingConfig controls dispatch between the legacy and modern systems.
type RoutingConfig struct {
	Enabled        bool
	LegacyBaseURL  string
	LegacyTimeout  time.Duration
	FlagCacheTTL   time.Duration
	RetentionDays  int
	SessionSummary bool
}

// RollbackConfig carries the thresholds and timers for the rollback state
// machine. Threshold values override the evaluator defaults.
type RollbackConfig struct {
	AutoRollback      bool
	ErrorThreshold    float64
	ResponseThreshold float64
	MemoryThresholdMB float64
	CooldownMinutes   int
	EmergencyTTL      time.Duration
	WindowSeconds     int
	CheckInterval     time.Duration
}

// NotificationConfig configures best-effort operator emails.
type NotificationConfig struct {
	Enabled    bool
	Recipients []string
	SMTPHost   string
	SMTPPort   int
	From       string
}

// ReportsConfig configures weekly migration report exports.
type ReportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	MigrationStart  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Auth = AuthConfig{
		JWTSecret:            v.GetString("JWT_SECRET"),
		TokenExpiry:          parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		OperatorEmail:        v.GetString("OPERATOR_EMAIL"),
		OperatorPasswordHash: v.GetString("OPERATOR_PASSWORD_HASH"),
	}

	cfg.Routing = RoutingConfig{
		Enabled:        v.GetBool("ROUTING_ENABLED"),
		LegacyBaseURL:  v.GetString("LEGACY_BASE_URL"),
		LegacyTimeout:  parseDuration(v.GetString("LEGACY_TIMEOUT"), 10*time.Second),
		FlagCacheTTL:   parseDuration(v.GetString("FLAG_CACHE_TTL"), 30*time.Second),
		RetentionDays:  v.GetInt("METRICS_RETENTION_DAYS"),
		SessionSummary: v.GetBool("ROUTING_SESSION_SUMMARY"),
	}

	cfg.Rollback = RollbackConfig{
		AutoRollback:      v.GetBool("ROLLBACK_AUTO"),
		ErrorThreshold:    v.GetFloat64("ROLLBACK_ERROR_THRESHOLD"),
		ResponseThreshold: v.GetFloat64("ROLLBACK_RESPONSE_THRESHOLD"),
		MemoryThresholdMB: v.GetFloat64("ROLLBACK_MEMORY_THRESHOLD_MB"),
		CooldownMinutes:   v.GetInt("ROLLBACK_COOLDOWN_MINUTES"),
		EmergencyTTL:      parseDuration(v.GetString("ROLLBACK_EMERGENCY_TTL"), 24*time.Hour),
		WindowSeconds:     v.GetInt("ROLLBACK_WINDOW_SECONDS"),
		CheckInterval:     parseDuration(v.GetString("ROLLBACK_CHECK_INTERVAL"), 5*time.Minute),
	}

	cfg.Notifications = NotificationConfig{
		Enabled:    v.GetBool("NOTIFICATIONS_ENABLED"),
		Recipients: splitAndTrim(v.GetString("NOTIFICATION_EMAILS")),
		SMTPHost:   v.GetString("SMTP_HOST"),
		SMTPPort:   v.GetInt("SMTP_PORT"),
		From:       v.GetString("SMTP_FROM"),
	}

	cfg.Reports = ReportsConfig{
		Enabled:         v.GetBool("ENABLE_REPORTS"),
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		MigrationStart:  v.GetString("MIGRATION_START_DATE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "moneyquiz_routing")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("OPERATOR_EMAIL", "ops@moneyquiz.local")
	v.SetDefault("OPERATOR_PASSWORD_HASH", "")

	v.SetDefault("ROUTING_ENABLED", true)
	v.SetDefault("LEGACY_BASE_URL", "http://localhost:8000")
	v.SetDefault("LEGACY_TIMEOUT", "10s")
	v.SetDefault("FLAG_CACHE_TTL", "30s")
	v.SetDefault("METRICS_RETENTION_DAYS", 30)
	v.SetDefault("ROUTING_SESSION_SUMMARY", false)

	v.SetDefault("ROLLBACK_AUTO", true)
	v.SetDefault("ROLLBACK_ERROR_THRESHOLD", 0.05)
	v.SetDefault("ROLLBACK_RESPONSE_THRESHOLD", 5.0)
	v.SetDefault("ROLLBACK_MEMORY_THRESHOLD_MB", 256)
	v.SetDefault("ROLLBACK_COOLDOWN_MINUTES", 60)
	v.SetDefault("ROLLBACK_EMERGENCY_TTL", "24h")
	v.SetDefault("ROLLBACK_WINDOW_SECONDS", 300)
	v.SetDefault("ROLLBACK_CHECK_INTERVAL", "5m")

	v.SetDefault("NOTIFICATIONS_ENABLED", false)
	v.SetDefault("NOTIFICATION_EMAILS", "")
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 25)
	v.SetDefault("SMTP_FROM", "routing-gateway@moneyquiz.local")

	v.SetDefault("ENABLE_REPORTS", false)
	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("MIGRATION_START_DATE", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
