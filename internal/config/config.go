// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Store drivers selectable through STORE_DRIVER.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMongo    = "mongo"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	SessionTTL     time.Duration `mapstructure:"SESSION_TTL"`
	Port           string        `mapstructure:"PORT"`
	StoreDriver    string        `mapstructure:"STORE_DRIVER"`
	StoreTimeout   time.Duration `mapstructure:"STORE_TIMEOUT"`
	DBHost         string        `mapstructure:"DB_HOST"`
	DBPort         string        `mapstructure:"DB_PORT"`
	DBUser         string        `mapstructure:"DB_USER"`
	DBPassword     string        `mapstructure:"DB_PASSWORD"`
	DBName         string        `mapstructure:"DB_NAME"`
	DBSSLMode      string        `mapstructure:"DB_SSLMODE"`
	DBSQLitePath   string        `mapstructure:"DB_SQLITE_PATH"`
	DBSchemaMode   string        `mapstructure:"DB_SCHEMA_MODE"`
	DBMaxOpenConns int           `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns int           `mapstructure:"DB_MAX_IDLE_CONNS"`
	// DBConnMaxLifetimeMinutes bounds how long a pooled connection is reused.
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	MongoURI                      string `mapstructure:"MONGO_URI"`
	MongoDatabase                 string `mapstructure:"MONGO_DATABASE"`
	RedisURL                      string `mapstructure:"REDIS_URL"`
	AllowedOrigins                string `mapstructure:"ALLOWED_ORIGINS"`
	Env                           string `mapstructure:"APP_ENV"`
	BcryptCost                    int    `mapstructure:"BCRYPT_COST"`
	FeatureFlags                  string `mapstructure:"FEATURE_FLAGS"`

	// Reviewer notification
	EmailAdmin   string `mapstructure:"EMAIL_ADMIN"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	// NotifyTimeout bounds one signup notification, SMTP dialogue included.
	NotifyTimeout time.Duration `mapstructure:"NOTIFY_TIMEOUT"`

	// Main admin bootstrap
	BootstrapMainAdmin bool   `mapstructure:"BOOTSTRAP_MAIN_ADMIN"`
	MainAdminName      string `mapstructure:"MAIN_ADMIN_NAME"`
	MainAdminEmail     string `mapstructure:"MAIN_ADMIN_EMAIL"`
	MainAdminPassword  string `mapstructure:"MAIN_ADMIN_PASSWORD"`

	// Tracing
	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// A local .env is a convenience for development; its absence is not an error.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			if isProdLike(env) {
				return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
			}
			slog.Info("no profile-specific configuration, using defaults and environment", slog.String("env", env))
		} else {
			slog.Info("loaded profile-specific configuration", slog.String("file", "config."+env+".yml"))
		}
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "5000")
	viper.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	viper.SetDefault("STORE_TIMEOUT", "5s")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "appleverse")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SQLITE_PATH", "appleverse.db")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0")
	viper.SetDefault("MONGO_DATABASE", "appleverse")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("SESSION_TTL", "12h")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("BCRYPT_COST", 10)
	viper.SetDefault("FEATURE_FLAGS", "reviewer_feed=on,catalog_writes=on")
	viper.SetDefault("EMAIL_ADMIN", "")
	viper.SetDefault("EMAIL_FROM", "")
	viper.SetDefault("SMTP_HOST", "")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_USERNAME", "")
	viper.SetDefault("SMTP_PASSWORD", "")
	viper.SetDefault("NOTIFY_TIMEOUT", "10s")
	viper.SetDefault("BOOTSTRAP_MAIN_ADMIN", false)
	viper.SetDefault("MAIN_ADMIN_NAME", "Main Admin")
	viper.SetDefault("MAIN_ADMIN_EMAIL", "")
	viper.SetDefault("MAIN_ADMIN_PASSWORD", "")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
}

func (c *Config) normalize() {
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.EmailAdmin = strings.TrimSpace(c.EmailAdmin)
	c.MainAdminEmail = strings.ToLower(strings.TrimSpace(c.MainAdminEmail))
}

func isProdLike(env string) bool {
	e := strings.ToLower(strings.TrimSpace(env))
	return e == "production" || e == "prod"
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return isProdLike(c.Env)
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.NotifyTimeout <= 0 {
		return errors.New("NOTIFY_TIMEOUT must be positive")
	}
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite, StoreDriverMongo:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("BCRYPT_COST must be between 4 and 31")
	}
	if c.BootstrapMainAdmin && (c.MainAdminEmail == "" || c.MainAdminPassword == "") {
		return errors.New("MAIN_ADMIN_EMAIL and MAIN_ADMIN_PASSWORD must be set when BOOTSTRAP_MAIN_ADMIN is enabled")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.StoreDriver == StoreDriverPostgres {
			if c.DBPassword == "password" || c.DBPassword == "" {
				return errors.New("a strong DB_PASSWORD is required in production")
			}
			if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
				return errors.New("DB_SSLMODE must enable TLS in production")
			}
		}
		if c.StoreDriver == StoreDriverSQLite {
			return errors.New("STORE_DRIVER=sqlite is not supported in production")
		}
		if c.AllowedOrigins == "*" {
			slog.Warn("ALLOWED_ORIGINS is set to '*' in production")
		}
		if c.EmailAdmin == "" {
			slog.Warn("EMAIL_ADMIN is empty; signup requests will not notify a reviewer")
		}
	} else if len(c.JWTSecret) < 32 {
		// Development/Test warnings
		slog.Warn("JWT_SECRET is shorter than 32 characters")
	}

	return nil
}
