// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration of the onboarding service
type Config struct {
	Database     DatabaseConfig     `json:"database"`
	Server       ServerConfig       `json:"server"`
	Security     SecurityConfig     `json:"security"`
	JWT          JWTConfig          `json:"jwt"`
	Verification VerificationConfig `json:"verification"`
	Email        EmailConfig        `json:"email"`
	Logging      LoggingConfig      `json:"logging"`
	Metrics      MetricsConfig      `json:"metrics"`
	Cache        CacheConfig        `json:"cache"`
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type DatabaseConfig struct {
	Driver          string        `json:"driver"` // postgres, memory
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

// DSN returns the key/value connection string understood by the postgres driver
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
}

// Addr returns host:port
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SecurityConfig struct {
	AllowedOrigins   []string      `json:"allowed_origins"`
	AllowCredentials bool          `json:"allow_credentials"`
	AuthRateLimit    int           `json:"auth_rate_limit"`   // requests per window
	GlobalRateLimit  int           `json:"global_rate_limit"` // requests per window
	RateLimitWindow  time.Duration `json:"rate_limit_window"`
	BcryptCost       int           `json:"bcrypt_cost"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	PrivateKey      string        `json:"private_key"`  // RSA private key in PEM format
	PublicKey       string        `json:"public_key"`   // RSA public key in PEM format
	UseRSAKeys      bool          `json:"use_rsa_keys"` // Whether to use RSA keys instead of secret key
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

type VerificationConfig struct {
	CodeTTL        time.Duration `json:"code_ttl"`
	MaxAttempts    int           `json:"max_attempts"`
	ResendCooldown time.Duration `json:"resend_cooldown"`
}

type EmailConfig struct {
	Provider  string `json:"provider"` // mock, smtp
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FromEmail string `json:"from_email"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Format     string `json:"format"` // json, console
	Output     string `json:"output"` // stdout, stderr, file
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled             bool          `json:"enabled"`
	RedisURL            string        `json:"redis_url"`
	RedisDB             int           `json:"redis_db"`
	RedisPrefix         string        `json:"redis_prefix"`
	CallerBusinessTTL   time.Duration `json:"caller_business_ttl"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
}

var defaults = map[string]any{
	"DB_DRIVER":             DriverPostgres,
	"DB_HOST":               "localhost",
	"DB_PORT":               5432,
	"DB_NAME":               "onboarding",
	"DB_USER":               "postgres",
	"DB_PASSWORD":           "",
	"DB_SSL_MODE":           "disable",
	"DB_MAX_OPEN_CONNS":     25,
	"DB_MAX_IDLE_CONNS":     5,
	"DB_CONN_MAX_LIFETIME":  "30m",
	"DB_CONN_MAX_IDLE_TIME": "5m",
	"DB_SLOW_QUERY_LOG":     true,
	"DB_SLOW_QUERY_TIME":    "200ms",

	"SERVER_HOST":             "0.0.0.0",
	"SERVER_PORT":             8080,
	"SERVER_READ_TIMEOUT":     "10s",
	"SERVER_WRITE_TIMEOUT":    "10s",
	"SERVER_IDLE_TIMEOUT":     "60s",
	"SERVER_SHUTDOWN_TIMEOUT": "30s",
	"SERVER_BODY_LIMIT":       1024 * 1024,

	"SECURITY_ALLOWED_ORIGINS":   "",
	"SECURITY_ALLOW_CREDENTIALS": false,
	"SECURITY_AUTH_RATE_LIMIT":   20,
	"SECURITY_GLOBAL_RATE_LIMIT": 2000,
	"SECURITY_RATE_LIMIT_WINDOW": "1m",
	"SECURITY_BCRYPT_COST":       12,

	"JWT_SECRET_KEY":        "",
	"JWT_PRIVATE_KEY":       "",
	"JWT_PUBLIC_KEY":        "",
	"JWT_USE_RSA_KEYS":      false,
	"JWT_ACCESS_TOKEN_TTL":  "15m",
	"JWT_REFRESH_TOKEN_TTL": "168h",
	"JWT_ISSUER":            "onboarding",
	"JWT_AUDIENCE":          "onboarding-api",

	"VERIFICATION_CODE_TTL":        "5m",
	"VERIFICATION_MAX_ATTEMPTS":    3,
	"VERIFICATION_RESEND_COOLDOWN": "60s",

	"EMAIL_PROVIDER":   "mock",
	"EMAIL_HOST":       "",
	"EMAIL_PORT":       587,
	"EMAIL_USERNAME":   "",
	"EMAIL_PASSWORD":   "",
	"EMAIL_FROM_EMAIL": "no-reply@onboarding.local",

	"LOG_LEVEL":       "info",
	"LOG_FORMAT":      "json",
	"LOG_OUTPUT":      "stdout",
	"LOG_FILE_PATH":   "logs/onboarding.log",
	"LOG_MAX_SIZE":    100,
	"LOG_MAX_BACKUPS": 5,
	"LOG_MAX_AGE":     30,
	"LOG_COMPRESS":    true,

	"METRICS_ENABLED": true,
	"METRICS_PATH":    "/metrics",

	"CACHE_ENABLED":               false,
	"CACHE_REDIS_URL":             "redis://localhost:6379/0",
	"CACHE_REDIS_DB":              0,
	"CACHE_REDIS_PREFIX":          "onboarding",
	"CACHE_CALLER_BUSINESS_TTL":   "5m",
	"CACHE_HEALTH_CHECK_INTERVAL": "30s",
}

// Load reads configuration from the environment. A .env file in the working directory (or
// the file named by CONFIG_FILE) is read first; environment variables take precedence.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	} else {
		v.SetConfigName(".env")
		v.SetConfigType("env")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read .env: %w", err)
			}
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("DB_DRIVER")),
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			Name:            v.GetString("DB_NAME"),
			User:            v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			SSLMode:         v.GetString("DB_SSL_MODE"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
			SlowQueryLog:    v.GetBool("DB_SLOW_QUERY_LOG"),
			SlowQueryTime:   v.GetDuration("DB_SLOW_QUERY_TIME"),
		},
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			BodyLimit:       v.GetInt("SERVER_BODY_LIMIT"),
		},
		Security: SecurityConfig{
			AllowedOrigins:   splitList(v.GetString("SECURITY_ALLOWED_ORIGINS")),
			AllowCredentials: v.GetBool("SECURITY_ALLOW_CREDENTIALS"),
			AuthRateLimit:    v.GetInt("SECURITY_AUTH_RATE_LIMIT"),
			GlobalRateLimit:  v.GetInt("SECURITY_GLOBAL_RATE_LIMIT"),
			RateLimitWindow:  v.GetDuration("SECURITY_RATE_LIMIT_WINDOW"),
			BcryptCost:       v.GetInt("SECURITY_BCRYPT_COST"),
		},
		JWT: JWTConfig{
			SecretKey:       v.GetString("JWT_SECRET_KEY"),
			PrivateKey:      v.GetString("JWT_PRIVATE_KEY"),
			PublicKey:       v.GetString("JWT_PUBLIC_KEY"),
			UseRSAKeys:      v.GetBool("JWT_USE_RSA_KEYS"),
			AccessTokenTTL:  v.GetDuration("JWT_ACCESS_TOKEN_TTL"),
			RefreshTokenTTL: v.GetDuration("JWT_REFRESH_TOKEN_TTL"),
			Issuer:          v.GetString("JWT_ISSUER"),
			Audience:        v.GetString("JWT_AUDIENCE"),
		},
		Verification: VerificationConfig{
			CodeTTL:        v.GetDuration("VERIFICATION_CODE_TTL"),
			MaxAttempts:    v.GetInt("VERIFICATION_MAX_ATTEMPTS"),
			ResendCooldown: v.GetDuration("VERIFICATION_RESEND_COOLDOWN"),
		},
		Email: EmailConfig{
			Provider:  strings.ToLower(v.GetString("EMAIL_PROVIDER")),
			Host:      v.GetString("EMAIL_HOST"),
			Port:      v.GetInt("EMAIL_PORT"),
			Username:  v.GetString("EMAIL_USERNAME"),
			Password:  v.GetString("EMAIL_PASSWORD"),
			FromEmail: v.GetString("EMAIL_FROM_EMAIL"),
		},
		Logging: LoggingConfig{
			Level:      strings.ToLower(v.GetString("LOG_LEVEL")),
			Format:     strings.ToLower(v.GetString("LOG_FORMAT")),
			Output:     strings.ToLower(v.GetString("LOG_OUTPUT")),
			FilePath:   v.GetString("LOG_FILE_PATH"),
			MaxSize:    v.GetInt("LOG_MAX_SIZE"),
			MaxBackups: v.GetInt("LOG_MAX_BACKUPS"),
			MaxAge:     v.GetInt("LOG_MAX_AGE"),
			Compress:   v.GetBool("LOG_COMPRESS"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("METRICS_ENABLED"),
			Path:    v.GetString("METRICS_PATH"),
		},
		Cache: CacheConfig{
			Enabled:             v.GetBool("CACHE_ENABLED"),
			RedisURL:            v.GetString("CACHE_REDIS_URL"),
			RedisDB:             v.GetInt("CACHE_REDIS_DB"),
			RedisPrefix:         v.GetString("CACHE_REDIS_PREFIX"),
			CallerBusinessTTL:   v.GetDuration("CACHE_CALLER_BUSINESS_TTL"),
			HealthCheckInterval: v.GetDuration("CACHE_HEALTH_CHECK_INTERVAL"),
		},
	}
}

// splitList splits a comma separated value, dropping blanks
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []string

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			errs = append(errs, "DB_HOST is required")
		}
		if c.Database.Name == "" {
			errs = append(errs, "DB_NAME is required")
		}
		if c.Database.User == "" {
			errs = append(errs, "DB_USER is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, "DB_PORT must be between 1 and 65535")
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER must be one of %s, %s", DriverPostgres, DriverMemory))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}

	if c.JWT.UseRSAKeys {
		if c.JWT.PrivateKey == "" || c.JWT.PublicKey == "" {
			errs = append(errs, "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when JWT_USE_RSA_KEYS is set")
		}
	} else if len(c.JWT.SecretKey) < 32 {
		errs = append(errs, "JWT_SECRET_KEY must be at least 32 characters")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "JWT_ACCESS_TOKEN_TTL must be positive")
	}

	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		errs = append(errs, "SECURITY_BCRYPT_COST must be between 4 and 31")
	}

	if c.Verification.CodeTTL <= 0 {
		errs = append(errs, "VERIFICATION_CODE_TTL must be positive")
	}
	if c.Verification.MaxAttempts <= 0 {
		errs = append(errs, "VERIFICATION_MAX_ATTEMPTS must be positive")
	}

	switch c.Email.Provider {
	case "mock":
	case "smtp":
		if c.Email.Host == "" {
			errs = append(errs, "EMAIL_HOST is required for the smtp provider")
		}
		if c.Email.FromEmail == "" {
			errs = append(errs, "EMAIL_FROM_EMAIL is required for the smtp provider")
		}
	default:
		errs = append(errs, "EMAIL_PROVIDER must be one of mock, smtp")
	}

	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			errs = append(errs, "LOG_FILE_PATH is required when LOG_OUTPUT is file")
		}
	default:
		errs = append(errs, "LOG_OUTPUT must be one of stdout, stderr, file")
	}

	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		errs = append(errs, "CACHE_REDIS_URL is required when the cache is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
