package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load
const EnvPrefix = "ECODELI"

const defaultJWTSecret = "dev-secret-change-in-production"

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	RabbitMQ   RabbitMQConfig
	JWT        JWTConfig
	Validation ValidationConfig
	Backends   BackendsConfig
	Storage    StorageConfig
	RateLimit  RateLimitConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	Environment    string        `mapstructure:"environment"`
	LogLevel       string        `mapstructure:"log_level"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database connection configuration.
// An empty URL and Host disables the duplicate-document lookup and the audit trail.
type DatabaseConfig struct {
	// URL is a postgres:// connection URL and takes precedence over the fields
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// Enabled reports whether a database is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

// DSN returns the connection string understood by lib/pq
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Validate checks that the database configuration is valid for the given environment
func (c *DatabaseConfig) Validate(environment string) error {
	if isProductionLike(environment) && c.URL == "" && c.Host == "localhost" {
		return errors.New("localhost database not allowed in " + environment + " - set ECODELI_DATABASE_URL or ECODELI_DATABASE_HOST")
	}
	return nil
}

// RabbitMQConfig holds RabbitMQ connection configuration.
// An empty URL disables event publishing and the upload consumer.
type RabbitMQConfig struct {
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PrefetchCount  int           `mapstructure:"prefetch_count"`
	ConsumeUploads bool          `mapstructure:"consume_uploads"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret       string        `mapstructure:"secret"`
	AccessExpiry time.Duration `mapstructure:"access_expiry"`
	Issuer       string        `mapstructure:"issuer"`
}

// ValidationConfig holds the document pipeline settings
type ValidationConfig struct {
	BackendEnabled    bool          `mapstructure:"backend_enabled"`
	BackendProvider   string        `mapstructure:"backend_provider"`
	StrictMode        bool          `mapstructure:"strict_mode"`
	MinimumConfidence float64       `mapstructure:"minimum_confidence"`
	AllowedExtensions []string      `mapstructure:"allowed_extensions"`
	MaxFileSizeBytes  int64         `mapstructure:"max_file_size_bytes"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	Breaker           BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig tunes the circuit breaker around the remote backend
type BreakerConfig struct {
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	OpenTimeout  time.Duration `mapstructure:"open_timeout"`
}

// BackendsConfig holds the credentials and endpoints of the remote backends
type BackendsConfig struct {
	Vision         VisionBackendConfig         `mapstructure:"vision"`
	CloudOCR       CloudOCRBackendConfig       `mapstructure:"cloud_ocr"`
	TextExtraction TextExtractionBackendConfig `mapstructure:"text_extraction"`
}

type VisionBackendConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	BaseURL     string `mapstructure:"base_url"`
	MaxTokens   int64  `mapstructure:"max_tokens"`
	MaxPDFPages int    `mapstructure:"max_pdf_pages"`
}

type CloudOCRBackendConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
}

type TextExtractionBackendConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// APIKey returns the credential of a provider, or "" for unknown providers
func (c BackendsConfig) APIKey(provider string) string {
	switch provider {
	case "vision_llm":
		return c.Vision.APIKey
	case "cloud_ocr":
		return c.CloudOCR.APIKey
	case "cloud_text_extraction":
		return c.TextExtraction.APIKey
	default:
		return ""
	}
}

// String never prints credentials
func (c BackendsConfig) String() string {
	return fmt.Sprintf("vision{model=%s key=%s} cloud_ocr{endpoint=%s key=%s} text_extraction{endpoint=%s model=%s key=%s}",
		c.Vision.Model, redact(c.Vision.APIKey),
		c.CloudOCR.Endpoint, redact(c.CloudOCR.APIKey),
		c.TextExtraction.Endpoint, c.TextExtraction.Model, redact(c.TextExtraction.APIKey))
}

func redact(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	return "<redacted>"
}

// StorageConfig controls how file references are resolved
type StorageConfig struct {
	// LocalRoot confines plain path references. Empty allows any path and is
	// only accepted in development.
	LocalRoot string `mapstructure:"local_root"`
	// AzureConnectionString enables azblob:// references
	AzureConnectionString string `mapstructure:"azure_connection_string"`
	TempDir               string `mapstructure:"temp_dir"`
}

// RateLimitConfig bounds validation requests per user
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Load loads configuration from environment and config files
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ecodeli")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.Environment = strings.ToLower(cfg.Server.Environment)

	return &cfg, nil
}

// LoadWithValidation loads configuration and fails fast in staging and
// production when required settings are missing or left at development values
func LoadWithValidation(serviceName string) (*Config, error) {
	cfg, err := Load(serviceName)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for the configured environment
func (c *Config) Validate() error {
	env := c.Server.Environment

	if err := c.Database.Validate(env); err != nil {
		return fmt.Errorf("database configuration error: %w", err)
	}

	if c.Validation.MinimumConfidence < 0 || c.Validation.MinimumConfidence > 1 {
		return fmt.Errorf("validation.minimum_confidence must be within [0, 1], got %v", c.Validation.MinimumConfidence)
	}

	if c.Validation.BackendEnabled {
		switch c.Validation.BackendProvider {
		case "vision_llm", "cloud_ocr", "cloud_text_extraction":
			if isProductionLike(env) && c.Backends.APIKey(c.Validation.BackendProvider) == "" {
				return fmt.Errorf("%s_BACKENDS_* api key required for provider %s in %s", EnvPrefix, c.Validation.BackendProvider, env)
			}
		case "none", "":
		default:
			return fmt.Errorf("unknown validation.backend_provider %q", c.Validation.BackendProvider)
		}
	}

	if isProductionLike(env) {
		if c.JWT.Secret == "" || c.JWT.Secret == defaultJWTSecret {
			return errors.New("ECODELI_JWT_SECRET must be set to a secure value in " + env)
		}
		if c.RabbitMQ.URL != "" && strings.Contains(c.RabbitMQ.URL, "localhost") {
			return errors.New("ECODELI_RABBITMQ_URL must be set to a non-localhost value in " + env)
		}
		if c.Storage.LocalRoot == "" || !filepath.IsAbs(c.Storage.LocalRoot) {
			return errors.New("ECODELI_STORAGE_LOCAL_ROOT must be an absolute upload directory in " + env)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.environment", EnvDevelopment)
	v.SetDefault("server.log_level", "")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "ecodeli")
	v.SetDefault("database.password", "devpassword")
	v.SetDefault("database.database", "ecodeli")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.reconnect_delay", 5*time.Second)
	v.SetDefault("rabbitmq.max_retries", 5)
	v.SetDefault("rabbitmq.prefetch_count", 10)
	v.SetDefault("rabbitmq.consume_uploads", false)

	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.access_expiry", 15*time.Minute)
	v.SetDefault("jwt.issuer", "ecodeli")

	v.SetDefault("validation.backend_enabled", false)
	v.SetDefault("validation.backend_provider", "vision_llm")
	v.SetDefault("validation.strict_mode", false)
	v.SetDefault("validation.minimum_confidence", 0.8)
	v.SetDefault("validation.allowed_extensions", []string{"pdf", "jpg", "jpeg", "png", "webp"})
	v.SetDefault("validation.max_file_size_bytes", int64(10<<20))
	v.SetDefault("validation.request_timeout", 30*time.Second)
	v.SetDefault("validation.breaker.min_requests", 5)
	v.SetDefault("validation.breaker.failure_ratio", 0.6)
	v.SetDefault("validation.breaker.open_timeout", 30*time.Second)

	v.SetDefault("backends.vision.api_key", "")
	v.SetDefault("backends.vision.model", "")
	v.SetDefault("backends.vision.base_url", "")
	v.SetDefault("backends.vision.max_tokens", 0)
	v.SetDefault("backends.vision.max_pdf_pages", 0)
	v.SetDefault("backends.cloud_ocr.api_key", "")
	v.SetDefault("backends.cloud_ocr.endpoint", "")
	v.SetDefault("backends.text_extraction.api_key", "")
	v.SetDefault("backends.text_extraction.endpoint", "")
	v.SetDefault("backends.text_extraction.model", "")

	v.SetDefault("storage.local_root", "")
	v.SetDefault("storage.azure_connection_string", "")
	v.SetDefault("storage.temp_dir", "")

	v.SetDefault("ratelimit.requests_per_second", 2.0)
	v.SetDefault("ratelimit.burst", 5)
}

func isProductionLike(environment string) bool {
	return environment == EnvProduction || environment == EnvStaging
}
