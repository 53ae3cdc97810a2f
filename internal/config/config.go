// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (DATABASE_URL, RAGWEB_* overrides)
//  2. Config file (~/.ragweb/config.yaml)
//  3. Default values
//
// Security: sensitive fields (the PostgreSQL password) are masked in
// MarshalJSON and String so a Config can be logged safely.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidEmbeddingDimension indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrInvalidTopK indicates the retrieval top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidModelName indicates the generation model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidContextBudget indicates the context character budget is out of range.
	ErrInvalidContextBudget = errors.New("invalid max_context_chars")

	// ErrInvalidTemperature indicates the generation temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")
)

const (
	// DefaultEmbedderModel is the Gemini embedding model used for documents
	// and queries.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultEmbeddingDimension is the vector dimension fixed for the
	// lifetime of a store instance. Every stored embedding has exactly
	// this many components.
	DefaultEmbeddingDimension = 768

	// DefaultTopK is the number of documents retrieved per question.
	DefaultTopK = 3

	// DefaultMaxContextChars is the character budget for the assembled
	// prompt context.
	DefaultMaxContextChars = 2000
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// Generation model configuration
	ModelName   string  `mapstructure:"model_name" json:"model_name"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	TopP        float32 `mapstructure:"top_p" json:"top_p"`
	GenTopK     int32   `mapstructure:"gen_top_k" json:"gen_top_k"`
	MaxTokens   int32   `mapstructure:"max_tokens" json:"max_tokens"`

	// Retrieval configuration
	EmbedderModel      string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	TopK               int    `mapstructure:"top_k" json:"top_k"`
	MaxContextChars    int    `mapstructure:"max_context_chars" json:"max_context_chars"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP server configuration (serve mode)
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	RateBurst  int    `mapstructure:"rate_burst" json:"rate_burst"`
	TrustProxy bool   `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Tracing configuration (optional OTLP export)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig configures the optional OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ragweb")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Generation defaults (kept close to the model's conservative settings
	// for grounded answering: low temperature, bounded output)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.2)
	v.SetDefault("top_p", 0.95)
	v.SetDefault("gen_top_k", 40)
	v.SetDefault("max_tokens", 1024)

	// Retrieval defaults
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedding_dimension", DefaultEmbeddingDimension)
	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("max_context_chars", DefaultMaxContextChars)

	// PostgreSQL defaults
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "postgres")
	v.SetDefault("postgres_password", "postgres")
	v.SetDefault("postgres_db_name", "rag_db")
	v.SetDefault("postgres_ssl_mode", "disable")

	// HTTP server defaults
	v.SetDefault("listen_addr", "127.0.0.1:8080")
	v.SetDefault("rate_burst", 60)
	v.SetDefault("trust_proxy", false)

	// Tracing defaults (disabled; local OTLP collector when enabled)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "ragweb")
	v.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by the Genkit plugin, not via Viper;
// Validate only checks its presence.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "RAGWEB_MODEL_NAME")
	mustBind("embedder_model", "RAGWEB_EMBEDDER_MODEL")
	mustBind("listen_addr", "RAGWEB_LISTEN_ADDR")
	mustBind("rate_burst", "RAGWEB_RATE_BURST")
	mustBind("trust_proxy", "RAGWEB_TRUST_PROXY")
	mustBind("postgres_host", "POSTGRES_HOST")
	mustBind("postgres_port", "POSTGRES_PORT")
	mustBind("postgres_user", "POSTGRES_USER")
	mustBind("postgres_password", "POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "POSTGRES_DB")
	mustBind("tracing.enabled", "RAGWEB_TRACING_ENABLED")
	mustBind("tracing.endpoint", "RAGWEB_TRACING_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked to prevent substring
// matching; longer secrets keep the first and last 2 characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
