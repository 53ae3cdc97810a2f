package config

import (
	"fmt"
	"os"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	// API key is read by the Genkit plugin; fail fast here instead of at
	// the first embed call.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	// Temperature range: 0.0 (deterministic) to 2.0 (maximum creativity)
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	// Dimension is fixed per store instance; 3072 is the widest Gemini
	// embedding output.
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 3072 {
		return fmt.Errorf("%w: must be between 1 and 3072, got %d",
			ErrInvalidEmbeddingDimension, c.EmbeddingDimension)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}

	if c.MaxContextChars < 1 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidContextBudget, c.MaxContextChars)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	// Modern SSL modes only. 'allow' and 'prefer' are deprecated
	// (vulnerable to MITM).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("postgres_ssl_mode %q is not valid, must be one of: %v",
			c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
