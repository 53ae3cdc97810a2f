package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ragweb/ragweb/internal/config"
	"github.com/ragweb/ragweb/internal/knowledge"
	"github.com/ragweb/ragweb/internal/rag"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(ctx); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	store, err := knowledge.Connect(ctx, cfg.PostgresConnectionString(), cfg.EmbeddingDimension, logger)
	if err != nil {
		return nil, err
	}
	a.Store = store

	if err := store.EnsureSchema(ctx, false); err != nil {
		return nil, err
	}

	g, err := provideGenkit(ctx, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	aiEmbedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if aiEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}

	embedder, err := rag.NewEmbedder(aiEmbedder, cfg.EmbeddingDimension, logger)
	if err != nil {
		return nil, err
	}

	generator, err := rag.NewGenkitGenerator(g, cfg.ModelName, rag.GenerationConfig{
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		TopK:        cfg.GenTopK,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	system, err := rag.New(rag.Config{
		Store:           store,
		Embedder:        embedder,
		Generator:       generator,
		Logger:          logger,
		TopK:            cfg.TopK,
		MaxContextChars: cfg.MaxContextChars,
	})
	if err != nil {
		return nil, err
	}
	a.System = system

	return a, nil
}

// provideGenkit initializes Genkit with the Gemini plugin.
// GEMINI_API_KEY is read by the plugin from the environment.
func provideGenkit(ctx context.Context, logger *slog.Logger) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	logger.Debug("genkit initialized")
	return g, nil
}

// provideOtelShutdown sets up OTLP tracing before Genkit initialization,
// so Genkit's TracerProvider is ready when spans start. Returns a no-op
// cleanup when tracing is disabled or the exporter cannot be created.
//
// Traces are exported over OTLP HTTP to a local collector, which handles
// authentication, buffering, and forwarding.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	tc := cfg.Tracing
	if !tc.Enabled {
		return func() {}
	}

	endpoint := tc.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	// Set OTEL env vars for Genkit's TracerProvider to pick up.
	// SAFETY: os.Setenv is not concurrent-safe, but this function is
	// called exactly once during startup, before goroutines are spawned.
	if tc.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tc.ServiceName)
	}
	if tc.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tc.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector doesn't need TLS
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", tc.ServiceName,
		"environment", tc.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // Independent context: shutdown runs during teardown when parent is canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}
