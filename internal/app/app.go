// Package app provides application initialization and dependency wiring.
//
// App is the container that builds the store, the Genkit instance and
// the answering system from configuration, and releases them in order
// on Close.
package app

import (
	"context"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"

	"github.com/ragweb/ragweb/internal/config"
	"github.com/ragweb/ragweb/internal/knowledge"
	"github.com/ragweb/ragweb/internal/rag"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit *genkit.Genkit
	Store  *knowledge.Store
	System *rag.System

	otelCleanup func()
}

// Close gracefully shuts down all resources. Safe to call after a
// partially failed Setup.
func (a *App) Close(ctx context.Context) error {
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("shutting down application")

	if a.otelCleanup != nil {
		a.otelCleanup()
		a.otelCleanup = nil
	}

	if a.Store != nil {
		if err := a.Store.Close(ctx); err != nil {
			return err
		}
		a.Store = nil
		logger.Info("store connection closed")
	}

	return nil
}
