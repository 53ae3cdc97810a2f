// Package testutil provides shared testing utilities for the ragweb project.
//
// It contains reusable test infrastructure usable across packages,
// following the pattern of Go standard library packages like
// net/http/httptest.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Container images for the two storage backends under test.
const (
	// PGVectorImage ships the pgvector extension; stores connected to it
	// run in native vector mode.
	PGVectorImage = "pgvector/pgvector:pg16"

	// PlainPostgresImage has no pgvector; stores fall back to
	// JSONB-encoded embeddings.
	PlainPostgresImage = "postgres:16-alpine"
)

// StartPostgres creates a PostgreSQL container from the given image and
// returns its connection string. The container terminates via t.Cleanup.
func StartPostgres(t *testing.T, image string) string {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		image,
		postgres.WithDatabase("ragweb_test"),
		postgres.WithUsername("ragweb_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}
	return connStr
}
