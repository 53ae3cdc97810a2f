package knowledge_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweb/ragweb/internal/knowledge"
	"github.com/ragweb/ragweb/internal/log"
	"github.com/ragweb/ragweb/internal/testutil"
)

const testDim = 3

func connectStore(t *testing.T, image string) *knowledge.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	connStr := testutil.StartPostgres(t, image)

	ctx := context.Background()
	store, err := knowledge.Connect(ctx, connStr, testDim, log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close(context.Background())
	})

	require.NoError(t, store.EnsureSchema(ctx, false))
	return store
}

func insertDoc(t *testing.T, store *knowledge.Store, title string, embedding []float32, metadata map[string]string) int64 {
	t.Helper()
	doc, err := knowledge.NewDocument(title, title+" content", metadata)
	require.NoError(t, err)
	doc.Embedding = embedding

	id, err := store.Insert(context.Background(), doc)
	require.NoError(t, err)
	return id
}

func TestStore_NativeVectorMode(t *testing.T) {
	store := connectStore(t, testutil.PGVectorImage)
	require.Equal(t, knowledge.ModeNativeVector, store.Mode())

	ctx := context.Background()

	insertDoc(t, store, "aligned", []float32{1, 0, 0}, nil)
	insertDoc(t, store, "orthogonal", []float32{0, 1, 0}, nil)
	insertDoc(t, store, "opposite", []float32{-1, 0, 0}, nil)

	results, err := store.Search(ctx, knowledge.Query{Vector: []float32{1, 0, 0}, Limit: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// SQL-side ranking: best match first, similarity populated.
	assert.Equal(t, "aligned", results[0].Document.Title)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Equal(t, "opposite", results[2].Document.Title)
	assert.InDelta(t, -1.0, results[2].Similarity, 1e-6)

	// Embeddings round-trip through the vector column.
	assert.InDeltaSlice(t, []float32{1, 0, 0}, results[0].Document.Embedding, 1e-6)
}

func TestStore_EncodedJSONMode(t *testing.T) {
	store := connectStore(t, testutil.PlainPostgresImage)
	require.Equal(t, knowledge.ModeEncodedJSON, store.Mode())

	ctx := context.Background()

	insertDoc(t, store, "first", []float32{0.1, 0.2, 0.3}, nil)
	time.Sleep(10 * time.Millisecond) // distinct created_at ordering
	insertDoc(t, store, "second", []float32{0.4, 0.5, 0.6}, nil)

	// Vector is ignored without pgvector: newest first, zero similarity.
	results, err := store.Search(ctx, knowledge.Query{Vector: []float32{1, 0, 0}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "second", results[0].Document.Title)
	assert.Zero(t, results[0].Similarity)

	// Embeddings round-trip through the JSONB column.
	assert.InDeltaSlice(t, []float32{0.4, 0.5, 0.6}, results[0].Document.Embedding, 1e-6)
}

func TestStore_Filters(t *testing.T) {
	store := connectStore(t, testutil.PlainPostgresImage)
	ctx := context.Background()

	insertDoc(t, store, "Go Tutorial", []float32{1, 0, 0}, map[string]string{"topic": "go", "level": "intro"})
	insertDoc(t, store, "Advanced Go", []float32{0, 1, 0}, map[string]string{"topic": "go", "level": "advanced"})
	insertDoc(t, store, "Rust Tutorial", []float32{0, 0, 1}, map[string]string{"topic": "rust"})

	// Case-insensitive title substring.
	results, err := store.Search(ctx, knowledge.Query{TitleFilter: "tutorial"})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// Metadata conjunction.
	results, err = store.Search(ctx, knowledge.Query{Metadata: map[string]string{"topic": "go", "level": "intro"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Go Tutorial", results[0].Document.Title)
	assert.Equal(t, "intro", results[0].Document.Metadata["level"])

	// Combined filters.
	results, err = store.Search(ctx, knowledge.Query{TitleFilter: "go", Metadata: map[string]string{"level": "advanced"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Advanced Go", results[0].Document.Title)

	// No match is empty, not an error.
	results, err = store.Search(ctx, knowledge.Query{Metadata: map[string]string{"topic": "python"}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_DeleteAndCount(t *testing.T) {
	store := connectStore(t, testutil.PlainPostgresImage)
	ctx := context.Background()

	id := insertDoc(t, store, "victim", []float32{1, 0, 0}, nil)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	deleted, err := store.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	// Deleting again reports false without error.
	deleted, err = store.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_InsertValidation(t *testing.T) {
	store := connectStore(t, testutil.PlainPostgresImage)
	ctx := context.Background()

	doc := &knowledge.Document{Title: "t", Content: "c", Embedding: []float32{1, 2}} // wrong dim
	_, err := store.Insert(ctx, doc)
	require.ErrorIs(t, err, knowledge.ErrDimensionMismatch)
}

func TestStore_EnsureSchemaReset(t *testing.T) {
	store := connectStore(t, testutil.PlainPostgresImage)
	ctx := context.Background()

	insertDoc(t, store, "doomed", []float32{1, 0, 0}, nil)

	// Idempotent without reset.
	require.NoError(t, store.EnsureSchema(ctx, false))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Reset drops everything.
	require.NoError(t, store.EnsureSchema(ctx, true))
	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}
