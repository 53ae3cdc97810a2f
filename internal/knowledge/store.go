package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Mode is the storage backend mode, fixed when the store connects.
type Mode int

const (
	// ModeEncodedJSON stores embeddings as JSON arrays in a JSONB column.
	// Similarity ranking happens in-process, outside the store.
	ModeEncodedJSON Mode = iota

	// ModeNativeVector stores embeddings in a pgvector column and ranks
	// similarity searches in SQL.
	ModeNativeVector
)

// String implements Stringer for log output.
func (m Mode) String() string {
	switch m {
	case ModeNativeVector:
		return "native_vector"
	case ModeEncodedJSON:
		return "encoded_json"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// DefaultListLimit caps unfiltered listings. There is no pagination;
// callers that need more should filter.
const DefaultListLimit = 1000

// documentCols is the standard SELECT column list for scanning documents.
const documentCols = "id, title, content, embedding, metadata, created_at"

// Store manages knowledge documents backed by PostgreSQL.
//
// A Store owns exactly one connection. It is NOT safe for concurrent
// use; callers serialize access or give each worker its own Store.
type Store struct {
	conn   *pgx.Conn
	mode   Mode
	dim    int
	logger *slog.Logger
}

// Connect opens a single connection and fixes the backend mode for the
// lifetime of the store. When the pgvector extension is available it is
// created and its types registered; otherwise the store falls back to
// JSONB-encoded embeddings.
func Connect(ctx context.Context, dsn string, dim int, logger *slog.Logger) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &Store{conn: conn, dim: dim, logger: logger}

	available, err := s.probeVectorExtension(ctx)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}

	if available {
		if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("creating vector extension: %w", err)
		}
		if err := pgxvec.RegisterTypes(ctx, conn); err != nil {
			_ = conn.Close(ctx)
			return nil, fmt.Errorf("registering pgvector types: %w", err)
		}
		s.mode = ModeNativeVector
	} else {
		s.mode = ModeEncodedJSON
	}

	logger.Info("knowledge store connected",
		"mode", s.mode.String(),
		"dimension", dim)

	return s, nil
}

// probeVectorExtension checks whether pgvector is installable on this server.
func (s *Store) probeVectorExtension(ctx context.Context) (bool, error) {
	var available bool
	err := s.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_available_extensions WHERE name = 'vector')`,
	).Scan(&available)
	if err != nil {
		return false, fmt.Errorf("probing vector extension: %w", err)
	}
	return available, nil
}

// Mode reports the backend mode fixed at connect time.
func (s *Store) Mode() Mode { return s.mode }

// Dimension reports the embedding dimension fixed at connect time.
func (s *Store) Dimension() int { return s.dim }

// EnsureSchema creates the documents table and indexes if absent.
// Idempotent. When reset is true the table is dropped first, discarding
// all stored documents; this is never the default and is logged loudly.
func (s *Store) EnsureSchema(ctx context.Context, reset bool) error {
	if s.conn == nil {
		return ErrNotConnected
	}

	if reset {
		s.logger.Warn("resetting schema, all stored documents will be dropped")
		if _, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS documents`); err != nil {
			return fmt.Errorf("dropping documents table: %w", err)
		}
	}

	embeddingCol := "embedding JSONB"
	if s.mode == ModeNativeVector {
		embeddingCol = fmt.Sprintf("embedding vector(%d)", s.dim)
	}

	createSQL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS documents (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		%s,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, embeddingCol)

	if _, err := s.conn.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_documents_title ON documents (title)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_metadata ON documents USING GIN (metadata)`,
	}
	for _, idx := range indexes {
		if _, err := s.conn.Exec(ctx, idx); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}

	return nil
}

// Insert stores a document and returns its assigned ID.
// The embedding must have exactly the store's dimension; callers attach
// the zero vector when embedding failed upstream.
func (s *Store) Insert(ctx context.Context, doc *Document) (int64, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}
	if doc == nil {
		return 0, errors.New("document is required")
	}
	if err := doc.validateForInsert(s.dim); err != nil {
		return 0, err
	}

	metadata := doc.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("encoding metadata: %w", err)
	}

	var embedding any
	if s.mode == ModeNativeVector {
		embedding = pgvector.NewVector(doc.Embedding)
	} else {
		embedding, err = encodeVector(doc.Embedding)
		if err != nil {
			return 0, err
		}
	}

	err = s.conn.QueryRow(ctx,
		`INSERT INTO documents (title, content, embedding, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		doc.Title, doc.Content, embedding, metaJSON,
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Debug("document inserted", "id", doc.ID, "title", doc.Title)
	return doc.ID, nil
}

// Query describes a document search.
//
// Vector, when set with a native-vector store, ranks results by cosine
// similarity in SQL and populates Result.Similarity. In all other cases
// (JSON mode, no vector, or a zero-norm vector from a degraded
// embedding) results come back newest-first with zero similarity and
// ranking is the caller's job. TitleFilter is a case-insensitive substring match;
// Metadata entries must all match exactly (AND).
type Query struct {
	Vector      []float32
	TitleFilter string
	Metadata    map[string]string
	Limit       int
}

// Search executes a query and returns matching documents.
func (s *Store) Search(ctx context.Context, q Query) ([]Result, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}

	sql, args, ranked := s.buildSearchSQL(q)

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}
	defer rows.Close()

	return s.scanResults(rows, ranked)
}

// buildSearchSQL assembles the search statement. Returns the SQL, its
// arguments and whether the statement ranks by similarity itself.
//
// A zero-norm query vector is never ranked in SQL: pgvector's cosine
// distance divides by the norm product and yields NaN for it. Such
// queries take the recency path with zero similarity instead, the same
// ordering the in-process ranker gives an all-zero vector.
func (s *Store) buildSearchSQL(q Query) (sql string, args []any, ranked bool) {
	ranked = s.mode == ModeNativeVector && !isZeroVector(q.Vector)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(documentCols)
	if ranked {
		args = append(args, pgvector.NewVector(q.Vector))
		b.WriteString(", 1 - (embedding <=> $1) AS similarity")
	}
	b.WriteString(" FROM documents")

	var where []string
	if q.TitleFilter != "" {
		args = append(args, q.TitleFilter)
		where = append(where, fmt.Sprintf("title ILIKE '%%' || $%d || '%%'", len(args)))
	}
	// Deterministic clause order for stable statements.
	for _, key := range slices.Sorted(maps.Keys(q.Metadata)) {
		args = append(args, key, q.Metadata[key])
		where = append(where, fmt.Sprintf("metadata ->> $%d = $%d", len(args)-1, len(args)))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	if ranked {
		b.WriteString(" ORDER BY embedding <=> $1")
	} else {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)
	fmt.Fprintf(&b, " LIMIT $%d", len(args))

	return b.String(), args, ranked
}

// scanResults reads documents from search rows. In JSON mode an
// undecodable embedding is logged and left nil rather than failing the
// whole result set; downstream ranking skips such documents.
func (s *Store) scanResults(rows pgx.Rows, ranked bool) ([]Result, error) {
	results := []Result{}
	for rows.Next() {
		doc := &Document{}
		var metaJSON []byte
		var similarity float64

		dest := []any{&doc.ID, &doc.Title, &doc.Content, nil, &metaJSON, &doc.CreatedAt}

		var vec pgvector.Vector
		var rawEmbedding []byte
		if s.mode == ModeNativeVector {
			dest[3] = &vec
		} else {
			dest[3] = &rawEmbedding
		}
		if ranked {
			dest = append(dest, &similarity)
		}

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		if s.mode == ModeNativeVector {
			doc.Embedding = vec.Slice()
		} else if len(rawEmbedding) > 0 {
			decoded, err := decodeVector(rawEmbedding)
			if err != nil {
				s.logger.Warn("skipping undecodable embedding", "id", doc.ID, "error", err)
			} else {
				doc.Embedding = decoded
			}
		}

		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &doc.Metadata); err != nil {
				return nil, fmt.Errorf("decoding metadata for document %d: %w", doc.ID, err)
			}
		}

		results = append(results, Result{Document: doc, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return results, nil
}

// Delete removes a document by ID. Returns false when no such document
// exists; that is not an error.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	if s.conn == nil {
		return false, ErrNotConnected
	}

	tag, err := s.conn.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting document %d: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if s.conn == nil {
		return 0, ErrNotConnected
	}

	var count int64
	if err := s.conn.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// Close releases the connection. Safe to call more than once.
func (s *Store) Close(ctx context.Context) error {
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	if err := conn.Close(ctx); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}
