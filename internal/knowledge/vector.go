package knowledge

import (
	"encoding/json"
	"fmt"
	"math"
)

// encodeVector serializes an embedding for the JSONB fallback column.
func encodeVector(v []float32) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding embedding: %w", err)
	}
	return data, nil
}

// decodeVector deserializes a JSONB-stored embedding.
func decodeVector(data []byte) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decoding embedding: %w", err)
	}
	return v, nil
}

// isZeroVector reports whether v is empty or has zero norm. Zero
// vectors come from degraded embeddings and cannot be cosine-ranked.
func isZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Cosine computes the cosine similarity between two vectors.
//
// Returns ErrDimensionMismatch when the lengths differ. When either
// vector has zero norm the similarity is 0 by definition here, so that
// failed embeddings (all-zero vectors) rank last instead of poisoning
// a search with NaN.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
