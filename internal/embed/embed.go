// Package embed turns text into fixed-dimension vectors for similarity
// search. Vectors are L2-normalized in one place so that cosine similarity
// and dot product are interchangeable at both ingestion and query time.
package embed

import (
	"context"
	"errors"
	"math"
)

// ErrService indicates the embedding service is unavailable or returned an
// unusable response. Callers should treat it as retryable and must never
// substitute zero vectors for a failed call.
var ErrService = errors.New("embedding service unavailable")

// Embedder converts text into normalized embedding vectors.
// Implementations must return vectors of a constant dimension for the
// lifetime of the embedder; mixing dimensions within one index is a fatal
// configuration error surfaced by the index itself.
type Embedder interface {
	// Embed returns the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension this embedder produces.
	Dimension() int
}

// Normalize scales v to unit L2 norm in place and returns it.
// A zero vector is returned unchanged: there is no meaningful direction to
// preserve, and search treats it as matching nothing.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
