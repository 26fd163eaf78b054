// Package rag implements the retrieval side of the engine: similarity
// search over the vector index and budget-bounded prompt assembly.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lorebot/lore/internal/index"
)

// DefaultK is the default number of passages retrieved per query.
const DefaultK = 4

// Embedder produces a query embedding. Satisfied by embed.Google.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrieverConfig configures retrieval.
type RetrieverConfig struct {
	// K is the number of passages to retrieve (default: DefaultK).
	K int

	// MinScore drops hits whose cosine similarity falls below it. Zero
	// keeps everything with non-negative similarity.
	MinScore float32
}

// Retriever embeds a query and searches the index for its nearest passages.
type Retriever struct {
	embedder Embedder
	index    *index.Index
	k        int
	minScore float32
	logger   *slog.Logger
}

// NewRetriever creates a retriever over an embedder and an index.
func NewRetriever(embedder Embedder, ix *index.Index, cfg RetrieverConfig, logger *slog.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if ix == nil {
		return nil, fmt.Errorf("index is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.K <= 0 {
		cfg.K = DefaultK
	}
	return &Retriever{
		embedder: embedder,
		index:    ix,
		k:        cfg.K,
		minScore: cfg.MinScore,
		logger:   logger,
	}, nil
}

// Retrieve returns the top passages for a query, best match first. A blank
// query is rejected; a query with no hits above the score floor returns an
// empty slice.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]index.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be blank")
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	start := time.Now()
	results, err := r.index.Search(vector, r.k, r.minScore)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	r.logger.Debug("retrieved passages",
		"hits", len(results),
		"k", r.k,
		"min_score", r.minScore,
		"elapsed", time.Since(start),
	)
	return results, nil
}
