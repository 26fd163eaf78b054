package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"
)

// DefaultModel is the default Gemini embedding model.
// gemini-embedding-001 supports truncation to smaller dimensions via
// OutputDimensionality (Matryoshka Representation Learning).
const DefaultModel = "gemini-embedding-001"

// DefaultDimension is the default output dimensionality requested from the
// embedding model.
const DefaultDimension = 768

// defaultTimeout bounds a single embedding call.
const defaultTimeout = 30 * time.Second

// GoogleConfig configures the Gemini-backed embedder.
type GoogleConfig struct {
	Model     string        // Embedding model name (default: DefaultModel)
	Dimension int           // Output dimensionality (default: DefaultDimension)
	Timeout   time.Duration // Per-call timeout (default: 30s)
}

// Google implements Embedder using the Gemini embedding API.
type Google struct {
	client    *genai.Client
	model     string
	dimension int32
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGoogle creates a Gemini-backed embedder on an existing genai client.
func NewGoogle(client *genai.Client, cfg GoogleConfig, logger *slog.Logger) (*Google, error) {
	if client == nil {
		return nil, fmt.Errorf("genai client is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Google{
		client:    client,
		model:     cfg.Model,
		dimension: int32(cfg.Dimension), // #nosec G115 -- validated positive above
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Dimension returns the configured output dimensionality.
func (g *Google) Dimension() int {
	return int(g.dimension)
}

// Embed returns the normalized embedding for a single text.
func (g *Google) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one API call, preserving input order.
// All failures are wrapped in ErrService so the orchestrator can classify
// them as retryable.
func (g *Google) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	dim := g.dimension
	start := time.Now()
	resp, err := g.client.Models.EmbedContent(callCtx, g.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dim,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding %d texts with %s: %w", ErrService, len(texts), g.model, err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrService, len(texts), got)
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at position %d", ErrService, i)
		}
		if len(emb.Values) != int(g.dimension) {
			return nil, fmt.Errorf("%w: dimension mismatch at position %d: expected %d, got %d",
				ErrService, i, g.dimension, len(emb.Values))
		}
		vectors[i] = Normalize(emb.Values)
	}

	g.logger.Debug("embedded batch",
		"count", len(texts),
		"model", g.model,
		"dimension", g.dimension,
		"elapsed", time.Since(start),
	)
	return vectors, nil
}
