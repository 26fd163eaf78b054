// Package engine orchestrates the full query and ingestion pipelines:
// splitting and embedding documents into the vector index, persisting
// snapshots, and answering queries with retrieval-grounded generation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lorebot/lore/internal/corpus"
	"github.com/lorebot/lore/internal/embed"
	"github.com/lorebot/lore/internal/generate"
	"github.com/lorebot/lore/internal/index"
	"github.com/lorebot/lore/internal/rag"
	"github.com/lorebot/lore/internal/session"
)

// embedBatchSize caps how many passages go into one embedding request.
const embedBatchSize = 100

// Embedder produces embeddings for queries and passages. Satisfied by
// embed.Google.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Generator produces a completion for an assembled prompt. Satisfied by
// generate.Google.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// TurnSink receives completed turns for durable audit. Satisfied by
// session.TurnStore. Sink failures never fail a query.
type TurnSink interface {
	Append(ctx context.Context, sessionID string, turn session.Turn) error
}

// Config holds the engine's tuning knobs. Zero values fall back to the
// package defaults of the component they configure.
type Config struct {
	RetrieveK     int
	MinScore      float32
	ContextBudget int
	HistoryBudget int
	MaxTurns      int
	ChunkSize     int
	ChunkOverlap  int
}

// Options holds the engine's dependencies.
type Options struct {
	Embedder  Embedder
	Index     *index.Index
	Store     *index.Store // nil disables snapshot persistence
	Generator Generator
	Turns     TurnSink // nil disables the durable turn audit
	Logger    *slog.Logger
	Tracer    trace.Tracer
}

// Answer is the result of one query. Sources lists only the passages that
// were actually assembled into the prompt, so every citation was visible to
// the model.
type Answer struct {
	SessionID    string
	Text         string
	Sources      []index.Result
	PassagesUsed int
	TurnsUsed    int
}

// IngestReport summarizes one ingestion batch.
type IngestReport struct {
	Documents  int
	Passages   int
	Generation uint64
}

// Engine wires the pipeline together. It is safe for concurrent use:
// queries share the index read lock while ingestion batches serialize
// behind its write lock.
type Engine struct {
	splitter  *corpus.Splitter
	embedder  Embedder
	index     *index.Index
	store     *index.Store
	retriever *rag.Retriever
	assembler *rag.Assembler
	memory    *session.Memory
	generator Generator
	turns     TurnSink
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New assembles an engine from its dependencies.
func New(opts Options, cfg Config) (*Engine, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if opts.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("lore/engine")
	}
	if opts.Index.Dimension() != opts.Embedder.Dimension() {
		return nil, fmt.Errorf("%w: index dimension %d, embedder dimension %d",
			index.ErrDimensionMismatch, opts.Index.Dimension(), opts.Embedder.Dimension())
	}

	retriever, err := rag.NewRetriever(opts.Embedder, opts.Index, rag.RetrieverConfig{
		K:        cfg.RetrieveK,
		MinScore: cfg.MinScore,
	}, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		splitter:  corpus.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder:  opts.Embedder,
		index:     opts.Index,
		store:     opts.Store,
		retriever: retriever,
		assembler: rag.NewAssembler(rag.AssemblerConfig{
			ContextBudget: cfg.ContextBudget,
			HistoryBudget: cfg.HistoryBudget,
		}),
		memory:    session.NewMemory(cfg.MaxTurns),
		generator: opts.Generator,
		turns:     opts.Turns,
		logger:    opts.Logger,
		tracer:    opts.Tracer,
	}, nil
}

// Ask answers a query within a session: retrieve, assemble, generate, then
// record the turn. The answer is grounded only in indexed passages and the
// session's recent turns.
func (e *Engine) Ask(ctx context.Context, sessionID, query string) (*Answer, error) {
	ctx, span := e.tracer.Start(ctx, "engine.ask",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	start := time.Now()

	hits, err := e.retriever.Retrieve(ctx, query)
	if err != nil {
		kind := KindInternal
		if errors.Is(err, embed.ErrService) {
			kind = KindEmbedding
		}
		return nil, e.fail(span, kind, err)
	}
	span.SetAttributes(attribute.Int("retrieval.hits", len(hits)))

	history := e.memory.Recent(sessionID)
	prompt := e.assembler.Assemble(query, hits, history)
	span.SetAttributes(
		attribute.Int("prompt.passages", prompt.PassagesUsed),
		attribute.Int("prompt.turns", prompt.TurnsUsed),
		attribute.Int("prompt.estimated_tokens", prompt.EstimatedTokens),
	)

	text, err := e.generator.Generate(ctx, prompt.Text)
	if err != nil {
		kind := KindInternal
		switch {
		case errors.Is(err, generate.ErrFatal):
			kind = KindGenerationFatal
		case errors.Is(err, generate.ErrUnavailable):
			kind = KindGenerationUnavailable
		}
		return nil, e.fail(span, kind, err)
	}

	e.recordTurn(ctx, sessionID, session.Turn{Query: query, Answer: text, At: time.Now().UTC()})

	e.logger.Info("answered query",
		"session_id", sessionID,
		"hits", len(hits),
		"passages_used", prompt.PassagesUsed,
		"turns_used", prompt.TurnsUsed,
		"elapsed", time.Since(start),
	)

	return &Answer{
		SessionID:    sessionID,
		Text:         text,
		Sources:      prompt.Sources,
		PassagesUsed: prompt.PassagesUsed,
		TurnsUsed:    prompt.TurnsUsed,
	}, nil
}

// Ingest splits, embeds, and indexes a batch of documents, then persists one
// snapshot for the whole batch. The batch is all or nothing: an embedding
// failure leaves the index untouched.
func (e *Engine) Ingest(ctx context.Context, docs []corpus.Document) (*IngestReport, error) {
	return e.ingest(ctx, docs, false)
}

// Rebuild re-indexes from scratch: existing passages are dropped and the
// given documents become the entire corpus. Embeddings are computed before
// the old index is cleared, so a failed rebuild keeps the previous state.
func (e *Engine) Rebuild(ctx context.Context, docs []corpus.Document) (*IngestReport, error) {
	return e.ingest(ctx, docs, true)
}

func (e *Engine) ingest(ctx context.Context, docs []corpus.Document, reset bool) (*IngestReport, error) {
	spanName := "engine.ingest"
	if reset {
		spanName = "engine.rebuild"
	}
	ctx, span := e.tracer.Start(ctx, spanName,
		trace.WithAttributes(attribute.Int("documents", len(docs))))
	defer span.End()

	start := time.Now()

	var passages []corpus.Passage
	for _, doc := range docs {
		passages = append(passages, e.splitter.Split(doc)...)
	}
	span.SetAttributes(attribute.Int("passages", len(passages)))

	vectors, err := e.embedPassages(ctx, passages)
	if err != nil {
		return nil, e.fail(span, KindEmbedding, err)
	}

	if reset {
		e.index.Reset()
	}
	for i, p := range passages {
		if err := e.index.Insert(p, vectors[i]); err != nil {
			return nil, e.fail(span, KindInternal, fmt.Errorf("inserting passage %s: %w", p.ID, err))
		}
	}

	if e.store != nil && (reset || len(passages) > 0) {
		if err := e.store.Save(ctx, e.index); err != nil {
			return nil, e.fail(span, KindInternal, err)
		}
	}

	e.logger.Info("ingested documents",
		"documents", len(docs),
		"passages", len(passages),
		"rebuild", reset,
		"index_size", e.index.Len(),
		"elapsed", time.Since(start),
	)

	return &IngestReport{
		Documents:  len(docs),
		Passages:   len(passages),
		Generation: e.index.Generation(),
	}, nil
}

// embedPassages embeds all passages in bounded batches, returning vectors in
// passage order. Any batch failure abandons the whole set.
func (e *Engine) embedPassages(ctx context.Context, passages []corpus.Passage) ([][]float32, error) {
	vectors := make([][]float32, 0, len(passages))
	for offset := 0; offset < len(passages); offset += embedBatchSize {
		end := min(offset+embedBatchSize, len(passages))
		texts := make([]string, 0, end-offset)
		for _, p := range passages[offset:end] {
			texts = append(texts, p.Text)
		}
		batch, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding passages %d..%d: %w", offset, end-1, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// NewSession returns a fresh session identifier.
func (e *Engine) NewSession() string {
	return session.NewSessionID()
}

// ForgetSession drops a session's in-memory history.
func (e *Engine) ForgetSession(sessionID string) {
	e.memory.Forget(sessionID)
}

// PassageCount returns the number of indexed passages.
func (e *Engine) PassageCount() int {
	return e.index.Len()
}

// IndexGeneration returns the index mutation counter.
func (e *Engine) IndexGeneration() uint64 {
	return e.index.Generation()
}

// recordTurn updates the in-memory window and, when configured, the durable
// audit log. Audit failures are logged, never surfaced.
func (e *Engine) recordTurn(ctx context.Context, sessionID string, turn session.Turn) {
	if err := e.memory.Record(sessionID, turn); err != nil {
		e.logger.Warn("recording turn in memory", "session_id", sessionID, "error", err)
	}
	if e.turns == nil {
		return
	}
	if err := e.turns.Append(ctx, sessionID, turn); err != nil {
		e.logger.Warn("appending turn to audit log", "session_id", sessionID, "error", err)
	}
}

func (e *Engine) fail(span trace.Span, kind Kind, err error) error {
	classified := newError(kind, err)
	span.RecordError(classified)
	span.SetStatus(codes.Error, string(kind))
	return classified
}
