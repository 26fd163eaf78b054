package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/lorebot/lore/internal/corpus"
	"github.com/lorebot/lore/internal/embed"
	"github.com/lorebot/lore/internal/generate"
	"github.com/lorebot/lore/internal/index"
	"github.com/lorebot/lore/internal/log"
	"github.com/lorebot/lore/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockEmbedder returns canned unit vectors keyed by text, with a fallback
// direction for anything unknown.
type mockEmbedder struct {
	vectors   map[string][]float32
	dimension int
	err       error
	calls     int
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.vectors[text]; ok {
			out[i] = v
			continue
		}
		fallback := make([]float32, m.dimension)
		fallback[m.dimension-1] = 1
		out[i] = fallback
	}
	return out, nil
}

func (m *mockEmbedder) Dimension() int { return m.dimension }

// mockGenerator fails a configurable number of times, then answers.
type mockGenerator struct {
	answer     string
	failures   int
	failWith   error
	calls      int
	lastPrompt string
}

func (m *mockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	m.calls++
	m.lastPrompt = prompt
	if m.calls <= m.failures {
		return "", m.failWith
	}
	return m.answer, nil
}

func newTestEngine(t *testing.T, embedder *mockEmbedder, generator Generator) *Engine {
	t.Helper()

	ix, err := index.New(embedder.dimension)
	if err != nil {
		t.Fatal(err)
	}
	objects, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store, err := index.NewStore(objects, index.StoreConfig{}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	e, err := New(Options{
		Embedder:  embedder,
		Index:     ix,
		Store:     store,
		Generator: generator,
		Logger:    log.NewNop(),
	}, Config{RetrieveK: 2, MaxTurns: 2})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func skyEmbedder() *mockEmbedder {
	return &mockEmbedder{
		dimension: 3,
		vectors: map[string][]float32{
			"The sky is blue.":       {1, 0, 0},
			"The sea is deep.":       {0, 1, 0},
			"what color is the sky?": {1, 0, 0},
		},
	}
}

func TestEngine_IngestThenAsk(t *testing.T) {
	embedder := skyEmbedder()
	generator := &mockGenerator{answer: "The sky is blue."}
	e := newTestEngine(t, embedder, generator)
	ctx := context.Background()

	docs := []corpus.Document{
		corpus.NewDocument("facts.txt", "The sky is blue.", nil),
		corpus.NewDocument("sea.txt", "The sea is deep.", nil),
	}
	report, err := e.Ingest(ctx, docs)
	if err != nil {
		t.Fatal(err)
	}
	if report.Passages != 2 {
		t.Fatalf("Passages = %d, want 2", report.Passages)
	}
	if e.PassageCount() != 2 {
		t.Fatalf("PassageCount = %d, want 2", e.PassageCount())
	}

	answer, err := e.Ask(ctx, e.NewSession(), "what color is the sky?")
	if err != nil {
		t.Fatal(err)
	}
	if answer.Text != "The sky is blue." {
		t.Errorf("Text = %q", answer.Text)
	}
	if len(answer.Sources) == 0 || answer.Sources[0].Passage.Source != "facts.txt" {
		t.Errorf("Sources = %+v, want facts.txt first", answer.Sources)
	}
	if !strings.Contains(generator.lastPrompt, "The sky is blue.") {
		t.Error("prompt missing the retrieved passage")
	}
	if !strings.Contains(generator.lastPrompt, "what color is the sky?") {
		t.Error("prompt missing the query")
	}
}

func TestEngine_SourcesExcludeBudgetSkippedPassages(t *testing.T) {
	bigText := strings.Repeat("long passage text ", 15)
	embedder := &mockEmbedder{
		dimension: 3,
		vectors: map[string][]float32{
			bigText:      {1, 0, 0},
			"short fact": {0.8, 0.6, 0},
			"q":          {1, 0, 0},
		},
	}
	generator := &mockGenerator{answer: "ok"}

	ix, err := index.New(embedder.dimension)
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(Options{
		Embedder:  embedder,
		Index:     ix,
		Generator: generator,
		Logger:    log.NewNop(),
	}, Config{RetrieveK: 2, ContextBudget: 50})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := e.Ingest(ctx, []corpus.Document{
		corpus.NewDocument("big.txt", bigText, nil),
		corpus.NewDocument("small.txt", "short fact", nil),
	}); err != nil {
		t.Fatal(err)
	}

	// Both documents are retrieved, but only the small one fits the context
	// budget. The answer must cite what the prompt contained, nothing more.
	answer, err := e.Ask(ctx, e.NewSession(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(generator.lastPrompt, "long passage text") {
		t.Fatal("oversized passage unexpectedly fit the prompt")
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("Sources = %d hits, want 1", len(answer.Sources))
	}
	if answer.Sources[0].Passage.Source != "small.txt" {
		t.Errorf("Sources[0] = %q, want small.txt", answer.Sources[0].Passage.Source)
	}
	if answer.PassagesUsed != len(answer.Sources) {
		t.Errorf("PassagesUsed = %d, Sources = %d, want them equal",
			answer.PassagesUsed, len(answer.Sources))
	}
}

func TestEngine_AskEmptyIndex(t *testing.T) {
	embedder := skyEmbedder()
	generator := &mockGenerator{answer: "I don't know."}
	e := newTestEngine(t, embedder, generator)

	answer, err := e.Ask(context.Background(), e.NewSession(), "what color is the sky?")
	if err != nil {
		t.Fatal(err)
	}
	if answer.PassagesUsed != 0 {
		t.Errorf("PassagesUsed = %d, want 0", answer.PassagesUsed)
	}
	if !strings.Contains(generator.lastPrompt, "(no relevant context found)") {
		t.Error("prompt missing the empty-context placeholder")
	}
}

func TestEngine_ConversationMemoryBounded(t *testing.T) {
	embedder := skyEmbedder()
	generator := &mockGenerator{answer: "ok"}
	e := newTestEngine(t, embedder, generator) // MaxTurns: 2
	ctx := context.Background()

	sessionID := e.NewSession()
	for i := range 3 {
		if _, err := e.Ask(ctx, sessionID, fmt.Sprintf("question number %d", i)); err != nil {
			t.Fatal(err)
		}
	}

	// The fourth ask sees at most the two most recent turns.
	answer, err := e.Ask(ctx, sessionID, "final question")
	if err != nil {
		t.Fatal(err)
	}
	if answer.TurnsUsed != 2 {
		t.Errorf("TurnsUsed = %d, want 2", answer.TurnsUsed)
	}
	if strings.Contains(generator.lastPrompt, "question number 0") {
		t.Error("evicted turn leaked into the prompt")
	}
	if !strings.Contains(generator.lastPrompt, "question number 2") {
		t.Error("recent turn missing from the prompt")
	}
}

func TestEngine_SessionsIsolated(t *testing.T) {
	embedder := skyEmbedder()
	generator := &mockGenerator{answer: "ok"}
	e := newTestEngine(t, embedder, generator)
	ctx := context.Background()

	a, b := e.NewSession(), e.NewSession()
	if _, err := e.Ask(ctx, a, "secret question in session a"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Ask(ctx, b, "anything"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(generator.lastPrompt, "secret question in session a") {
		t.Error("session a history leaked into session b's prompt")
	}
}

func TestEngine_GenerationErrorsClassified(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"unavailable", fmt.Errorf("%w: retries exhausted", generate.ErrUnavailable), KindGenerationUnavailable},
		{"fatal", fmt.Errorf("%w: blocked prompt", generate.ErrFatal), KindGenerationFatal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			embedder := skyEmbedder()
			generator := &mockGenerator{failures: 99, failWith: tc.err}
			e := newTestEngine(t, embedder, generator)

			_, err := e.Ask(context.Background(), e.NewSession(), "what color is the sky?")
			var engErr *Error
			if !errors.As(err, &engErr) {
				t.Fatalf("got %T, want *engine.Error", err)
			}
			if engErr.Kind != tc.kind {
				t.Errorf("Kind = %s, want %s", engErr.Kind, tc.kind)
			}
			if !errors.Is(err, tc.err) {
				t.Error("classified error lost the underlying cause")
			}
		})
	}
}

func TestEngine_EmbeddingFailureClassified(t *testing.T) {
	embedder := skyEmbedder()
	embedder.err = fmt.Errorf("%w: quota exceeded", embed.ErrService)
	e := newTestEngine(t, embedder, &mockGenerator{answer: "never reached"})

	_, err := e.Ask(context.Background(), e.NewSession(), "anything")
	var engErr *Error
	if !errors.As(err, &engErr) {
		t.Fatalf("got %T, want *engine.Error", err)
	}
	if engErr.Kind != KindEmbedding {
		t.Errorf("Kind = %s, want %s", engErr.Kind, KindEmbedding)
	}
}

func TestEngine_IngestFailureLeavesIndexUntouched(t *testing.T) {
	embedder := skyEmbedder()
	e := newTestEngine(t, embedder, &mockGenerator{answer: "ok"})
	ctx := context.Background()

	if _, err := e.Ingest(ctx, []corpus.Document{
		corpus.NewDocument("facts.txt", "The sky is blue.", nil),
	}); err != nil {
		t.Fatal(err)
	}
	genBefore := e.IndexGeneration()

	embedder.err = fmt.Errorf("%w: service down", embed.ErrService)
	_, err := e.Ingest(ctx, []corpus.Document{
		corpus.NewDocument("new.txt", "Something new.", nil),
	})
	var engErr *Error
	if !errors.As(err, &engErr) || engErr.Kind != KindEmbedding {
		t.Fatalf("got %v, want embedding error", err)
	}

	if e.PassageCount() != 1 {
		t.Errorf("PassageCount = %d, want 1 (failed batch must not partially apply)", e.PassageCount())
	}
	if e.IndexGeneration() != genBefore {
		t.Error("failed ingest mutated the index generation")
	}
}

func TestEngine_RebuildReplacesCorpus(t *testing.T) {
	embedder := skyEmbedder()
	e := newTestEngine(t, embedder, &mockGenerator{answer: "ok"})
	ctx := context.Background()

	if _, err := e.Ingest(ctx, []corpus.Document{
		corpus.NewDocument("old.txt", "The sea is deep.", nil),
	}); err != nil {
		t.Fatal(err)
	}

	report, err := e.Rebuild(ctx, []corpus.Document{
		corpus.NewDocument("facts.txt", "The sky is blue.", nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	if report.Passages != 1 {
		t.Fatalf("Passages = %d, want 1", report.Passages)
	}
	if e.PassageCount() != 1 {
		t.Errorf("PassageCount = %d, want 1 after rebuild", e.PassageCount())
	}

	// Only the new corpus is retrievable.
	answer, err := e.Ask(ctx, e.NewSession(), "what color is the sky?")
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range answer.Sources {
		if src.Passage.Source == "old.txt" {
			t.Error("rebuilt index still serves the old corpus")
		}
	}
}

func TestEngine_DimensionMismatchRejectedAtConstruction(t *testing.T) {
	embedder := &mockEmbedder{dimension: 3}
	ix, err := index.New(5)
	if err != nil {
		t.Fatal(err)
	}

	_, err = New(Options{
		Embedder:  embedder,
		Index:     ix,
		Generator: &mockGenerator{},
		Logger:    log.NewNop(),
	}, Config{})
	if !errors.Is(err, index.ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
}
