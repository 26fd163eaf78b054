package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/lorebot/lore/internal/corpus"
	"github.com/lorebot/lore/internal/index"
	"github.com/lorebot/lore/internal/log"
)

// mockEmbedder returns canned vectors keyed by input text.
type mockEmbedder struct {
	vectors   map[string][]float32
	err       error
	callCount int
	lastText  string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.callCount++
	m.lastText = text
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.vectors[text]
	if !ok {
		return nil, errors.New("no canned vector for " + text)
	}
	return v, nil
}

func buildIndex(t *testing.T) *index.Index {
	t.Helper()
	ix, err := index.New(2)
	if err != nil {
		t.Fatal(err)
	}
	inserts := []struct {
		id     string
		source string
		text   string
		vec    []float32
	}{
		{"sky#0", "facts.txt", "The sky is blue.", []float32{1, 0}},
		{"sea#0", "facts.txt", "The sea is deep.", []float32{0.7071, 0.7071}},
		{"moon#0", "space.txt", "The moon orbits Earth.", []float32{0, 1}},
	}
	for _, in := range inserts {
		p := corpus.Passage{ID: in.id, DocumentID: in.id, Source: in.source, Text: in.text}
		if err := ix.Insert(p, in.vec); err != nil {
			t.Fatal(err)
		}
	}
	return ix
}

func TestRetrieve_BestMatchFirst(t *testing.T) {
	ix := buildIndex(t)
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"what color is the sky?": {1, 0},
	}}

	r, err := NewRetriever(embedder, ix, RetrieverConfig{K: 2}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	results, err := r.Retrieve(context.Background(), "what color is the sky?")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Passage.ID != "sky#0" {
		t.Errorf("best match = %s, want sky#0", results[0].Passage.ID)
	}
	if embedder.callCount != 1 {
		t.Errorf("embedder called %d times, want 1", embedder.callCount)
	}
	if embedder.lastText != "what color is the sky?" {
		t.Errorf("embedded %q, want the raw query", embedder.lastText)
	}
}

func TestRetrieve_MinScoreFiltersWeakHits(t *testing.T) {
	ix := buildIndex(t)
	embedder := &mockEmbedder{vectors: map[string][]float32{
		"sky": {1, 0},
	}}

	r, err := NewRetriever(embedder, ix, RetrieverConfig{K: 10, MinScore: 0.9}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	results, err := r.Retrieve(context.Background(), "sky")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Passage.ID != "sky#0" {
		t.Errorf("got %+v, want only sky#0", results)
	}
}

func TestRetrieve_BlankQueryRejected(t *testing.T) {
	ix := buildIndex(t)
	r, err := NewRetriever(&mockEmbedder{}, ix, RetrieverConfig{}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Retrieve(context.Background(), "   \n"); err == nil {
		t.Error("expected error for blank query")
	}
}

func TestRetrieve_EmbedderFailurePropagates(t *testing.T) {
	ix := buildIndex(t)
	wantErr := errors.New("embedding service down")
	r, err := NewRetriever(&mockEmbedder{err: wantErr}, ix, RetrieverConfig{}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.Retrieve(context.Background(), "anything"); !errors.Is(err, wantErr) {
		t.Errorf("got %v, want wrapped %v", err, wantErr)
	}
}

func TestRetrieve_EmptyIndexYieldsNoHits(t *testing.T) {
	ix, err := index.New(2)
	if err != nil {
		t.Fatal(err)
	}
	embedder := &mockEmbedder{vectors: map[string][]float32{"q": {1, 0}}}
	r, err := NewRetriever(embedder, ix, RetrieverConfig{}, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	results, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}
