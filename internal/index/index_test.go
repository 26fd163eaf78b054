package index

import (
	"errors"
	"testing"

	"github.com/lorebot/lore/internal/corpus"
)

func passage(id, text string) corpus.Passage {
	return corpus.Passage{ID: id, DocumentID: "doc", Source: "test", Text: text}
}

func TestNew_InvalidDimension(t *testing.T) {
	for _, dim := range []int{0, -1} {
		if _, err := New(dim); err == nil {
			t.Errorf("New(%d): expected error", dim)
		}
	}
}

func TestSearch_OrdersByScore(t *testing.T) {
	ix, err := New(2)
	if err != nil {
		t.Fatal(err)
	}

	// Unit vectors at increasing angles from the query (1, 0).
	inserts := []struct {
		id  string
		vec []float32
	}{
		{"far", []float32{0, 1}},
		{"close", []float32{1, 0}},
		{"mid", []float32{0.7071, 0.7071}},
	}
	for _, in := range inserts {
		if err := ix.Insert(passage(in.id, in.id), in.vec); err != nil {
			t.Fatalf("Insert(%s): %v", in.id, err)
		}
	}

	results, err := ix.Search([]float32{1, 0}, 3, -1)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"close", "mid", "far"}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, id := range want {
		if results[i].Passage.ID != id {
			t.Errorf("result %d = %s, want %s", i, results[i].Passage.ID, id)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not in descending score order at %d", i)
		}
	}
}

func TestSearch_TiesBreakByPassageID(t *testing.T) {
	ix, err := New(2)
	if err != nil {
		t.Fatal(err)
	}

	// Identical vectors produce identical scores.
	same := []float32{1, 0}
	for _, id := range []string{"b", "c", "a"} {
		if err := ix.Insert(passage(id, id), same); err != nil {
			t.Fatal(err)
		}
	}

	results, err := ix.Search([]float32{1, 0}, 3, 0)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a", "b", "c"}
	for i, id := range want {
		if results[i].Passage.ID != id {
			t.Errorf("result %d = %s, want %s", i, results[i].Passage.ID, id)
		}
	}
}

func TestSearch_MinScoreFilters(t *testing.T) {
	ix, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(passage("hit", "hit"), []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(passage("miss", "miss"), []float32{0, 1}); err != nil {
		t.Fatal(err)
	}

	results, err := ix.Search([]float32{1, 0}, 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Passage.ID != "hit" {
		t.Errorf("got %v, want single result %q", results, "hit")
	}
}

func TestSearch_TruncatesToK(t *testing.T) {
	ix, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		if err := ix.Insert(passage(id, id), []float32{1}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := ix.Search([]float32{1}, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestSearch_EmptyIndex(t *testing.T) {
	ix, err := New(3)
	if err != nil {
		t.Fatal(err)
	}
	results, err := ix.Search([]float32{1, 0, 0}, 4, 0)
	if err != nil {
		t.Fatalf("searching an empty index should not fail: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	ix, err := New(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Search([]float32{1, 0}, 4, 0); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestInsert_ReplacesExistingID(t *testing.T) {
	ix, err := New(1)
	if err != nil {
		t.Fatal(err)
	}

	if err := ix.Insert(passage("p", "old text"), []float32{1}); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(passage("p", "new text"), []float32{1}); err != nil {
		t.Fatal(err)
	}

	if ix.Len() != 1 {
		t.Fatalf("Len = %d, want 1", ix.Len())
	}
	results, err := ix.Search([]float32{1}, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Passage.Text != "new text" {
		t.Errorf("Text = %q, want %q", results[0].Passage.Text, "new text")
	}
}

func TestInsert_CopiesVector(t *testing.T) {
	ix, err := New(2)
	if err != nil {
		t.Fatal(err)
	}

	vec := []float32{1, 0}
	if err := ix.Insert(passage("p", "p"), vec); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's slice must not corrupt the stored embedding.
	vec[0], vec[1] = 0, 1

	results, err := ix.Search([]float32{1, 0}, 1, 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (stored vector changed after insert)", len(results))
	}
}

func TestInsert_DimensionMismatch(t *testing.T) {
	ix, err := New(3)
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert(passage("p", "p"), []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("got %v, want ErrDimensionMismatch", err)
	}
}

func TestGeneration_IncrementsOnMutation(t *testing.T) {
	ix, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	if g := ix.Generation(); g != 0 {
		t.Fatalf("initial generation = %d, want 0", g)
	}

	if err := ix.Insert(passage("p", "p"), []float32{1}); err != nil {
		t.Fatal(err)
	}
	if g := ix.Generation(); g != 1 {
		t.Errorf("generation after insert = %d, want 1", g)
	}

	if !ix.Remove("p") {
		t.Fatal("Remove returned false for existing passage")
	}
	if g := ix.Generation(); g != 2 {
		t.Errorf("generation after remove = %d, want 2", g)
	}

	// Removing a missing ID must not bump the generation.
	if ix.Remove("p") {
		t.Error("Remove returned true for missing passage")
	}
	if g := ix.Generation(); g != 2 {
		t.Errorf("generation after no-op remove = %d, want 2", g)
	}
}
