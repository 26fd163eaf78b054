package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadPath_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "notes.md", "# Notes\n\nSome content.")

	docs, err := readPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d documents, want 1", len(docs))
	}
	if docs[0].Text != "# Notes\n\nSome content." {
		t.Errorf("Text = %q", docs[0].Text)
	}
	if docs[0].ID == "" {
		t.Error("document ID is empty")
	}
}

func TestReadPath_DirectorySkipsNonText(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "first document")
	writeTestFile(t, dir, "sub/b.md", "second document")
	writeTestFile(t, dir, "image.png", "\x89PNG not text")
	writeTestFile(t, dir, "empty.txt", "   \n")
	writeTestFile(t, dir, ".hidden/c.txt", "hidden directory content")

	docs, err := readPath(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2 (txt and md only)", len(docs))
	}
	for _, doc := range docs {
		if doc.Text != "first document" && doc.Text != "second document" {
			t.Errorf("unexpected document: %q", doc.Text)
		}
	}
}

func TestReadPath_UnsupportedSingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "binary.bin", "data")

	if _, err := readPath(path); err == nil {
		t.Error("expected error for unsupported file type")
	}
}

func TestReadPath_Missing(t *testing.T) {
	if _, err := readPath(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestReadFile_StableDocumentID(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "doc.txt", "content v1")

	first, ok, err := readFile(path)
	if err != nil || !ok {
		t.Fatalf("readFile: ok=%v err=%v", ok, err)
	}

	if err := os.WriteFile(path, []byte("content v2"), 0o640); err != nil {
		t.Fatal(err)
	}
	second, ok, err := readFile(path)
	if err != nil || !ok {
		t.Fatalf("readFile: ok=%v err=%v", ok, err)
	}

	// Same source, same ID: re-ingestion replaces instead of duplicating.
	if first.ID != second.ID {
		t.Errorf("document ID changed with content: %q vs %q", first.ID, second.ID)
	}
}
