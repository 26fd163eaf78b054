// Package corpus defines the document model and the chunk splitter that
// prepares documents for embedding and retrieval.
package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Document represents a source document prior to chunking.
// Documents are immutable once split; re-ingesting the same source
// produces the same document ID and the same passage IDs.
type Document struct {
	ID       string            // Stable identifier, derived from Source
	Source   string            // Origin of the text (URL, file path, ...)
	Text     string            // Raw text content
	Metadata map[string]string // Optional metadata (title, content type, ...)
}

// NewDocument creates a Document with a stable ID derived from its source.
// The ID is the hex-encoded SHA-256 of the source identifier, so the same
// source always maps to the same document across rebuilds.
func NewDocument(source, text string, metadata map[string]string) Document {
	sum := sha256.Sum256([]byte(source))
	return Document{
		ID:       hex.EncodeToString(sum[:]),
		Source:   source,
		Text:     text,
		Metadata: metadata,
	}
}

// Passage is a chunk of a document, the unit of embedding and retrieval.
type Passage struct {
	ID         string // DocumentID + "#" + ordinal, stable across rebuilds
	DocumentID string
	Source     string // Copied from the document for citation markers
	Ordinal    int    // Position within the document, 0-based
	Text       string
	Overlap    int // Number of runes shared with the preceding passage
}

// PassageID returns the passage identifier for a document and ordinal.
func PassageID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", documentID, ordinal)
}
