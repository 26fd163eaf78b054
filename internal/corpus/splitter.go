package corpus

import (
	"strings"
)

// Default chunking parameters. 500 runes with 100 runes of overlap keeps
// passages small enough for embedding models while preserving meaning at
// chunk boundaries.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// separators are tried in priority order when looking for a natural cut
// point near the end of a chunk: paragraph break, line break, sentence
// boundary, word boundary.
var separators = []string{"\n\n", "\n", ". ", " "}

// Splitter splits documents into overlapping passages of a target size.
//
// Splitting is deterministic: the same document and configuration always
// yield the same passage sequence and ordinals, which makes re-ingestion
// idempotent (passage IDs replace rather than duplicate).
type Splitter struct {
	chunkSize int // target passage size in runes
	overlap   int // runes carried over from the previous passage
}

// NewSplitter creates a Splitter. Non-positive chunkSize falls back to
// DefaultChunkSize; a negative overlap falls back to DefaultChunkOverlap.
// The overlap is clamped below chunkSize so splitting always advances.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	// Chunks are cut no earlier than half the window, so the overlap must
	// stay below that to guarantee forward progress.
	if overlap*2 >= chunkSize {
		overlap = chunkSize/2 - 1
		if overlap < 0 {
			overlap = 0
		}
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split chunks a document into passages. A document shorter than the chunk
// size yields exactly one passage containing the whole document. A document
// with no content yields no passages; Split never emits an empty passage.
func (s *Splitter) Split(doc Document) []Passage {
	text := strings.TrimSpace(doc.Text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.chunkSize {
		return []Passage{{
			ID:         PassageID(doc.ID, 0),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Ordinal:    0,
			Text:       text,
		}}
	}

	var passages []Passage
	start := 0
	ordinal := 0
	for start < len(runes) {
		end := start + s.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.cutPoint(runes, start, end)
		}

		overlap := 0
		if ordinal > 0 {
			overlap = s.overlap
		}
		passages = append(passages, Passage{
			ID:         PassageID(doc.ID, ordinal),
			DocumentID: doc.ID,
			Source:     doc.Source,
			Ordinal:    ordinal,
			Text:       string(runes[start:end]),
			Overlap:    overlap,
		})

		if end == len(runes) {
			break
		}
		start = end - s.overlap
		ordinal++
	}
	return passages
}

// cutPoint finds a natural boundary in runes[start:limit], preferring the
// last separator occurrence in the window. Cuts in the first half of the
// window are rejected to avoid degenerate tiny chunks; when no separator
// qualifies, the chunk is cut at the size limit.
func (s *Splitter) cutPoint(runes []rune, start, limit int) int {
	window := string(runes[start:limit])
	half := (limit - start) / 2
	for _, sep := range separators {
		idx := strings.LastIndex(window, sep)
		if idx < 0 {
			continue
		}
		// Cut after the separator so it stays with the leading chunk.
		cut := len([]rune(window[:idx+len(sep)]))
		if cut > half {
			return start + cut
		}
	}
	return limit
}
