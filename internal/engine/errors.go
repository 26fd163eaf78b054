package engine

import "fmt"

// Kind classifies an engine failure so callers can decide between retrying,
// rebuilding, and giving up without parsing error strings.
type Kind string

const (
	// KindEmbedding covers embedding service failures during ingestion or
	// query embedding.
	KindEmbedding Kind = "embedding"

	// KindIndexCorrupt covers snapshots that failed validation on load.
	// The remedy is a rebuild from source documents.
	KindIndexCorrupt Kind = "index_corrupt"

	// KindGenerationUnavailable covers transient generation failures that
	// survived the retry budget. The query may succeed later.
	KindGenerationUnavailable Kind = "generation_unavailable"

	// KindGenerationFatal covers non-retryable generation failures.
	KindGenerationFatal Kind = "generation_fatal"

	// KindInternal covers everything else: storage failures, invalid
	// input, bugs.
	KindInternal Kind = "internal"
)

// Error is a classified engine failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
