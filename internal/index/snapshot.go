package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/lorebot/lore/internal/corpus"
)

// ErrCorruptSnapshot indicates a snapshot that cannot be trusted: wrong
// format version, missing dimension metadata, or mismatched passage and
// vector counts. A corrupt snapshot is rejected wholesale; an index is never
// partially loaded from one.
var ErrCorruptSnapshot = errors.New("index snapshot is corrupt")

// snapshotVersion is the current snapshot format version. Bump on any
// incompatible change to the Snapshot layout.
const snapshotVersion = 1

// Snapshot is the serialized form of an Index: a versioned envelope holding
// the passages and their vectors side by side, plus the generation counter
// so a loader can tell how fresh it is.
type Snapshot struct {
	Version    int              `json:"version"`
	Generation uint64           `json:"generation"`
	Dimension  int              `json:"dimension"`
	CreatedAt  time.Time        `json:"created_at"`
	Passages   []corpus.Passage `json:"passages"`
	Vectors    [][]float32      `json:"vectors"`
}

// Snapshot captures a consistent point-in-time copy of the index.
// Passages and vectors are emitted in ascending passage-ID order so that
// identical index contents always serialize identically.
func (ix *Index) Snapshot() *Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]string, 0, len(ix.entries))
	for id := range ix.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	snap := &Snapshot{
		Version:    snapshotVersion,
		Generation: ix.generation,
		Dimension:  ix.dimension,
		CreatedAt:  time.Now().UTC(),
		Passages:   make([]corpus.Passage, 0, len(ids)),
		Vectors:    make([][]float32, 0, len(ids)),
	}
	for _, id := range ids {
		e := ix.entries[id]
		snap.Passages = append(snap.Passages, e.passage)
		snap.Vectors = append(snap.Vectors, e.vector)
	}
	return snap
}

// FromSnapshot reconstructs an index from a validated snapshot.
func FromSnapshot(snap *Snapshot) (*Index, error) {
	if err := snap.validate(); err != nil {
		return nil, err
	}

	ix, err := New(snap.Dimension)
	if err != nil {
		return nil, err
	}
	for i, p := range snap.Passages {
		ix.entries[p.ID] = entry{passage: p, vector: snap.Vectors[i]}
	}
	ix.generation = snap.Generation
	return ix, nil
}

// Encode serializes the snapshot to JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses and validates snapshot bytes. Any inconsistency
// yields ErrCorruptSnapshot; the caller decides whether to fall back to an
// empty index and rebuild.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if err := snap.validate(); err != nil {
		return nil, err
	}
	return &snap, nil
}

// validate enforces snapshot invariants: supported version, dimension
// metadata present, passage and vector counts equal, every vector matching
// the declared dimension, and unique non-empty passage IDs.
func (s *Snapshot) validate() error {
	if s.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, s.Version)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: missing dimension metadata", ErrCorruptSnapshot)
	}
	if len(s.Passages) != len(s.Vectors) {
		return fmt.Errorf("%w: %d passages but %d vectors", ErrCorruptSnapshot, len(s.Passages), len(s.Vectors))
	}

	seen := make(map[string]struct{}, len(s.Passages))
	for i, p := range s.Passages {
		if p.ID == "" {
			return fmt.Errorf("%w: empty passage ID at position %d", ErrCorruptSnapshot, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate passage ID %q", ErrCorruptSnapshot, p.ID)
		}
		seen[p.ID] = struct{}{}
		if len(s.Vectors[i]) != s.Dimension {
			return fmt.Errorf("%w: vector %d has dimension %d, expected %d", ErrCorruptSnapshot, i, len(s.Vectors[i]), s.Dimension)
		}
	}
	return nil
}
