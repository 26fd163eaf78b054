package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// ErrNotFound is returned by ObjectStore.Get when no object exists under the
// requested key.
var ErrNotFound = errors.New("object not found")

// ObjectStore is the remote storage abstraction the index store persists
// snapshots to. Interface defined here, by the consumer; implementations
// live in internal/storage.
type ObjectStore interface {
	// Get returns the object bytes for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put uploads data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Move atomically renames an object. Used to promote a fully written
	// temporary snapshot so readers never observe a partial upload.
	Move(ctx context.Context, from, to string) error
}

// DefaultSnapshotKey is the remote object key for the index snapshot.
const DefaultSnapshotKey = "vectorstore/index.json"

// StoreConfig configures snapshot persistence.
type StoreConfig struct {
	// Key is the remote object key of the snapshot (default: DefaultSnapshotKey).
	Key string

	// LocalPath, when set, is a directory holding a working copy of the
	// snapshot plus a flock guard so two processes on the same host don't
	// race each other writing it.
	LocalPath string

	// Timeout bounds each remote call (default: 60s).
	Timeout time.Duration
}

// Store loads and saves index snapshots through an ObjectStore.
//
// Save is meant to run once after a batch of ingestion mutations, never per
// insert, to bound write amplification against the remote store. It skips
// the upload entirely when the index generation hasn't moved since the last
// successful save.
type Store struct {
	objects   ObjectStore
	key       string
	localPath string
	timeout   time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	lastSaved uint64
	haveSaved bool
}

// NewStore creates a snapshot store on top of an ObjectStore.
func NewStore(objects ObjectStore, cfg StoreConfig, logger *slog.Logger) (*Store, error) {
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Key == "" {
		cfg.Key = DefaultSnapshotKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Store{
		objects:   objects,
		key:       cfg.Key,
		localPath: cfg.LocalPath,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Key returns the remote snapshot key.
func (s *Store) Key() string {
	return s.key
}

// Load reconstructs an index from the latest remote snapshot. When no
// snapshot exists it returns an empty index of the given dimension. A
// snapshot that fails validation, or whose dimension disagrees with the
// configured one, yields ErrCorruptSnapshot so the caller can fall back to
// an empty index and schedule a rebuild instead of crashing.
func (s *Store) Load(ctx context.Context, dimension int) (*Index, error) {
	getCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.objects.Get(getCtx, s.key)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("no remote snapshot, starting with empty index", "key", s.key)
		return New(dimension)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot %q: %w", s.key, err)
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if snap.Dimension != dimension {
		return nil, fmt.Errorf("%w: snapshot dimension %d, configured embedder dimension %d",
			ErrCorruptSnapshot, snap.Dimension, dimension)
	}

	ix, err := FromSnapshot(snap)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastSaved = snap.Generation
	s.haveSaved = true
	s.mu.Unlock()

	s.writeWorkingCopy(data)

	s.logger.Info("loaded index snapshot",
		"key", s.key,
		"passages", ix.Len(),
		"generation", snap.Generation,
		"created_at", snap.CreatedAt,
	)
	return ix, nil
}

// Save serializes the index and uploads it atomically: the snapshot is
// written to a temporary key first, then promoted to the final key, so a
// concurrent Load never observes a half-written object. Saving an index
// whose generation matches the last saved one is a no-op.
func (s *Store) Save(ctx context.Context, ix *Index) error {
	snap := ix.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.haveSaved && snap.Generation == s.lastSaved {
		s.logger.Debug("snapshot unchanged, skipping save", "generation", snap.Generation)
		return nil
	}

	data, err := snap.Encode()
	if err != nil {
		return err
	}

	tmpKey := fmt.Sprintf("%s.tmp-%s", s.key, uuid.NewString())

	// Each remote call gets its own timeout so a slow upload can't starve
	// the promotion.
	putCtx, cancelPut := context.WithTimeout(ctx, s.timeout)
	err = s.objects.Put(putCtx, tmpKey, data)
	cancelPut()
	if err != nil {
		return fmt.Errorf("uploading snapshot to %q: %w", tmpKey, err)
	}

	moveCtx, cancelMove := context.WithTimeout(ctx, s.timeout)
	defer cancelMove()
	if err := s.objects.Move(moveCtx, tmpKey, s.key); err != nil {
		return fmt.Errorf("promoting snapshot %q to %q: %w", tmpKey, s.key, err)
	}

	s.lastSaved = snap.Generation
	s.haveSaved = true

	s.writeWorkingCopy(data)

	s.logger.Info("saved index snapshot",
		"key", s.key,
		"passages", len(snap.Passages),
		"generation", snap.Generation,
		"bytes", len(data),
	)
	return nil
}

// writeWorkingCopy refreshes the local copy of the snapshot, serialized
// against other processes on the same host with a file lock. Failures are
// logged and ignored: the remote store is authoritative.
func (s *Store) writeWorkingCopy(data []byte) {
	if s.localPath == "" {
		return
	}
	if err := os.MkdirAll(s.localPath, 0o750); err != nil {
		s.logger.Warn("creating local snapshot directory", "path", s.localPath, "error", err)
		return
	}

	lock := flock.New(filepath.Join(s.localPath, ".snapshot.lock"))
	if err := lock.Lock(); err != nil {
		s.logger.Warn("locking local snapshot", "path", s.localPath, "error", err)
		return
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("unlocking local snapshot", "path", s.localPath, "error", err)
		}
	}()

	target := filepath.Join(s.localPath, filepath.Base(s.key))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		s.logger.Warn("writing local snapshot", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, target); err != nil {
		s.logger.Warn("promoting local snapshot", "path", target, "error", err)
	}
}
