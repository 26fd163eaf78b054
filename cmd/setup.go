package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"

	"github.com/lorebot/lore/db"
	"github.com/lorebot/lore/internal/config"
	"github.com/lorebot/lore/internal/embed"
	"github.com/lorebot/lore/internal/engine"
	"github.com/lorebot/lore/internal/generate"
	"github.com/lorebot/lore/internal/index"
	"github.com/lorebot/lore/internal/log"
	"github.com/lorebot/lore/internal/observability"
	"github.com/lorebot/lore/internal/session"
	"github.com/lorebot/lore/internal/storage"
)

// app bundles everything a command needs after wiring.
type app struct {
	cfg    *config.Config
	logger log.Logger
	engine *engine.Engine
	store  *index.Store

	shutdowns []func(context.Context) error
}

// close runs the registered shutdown hooks in reverse order.
func (a *app) close(ctx context.Context) {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		if err := a.shutdowns[i](ctx); err != nil {
			a.logger.Warn("shutdown hook failed", "error", err)
		}
	}
}

// setup loads configuration and wires the engine. A corrupt remote snapshot
// is logged and replaced by an empty index; run `lore rebuild` to repopulate
// it.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	a := &app{cfg: cfg, logger: logger}

	if cfg.TracingEnabled {
		shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
			Endpoint:    cfg.TracingEndpoint,
			ServiceName: cfg.ServiceName,
			Environment: cfg.Environment,
		}, logger)
		if err != nil {
			return nil, err
		}
		a.shutdowns = append(a.shutdowns, shutdown)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	embedder, err := embed.NewGoogle(client, embed.GoogleConfig{
		Model:     cfg.EmbedderModel,
		Dimension: cfg.EmbedderDimension,
	}, logger.With("component", "embedder"))
	if err != nil {
		return nil, err
	}

	generator, err := generate.NewGoogle(client, generate.Config{
		Model:           cfg.ModelName,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Retry:           generate.RetryConfig{MaxRetries: cfg.MaxRetries, InitialInterval: 500 * time.Millisecond, MaxInterval: 10 * time.Second},
		RequestsPerMin:  cfg.RequestsPerMin,
	}, logger.With("component", "generator"))
	if err != nil {
		return nil, err
	}

	objects, err := buildObjectStore(cfg)
	if err != nil {
		return nil, err
	}
	store, err := index.NewStore(objects, index.StoreConfig{
		Key:       cfg.SnapshotKey,
		LocalPath: cfg.LocalPath,
	}, logger.With("component", "snapshot"))
	if err != nil {
		return nil, err
	}
	a.store = store

	ix, err := store.Load(ctx, cfg.EmbedderDimension)
	if errors.Is(err, index.ErrCorruptSnapshot) {
		logger.Warn("remote snapshot is corrupt, starting with an empty index",
			"key", store.Key(),
			"hint", "run `lore rebuild` to repopulate it",
			"error", err,
		)
		ix, err = index.New(cfg.EmbedderDimension)
	}
	if err != nil {
		return nil, err
	}

	var turns engine.TurnSink
	if cfg.AuditLog {
		pool, err := setupAuditLog(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.shutdowns = append(a.shutdowns, func(context.Context) error {
			pool.Close()
			return nil
		})
		turns, err = session.NewTurnStore(pool)
		if err != nil {
			return nil, err
		}
	}

	eng, err := engine.New(engine.Options{
		Embedder:  embedder,
		Index:     ix,
		Store:     store,
		Generator: generator,
		Turns:     turns,
		Logger:    logger.With("component", "engine"),
	}, engine.Config{
		RetrieveK:     cfg.RetrieveK,
		MinScore:      cfg.MinScore,
		ContextBudget: cfg.ContextBudget,
		HistoryBudget: cfg.HistoryBudget,
		MaxTurns:      cfg.MaxTurns,
		ChunkSize:     cfg.ChunkSize,
		ChunkOverlap:  cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	a.engine = eng

	return a, nil
}

// buildObjectStore picks the snapshot backend from configuration.
func buildObjectStore(cfg *config.Config) (index.ObjectStore, error) {
	switch cfg.StorageBackend {
	case config.BackendSupabase:
		return storage.NewSupabase(storage.SupabaseConfig{
			URL:    cfg.SupabaseURL,
			Key:    cfg.SupabaseKey,
			Bucket: cfg.Bucket,
		})
	case config.BackendFS:
		return storage.NewFS(cfg.FSRoot)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// setupAuditLog migrates the schema and opens the connection pool for the
// turn audit log.
func setupAuditLog(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	connURL := cfg.DatabaseURL()
	if err := db.Migrate(connURL, logger); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
