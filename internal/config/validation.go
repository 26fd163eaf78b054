package config

import "fmt"

// Validate checks every field that can break a component downstream.
// It returns the first problem found, wrapped around its sentinel error.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (expected 0..2)", ErrInvalidTemperature, c.Temperature)
	}
	if c.EmbedderDimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimension, c.EmbedderDimension)
	}
	if c.RetrieveK <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetrieveK, c.RetrieveK)
	}
	if c.MinScore < -1 || c.MinScore > 1 {
		return fmt.Errorf("%w: %v (expected -1..1)", ErrInvalidMinScore, c.MinScore)
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_size=%d chunk_overlap=%d (overlap must be in [0, chunk_size))",
			ErrInvalidChunking, c.ChunkSize, c.ChunkOverlap)
	}
	if c.ContextBudget <= 0 || c.HistoryBudget <= 0 {
		return fmt.Errorf("%w: context_budget=%d history_budget=%d",
			ErrInvalidBudget, c.ContextBudget, c.HistoryBudget)
	}

	switch c.StorageBackend {
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return fmt.Errorf("%w: set SUPABASE_URL and SUPABASE_KEY", ErrMissingSupabaseCredentials)
		}
	case BackendFS:
		if c.FSRoot == "" {
			return fmt.Errorf("%w: fs backend needs fs_root", ErrInvalidStorageBackend)
		}
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidStorageBackend, c.StorageBackend, BackendSupabase, BackendFS)
	}

	if c.AuditLog {
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
		}
		if c.PostgresHost == "" || c.PostgresDBName == "" {
			return fmt.Errorf("audit log enabled but PostgreSQL host or database name is empty")
		}
	}

	return nil
}
