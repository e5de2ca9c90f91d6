package quota

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/moodjournal/insight-api/internal/db"
)

// Store backends accepted by Open.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

// OpenConfig selects and addresses a store backend.
type OpenConfig struct {
	Backend     string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string
	Pool        db.PoolConfig
}

// Open creates the configured Store.
func Open(ctx context.Context, cfg OpenConfig) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, eris.New("quota: postgres store requires database_url")
		}
		s, err := NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = "insight.db"
		}
		s, err := NewSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, eris.New("quota: redis store requires redis_url")
		}
		s, err := NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("quota: unknown store %q", cfg.Backend)
	}
}
