package quota

import (
	"context"
	"embed"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/moodjournal/insight-api/internal/db"
	"github.com/moodjournal/insight-api/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Schema holds the quota tables in Postgres.
const Schema = "insight"

const (
	pgUsageSQL = `SELECT COALESCE(p.tier, 'free'), COALESCE(u.count, 0)
		FROM (SELECT $1::text AS user_id) q
		LEFT JOIN insight.profiles p ON p.user_id = q.user_id
		LEFT JOIN insight.usage u ON u.user_id = q.user_id AND u.usage_date = $2::date`

	pgIncrementSQL = `INSERT INTO insight.usage (user_id, usage_date, count, updated_at)
		VALUES ($1, $2::date, 1, now())
		ON CONFLICT (user_id, usage_date) DO UPDATE
			SET count = insight.usage.count + 1, updated_at = now()
			WHERE insight.usage.count < $3
		RETURNING count`

	pgSetTierSQL = `INSERT INTO insight.profiles (user_id, tier, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET tier = EXCLUDED.tier, updated_at = now()`
)

// preparedStatements are prepared on each new pool connection.
var preparedStatements = map[string]string{
	"quota_usage":     pgUsageSQL,
	"quota_increment": pgIncrementSQL,
	"quota_set_tier":  pgSetTierSQL,
}

// PostgresStore implements Store on Postgres.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to Postgres and returns a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg, preparedStatements)
	if err != nil {
		return nil, eris.Wrap(err, "quota: connect postgres")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded quota migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Migrate applies the embedded quota migrations to pool.
func Migrate(ctx context.Context, pool db.Pool) error {
	return db.Migrate(ctx, pool, migrationFS, "migrations", Schema)
}

func (s *PostgresStore) Usage(ctx context.Context, userID, day string) (model.QuotaRecord, error) {
	var tier string
	var count int
	if err := s.pool.QueryRow(ctx, pgUsageSQL, userID, day).Scan(&tier, &count); err != nil {
		return model.QuotaRecord{}, eris.Wrap(err, "postgres: usage")
	}
	return model.QuotaRecord{UserID: userID, Tier: model.ParseTier(tier), CountToday: count}, nil
}

func (s *PostgresStore) Increment(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	var count int
	err := s.pool.QueryRow(ctx, pgIncrementSQL, userID, day, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "postgres: increment usage")
	}
	return count, true, nil
}

func (s *PostgresStore) SetTier(ctx context.Context, userID string, tier model.Tier) error {
	_, err := s.pool.Exec(ctx, pgSetTierSQL, userID, string(tier))
	return eris.Wrap(err, "postgres: set tier")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}
