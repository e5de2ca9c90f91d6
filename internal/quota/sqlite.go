package quota

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/moodjournal/insight-api/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for single-node
// deployments and local development.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and creates the quota tables.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps increments serialized and lets :memory: databases
	// survive across calls.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS insight_profiles (
	user_id    TEXT PRIMARY KEY,
	tier       TEXT NOT NULL DEFAULT 'free',
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS insight_usage (
	user_id    TEXT NOT NULL,
	usage_date TEXT NOT NULL,
	count      INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (user_id, usage_date)
);
`

// Migrate creates the quota tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Usage(ctx context.Context, userID, day string) (model.QuotaRecord, error) {
	rec := model.QuotaRecord{UserID: userID, Tier: model.TierFree}

	var tier string
	err := s.db.QueryRowContext(ctx, `SELECT tier FROM insight_profiles WHERE user_id = ?`, userID).Scan(&tier)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return model.QuotaRecord{}, eris.Wrap(err, "sqlite: get tier")
	default:
		rec.Tier = model.ParseTier(tier)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT count FROM insight_usage WHERE user_id = ? AND usage_date = ?`, userID, day,
	).Scan(&rec.CountToday)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.QuotaRecord{}, eris.Wrap(err, "sqlite: get usage")
	}
	return rec, nil
}

func (s *SQLiteStore) Increment(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO insight_usage (user_id, usage_date, count, updated_at)
		VALUES (?, ?, 1, datetime('now'))
		ON CONFLICT (user_id, usage_date) DO UPDATE
			SET count = insight_usage.count + 1, updated_at = datetime('now')
			WHERE insight_usage.count < ?
		RETURNING count`,
		userID, day, limit,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrap(err, "sqlite: increment usage")
	}
	return count, true, nil
}

func (s *SQLiteStore) SetTier(ctx context.Context, userID string, tier model.Tier) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insight_profiles (user_id, tier, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT (user_id) DO UPDATE SET tier = excluded.tier, updated_at = excluded.updated_at`,
		userID, string(tier),
	)
	return eris.Wrap(err, "sqlite: set tier")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
