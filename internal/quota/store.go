// Package quota enforces per-user daily generation limits keyed by
// subscription tier.
package quota

import (
	"context"

	"github.com/moodjournal/insight-api/internal/model"
)

// Store persists tiers and per-day usage counters. day is a YYYY-MM-DD key.
type Store interface {
	// Usage returns the user's tier and count for day. Users with no
	// stored profile are on the free tier.
	Usage(ctx context.Context, userID, day string) (model.QuotaRecord, error)
	// Increment adds one to the user's count for day only while the count
	// is below limit, as a single atomic step. ok is false when the count
	// had already reached limit.
	Increment(ctx context.Context, userID, day string, limit int) (count int, ok bool, err error)
	// SetTier stores the user's tier.
	SetTier(ctx context.Context, userID string, tier model.Tier) error
	Close() error
}
