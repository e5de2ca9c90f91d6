package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/moodjournal/insight-api/internal/model"
)

// ExceededError reports a user at or over the daily limit.
type ExceededError struct {
	Tier  model.Tier
	Limit int
	Count int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily limit of %d reached for tier %s", e.Limit, e.Tier)
}

// Remaining is always zero for an exceeded quota.
func (e *ExceededError) Remaining() int { return 0 }

// Admission is a passed quota check, carried to Commit.
type Admission struct {
	UserID string
	Tier   model.Tier
	Day    string
	Count  int
	Limit  int
	// Unlimited is set when the ledger is disabled.
	Unlimited bool
}

// Remaining is the number of generations left before this one.
func (a Admission) Remaining() int {
	if r := a.Limit - a.Count; r > 0 {
		return r
	}
	return 0
}

// Ledger admits generations against the tier table and counts successful
// ones.
type Ledger struct {
	store  Store
	limits Limits
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock used to pick the day key.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates a Ledger. A nil store disables quota enforcement.
func NewLedger(store Store, limits Limits, opts ...Option) *Ledger {
	if limits == nil {
		limits = DefaultLimits()
	}
	l := &Ledger{store: store, limits: limits, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether the ledger enforces limits.
func (l *Ledger) Enabled() bool { return l != nil && l.store != nil }

// Day returns the current usage day key in UTC.
func (l *Ledger) Day() string {
	return l.now().UTC().Format(time.DateOnly)
}

// Check reads the user's tier and count without changing them. It returns
// an *ExceededError when count >= limit.
func (l *Ledger) Check(ctx context.Context, userID string) (Admission, error) {
	if !l.Enabled() {
		return Admission{UserID: userID, Unlimited: true}, nil
	}

	day := l.Day()
	rec, err := l.store.Usage(ctx, userID, day)
	if err != nil {
		return Admission{}, eris.Wrap(err, "quota: read usage")
	}

	tier := model.ParseTier(string(rec.Tier))
	limit := l.limits.For(tier)
	if rec.CountToday >= limit {
		return Admission{}, &ExceededError{Tier: tier, Limit: limit, Count: rec.CountToday}
	}
	return Admission{
		UserID: userID,
		Tier:   tier,
		Day:    day,
		Count:  rec.CountToday,
		Limit:  limit,
	}, nil
}

// Commit counts one successful generation for an admission. Concurrent
// requests admitted against the same count race here: the store increments
// only while below the limit, and the loser gets an *ExceededError.
func (l *Ledger) Commit(ctx context.Context, adm Admission) (int, error) {
	if adm.Unlimited || !l.Enabled() {
		return 0, nil
	}
	if adm.Limit <= 0 {
		return adm.Count, &ExceededError{Tier: adm.Tier, Limit: adm.Limit, Count: adm.Count}
	}

	count, ok, err := l.store.Increment(ctx, adm.UserID, adm.Day, adm.Limit)
	if err != nil {
		return 0, eris.Wrap(err, "quota: increment usage")
	}
	if !ok {
		zap.L().Debug("quota: lost increment race",
			zap.String("user_id", adm.UserID),
			zap.String("tier", string(adm.Tier)),
			zap.Int("limit", adm.Limit),
		)
		return adm.Limit, &ExceededError{Tier: adm.Tier, Limit: adm.Limit, Count: adm.Limit}
	}
	return count, nil
}

// Limits returns the tier table.
func (l *Ledger) Limits() Limits { return l.limits }

// Store returns the backing store, or nil when disabled.
func (l *Ledger) Store() Store { return l.store }
