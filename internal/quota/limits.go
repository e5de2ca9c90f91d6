package quota

import (
	"github.com/rotisserie/eris"

	"github.com/moodjournal/insight-api/internal/model"
)

// Limits maps a tier to its daily generation allowance. A Limits value is
// built once at startup and only read afterwards.
type Limits map[model.Tier]int

// DefaultLimits are the allowances used when configuration sets none.
func DefaultLimits() Limits {
	return Limits{
		model.TierFree:    3,
		model.TierPlus:    10,
		model.TierPremium: 30,
	}
}

// For returns the allowance for tier. Unknown tiers get the free allowance.
func (l Limits) For(tier model.Tier) int {
	if n, ok := l[tier]; ok {
		return n
	}
	return l[model.TierFree]
}

// ParseLimits overlays configured values on DefaultLimits.
func ParseLimits(raw map[string]int) (Limits, error) {
	limits := DefaultLimits()
	for name, n := range raw {
		tier := model.Tier(name)
		if !tier.Valid() {
			return nil, eris.Errorf("quota: unknown tier %q in limits", name)
		}
		if n < 0 {
			return nil, eris.Errorf("quota: negative limit %d for tier %s", n, name)
		}
		limits[tier] = n
	}
	return limits, nil
}
