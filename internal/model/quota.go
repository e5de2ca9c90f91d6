package model

import "strings"

// Tier is a subscription level that determines the daily generation quota.
type Tier string

const (
	TierFree    Tier = "free"
	TierPlus    Tier = "plus"
	TierPremium Tier = "premium"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t == TierFree || t == TierPlus || t == TierPremium
}

// ParseTier maps a stored tier string to a Tier. Unknown or empty values
// fall back to TierFree.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPlus:
		return TierPlus
	case TierPremium:
		return TierPremium
	default:
		return TierFree
	}
}

// QuotaRecord is a user's tier and today's generation count.
type QuotaRecord struct {
	UserID     string `json:"user_id"`
	Tier       Tier   `json:"tier"`
	CountToday int    `json:"count_today"`
}
