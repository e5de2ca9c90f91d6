package quota

import (
	"context"
	"sync"

	"github.com/moodjournal/insight-api/internal/model"
)

// MemoryStore keeps counters in process memory. Counts are lost on restart
// and not shared between instances.
type MemoryStore struct {
	mu     sync.Mutex
	tiers  map[string]model.Tier
	counts map[usageKey]int
}

type usageKey struct {
	userID string
	day    string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tiers:  make(map[string]model.Tier),
		counts: make(map[usageKey]int),
	}
}

func (s *MemoryStore) Usage(_ context.Context, userID, day string) (model.QuotaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tier, ok := s.tiers[userID]
	if !ok {
		tier = model.TierFree
	}
	return model.QuotaRecord{
		UserID:     userID,
		Tier:       tier,
		CountToday: s.counts[usageKey{userID, day}],
	}, nil
}

func (s *MemoryStore) Increment(_ context.Context, userID, day string, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := usageKey{userID, day}
	if s.counts[k] >= limit {
		return s.counts[k], false, nil
	}
	s.counts[k]++
	return s.counts[k], true, nil
}

func (s *MemoryStore) SetTier(_ context.Context, userID string, tier model.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[userID] = tier
	return nil
}

func (s *MemoryStore) Close() error { return nil }
