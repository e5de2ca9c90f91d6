package quota

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/moodjournal/insight-api/internal/model"
)

// usageTTL keeps day counters around a little past the day they count.
const usageTTL = 48 * time.Hour

// incrementScript increments KEYS[1] only while it is below ARGV[1] and
// returns the new count, or -1 when the limit was already reached.
var incrementScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
if count >= tonumber(ARGV[1]) then
	return -1
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('EXPIRE', KEYS[1], ARGV[2])
end
return count
`)

// RedisStore implements Store on Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects to the Redis server at url (redis://host:port/db).
func NewRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "redis: ping")
	}
	return NewRedisWithClient(client), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "insight:"}
}

func (s *RedisStore) tierKey(userID string) string {
	return s.prefix + "tier:" + userID
}

func (s *RedisStore) usageKey(userID, day string) string {
	return s.prefix + "usage:" + userID + ":" + day
}

func (s *RedisStore) Usage(ctx context.Context, userID, day string) (model.QuotaRecord, error) {
	vals, err := s.client.MGet(ctx, s.tierKey(userID), s.usageKey(userID, day)).Result()
	if err != nil {
		return model.QuotaRecord{}, eris.Wrap(err, "redis: usage")
	}

	rec := model.QuotaRecord{UserID: userID, Tier: model.TierFree}
	if tier, ok := vals[0].(string); ok {
		rec.Tier = model.ParseTier(tier)
	}
	if raw, ok := vals[1].(string); ok {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return model.QuotaRecord{}, eris.Wrapf(err, "redis: parse usage %q", raw)
		}
		rec.CountToday = count
	}
	return rec, nil
}

func (s *RedisStore) Increment(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	count, err := incrementScript.Run(ctx, s.client,
		[]string{s.usageKey(userID, day)},
		limit, int(usageTTL.Seconds()),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, false, eris.Wrap(err, "redis: increment usage")
	}
	if count < 0 {
		return limit, false, nil
	}
	return count, true, nil
}

func (s *RedisStore) SetTier(ctx context.Context, userID string, tier model.Tier) error {
	return eris.Wrap(s.client.Set(ctx, s.tierKey(userID), string(tier), 0).Err(), "redis: set tier")
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
