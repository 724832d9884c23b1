package abuse

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/averyhale/booking-concierge/pkg/logging"
)

// RedisGuard is a Guard backed by redis, shared across instances. Failures
// live in a per-identifier sorted set scored by unix-nano timestamp; the
// lockout is a separate key whose TTL is the remaining lockout.
type RedisGuard struct {
	client *redis.Client
	policy Policy
	logger *logging.Logger
	now    func() time.Time
}

// NewRedisGuard creates a redis-backed guard with the given policy.
func NewRedisGuard(client *redis.Client, policy Policy, logger *logging.Logger) *RedisGuard {
	if client == nil {
		panic("abuse: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisGuard{
		client: client,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

func failuresKey(identifier string) string {
	return fmt.Sprintf("abuse:failures:%s", identifier)
}

func lockoutKey(identifier string) string {
	return fmt.Sprintf("abuse:lockout:%s", identifier)
}

// IsLimited reports whether the identifier is locked out. The lockout key
// expires on its own, so the reset after expiry is handled by redis.
func (g *RedisGuard) IsLimited(ctx context.Context, identifier string) (bool, error) {
	locked, err := g.client.Exists(ctx, lockoutKey(identifier)).Result()
	if err != nil {
		return false, fmt.Errorf("abuse: lockout check: %w", err)
	}
	if locked > 0 {
		return true, nil
	}
	count, err := g.windowCount(ctx, identifier)
	if err != nil {
		return false, err
	}
	return count >= int64(g.policy.MaxFailures), nil
}

// RecordFailure counts one failure and starts a lockout once the window
// fills up.
func (g *RedisGuard) RecordFailure(ctx context.Context, identifier string) error {
	now := g.now()
	key := failuresKey(identifier)

	pipe := g.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now.Add(-g.policy.Window).UnixNano()))
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, g.policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("abuse: record failure: %w", err)
	}

	if card.Val() >= int64(g.policy.MaxFailures) {
		if err := g.client.Set(ctx, lockoutKey(identifier), now.Unix(), g.policy.Lockout).Err(); err != nil {
			return fmt.Errorf("abuse: set lockout: %w", err)
		}
		g.logger.Warn("identifier locked out",
			"identifier", identifier,
			"failures", card.Val(),
			"lockout", g.policy.Lockout,
		)
	}
	return nil
}

// Clear unblocks the identifier immediately.
func (g *RedisGuard) Clear(ctx context.Context, identifier string) error {
	if err := g.client.Del(ctx, failuresKey(identifier), lockoutKey(identifier)).Err(); err != nil {
		return fmt.Errorf("abuse: clear: %w", err)
	}
	return nil
}

// RemainingLockout returns the TTL left on an active lockout.
func (g *RedisGuard) RemainingLockout(ctx context.Context, identifier string) (time.Duration, error) {
	ttl, err := g.client.TTL(ctx, lockoutKey(identifier)).Result()
	if err != nil {
		return 0, fmt.Errorf("abuse: lockout ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (g *RedisGuard) windowCount(ctx context.Context, identifier string) (int64, error) {
	key := failuresKey(identifier)
	cutoff := g.now().Add(-g.policy.Window).UnixNano()
	count, err := g.client.ZCount(ctx, key, fmt.Sprintf("%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("abuse: window count: %w", err)
	}
	return count, nil
}

var _ Guard = (*MemoryGuard)(nil)
var _ Guard = (*RedisGuard)(nil)
