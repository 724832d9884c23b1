package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/averyhale/booking-concierge/internal/scheduler"
)

// RedisStore persists booking contexts in Redis so conversations survive
// process restarts and load-balanced instances.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("concierge.internal.session")
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: tracer,
	}
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*scheduler.BookingContext, error) {
	ctx, span := s.tracer.Start(ctx, "session.load_context")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load context: %w", err)
	}

	var bc scheduler.BookingContext
	if err := json.Unmarshal(data, &bc); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode context: %w", err)
	}
	return &bc, nil
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, bc *scheduler.BookingContext) error {
	ctx, span := s.tracer.Start(ctx, "session.save_context")
	defer span.End()

	data, err := json.Marshal(bc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal context: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist context: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete_context")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete context: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("session:%s", id)
}

var _ Store = (*RedisStore)(nil)
