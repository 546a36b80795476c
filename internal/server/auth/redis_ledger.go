package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger keeps states in Redis so several server replicas can share one
// login flow. Expiry is delegated to the key TTL.
type RedisLedger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLedger(client *redis.Client, prefix string, ttl time.Duration) *RedisLedger {
	if ttl <= 0 {
		ttl = DefaultLedgerTTL
	}
	if prefix == "" {
		prefix = "cairos:oauth_state:"
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) key(state string) string { return l.prefix + state }

func (l *RedisLedger) Put(ctx context.Context, state, verifier string) error {
	if err := l.client.Set(ctx, l.key(state), verifier, l.ttl).Err(); err != nil {
		return fmt.Errorf("store oauth state: %w", err)
	}
	return nil
}

// Take reads and deletes the key inside one MULTI/EXEC block.
func (l *RedisLedger) Take(ctx context.Context, state string) (string, bool, error) {
	var get *redis.StringCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, l.key(state))
		pipe.Del(ctx, l.key(state))
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take oauth state: %w", err)
	}
	return get.Val(), true, nil
}
