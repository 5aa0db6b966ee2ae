package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"callgate/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter caps concurrent non-terminal calls per account using the
// atomic counter scripts in pkg/utils. The TTL bounds slot leakage if the
// process crashes between acquire and the terminal transition.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
	log   *slog.Logger
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration, log *slog.Logger) *RedisLimiter {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl, log: log}
}

func (l *RedisLimiter) Acquire(ctx context.Context, accountSID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, l.key(accountSID), l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, accountSID string) {
	if err := utils.ReleaseConcurrencyCap(ctx, l.rdb, l.key(accountSID)); err != nil {
		// Best-effort; the TTL reclaims the slot eventually.
		l.log.Warn("capacity release failed", "account_sid", accountSID, "err", err)
	}
}

func (l *RedisLimiter) key(accountSID string) string {
	return "callgate:cap:" + accountSID
}
