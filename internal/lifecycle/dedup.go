package lifecycle

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper filters replayed switch events with a TTL'd marker per
// (call_id, event_id). It is purely an optimization: a cache miss, an
// expired key or a redis outage all fall through to the store's CAS,
// which stays authoritative.
//
// Seen only reads; the marker is written by Mark after the store has
// committed the event. Writing it on the check would drop the switch's
// retry of an event whose transition failed transiently.
type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, callID, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.key(callID, eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, callID, eventID string) error {
	return d.rdb.Set(ctx, d.key(callID, eventID), 1, d.ttl).Err()
}

func (d *RedisDeduper) key(callID, eventID string) string {
	return "callgate:ev:" + callID + ":" + eventID
}
