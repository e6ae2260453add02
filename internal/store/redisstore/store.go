package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func NewFromClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// IncrWithTTL bumps key and refreshes its expiry in one MULTI/EXEC.
// Plain EXPIRE keeps it working on servers older than Redis 7.
func (s *Store) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// DailyLimit counts exchanges per key per UTC day.
type DailyLimit struct {
	store *Store
	limit int64
	now   func() time.Time
}

func NewDailyLimit(store *Store, limit int) *DailyLimit {
	return &DailyLimit{store: store, limit: int64(limit), now: time.Now}
}

func (d *DailyLimit) LimitReached(ctx context.Context, key string) (bool, error) {
	if d.limit <= 0 {
		return false, nil
	}
	n, err := d.store.IncrWithTTL(ctx, dailyKey(key, d.now()), 48*time.Hour)
	if err != nil {
		return false, err
	}
	return n >= d.limit, nil
}

func dailyKey(key string, t time.Time) string {
	return fmt.Sprintf("chat:quota:%s:%s", key, t.UTC().Format("20060102"))
}
