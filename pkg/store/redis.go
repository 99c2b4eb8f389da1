package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"racepulse/pkg/model"
)

// Redis backs both abstract stores with one Redis instance: values and
// hashes for routes and participant state, a ZSET per leaderboard.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to the given URL (redis://host:port/db) and pings once.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{client: client}, nil
}

// wrap tags store failures as transient so the pipeline downgrades instead
// of failing the call.
func wrap(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	return fmt.Errorf("%w: %v", model.ErrTransient, err)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrap(err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return wrap(r.client.Set(ctx, key, val, ttl).Err())
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return wrap(r.client.Del(ctx, key).Err())
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap(err)
	}
	return fields, nil
}

func (r *Redis) HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	args := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, args)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return wrap(err)
}

func (r *Redis) HSetNX(ctx context.Context, key, field, val string) (bool, error) {
	ok, err := r.client.HSetNX(ctx, key, field, val).Result()
	if err != nil {
		return false, wrap(err)
	}
	return ok, nil
}

func (r *Redis) Add(ctx context.Context, key, member string, score float64, ttl time.Duration) error {
	pipe := r.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return wrap(err)
}

func (r *Redis) TopN(ctx context.Context, key string, n int) ([]Member, error) {
	stop := int64(n) - 1
	if n < 0 {
		stop = -1
	}
	zs, err := r.client.ZRangeWithScores(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, wrap(err)
	}
	members := make([]Member, 0, len(zs))
	for _, z := range zs {
		id, _ := z.Member.(string)
		members = append(members, Member{ID: id, Score: z.Score})
	}
	return members, nil
}

func (r *Redis) Rank(ctx context.Context, key, member string) (int, bool, error) {
	rank, err := r.client.ZRank(ctx, key, member).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, wrap(err)
	}
	return int(rank) + 1, true, nil
}

func (r *Redis) Card(ctx context.Context, key string) (int, error) {
	n, err := r.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, wrap(err)
	}
	return int(n), nil
}

func (r *Redis) Remove(ctx context.Context, key, member string) error {
	return wrap(r.client.ZRem(ctx, key, member).Err())
}

func (r *Redis) Close() error {
	return r.client.Close()
}
