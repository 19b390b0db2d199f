package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const defaultRedisPageSize = 1000

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	PageSize int
}

// Redis stores entries in a hash and mirrors the keys in a sorted set with
// equal scores, which Redis orders lexicographically. Range scans page
// through the sorted set with ZRANGEBYLEX.
type Redis struct {
	client   *redis.Client
	ctx      context.Context
	dataKey  string
	orderKey string
	pageSize int64
}

var _ Index = (*Redis)(nil)

// NewRedis connects to the server and clears any entries left under the
// configured prefix.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "ixperf"
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultRedisPageSize
	}

	r := &Redis{
		client:   client,
		ctx:      ctx,
		dataKey:  prefix + ":data",
		orderKey: prefix + ":keys",
		pageSize: int64(pageSize),
	}
	if err := client.Del(ctx, r.dataKey, r.orderKey).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reset redis index: %w", err)
	}
	return r, nil
}

func (r *Redis) Set(key, value []byte) ([]byte, bool, error) {
	var prev *redis.StringCmd
	_, err := r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		prev = pipe.HGet(r.ctx, r.dataKey, string(key))
		pipe.HSet(r.ctx, r.dataKey, string(key), value)
		pipe.ZAdd(r.ctx, r.orderKey, &redis.Z{Score: 0, Member: string(key)})
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, fmt.Errorf("redis set: %w", err)
	}

	old, err := prev.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis set: %w", err)
	}
	return old, true, nil
}

func (r *Redis) Delete(key []byte) ([]byte, error) {
	var prev *redis.StringCmd
	_, err := r.client.TxPipelined(r.ctx, func(pipe redis.Pipeliner) error {
		prev = pipe.HGet(r.ctx, r.dataKey, string(key))
		pipe.HDel(r.ctx, r.dataKey, string(key))
		pipe.ZRem(r.ctx, r.orderKey, string(key))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis delete: %w", err)
	}

	old, err := prev.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis delete: %w", err)
	}
	return old, nil
}

func (r *Redis) Get(key []byte) ([]byte, error) {
	value, err := r.client.HGet(r.ctx, r.dataKey, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (r *Redis) Iterate(yield func(key, value []byte) bool) error {
	return r.Range(Unbound(), Unbound(), yield)
}

func (r *Redis) Range(low, high Bound, yield func(key, value []byte) bool) error {
	if Empty(low, high) {
		return nil
	}

	lo, hi := lexBound(low, "-"), lexBound(high, "+")
	for {
		members, err := r.client.ZRangeByLex(r.ctx, r.orderKey, &redis.ZRangeBy{
			Min: lo, Max: hi, Count: r.pageSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("redis range: %w", err)
		}
		more, err := r.emit(members, yield)
		if err != nil || !more || int64(len(members)) < r.pageSize {
			return err
		}
		lo = "(" + members[len(members)-1]
	}
}

func (r *Redis) Reverse(low, high Bound, yield func(key, value []byte) bool) error {
	if Empty(low, high) {
		return nil
	}

	lo, hi := lexBound(low, "-"), lexBound(high, "+")
	for {
		members, err := r.client.ZRevRangeByLex(r.ctx, r.orderKey, &redis.ZRangeBy{
			Min: lo, Max: hi, Count: r.pageSize,
		}).Result()
		if err != nil {
			return fmt.Errorf("redis reverse: %w", err)
		}
		more, err := r.emit(members, yield)
		if err != nil || !more || int64(len(members)) < r.pageSize {
			return err
		}
		hi = "(" + members[len(members)-1]
	}
}

// emit fetches the values for one page of keys and yields them in order.
// Keys deleted between the two round trips are skipped.
func (r *Redis) emit(members []string, yield func(key, value []byte) bool) (bool, error) {
	if len(members) == 0 {
		return false, nil
	}
	values, err := r.client.HMGet(r.ctx, r.dataKey, members...).Result()
	if err != nil {
		return false, fmt.Errorf("redis fetch: %w", err)
	}
	for i, member := range members {
		v, ok := values[i].(string)
		if !ok {
			continue
		}
		if !yield([]byte(member), []byte(v)) {
			return false, nil
		}
	}
	return true, nil
}

func (r *Redis) Len() (int, error) {
	n, err := r.client.ZCard(r.ctx, r.orderKey).Result()
	return int(n), err
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func lexBound(b Bound, open string) string {
	switch b.Kind {
	case Included:
		return "[" + string(b.Key)
	case Excluded:
		return "(" + string(b.Key)
	default:
		return open
	}
}
