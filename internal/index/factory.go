package index

import (
	"context"
	"fmt"

	"ixperf/internal/config"
)

// Names lists the index types New understands
var Names = []string{"btree", "snapshot", "badger", "redis"}

// New creates the index selected by cfg.Type, behind an LRU read cache when
// cfg.CacheSize is positive
func New(ctx context.Context, cfg config.IndexConfig) (Index, error) {
	idx, err := newBackend(ctx, cfg)
	if err != nil || cfg.CacheSize <= 0 {
		return idx, err
	}
	return NewCached(idx, cfg.CacheSize), nil
}

func newBackend(ctx context.Context, cfg config.IndexConfig) (Index, error) {
	switch cfg.Type {
	case "", "btree":
		return NewBTree(cfg.Degree), nil
	case "snapshot":
		return NewSnapshot(cfg.Degree), nil
	case "badger":
		return NewBadger(BadgerOptions{
			DataPath:   cfg.Badger.DataPath,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: cfg.Badger.SyncWrites,
		})
	case "redis":
		return NewRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			PageSize: cfg.Redis.PageSize,
		})
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownIndex, cfg.Type)
	}
}
