package backend

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tilecache/codec"
	"github.com/unkn0wn-root/tilecache/internal/config"
	pr "github.com/unkn0wn-root/tilecache/provider"
	bcp "github.com/unkn0wn-root/tilecache/provider/bigcache"
	"github.com/unkn0wn-root/tilecache/provider/memory"
	ossp "github.com/unkn0wn-root/tilecache/provider/oss"
	redisp "github.com/unkn0wn-root/tilecache/provider/redis"
	rp "github.com/unkn0wn-root/tilecache/provider/ristretto"
	"github.com/unkn0wn-root/tilecache/provider/sqlite"
	"github.com/unkn0wn-root/tilecache/tile"
)

// NewProvider creates the byte store selected by cfg.Type.
func NewProvider(ctx context.Context, cfg config.Backend, log *zap.Logger) (pr.Provider, error) {
	switch cfg.Type {
	case "memory":
		log.Info("Using memory backend")
		return memory.New(), nil
	case "bigcache":
		log.Info("Using bigcache backend", zap.Duration("life_window", cfg.BigCache.LifeWindow), zap.Int("hard_max_mb", cfg.BigCache.HardMaxMB))
		return bcp.New(bcp.Config{
			LifeWindow:         cfg.BigCache.LifeWindow,
			MaxEntriesInWindow: 10_000,
			MaxEntrySize:       cfg.BigCache.MaxEntrySize,
			HardMaxCacheSizeMB: cfg.BigCache.HardMaxMB,
		})
	case "ristretto":
		maxCost := cfg.Ristretto.MaxCostMB << 20
		log.Info("Using ristretto backend", zap.Int64("max_cost_mb", cfg.Ristretto.MaxCostMB))
		return rp.New(rp.Config{
			// ~ 10x the expected number of tiles at an average of 16KiB each
			NumCounters: max(maxCost/(16<<10)*10, 1000),
			MaxCost:     maxCost,
			BufferItems: 64,
		})
	case "redis":
		log.Info("Using redis backend", zap.String("addr", cfg.Redis.Addr), zap.Int("db", cfg.Redis.DB))
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
		}
		return redisp.New(redisp.Config{Client: client, CloseClient: true})
	case "sqlite":
		log.Info("Using sqlite backend", zap.String("path", cfg.SQLite.Path))
		return sqlite.Open(cfg.SQLite.Path)
	case "oss":
		log.Info("Using oss backend", zap.String("endpoint", cfg.OSS.Endpoint), zap.String("bucket", cfg.OSS.Bucket))
		return ossp.New(ossp.Config{
			Endpoint:        cfg.OSS.Endpoint,
			AccessKeyID:     cfg.OSS.AccessKeyID,
			AccessKeySecret: cfg.OSS.AccessKeySecret,
			Bucket:          cfg.OSS.Bucket,
			KeyPrefix:       cfg.OSS.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown backend type: %s (supported: memory, bigcache, ristretto, redis, sqlite, oss)", cfg.Type)
	}
}

// NewCodec returns the entry codec registered under name; "" means msgpack.
func NewCodec(name string) (codec.Codec[tile.Entry], error) {
	switch name {
	case "", "msgpack":
		return codec.Msgpack[tile.Entry]{}, nil
	case "json":
		return codec.JSON[tile.Entry]{}, nil
	case "cbor":
		return codec.NewCBOR[tile.Entry](true)
	case "proto":
		return codec.Entry{}, nil
	default:
		return nil, fmt.Errorf("unknown codec: %s (supported: msgpack, json, cbor, proto)", name)
	}
}
