package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/unkn0wn-root/tilecache"
	"github.com/unkn0wn-root/tilecache/fetch"
	"github.com/unkn0wn-root/tilecache/internal/backend"
	"github.com/unkn0wn-root/tilecache/internal/config"
	"github.com/unkn0wn-root/tilecache/internal/logger"
	"github.com/unkn0wn-root/tilecache/layer"
	zaplog "github.com/unkn0wn-root/tilecache/log/zap"
)

// app is what every command works with: config, logger and an opened cache.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	cache tilecache.Cache
	layer *layer.Layer
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	p, err := backend.NewProvider(ctx, cfg.Backend, log)
	if err != nil {
		return nil, err
	}
	codec, err := backend.NewCodec(cfg.Cache.Codec)
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}

	cache, err := tilecache.New(tilecache.Options{
		Provider:        p,
		DatabaseName:    cfg.Cache.Database,
		DatabaseVersion: cfg.Cache.Version,
		StoreName:       cfg.Cache.Store,
		TileURL:         cfg.Cache.TileURL,
		SubDomains:      cfg.Cache.SubDomains,
		CrawlDelay:      cfg.Cache.CrawlDelay,
		MaxAge:          cfg.Cache.MaxAge,
		Codec:           codec,
		MaxEntryBytes:   cfg.Cache.MaxEntryBytes,
		MaxSeedTiles:    cfg.Cache.MaxSeedTiles,
		Fetcher: fetch.NewHTTP(fetch.HTTPConfig{
			Timeout:   cfg.Fetch.Timeout,
			UserAgent: cfg.Fetch.UserAgent,
			MaxBody:   cfg.Fetch.MaxBody,
		}),
		Logger: zaplog.New(log),
	})
	if err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	if err := cache.Open(ctx); err != nil {
		_ = cache.Close(ctx)
		return nil, err
	}

	var lopts layer.Options
	if cfg.ErrorTile != "" {
		b, err := os.ReadFile(cfg.ErrorTile)
		if err != nil {
			_ = cache.Close(ctx)
			return nil, fmt.Errorf("error tile: %w", err)
		}
		lopts.ErrorTile = b
	}

	return &app{cfg: cfg, log: log, cache: cache, layer: layer.New(cache, lopts)}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.cache.Close(ctx); err != nil {
		a.log.Warn("close cache", zap.Error(err))
	}
	_ = a.log.Sync()
}
