package bigcache

import (
	"context"
	"errors"
	"strings"
	"time"

	bc "github.com/allegro/bigcache/v3"

	pr "github.com/unkn0wn-root/tilecache/provider"
)

// DefaultLifeWindow is used when Config.LifeWindow is not positive.
const DefaultLifeWindow = 30 * 24 * time.Hour

type Provider struct {
	c    *bc.BigCache
	life time.Duration
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// LifeWindow bounds how long BigCache keeps a record at all. Tiles older than
	// this vanish instead of going stale, so keep it well above the cache MaxAge.
	// <= 0 => DefaultLifeWindow.
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Provider, error) {
	life := cfg.LifeWindow
	if life <= 0 {
		life = DefaultLifeWindow
	}
	conf := bc.DefaultConfig(life)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, life: life}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := p.c.Get(key)
	if errors.Is(err, bc.ErrEntryNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte) error {
	return p.c.Set(key, value)
}

func (p *Provider) Del(_ context.Context, key string) error {
	if err := p.c.Delete(key); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
		return err
	}
	return nil
}

// DelPrefix walks the shards once, collecting matches, then deletes them;
// deleting while iterating would invalidate the iterator.
func (p *Provider) DelPrefix(ctx context.Context, prefix string) error {
	var keys []string
	it := p.c.Iterator()
	for it.SetNext() {
		e, err := it.Value()
		if err != nil {
			return err
		}
		if strings.HasPrefix(e.Key(), prefix) {
			keys = append(keys, e.Key())
		}
	}
	for _, k := range keys {
		if err := p.Del(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.c.Close()
}
