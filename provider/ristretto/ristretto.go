package ristretto

import (
	"context"
	"errors"
	"strings"

	rc "github.com/dgraph-io/ristretto"
	"github.com/puzpuzpuz/xsync"

	pr "github.com/unkn0wn-root/tilecache/provider"
)

// Provider stores tiles in a Ristretto cache. Ristretto is admission
// controlled: under pressure a Set may be dropped (ErrRejected) and old tiles
// may be evicted, which the tile cache sees as a plain miss.
//
// Ristretto cannot enumerate keys, so the provider keeps its own key index for
// DelPrefix. Evicted keys linger in the index until the next DelPrefix or Del.
type Provider struct {
	c    *rc.Cache
	keys *xsync.Map
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64 // bytes; cost of a tile is its encoded size
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Provider{c: c, keys: xsync.NewMap()}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		p.keys.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

// Set waits for Ristretto's write buffer so a Get right after a successful Set
// observes the value.
func (p *Provider) Set(_ context.Context, key string, value []byte) error {
	if !p.c.Set(key, value, int64(len(value))) {
		return pr.ErrRejected
	}
	p.c.Wait()
	p.keys.Store(key, struct{}{})
	return nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	p.keys.Delete(key)
	return nil
}

func (p *Provider) DelPrefix(_ context.Context, prefix string) error {
	p.keys.Range(func(k string, _ interface{}) bool {
		if strings.HasPrefix(k, prefix) {
			p.c.Del(k)
			p.keys.Delete(k)
		}
		return true
	})
	p.c.Wait()
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Metrics exposes Ristretto's counters; nil unless Config.Metrics is set.
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
