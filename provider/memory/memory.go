// Package memory is an in-process Provider on top of patrickmn/go-cache.
// Entries never expire; the tile cache decides freshness on its own.
package memory

import (
	"context"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	pr "github.com/unkn0wn-root/tilecache/provider"
)

type Memory struct {
	c *gocache.Cache
}

var _ pr.Provider = (*Memory)(nil)

func New() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, 0)}
}

// NewWithCache wraps an existing go-cache instance, e.g. one shared with other code.
func NewWithCache(c *gocache.Cache) *Memory { return &Memory{c: c} }

func (p *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// foreign value shape under our key; drop it
		p.c.Delete(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Memory) Set(_ context.Context, key string, value []byte) error {
	// copy so later caller mutations don't leak into the store
	p.c.Set(key, append([]byte(nil), value...), gocache.NoExpiration)
	return nil
}

func (p *Memory) Del(_ context.Context, key string) error {
	p.c.Delete(key)
	return nil
}

func (p *Memory) DelPrefix(_ context.Context, prefix string) error {
	for k := range p.c.Items() {
		if strings.HasPrefix(k, prefix) {
			p.c.Delete(k)
		}
	}
	return nil
}

// Len reports the number of stored keys.
func (p *Memory) Len() int { return p.c.ItemCount() }

func (p *Memory) Close(_ context.Context) error { return nil }
