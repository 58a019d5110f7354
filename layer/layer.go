// Package layer is the seam between the tile cache and whatever renders tiles.
//
// A renderer depends on TileProvider only. Layer implements it on top of a
// tilecache.Cache and substitutes an error placeholder when a tile cannot be
// served.
package layer

import (
	"context"
	"time"

	"github.com/unkn0wn-root/tilecache"
	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/tile"
)

// Tile is what a renderer draws. Err is set when the data is the placeholder
// (or empty, when no placeholder is configured).
type Tile struct {
	Coord       tile.Coord
	DataURI     string
	Bytes       []byte
	ContentType string
	Err         error
}

type TileProvider interface {
	Tile(ctx context.Context, coord tile.Coord) Tile
}

type Options struct {
	// ErrorTile is served in place of tiles that cannot be loaded.
	ErrorTile            []byte
	ErrorTileContentType string // "" => image/png
}

type Layer struct {
	cache   tilecache.Cache
	errTile tile.Entry
}

var _ TileProvider = (*Layer)(nil)

func New(c tilecache.Cache, opts Options) *Layer {
	l := &Layer{cache: c}
	if len(opts.ErrorTile) > 0 {
		ct := opts.ErrorTileContentType
		if ct == "" {
			ct = "image/png"
		}
		l.errTile = tile.Entry{Data: opts.ErrorTile, ContentType: ct}
	}
	return l
}

func (l *Layer) Cache() tilecache.Cache { return l.cache }

// HasErrorTile reports whether a placeholder is configured.
func (l *Layer) HasErrorTile() bool { return len(l.errTile.Data) > 0 }

func (l *Layer) Tile(ctx context.Context, coord tile.Coord) Tile {
	e, err := l.cache.GetEntry(ctx, coord, true)
	if err != nil {
		t := Tile{Coord: coord, Err: err}
		if l.HasErrorTile() {
			t.Bytes = l.errTile.Data
			t.ContentType = l.errTile.ContentType
			t.DataURI = l.errTile.DataURI()
		}
		return t
	}
	return Tile{Coord: coord, DataURI: e.DataURI(), Bytes: e.Data, ContentType: e.ContentType}
}

// Seed seeds bbox and calls progress (if non-nil) for every progress event of
// this seed. The listener is removed when Seed returns.
func (l *Layer) Seed(ctx context.Context, bbox tile.BBox, maxZ, minZ int, progress func(event.Progress)) (time.Duration, error) {
	if progress != nil {
		em := l.cache.Events()
		id := em.AddListener(event.SeedProgress, event.ListenerFunc(func(ev event.Event) {
			if p, ok := ev.Detail.(event.Progress); ok {
				progress(p)
			}
		}))
		defer em.RemoveListener(event.SeedProgress, id)
	}
	return l.cache.SeedBBox(ctx, bbox, maxZ, minZ)
}

func (l *Layer) ClearCache(ctx context.Context) (bool, error) {
	return l.cache.Purge(ctx)
}
