package tilecache

import (
	"context"
	"time"

	"github.com/bool64/stats"

	c "github.com/unkn0wn-root/tilecache/codec"
	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/fetch"
	pr "github.com/unkn0wn-root/tilecache/provider"
	"github.com/unkn0wn-root/tilecache/store"
	"github.com/unkn0wn-root/tilecache/tile"
)

// Cache is the tile cache API. All methods are safe for concurrent use.
type Cache interface {
	// Open opens (creating or upgrading) the store. Other methods open it on
	// first use, so calling Open is only needed to surface setup errors early.
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// GetEntry returns the stored entry for coord. Stale entries are refetched,
	// falling back to the stale copy when the fetch fails. A missing entry is
	// fetched when downloadIfMissing is set, otherwise ErrNotFound.
	GetEntry(ctx context.Context, coord tile.Coord, downloadIfMissing bool) (tile.Entry, error)
	GetBytes(ctx context.Context, coord tile.Coord) ([]byte, error)
	GetDataURI(ctx context.Context, coord tile.Coord) (string, error)

	// FetchTile downloads coord and stores it, replacing any previous entry.
	FetchTile(ctx context.Context, coord tile.Coord) (tile.Entry, error)

	// SeedBBox fetches every tile of bbox for zooms minZ..maxZ, one at a time,
	// waiting CrawlDelay between tiles. It returns the elapsed time and stops
	// at the first failure; tiles stored so far are kept. Boxes larger than
	// MaxSeedTiles fail with ErrSeedTooLarge before anything is fetched.
	SeedBBox(ctx context.Context, bbox tile.BBox, maxZ, minZ int) (time.Duration, error)

	// Purge removes every entry of the store.
	Purge(ctx context.Context) (bool, error)

	InternalKey(coord tile.Coord) string
	FetchURL(coord tile.Coord) string

	Events() *event.Emitter
}

// Rand picks sub-domains; *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// Options configure a Cache. Only Provider is required; everything else has
// a default.
type Options struct {
	Provider pr.Provider

	DatabaseName    string        // "" => "tile-cache-data"
	DatabaseVersion uint32        // 0 => 1
	StoreName       string        // "" => "OSM"
	TileURL         string        // "" => DefaultTileURL; placeholders {x} {y} {z} {s}
	SubDomains      []string      // empty => a, b, c
	CrawlDelay      time.Duration // 0 => 500ms; < 0 => no delay
	MaxAge          time.Duration // 0 => 7 days; < 0 => always stale

	Codec         c.Codec[tile.Entry] // nil => Msgpack
	MaxEntryBytes int                 // > 0 => refuse to decode larger records

	Fetcher      fetch.Fetcher   // nil => fetch.NewHTTP with defaults
	Enumerator   tile.Enumerator // nil => tile.WebMercator
	MaxSeedTiles int             // 0 => DefaultMaxSeedTiles; < 0 => unlimited

	Now  func() time.Time // nil => time.Now
	Rand Rand             // nil => math/rand/v2 global source

	Logger  Logger         // nil => NopLogger
	Stats   stats.Tracker  // nil => stats.NoOp
	Emitter *event.Emitter // nil => a new emitter, see Cache.Events

	// OnUpgrade runs while the store is created or its version raised, before
	// the new version is recorded. An error fails the open. It must not call
	// back into the Cache; listeners of the "upgradeneeded" event may, since
	// that event is dispatched once the open has finished.
	OnUpgrade func(ctx context.Context, u store.Upgrade) error
}

func New(opts Options) (Cache, error) {
	return newCache(opts)
}
