package tilecache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/bool64/stats"

	"github.com/unkn0wn-root/tilecache/codec"
	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/fetch"
	pr "github.com/unkn0wn-root/tilecache/provider"
	"github.com/unkn0wn-root/tilecache/store"
	"github.com/unkn0wn-root/tilecache/tile"
)

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.Intn(n) }

type cache struct {
	provider pr.Provider
	codec    codec.Codec[tile.Entry]
	fetcher  fetch.Fetcher
	enum     tile.Enumerator
	log      Logger
	stat     stats.Tracker
	events   *event.Emitter
	now      func() time.Time
	rnd      Rand

	dbName     string
	dbVersion  uint32
	storeName  string
	tileURL    string
	subDomains []string
	crawlDelay time.Duration
	maxAge     time.Duration
	maxSeed    int
	onUpgrade  func(context.Context, store.Upgrade) error

	// randomness source is not assumed to be goroutine-safe
	rndMu sync.Mutex

	// store handle, opened lazily; a failed open is retried on next use
	openMu sync.Mutex
	st     *store.Store
}

func newCache(opts Options) (*cache, error) {
	if opts.Provider == nil {
		return nil, fmt.Errorf("tilecache: provider is required")
	}

	c := &cache{
		provider:  opts.Provider,
		onUpgrade: opts.OnUpgrade,
	}

	c.dbName = coalesce(opts.DatabaseName, DefaultDatabaseName)
	c.dbVersion = coalesce[uint32](opts.DatabaseVersion, DefaultDatabaseVersion)
	c.storeName = coalesce(opts.StoreName, DefaultStoreName)
	c.tileURL = coalesce(opts.TileURL, DefaultTileURL)
	c.crawlDelay = coalesce(opts.CrawlDelay, DefaultCrawlDelay)
	c.maxAge = coalesce(opts.MaxAge, DefaultMaxAge)
	c.maxSeed = coalesce(opts.MaxSeedTiles, DefaultMaxSeedTiles)

	c.subDomains = DefaultSubDomains()
	if len(opts.SubDomains) > 0 {
		c.subDomains = append([]string(nil), opts.SubDomains...)
	}

	c.codec = coalesce[codec.Codec[tile.Entry]](opts.Codec, codec.Msgpack[tile.Entry]{})
	if opts.MaxEntryBytes > 0 {
		c.codec = codec.Limit[tile.Entry]{Inner: c.codec, MaxDecode: opts.MaxEntryBytes}
	}
	c.fetcher = opts.Fetcher
	if c.fetcher == nil {
		c.fetcher = fetch.NewHTTP(fetch.HTTPConfig{})
	}
	c.enum = coalesce[tile.Enumerator](opts.Enumerator, tile.WebMercator{})
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.stat = coalesce[stats.Tracker](opts.Stats, stats.NoOp{})
	c.rnd = coalesce[Rand](opts.Rand, globalRand{})

	c.now = opts.Now
	if c.now == nil {
		c.now = time.Now
	}
	c.events = opts.Emitter
	if c.events == nil {
		c.events = event.New()
	}

	return c, nil
}

func (c *cache) Events() *event.Emitter { return c.events }

func (c *cache) Open(ctx context.Context) error {
	_, err := c.store(ctx)
	return err
}

func (c *cache) Close(ctx context.Context) error {
	c.openMu.Lock()
	c.st = nil
	c.openMu.Unlock()
	return c.provider.Close(ctx)
}

// store returns the memoized handle, opening it on first use. Events raised by
// the open are dispatched after openMu is released so listeners may call back
// into the cache.
func (c *cache) store(ctx context.Context) (*store.Store, error) {
	s, up, err := c.openStore(ctx)
	if up != nil {
		c.events.Dispatch(event.UpgradeNeeded, *up)
	}
	if err != nil {
		return nil, c.storeErr(ctx, "open", err)
	}
	return s, nil
}

func (c *cache) openStore(ctx context.Context) (*store.Store, *store.Upgrade, error) {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	if c.st != nil {
		return c.st, nil, nil
	}
	var up *store.Upgrade
	s, err := store.Open(ctx, store.Config{
		Provider: c.provider,
		Codec:    c.codec,
		Database: c.dbName,
		Name:     c.storeName,
		Version:  c.dbVersion,
		OnUpgrade: func(ctx context.Context, u store.Upgrade) error {
			up = &u
			return c.upgrade(ctx, u)
		},
		OnCorrupt: c.corrupt,
	})
	if err != nil {
		return nil, up, err
	}
	c.st = s
	return s, up, nil
}

func (c *cache) upgrade(ctx context.Context, u store.Upgrade) error {
	c.log.Info("tile store upgrade", Fields{"db": u.Database, "store": u.Store, "from": u.OldVersion, "to": u.NewVersion})
	if c.onUpgrade != nil {
		return c.onUpgrade(ctx, u)
	}
	return nil
}

func (c *cache) corrupt(key string, err error) {
	c.stat.Add(context.Background(), MetricCorrupt, 1, "store", c.storeName)
	c.log.Warn("dropped corrupt tile record", Fields{"key": key, "err": err})
}

// storeErr wraps, reports and returns a store failure.
func (c *cache) storeErr(ctx context.Context, op string, err error) error {
	se := &StoreError{Op: op, Store: c.storeName, Err: err}
	c.stat.Add(ctx, MetricStoreError, 1, "store", c.storeName)
	c.log.Error("tile store failure", Fields{"op": op, "store": c.storeName, "err": err})
	c.events.Dispatch(event.Error, se)
	return se
}

func (c *cache) isStale(e tile.Entry) bool {
	return c.now().Sub(e.Timestamp) >= c.maxAge
}

func (c *cache) GetEntry(ctx context.Context, coord tile.Coord, downloadIfMissing bool) (tile.Entry, error) {
	s, err := c.store(ctx)
	if err != nil {
		return tile.Entry{}, err
	}
	key := c.InternalKey(coord)
	e, ok, err := s.Get(ctx, key)
	if err != nil {
		return tile.Entry{}, c.storeErr(ctx, "get", err)
	}
	if !ok {
		c.stat.Add(ctx, MetricMiss, 1, "store", c.storeName)
		if !downloadIfMissing {
			return tile.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return c.fetchAndStore(ctx, s, coord)
	}
	if !c.isStale(e) {
		c.stat.Add(ctx, MetricHit, 1, "store", c.storeName)
		return e, nil
	}

	c.stat.Add(ctx, MetricStale, 1, "store", c.storeName)
	fresh, err := c.fetchAndStore(ctx, s, coord)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			// keep serving what we have
			c.stat.Add(ctx, MetricStaleServed, 1, "store", c.storeName)
			c.log.Debug("serving stale tile", Fields{"key": key, "err": err})
			return e, nil
		}
		return tile.Entry{}, err
	}
	return fresh, nil
}

func (c *cache) GetBytes(ctx context.Context, coord tile.Coord) ([]byte, error) {
	e, err := c.GetEntry(ctx, coord, true)
	if err != nil {
		return nil, err
	}
	return e.Data, nil
}

func (c *cache) GetDataURI(ctx context.Context, coord tile.Coord) (string, error) {
	e, err := c.GetEntry(ctx, coord, true)
	if err != nil {
		return "", err
	}
	return e.DataURI(), nil
}

func (c *cache) FetchTile(ctx context.Context, coord tile.Coord) (tile.Entry, error) {
	s, err := c.store(ctx)
	if err != nil {
		return tile.Entry{}, err
	}
	return c.fetchAndStore(ctx, s, coord)
}

// fetchAndStore never writes a failed response.
func (c *cache) fetchAndStore(ctx context.Context, s *store.Store, coord tile.Coord) (tile.Entry, error) {
	url := c.FetchURL(coord)
	resp, err := c.fetcher.Fetch(ctx, url)
	if err == nil && !resp.OK() {
		err = &FetchError{URL: url, StatusCode: resp.StatusCode}
	} else if err != nil {
		err = &FetchError{URL: url, Err: err}
	}
	if err != nil {
		c.stat.Add(ctx, MetricFetchFailed, 1, "store", c.storeName)
		return tile.Entry{}, err
	}

	e := tile.Entry{
		Key:         c.InternalKey(coord),
		Timestamp:   c.now().Truncate(time.Millisecond),
		Data:        resp.Body,
		ContentType: resp.ContentType,
	}
	if err := s.Put(ctx, e); err != nil {
		return tile.Entry{}, c.storeErr(ctx, "put", err)
	}
	c.stat.Add(ctx, MetricFetch, 1, "store", c.storeName)
	return e, nil
}

func (c *cache) Purge(ctx context.Context) (bool, error) {
	s, err := c.store(ctx)
	if err != nil {
		return false, err
	}
	if err := s.Clear(ctx); err != nil {
		return false, c.storeErr(ctx, "clear", err)
	}
	c.stat.Add(ctx, MetricPurge, 1, "store", c.storeName)
	c.log.Info("tile store purged", Fields{"db": c.dbName, "store": c.storeName})
	return true, nil
}
