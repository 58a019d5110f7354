package tilecache

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bool64/stats"

	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/fetch"
	pr "github.com/unkn0wn-root/tilecache/provider"
	"github.com/unkn0wn-root/tilecache/store"
	"github.com/unkn0wn-root/tilecache/tile"
)

type memProvider struct {
	mu      sync.Mutex
	m       map[string][]byte
	failGet error
	failSet error
	failDel error
}

var _ pr.Provider = (*memProvider)(nil)

func newMemProvider() *memProvider { return &memProvider{m: make(map[string][]byte)} }

func (p *memProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failGet != nil {
		return nil, false, p.failGet
	}
	v, ok := p.m[key]
	return v, ok, nil
}

func (p *memProvider) Set(_ context.Context, key string, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSet != nil {
		return p.failSet
	}
	p.m[key] = append([]byte(nil), value...)
	return nil
}

func (p *memProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

func (p *memProvider) DelPrefix(_ context.Context, prefix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failDel != nil {
		return p.failDel
	}
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			delete(p.m, k)
		}
	}
	return nil
}

func (p *memProvider) Close(_ context.Context) error { return nil }

// fakeFetcher serves a fixed PNG for every URL unless status/err is set.
type fakeFetcher struct {
	mu     sync.Mutex
	urls   []string
	at     []time.Time
	status int
	err    error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (fetch.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.at = append(f.at, time.Now())
	if f.err != nil {
		return fetch.Response{}, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return fetch.Response{StatusCode: status, ContentType: "image/png", Body: []byte("png:" + url)}, nil
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fixedRand int

func (r fixedRand) IntN(n int) int { return int(r) % n }

type listEnum []tile.Coord

func (l listEnum) Tiles(tile.BBox, int, int) []tile.Coord { return append([]tile.Coord(nil), l...) }

func newTestCache(t *testing.T, p pr.Provider, f fetch.Fetcher, optsOpt func(*Options)) Cache {
	t.Helper()
	opts := Options{
		Provider:   p,
		Fetcher:    f,
		TileURL:    "http://{s}.example/{z}/{x}/{y}.png",
		SubDomains: []string{"a", "b"},
		CrawlDelay: -1,
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

func TestKeysExample(t *testing.T) {
	cc := newTestCache(t, newMemProvider(), &fakeFetcher{}, nil)
	coord := tile.Coord{X: 1, Y: 2, Z: 3}

	if got := cc.InternalKey(coord); got != "http://{s}.example/3/1/2.png" {
		t.Fatalf("InternalKey = %q", got)
	}
	if cc.InternalKey(coord) != cc.InternalKey(coord) {
		t.Fatalf("InternalKey not deterministic")
	}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		u := cc.FetchURL(coord)
		if u != "http://a.example/3/1/2.png" && u != "http://b.example/3/1/2.png" {
			t.Fatalf("FetchURL = %q", u)
		}
		seen[u] = true
	}
	if len(seen) != 2 {
		t.Fatalf("expected both sub-domains over 200 draws, got %v", seen)
	}
}

func TestFetchURLUsesInjectedRand(t *testing.T) {
	cc := newTestCache(t, newMemProvider(), &fakeFetcher{}, func(o *Options) {
		o.SubDomains = []string{"a", "b", "c"}
		o.Rand = fixedRand(2)
	})
	if got := cc.FetchURL(tile.Coord{X: 0, Y: 0, Z: 0}); got != "http://c.example/0/0/0.png" {
		t.Fatalf("FetchURL = %q", got)
	}
}

func TestDefaults(t *testing.T) {
	cc, err := New(Options{Provider: newMemProvider()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	impl := cc.(*cache)
	if impl.dbName != "tile-cache-data" || impl.dbVersion != 1 || impl.storeName != "OSM" {
		t.Fatalf("store defaults = %s/%d/%s", impl.dbName, impl.dbVersion, impl.storeName)
	}
	if impl.tileURL != "http://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png" {
		t.Fatalf("tile url default = %s", impl.tileURL)
	}
	if strings.Join(impl.subDomains, ",") != "a,b,c" {
		t.Fatalf("sub-domains default = %v", impl.subDomains)
	}
	if impl.crawlDelay != 500*time.Millisecond || impl.maxAge != 7*24*time.Hour {
		t.Fatalf("timing defaults = %v/%v", impl.crawlDelay, impl.maxAge)
	}

	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error without provider")
	}
}

func TestGetEntryMissWithoutDownload(t *testing.T) {
	f := &fakeFetcher{}
	cc := newTestCache(t, newMemProvider(), f, nil)
	_, err := cc.GetEntry(context.Background(), tile.Coord{X: 1, Y: 1, Z: 1}, false)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if f.calls() != 0 {
		t.Fatalf("miss without download must not fetch")
	}
}

func TestGetEntryIdempotent(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{}
	st := &stats.TrackerMock{}
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	cc := newTestCache(t, newMemProvider(), f, func(o *Options) {
		o.Now = clk.now
		o.Stats = st
	})
	coord := tile.Coord{X: 1, Y: 2, Z: 3}

	first, err := cc.GetEntry(ctx, coord, true)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if first.Key != "http://{s}.example/3/1/2.png" || first.ContentType != "image/png" || !first.Timestamp.Equal(clk.t) {
		t.Fatalf("unexpected entry %+v", first)
	}
	clk.advance(time.Minute)
	second, err := cc.GetEntry(ctx, coord, true)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if f.calls() != 1 {
		t.Fatalf("expected one network fetch, got %d", f.calls())
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatalf("second read differs")
	}
	if st.Int(MetricMiss) != 1 || st.Int(MetricHit) != 1 || st.Int(MetricFetch) != 1 {
		t.Fatalf("stats = %v", st.Values())
	}
}

func TestStalenessBoundary(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{}
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	maxAge := time.Hour
	cc := newTestCache(t, newMemProvider(), f, func(o *Options) {
		o.Now = clk.now
		o.MaxAge = maxAge
	})
	coord := tile.Coord{X: 4, Y: 5, Z: 6}
	if _, err := cc.FetchTile(ctx, coord); err != nil {
		t.Fatalf("FetchTile: %v", err)
	}

	// timestamp == now - maxAge + 1ms: fresh
	clk.advance(maxAge - time.Millisecond)
	if _, err := cc.GetEntry(ctx, coord, false); err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if f.calls() != 1 {
		t.Fatalf("fresh entry refetched")
	}

	// timestamp == now - maxAge: stale
	clk.advance(time.Millisecond)
	e, err := cc.GetEntry(ctx, coord, false)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if f.calls() != 2 {
		t.Fatalf("stale entry not refetched, calls=%d", f.calls())
	}
	if !e.Timestamp.Equal(clk.t) {
		t.Fatalf("refetched entry should carry the new timestamp, got %v", e.Timestamp)
	}
}

func TestNegativeMaxAgeAlwaysRefetches(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{}
	cc := newTestCache(t, newMemProvider(), f, func(o *Options) { o.MaxAge = -1 })
	coord := tile.Coord{}
	for i := 0; i < 3; i++ {
		if _, err := cc.GetEntry(ctx, coord, true); err != nil {
			t.Fatalf("GetEntry: %v", err)
		}
	}
	if f.calls() != 3 {
		t.Fatalf("expected refetch on every access, got %d", f.calls())
	}
}

func TestStaleFallbackOnFetchFailure(t *testing.T) {
	ctx := context.Background()
	for name, breakFetch := range map[string]func(*fakeFetcher){
		"status":    func(f *fakeFetcher) { f.status = http.StatusServiceUnavailable },
		"transport": func(f *fakeFetcher) { f.err = errors.New("dial tcp: refused") },
	} {
		t.Run(name, func(t *testing.T) {
			f := &fakeFetcher{}
			st := &stats.TrackerMock{}
			clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
			cc := newTestCache(t, newMemProvider(), f, func(o *Options) {
				o.Now = clk.now
				o.MaxAge = time.Minute
				o.Stats = st
			})
			coord := tile.Coord{X: 7, Y: 7, Z: 7}
			orig, err := cc.FetchTile(ctx, coord)
			if err != nil {
				t.Fatalf("FetchTile: %v", err)
			}

			clk.advance(time.Hour)
			breakFetch(f)
			got, err := cc.GetEntry(ctx, coord, false)
			if err != nil {
				t.Fatalf("stale entry should be served, got %v", err)
			}
			if !got.Timestamp.Equal(orig.Timestamp) || !bytes.Equal(got.Data, orig.Data) {
				t.Fatalf("expected the stale entry back, got %+v", got)
			}
			if st.Int(MetricStaleServed) != 1 {
				t.Fatalf("stats = %v", st.Values())
			}

			// a failed response never overwrites the cached entry
			again, _ := cc.GetEntry(ctx, coord, false)
			if !again.Timestamp.Equal(orig.Timestamp) {
				t.Fatalf("failed fetch replaced the stored entry")
			}
		})
	}
}

func TestFetchErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{status: http.StatusNotFound}
	p := newMemProvider()
	cc := newTestCache(t, p, f, nil)
	coord := tile.Coord{X: 1, Y: 1, Z: 1}

	_, err := cc.GetEntry(ctx, coord, true)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected *FetchError 404 on miss, got %v", err)
	}
	if !strings.HasPrefix(fe.URL, "http://a.example/") && !strings.HasPrefix(fe.URL, "http://b.example/") {
		t.Fatalf("FetchError.URL = %q", fe.URL)
	}

	f.status, f.err = 0, context.DeadlineExceeded
	_, err = cc.FetchTile(ctx, coord)
	if !errors.As(err, &fe) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if _, err := cc.GetEntry(ctx, coord, false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("failed fetches must not store anything, got %v", err)
	}
}

func TestStoreErrorsAreReturnedAndDispatched(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	st := &stats.TrackerMock{}
	cc := newTestCache(t, p, &fakeFetcher{}, func(o *Options) { o.Stats = st })

	var got []error
	cc.Events().AddListener(event.Error, event.ListenerFunc(func(ev event.Event) {
		got = append(got, ev.Detail.(error))
	}))

	boom := errors.New("disk full")

	// open fails, then succeeds once the backend recovers
	p.failGet = boom
	if err := cc.Open(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected open failure, got %v", err)
	}
	p.failGet = nil
	if err := cc.Open(ctx); err != nil {
		t.Fatalf("open should be retried after a failure: %v", err)
	}

	p.failSet = boom
	_, err := cc.FetchTile(ctx, tile.Coord{X: 1})
	var se *StoreError
	if !errors.As(err, &se) || se.Op != "put" || se.Store != "OSM" || !errors.Is(err, boom) {
		t.Fatalf("expected put StoreError, got %v", err)
	}
	p.failSet = nil

	p.failGet = boom
	if _, err := cc.GetEntry(ctx, tile.Coord{X: 1}, true); !errors.As(err, &se) || se.Op != "get" {
		t.Fatalf("expected get StoreError, got %v", err)
	}
	p.failGet = nil

	p.failDel = boom
	ok, err := cc.Purge(ctx)
	if ok || !errors.As(err, &se) || se.Op != "clear" {
		t.Fatalf("expected clear StoreError, got %v %v", ok, err)
	}

	if len(got) != 4 {
		t.Fatalf("expected 4 error events, got %d: %v", len(got), got)
	}
	if st.Int(MetricStoreError) != 4 {
		t.Fatalf("stats = %v", st.Values())
	}
}

func TestUpgradeEventAndVersionGuard(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()

	var upgrades []store.Upgrade
	em := event.New()
	em.AddListener(event.UpgradeNeeded, event.ListenerFunc(func(ev event.Event) {
		upgrades = append(upgrades, ev.Detail.(store.Upgrade))
	}))
	cc := newTestCache(t, p, &fakeFetcher{}, func(o *Options) {
		o.Emitter = em
		o.DatabaseVersion = 2
	})
	if err := cc.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := cc.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(upgrades) != 1 || upgrades[0].OldVersion != 0 || upgrades[0].NewVersion != 2 {
		t.Fatalf("upgrades = %+v", upgrades)
	}

	older := newTestCache(t, p, &fakeFetcher{}, func(o *Options) { o.DatabaseVersion = 1 })
	if err := older.Open(ctx); !errors.Is(err, store.ErrVersion) {
		t.Fatalf("expected ErrVersion, got %v", err)
	}
}

// runWithin fails the test when fn does not return in time.
func runWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("call did not return within %v", d)
	}
}

func TestUpgradeListenerMayCallBackIntoCache(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), &fakeFetcher{}, nil)

	var lookupErr error
	var called bool
	cc.Events().AddListener(event.UpgradeNeeded, event.ListenerFunc(func(event.Event) {
		called = true
		_, lookupErr = cc.GetEntry(ctx, tile.Coord{X: 1, Y: 2, Z: 3}, false)
	}))

	var openErr error
	runWithin(t, 2*time.Second, func() { openErr = cc.Open(ctx) })
	if openErr != nil {
		t.Fatalf("Open: %v", openErr)
	}
	if !called {
		t.Fatalf("upgrade listener not called")
	}
	if !errors.Is(lookupErr, ErrNotFound) {
		t.Fatalf("lookup from listener: %v", lookupErr)
	}
}

func TestErrorListenerMayCallBackIntoCache(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	cc := newTestCache(t, p, &fakeFetcher{}, nil)

	boom := errors.New("disk gone")
	p.failGet = boom

	var events int
	var purgeErr error
	cc.Events().AddListener(event.Error, event.ListenerFunc(func(event.Event) {
		events++
		if events == 1 {
			_, purgeErr = cc.Purge(ctx)
		}
	}))

	var openErr error
	runWithin(t, 2*time.Second, func() { openErr = cc.Open(ctx) })
	if !errors.Is(openErr, boom) {
		t.Fatalf("expected open failure, got %v", openErr)
	}
	if !errors.Is(purgeErr, boom) {
		t.Fatalf("purge from listener: %v", purgeErr)
	}
	if events != 2 {
		t.Fatalf("error events = %d, want 2", events)
	}
}

func TestPurgeCompleteness(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	cc := newTestCache(t, p, &fakeFetcher{}, nil)
	other := newTestCache(t, p, &fakeFetcher{}, func(o *Options) { o.StoreName = "Other" })

	coords := []tile.Coord{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}}
	for _, co := range coords {
		if _, err := cc.FetchTile(ctx, co); err != nil {
			t.Fatalf("FetchTile: %v", err)
		}
	}
	if _, err := other.FetchTile(ctx, coords[0]); err != nil {
		t.Fatalf("FetchTile: %v", err)
	}

	ok, err := cc.Purge(ctx)
	if !ok || err != nil {
		t.Fatalf("Purge = %v, %v", ok, err)
	}
	for _, co := range coords {
		if _, err := cc.GetEntry(ctx, co, false); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%v survived purge: %v", co, err)
		}
	}
	if _, err := other.GetEntry(ctx, coords[0], false); err != nil {
		t.Fatalf("purge leaked into another store: %v", err)
	}
}

func TestGetBytesAndDataURI(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, newMemProvider(), &fakeFetcher{}, func(o *Options) { o.Rand = fixedRand(0) })
	coord := tile.Coord{X: 1, Y: 2, Z: 3}

	b, err := cc.GetBytes(ctx, coord)
	if err != nil || string(b) != "png:http://a.example/3/1/2.png" {
		t.Fatalf("GetBytes = %q, %v", b, err)
	}
	uri, err := cc.GetDataURI(ctx, coord)
	if err != nil {
		t.Fatalf("GetDataURI: %v", err)
	}
	want := "data:image/png;base64,cG5nOmh0dHA6Ly9hLmV4YW1wbGUvMy8xLzIucG5n"
	if uri != want {
		t.Fatalf("GetDataURI = %q, want %q", uri, want)
	}
}

func TestCorruptRecordIsRefetched(t *testing.T) {
	ctx := context.Background()
	p := newMemProvider()
	f := &fakeFetcher{}
	st := &stats.TrackerMock{}
	cc := newTestCache(t, p, f, func(o *Options) { o.Stats = st })
	coord := tile.Coord{X: 9, Y: 9, Z: 9}
	if err := cc.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = p.Set(ctx, "tile:tile-cache-data:OSM:"+cc.InternalKey(coord), []byte("garbage"))

	if _, err := cc.GetEntry(ctx, coord, true); err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if f.calls() != 1 || st.Int(MetricCorrupt) != 1 {
		t.Fatalf("calls=%d stats=%v", f.calls(), st.Values())
	}
}
