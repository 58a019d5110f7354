package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "OSM", cfg.Cache.Store)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Cache.SubDomains)
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.CrawlDelay)
	assert.Equal(t, 7*24*time.Hour, cfg.Cache.MaxAge)
	assert.Equal(t, "sqlite", cfg.Backend.Type)
	assert.Equal(t, 1_000_000, cfg.Cache.MaxSeedTiles)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tilecache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
cache:
  store: topo
  tile_url: "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png"
  crawl_delay: 1s
  max_age: 24h
  codec: cbor
backend:
  type: redis
  redis:
    addr: "redis:6379"
`), 0o600))

	t.Setenv("TILECACHE_BACKEND", "memory")
	t.Setenv("TILECACHE_SUB_DOMAINS", "x,y")
	t.Setenv("TILECACHE_MAX_AGE", "2h")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "topo", cfg.Cache.Store)
	assert.Equal(t, time.Second, cfg.Cache.CrawlDelay)
	assert.Equal(t, 2*time.Hour, cfg.Cache.MaxAge, "env wins over file")
	assert.Equal(t, "cbor", cfg.Cache.Codec)
	assert.Equal(t, "memory", cfg.Backend.Type)
	assert.Equal(t, "redis:6379", cfg.Backend.Redis.Addr)
	assert.Equal(t, []string{"x", "y"}, cfg.Cache.SubDomains)
	// untouched defaults survive a partial file
	assert.Equal(t, "tile-cache-data", cfg.Cache.Database)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Cache.TileURL = "http://example/{z}/{x}.png"
	assert.ErrorContains(t, cfg.Validate(), "{y}")

	cfg = Default()
	cfg.Cache.Codec = "gob"
	assert.ErrorContains(t, cfg.Validate(), "unknown codec")

	cfg = Default()
	cfg.Cache.SubDomains = nil
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Cache.MaxSeedTiles = 0
	assert.ErrorContains(t, cfg.Validate(), "max_seed_tiles")
}

func TestBigcacheLifeWindowMustBePositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilecache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  type: bigcache
  bigcache:
    life_window: 0s
`), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "life_window")

	cfg := Default()
	cfg.Backend.Type = "memory"
	cfg.Backend.BigCache.LifeWindow = 0
	assert.NoError(t, cfg.Validate(), "only checked for the bigcache backend")
}

func TestMaxSeedTilesFromEnv(t *testing.T) {
	t.Setenv("TILECACHE_MAX_SEED_TILES", "500")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Cache.MaxSeedTiles)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
