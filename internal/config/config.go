package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/tilecache"
	bcp "github.com/unkn0wn-root/tilecache/provider/bigcache"
)

type Config struct {
	Listen    string  `yaml:"listen"`
	LogLevel  string  `yaml:"log_level"`
	ErrorTile string  `yaml:"error_tile"` // path to a placeholder image; "" => none
	Cache     Cache   `yaml:"cache"`
	Backend   Backend `yaml:"backend"`
	Fetch     Fetch   `yaml:"fetch"`
}

type Cache struct {
	Database      string        `yaml:"database"`
	Version       uint32        `yaml:"version"`
	Store         string        `yaml:"store"`
	TileURL       string        `yaml:"tile_url"`
	SubDomains    []string      `yaml:"sub_domains"`
	CrawlDelay    time.Duration `yaml:"crawl_delay"`
	MaxAge        time.Duration `yaml:"max_age"`
	Codec         string        `yaml:"codec"` // msgpack | json | cbor | proto
	MaxEntryBytes int           `yaml:"max_entry_bytes"`
	MaxSeedTiles  int           `yaml:"max_seed_tiles"` // < 0 => unlimited
}

type Backend struct {
	Type      string    `yaml:"type"` // memory | bigcache | ristretto | redis | sqlite | oss
	SQLite    SQLite    `yaml:"sqlite"`
	Redis     Redis     `yaml:"redis"`
	BigCache  BigCache  `yaml:"bigcache"`
	Ristretto Ristretto `yaml:"ristretto"`
	OSS       OSS       `yaml:"oss"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type BigCache struct {
	LifeWindow   time.Duration `yaml:"life_window"`
	HardMaxMB    int           `yaml:"hard_max_mb"`
	MaxEntrySize int           `yaml:"max_entry_size"`
}

type Ristretto struct {
	MaxCostMB int64 `yaml:"max_cost_mb"`
}

type OSS struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
	Bucket          string `yaml:"bucket"`
	KeyPrefix       string `yaml:"key_prefix"`
}

type Fetch struct {
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxBody   int64         `yaml:"max_body"`
}

// Default is the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Cache: Cache{
			Database:   tilecache.DefaultDatabaseName,
			Version:    tilecache.DefaultDatabaseVersion,
			Store:      tilecache.DefaultStoreName,
			TileURL:    tilecache.DefaultTileURL,
			SubDomains: tilecache.DefaultSubDomains(),
			CrawlDelay: tilecache.DefaultCrawlDelay,
			MaxAge:     tilecache.DefaultMaxAge,
			Codec:      "msgpack",

			MaxSeedTiles: tilecache.DefaultMaxSeedTiles,
		},
		Backend: Backend{
			Type:      "sqlite",
			SQLite:    SQLite{Path: "tiles.db"},
			Redis:     Redis{Addr: "localhost:6379"},
			BigCache:  BigCache{LifeWindow: bcp.DefaultLifeWindow, HardMaxMB: 512},
			Ristretto: Ristretto{MaxCostMB: 256},
		},
		Fetch: Fetch{Timeout: 30 * time.Second},
	}
}

// Load reads path (if non-empty) over the defaults, then applies TILECACHE_*
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Listen = getEnv("TILECACHE_LISTEN", c.Listen)
	c.LogLevel = getEnv("TILECACHE_LOG_LEVEL", c.LogLevel)
	c.ErrorTile = getEnv("TILECACHE_ERROR_TILE", c.ErrorTile)

	c.Cache.Database = getEnv("TILECACHE_DATABASE", c.Cache.Database)
	c.Cache.Store = getEnv("TILECACHE_STORE", c.Cache.Store)
	c.Cache.TileURL = getEnv("TILECACHE_TILE_URL", c.Cache.TileURL)
	if v := getEnv("TILECACHE_SUB_DOMAINS", ""); v != "" {
		c.Cache.SubDomains = strings.Split(v, ",")
	}
	c.Cache.CrawlDelay = getEnvDuration("TILECACHE_CRAWL_DELAY", c.Cache.CrawlDelay)
	c.Cache.MaxAge = getEnvDuration("TILECACHE_MAX_AGE", c.Cache.MaxAge)
	c.Cache.Codec = getEnv("TILECACHE_CODEC", c.Cache.Codec)
	c.Cache.MaxSeedTiles = getEnvInt("TILECACHE_MAX_SEED_TILES", c.Cache.MaxSeedTiles)

	c.Backend.Type = getEnv("TILECACHE_BACKEND", c.Backend.Type)
	c.Backend.SQLite.Path = getEnv("TILECACHE_SQLITE_PATH", c.Backend.SQLite.Path)
	c.Backend.Redis.Addr = getEnv("TILECACHE_REDIS_ADDR", c.Backend.Redis.Addr)
	c.Backend.Redis.Password = getEnv("TILECACHE_REDIS_PASSWORD", c.Backend.Redis.Password)
	c.Backend.Redis.DB = getEnvInt("TILECACHE_REDIS_DB", c.Backend.Redis.DB)
	c.Backend.OSS.AccessKeyID = getEnv("TILECACHE_OSS_ACCESS_KEY_ID", c.Backend.OSS.AccessKeyID)
	c.Backend.OSS.AccessKeySecret = getEnv("TILECACHE_OSS_ACCESS_KEY_SECRET", c.Backend.OSS.AccessKeySecret)

	c.Fetch.UserAgent = getEnv("TILECACHE_USER_AGENT", c.Fetch.UserAgent)
	c.Fetch.Timeout = getEnvDuration("TILECACHE_FETCH_TIMEOUT", c.Fetch.Timeout)
}

func (c *Config) Validate() error {
	if c.Cache.TileURL == "" {
		return fmt.Errorf("config: cache.tile_url is required")
	}
	for _, p := range []string{"{x}", "{y}", "{z}"} {
		if !strings.Contains(c.Cache.TileURL, p) {
			return fmt.Errorf("config: cache.tile_url %q lacks %s", c.Cache.TileURL, p)
		}
	}
	if strings.Contains(c.Cache.TileURL, "{s}") && len(c.Cache.SubDomains) == 0 {
		return fmt.Errorf("config: cache.sub_domains is empty but tile_url uses {s}")
	}
	switch c.Cache.Codec {
	case "", "msgpack", "json", "cbor", "proto":
	default:
		return fmt.Errorf("config: unknown codec %q (supported: msgpack, json, cbor, proto)", c.Cache.Codec)
	}
	if c.Cache.MaxSeedTiles == 0 {
		return fmt.Errorf("config: cache.max_seed_tiles must be positive, or negative for no limit")
	}
	// a zero life window makes bigcache evict every tile on the next clean cycle
	if c.Backend.Type == "bigcache" && c.Backend.BigCache.LifeWindow <= 0 {
		return fmt.Errorf("config: backend.bigcache.life_window must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
