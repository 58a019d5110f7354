package tilecache

import "time"

const (
	DefaultDatabaseName    = "tile-cache-data"
	DefaultDatabaseVersion = 1
	DefaultStoreName       = "OSM"
	DefaultTileURL         = "http://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	DefaultCrawlDelay      = 500 * time.Millisecond
	DefaultMaxAge          = 7 * 24 * time.Hour
	DefaultMaxSeedTiles    = 1_000_000
)

// DefaultSubDomains returns a fresh copy of the default sub-domain set.
func DefaultSubDomains() []string { return []string{"a", "b", "c"} }

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
