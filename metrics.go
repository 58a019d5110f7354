package tilecache

// Counters reported through Options.Stats, labelled "store" = store name.
const (
	MetricHit         = "tilecache_hit"
	MetricMiss        = "tilecache_miss"
	MetricStale       = "tilecache_stale"
	MetricStaleServed = "tilecache_stale_served"
	MetricFetch       = "tilecache_fetch"
	MetricFetchFailed = "tilecache_fetch_failed"
	MetricStoreError  = "tilecache_store_error"
	MetricSeeded      = "tilecache_seeded"
	MetricPurge       = "tilecache_purge"
	MetricCorrupt     = "tilecache_corrupt"
)
