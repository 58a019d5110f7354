// Package tilecache caches slippy-map raster tiles in a pluggable persistent
// store and refreshes them from a tile server when they go stale.
//
// Components:
//   - Provider: byte store (memory, BigCache, Ristretto, Redis, SQLite, OSS).
//   - Codec[tile.Entry]: entry (de)serialization, Msgpack by default.
//   - Fetcher: network GET, net/http by default.
//   - Enumerator: bbox + zoom range -> tile coordinates, Web Mercator by default.
//   - Emitter: synchronous "upgradeneeded", "error" and "seed-progress" events.
//
// Keys:
//
//	URL template  http://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png
//	internal key  http://{s}.tile.openstreetmap.org/3/1/2.png   (one slot per tile)
//	fetch URL     http://b.tile.openstreetmap.org/3/1/2.png     (random sub-domain)
//
// Freshness:
//
//	fresh   now - timestamp <  MaxAge  -> served from the store, no network
//	stale   now - timestamp >= MaxAge  -> refetched; on fetch failure the stale copy is served
//	missing                            -> ErrNotFound, or fetched when downloading is allowed
package tilecache
