// Package tile holds the slippy-map data model shared by the cache, its store
// and its codecs.
package tile

import (
	"encoding/base64"
	"fmt"
	"time"
)

// Coord addresses one tile. The host guarantees validity; nothing here checks ranges.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (c Coord) String() string { return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y) }

// BBox is a geographic bounding box in degrees.
type BBox struct {
	MinLat float64 `json:"minLat" yaml:"minLat"`
	MinLng float64 `json:"minLng" yaml:"minLng"`
	MaxLat float64 `json:"maxLat" yaml:"maxLat"`
	MaxLng float64 `json:"maxLng" yaml:"maxLng"`
}

// Entry is one persisted tile record.
//
// Key is the templated URL with the sub-domain placeholder still in place, so a
// tile fetched from any mirror lands in the same slot. Entries are replaced
// wholesale; nothing mutates them in place.
type Entry struct {
	Key         string    `json:"url" msgpack:"url" cbor:"url"`
	Timestamp   time.Time `json:"timestamp" msgpack:"timestamp" cbor:"timestamp"`
	Data        []byte    `json:"data" msgpack:"data" cbor:"data"`
	ContentType string    `json:"contentType" msgpack:"contentType" cbor:"contentType"`
}

const fallbackContentType = "application/octet-stream"

// DataURI returns the payload as a base64 data URI.
func (e Entry) DataURI() string {
	ct := e.ContentType
	if ct == "" {
		ct = fallbackContentType
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}

// Age reports how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration { return now.Sub(e.Timestamp) }
