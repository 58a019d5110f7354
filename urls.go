package tilecache

import (
	"strconv"
	"strings"

	"github.com/unkn0wn-root/tilecache/tile"
)

// InternalKey fills {x}, {y} and {z} and leaves {s} in place, so every
// mirror of a tile shares one store entry.
func (c *cache) InternalKey(coord tile.Coord) string {
	return strings.NewReplacer(
		"{x}", strconv.Itoa(coord.X),
		"{y}", strconv.Itoa(coord.Y),
		"{z}", strconv.Itoa(coord.Z),
	).Replace(c.tileURL)
}

// FetchURL is InternalKey with {s} set to a random sub-domain.
func (c *cache) FetchURL(coord tile.Coord) string {
	c.rndMu.Lock()
	sub := c.subDomains[c.rnd.IntN(len(c.subDomains))]
	c.rndMu.Unlock()
	return strings.ReplaceAll(c.InternalKey(coord), "{s}", sub)
}
