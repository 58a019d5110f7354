package tilecache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/tile"
)

func (c *cache) SeedBBox(ctx context.Context, bbox tile.BBox, maxZ, minZ int) (time.Duration, error) {
	start := c.now()
	elapsed := func() time.Duration { return c.now().Sub(start) }

	s, err := c.store(ctx)
	if err != nil {
		return elapsed(), err
	}

	if err := c.checkSeedSize(bbox, maxZ, minZ); err != nil {
		return elapsed(), err
	}
	list := c.enum.Tiles(bbox, maxZ, minZ)
	if c.maxSeed > 0 && len(list) > c.maxSeed {
		return elapsed(), fmt.Errorf("%w: %d tiles, limit %d", ErrSeedTooLarge, len(list), c.maxSeed)
	}
	total := len(list)
	c.log.Info("seed started", Fields{"store": c.storeName, "tiles": total, "min_z": minZ, "max_z": maxZ})

	for i := 0; ; i++ {
		// pace between tiles only, never before the first or after the last
		if i > 0 && i < total {
			if err := sleep(ctx, c.crawlDelay); err != nil {
				return elapsed(), err
			}
		}
		c.events.Dispatch(event.SeedProgress, event.Progress{Total: total, Remaining: total - i})
		if i == total {
			break
		}
		if err := ctx.Err(); err != nil {
			return elapsed(), err
		}
		if _, err := c.fetchAndStore(ctx, s, list[i]); err != nil {
			c.log.Warn("seed aborted", Fields{"store": c.storeName, "tile": list[i].String(), "done": i, "err": err})
			return elapsed(), err
		}
		c.stat.Add(ctx, MetricSeeded, 1, "store", c.storeName)
	}

	d := elapsed()
	c.log.Info("seed finished", Fields{"store": c.storeName, "tiles": total, "elapsed": d.String()})
	return d, nil
}

// checkSeedSize sizes the request without enumerating it when the enumerator
// can count.
func (c *cache) checkSeedSize(bbox tile.BBox, maxZ, minZ int) error {
	if c.maxSeed <= 0 {
		return nil
	}
	counter, ok := c.enum.(tile.Counter)
	if !ok {
		return nil
	}
	if n := counter.Count(bbox, maxZ, minZ); n > c.maxSeed {
		return fmt.Errorf("%w: %d tiles, limit %d", ErrSeedTooLarge, n, c.maxSeed)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
