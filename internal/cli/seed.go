package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/tile"
)

// SeedOptions holds seed command flags.
type SeedOptions struct {
	BBox    string
	MaxZoom int
	MinZoom int
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Download every tile of a bounding box into the cache",
		Long: `Download every tile covering a bounding box for a zoom range.

Tiles are fetched one at a time with the configured crawl delay between
requests. The first failure stops the seed; tiles already stored are kept.`,
		Example: "  tilecache seed --bbox 52.3,13.0,52.7,13.8 --max-zoom 12",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.BBox, "bbox", "", "minLat,minLng,maxLat,maxLng")
	cmd.Flags().IntVar(&opts.MaxZoom, "max-zoom", 0, "highest zoom level (inclusive)")
	cmd.Flags().IntVar(&opts.MinZoom, "min-zoom", 0, "lowest zoom level (inclusive)")
	_ = cmd.MarkFlagRequired("bbox")
	_ = cmd.MarkFlagRequired("max-zoom")
	return cmd
}

// ParseBBox parses "minLat,minLng,maxLat,maxLng".
func ParseBBox(s string) (tile.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tile.BBox{}, fmt.Errorf("bbox %q: want minLat,minLng,maxLat,maxLng", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return tile.BBox{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	b := tile.BBox{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	if b.MinLat > b.MaxLat || b.MinLng > b.MaxLng {
		return tile.BBox{}, fmt.Errorf("bbox %q: min exceeds max", s)
	}
	return b, nil
}

func runSeed(rootOpts *RootOptions, opts *SeedOptions, cmd *cobra.Command) error {
	bbox, err := ParseBBox(opts.BBox)
	if err != nil {
		return err
	}
	if opts.MinZoom < 0 || opts.MaxZoom < opts.MinZoom {
		return fmt.Errorf("invalid zoom range %d..%d", opts.MinZoom, opts.MaxZoom)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	out := cmd.OutOrStdout()
	elapsed, err := a.layer.Seed(ctx, bbox, opts.MaxZoom, opts.MinZoom, func(p event.Progress) {
		fmt.Fprintf(out, "seed %d/%d\n", p.Total-p.Remaining, p.Total)
	})
	if err != nil {
		return fmt.Errorf("seed failed after %s: %w", elapsed.Round(time.Millisecond), err)
	}
	fmt.Fprintf(out, "seeded in %s\n", elapsed.Round(time.Millisecond))
	return nil
}
