package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/tilecache/tile"
)

// GetOptions holds get command flags.
type GetOptions struct {
	X, Y, Z    int
	Out        string
	DataURI    bool
	CachedOnly bool
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GetOptions{}
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Read one tile through the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, opts, cmd)
		},
	}
	cmd.Flags().IntVar(&opts.Z, "z", 0, "zoom")
	cmd.Flags().IntVar(&opts.X, "x", 0, "tile column")
	cmd.Flags().IntVar(&opts.Y, "y", 0, "tile row")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the tile bytes to this file")
	cmd.Flags().BoolVar(&opts.DataURI, "data-uri", false, "print the tile as a data URI")
	cmd.Flags().BoolVar(&opts.CachedOnly, "cached-only", false, "fail instead of downloading a missing tile")
	cmd.MarkFlagsMutuallyExclusive("out", "data-uri")
	return cmd
}

func runGet(rootOpts *RootOptions, opts *GetOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, rootOpts)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	coord := tile.Coord{X: opts.X, Y: opts.Y, Z: opts.Z}
	e, err := a.cache.GetEntry(ctx, coord, !opts.CachedOnly)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case opts.Out != "":
		if err := os.WriteFile(opts.Out, e.Data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d bytes to %s\n", len(e.Data), opts.Out)
	case opts.DataURI:
		fmt.Fprintln(out, e.DataURI())
	default:
		fmt.Fprintf(out, "key:          %s\n", e.Key)
		fmt.Fprintf(out, "content-type: %s\n", e.ContentType)
		fmt.Fprintf(out, "bytes:        %d\n", len(e.Data))
		fmt.Fprintf(out, "fetched:      %s\n", e.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
