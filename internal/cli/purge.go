package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove every cached tile of the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			if _, err := a.layer.ClearCache(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s/%s\n", a.cfg.Cache.Database, a.cfg.Cache.Store)
			return nil
		},
	}
}
