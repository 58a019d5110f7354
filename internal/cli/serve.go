package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tilecache/event"
	"github.com/unkn0wn-root/tilecache/event/async"
	"github.com/unkn0wn-root/tilecache/event/slogevents"
	"github.com/unkn0wn-root/tilecache/internal/httpapi"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve tiles over HTTP",
		Long: `Serve cached tiles at /tiles/{z}/{x}/{y}.

Also exposes POST /seed, GET|DELETE /seed/{id}, DELETE /tiles and /healthz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, listen, cmd)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, listen string, cmd *cobra.Command) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())
	if listen == "" {
		listen = a.cfg.Listen
	}

	// store errors and upgrades go to an async slog listener off the request path
	evLog := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
	events := async.New(slogevents.New(evLog, slogevents.Options{ProgressEvery: 100}), 1, 1024)
	defer events.Close()
	for _, name := range []string{event.Error, event.UpgradeNeeded, event.SeedProgress} {
		a.cache.Events().AddListener(name, events)
	}

	api := httpapi.New(a.layer, a.log, httpapi.Config{MaxSeedTiles: a.cfg.Cache.MaxSeedTiles})
	defer api.Close()

	server := &http.Server{
		Addr:              listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	a.log.Info("Server started", zap.String("listen", listen), zap.String("store", a.cfg.Cache.Store), zap.String("backend", a.cfg.Backend.Type))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}
	return nil
}
