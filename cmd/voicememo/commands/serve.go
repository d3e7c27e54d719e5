package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/voicememo/internal/api"
	"github.com/satriahrh/voicememo/internal/app"
)

var autoMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API. The pipeline event stream and the janitor run alongside it.

The server stops gracefully on SIGINT or SIGTERM, waiting up to
SHUTDOWN_TIMEOUT for in-flight requests.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "create the voice table before serving")
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Validate everything before opening connections
	if err := cfg.Validate(); err != nil {
		return err
	}

	storage, err := app.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	if autoMigrate {
		if err := storage.Migrate(ctx); err != nil {
			return err
		}
	}

	server, err := app.NewServer(ctx, cfg, storage, logger)
	if err != nil {
		return err
	}

	e := api.NewEcho(logger)
	api.InitRoutes(e, server.Handler)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server started", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return server.Janitor.Run(gctx)
	})
	g.Go(func() error {
		return server.RunHub(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server exited")
	return nil
}
