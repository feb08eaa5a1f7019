package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/handler"
	"github.com/wave745/goontest-sub001/internal/middleware"
	"github.com/wave745/goontest-sub001/internal/services"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Port int
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server: feed, post detail, creator grid, unlock and the
local-only admin endpoints.

Examples:
  paywall serve
  paywall serve --config ./config.yaml --port 9090`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "listen port (overrides app.port)")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	cfg, log, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := db.Open(ctx, cfg.Storage)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer store.Close()
	log.Info("store ready (%s)", cfg.Storage.Driver)

	media, err := services.NewMediaLinker(cfg.Media)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build media linker", err)
	}
	provider, verifier, err := services.NewPaymentStack(cfg, log)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build payment stack", err)
	}
	log.Info("payments: provider=%s verify=%s", cfg.Payment.Provider, cfg.Payment.Verify)

	coord := services.NewCoordinator(store, provider,
		services.WithVerifier(verifier),
		services.WithTimeout(cfg.Payment.Timeout),
		services.WithLogger(log.With("component", "unlock")),
	)
	feed := services.NewFeedService(store, services.NewProjector(media), cfg.App.FeedLimit, log.With("component", "feed"))
	h := handler.New(coord, feed, store, handler.NewHealth(store, cfg.App.ReadyDelay), log, handler.WithCluster(cfg.Solana.Cluster))

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log.With("component", "http")))
	handler.RegisterRoutes(r, h)

	port := cfg.App.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("服务器启动于端口 %d", port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown", err)
	}
	return nil
}
