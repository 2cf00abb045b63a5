package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Ash-Blanc/migru/internal/api"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

func newServeCommand(options *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sweeper",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), options, cmd.ErrOrStderr())
		},
	}
}

func runServe(ctx context.Context, options *rootOptions, logOutput io.Writer) error {
	cfg := options.cfg

	rt, err := openRuntime(ctx, cfg, logOutput)
	if err != nil {
		return err
	}
	defer rt.Close()

	handler, err := api.NewHandler(rt.analytics, rt.catalog, cfg.Server.SecretKey, api.HandlerOptions{
		Logger: rt.logger,
		Tagger: rt.tagger,
	})
	if err != nil {
		return fmt.Errorf("handler init failed: %w", err)
	}

	app := newFiberApp()
	api.RegisterRoutes(app, handler)

	lifecycleCtx, cancelLifecycle := context.WithCancel(ctx)
	defer cancelLifecycle()
	rt.analytics.Sweeper().Start(lifecycleCtx)

	sigCtx, stopSignals := signal.NotifyContext(lifecycleCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		<-sigCtx.Done()
		cancelLifecycle()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			rt.logger.Error("server shutdown failed", "error", err)
		}
	}()

	rt.logger.Info("migru listening",
		"port", cfg.Server.Port,
		"db", cfg.Storage.DBPath,
		"event_log", cfg.Storage.EventLog,
		"kafka", len(cfg.Kafka.Brokers) > 0,
	)
	if err := app.Listen(":" + strconv.Itoa(cfg.Server.Port)); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

func newFiberApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "migru",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())
	return app
}
