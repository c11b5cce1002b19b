package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/sujalmh/vector-loader-automation/internal/config"
	"github.com/sujalmh/vector-loader-automation/internal/server"
	"github.com/sujalmh/vector-loader-automation/internal/session"
	"github.com/sujalmh/vector-loader-automation/internal/telemetry"
	"github.com/sujalmh/vector-loader-automation/internal/upstream"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "loader:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "loader",
		Usage: "track document analysis and ingestion progress streams",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP surface",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Value:   config.DefaultPath,
						Usage:   "path to the YAML config file",
						Sources: cli.EnvVars("VLA_CONFIG"),
					},
				},
				Action: serve,
			},
			replayCommand(),
		},
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	provider, err := config.NewProvider(cmd.String("config"), slog.Default())
	if err != nil {
		return err
	}
	cfg, err := provider.Load(ctx)
	if err != nil {
		return err
	}

	// Initialize structured logger; the level follows config reloads
	level := new(slog.LevelVar)
	lvl, _ := cfg.Log.SlogLevel()
	level.Set(lvl)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	shutdownTracer := telemetry.Shutdown(telemetry.Noop)
	if cfg.Telemetry.Enabled {
		shutdownTracer, err = telemetry.InitTracer(cfg.Telemetry.ServiceName, logger)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	client := upstream.NewClient(cfg.Upstream.BaseURL,
		upstream.WithAPIKey(cfg.Upstream.APIKey),
		upstream.WithTimeout(cfg.Upstream.TimeoutDuration()),
		upstream.WithChunkSize(cfg.Upstream.ChunkSize),
		upstream.WithLogger(logger),
	)

	sess, err := session.New(
		session.WithLogger(logger),
		session.WithUploader(client),
		session.WithJournalType(cfg.Journal.Type, cfg.Journal.SQLite.Path),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if err := provider.Watch(watchCtx, func(c *config.Config) {
		if l, err := c.Log.SlogLevel(); err == nil {
			level.Set(l)
		}
		if c.Upstream.BaseURL != client.BaseURL() {
			client.SetBaseURL(c.Upstream.BaseURL)
			logger.Info("upstream base url changed", slog.String("base_url", c.Upstream.BaseURL))
		}
	}); err != nil {
		logger.Warn("config hot reload disabled", slog.String("error", err.Error()))
	}

	srv := server.New(cfg.Server.Port, logger, sess,
		server.WithRequestTimeout(cfg.Server.RequestTimeoutDuration()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("loader started",
		slog.Int("port", cfg.Server.Port),
		slog.String("upstream", cfg.Upstream.BaseURL),
		slog.String("journal", cfg.Journal.Type))

	// Wait for shutdown signal
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("shutdown signal received, stopping loader...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := sess.Close(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("session close: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("loader shutdown complete")
	return nil
}
