/*
main.go - Application entry point

PURPOSE:
  Parses the command line, loads configuration and runs the selected
  command.

COMMANDS:
  serve    HTTP API plus the reminder scheduler (default)
  remind   One pass of pending-approval reminders and expiry warnings

CONFIGURATION:
  Environment variables (and a .env file) are read by config.Load; flags
  given on the command line override them. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the reminder scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the store and the event writer

EXAMPLES:
  # Demo run, nothing persisted
  ./leave-engine serve --db=memory

  # SQLite file with a catalog
  LEAVE_TYPES_FILE=./leave-types.toml ./leave-engine serve --db=sqlite

  # Cron-driven reminders against Postgres
  DATABASE_URL=postgres://... ./leave-engine remind --db=postgres

SEE ALSO:
  - app.go:            Dependency wiring
  - api/server.go:     Router configuration
  - config/config.go:  Environment keys
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/logging"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var CLI struct {
	Version  kong.VersionFlag
	DB       string `help:"Storage driver (memory, sqlite, postgres)."`
	LogLevel string `help:"Log level (debug, info, warn, error)."`

	Serve  ServeCmd  `cmd:"" help:"Run the HTTP API." default:"1"`
	Remind RemindCmd `cmd:"" help:"Send pending-approval reminders and expiry warnings once."`
}

// Context is handed to every command.
type Context struct {
	Config config.Config
	Logger *zap.Logger
}

type ServeCmd struct {
	Addr string `help:"Listen address, e.g. :8080."`
}

func (c *ServeCmd) Run(ctx *Context) error {
	cfg := ctx.Config
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	logger := ctx.Logger

	app, err := buildApp(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	scheduler := api.NewReminderScheduler(app.Reminders, cfg.ReminderInterval, logger)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(api.Deps{
		Workflow:   app.Workflow,
		Bulk:       app.Bulk,
		Overview:   app.Overview,
		Ledger:     app.Ledger,
		LeaveTypes: app.Store,
		Requests:   app.Store,
		Reminders:  app.Reminders,
	}, logger)
	router := api.NewRouter(handler, api.RouterOptions{
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Addr), zap.String("env", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

type RemindCmd struct {
	Timeout time.Duration `help:"Give up after this long." default:"5m"`
}

func (c *RemindCmd) Run(ctx *Context) error {
	runCtx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	app, err := buildApp(runCtx, ctx.Config, ctx.Logger)
	if err != nil {
		return err
	}
	defer app.Close()

	report, err := app.Reminders.Run(runCtx)
	if err != nil {
		return fmt.Errorf("reminder run: %w", err)
	}
	ctx.Logger.Info("reminders finished",
		zap.Int("reminders_sent", report.RemindersSent),
		zap.Int("warnings_sent", report.WarningsSent),
		zap.Int("failed", report.Failed),
	)
	return nil
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("leave-engine"),
		kong.Description("Employee leave requests, approvals and balances"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	cfg := config.Load()
	if CLI.DB != "" {
		cfg.DBDriver = CLI.DB
	}
	if CLI.LogLevel != "" {
		cfg.LogLevel = CLI.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := kctx.Run(&Context{Config: cfg, Logger: logger}); err != nil {
		logger.Error("command failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
