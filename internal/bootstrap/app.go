package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/peter29ljf/bybitoption/internal/core"
	"github.com/peter29ljf/bybitoption/pkg/logging"
)

// App holds the dependencies shared across the monitor service, the
// strategy engine and the level executor.
type App struct {
	Cfg    *Config
	Logger core.ILogger
}

// NewApp loads configuration, runs pre-flight checks and builds the
// application logger.
func NewApp(configPath string) (*App, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.NewZapLogger(cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logging.SetGlobalLogger(logger)

	return &App{
		Cfg:    cfg,
		Logger: logger,
	}, nil
}

// Runner is a component that can be run under errgroup supervision until
// its context is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

// Run starts every runner concurrently and blocks until either a
// termination signal arrives or a runner returns a non-nil error, at
// which point the shared context is cancelled and the rest are given a
// chance to wind down.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	a.Logger.Info("starting application")

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		a.Logger.Error("application stopped with error", "error", err)
		return err
	}

	a.Logger.Info("application shut down gracefully")
	return nil
}

// Shutdown logs the shutdown and flushes logger buffers. The timeout is
// only logged; no other cleanup runs here.
func (a *App) Shutdown(timeout time.Duration) {
	a.Logger.Info("shutting down", "timeout", timeout)
	if z, ok := a.Logger.(interface{ Sync() error }); ok {
		_ = z.Sync()
	}
}
