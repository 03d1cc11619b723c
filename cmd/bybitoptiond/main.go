// Command bybitoptiond runs the Price Monitor, Strategy Engine and Level
// Executor as a single process: one options-trading automation daemon
// watching conditional price levels and turning fired triggers into
// venue orders.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/peter29ljf/bybitoption/internal/alert"
	"github.com/peter29ljf/bybitoption/internal/bootstrap"
	"github.com/peter29ljf/bybitoption/internal/httpapi"
	"github.com/peter29ljf/bybitoption/internal/infrastructure/health"
	infraserver "github.com/peter29ljf/bybitoption/internal/infrastructure/server"
	"github.com/peter29ljf/bybitoption/internal/monitor"
	"github.com/peter29ljf/bybitoption/internal/persistence"
	"github.com/peter29ljf/bybitoption/internal/spotpoll"
	"github.com/peter29ljf/bybitoption/internal/streaming"
	"github.com/peter29ljf/bybitoption/internal/strategy"
	"github.com/peter29ljf/bybitoption/internal/venue"
	"github.com/peter29ljf/bybitoption/pkg/telemetry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bybitoptiond: %v\n", err)
		os.Exit(1)
	}
	cfg := app.Cfg

	tel, err := telemetry.Setup("bybitoptiond")
	if err != nil {
		app.Logger.Fatal("telemetry setup failed", "error", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()
	metrics := telemetry.GetGlobalMetrics()

	healthMgr := health.NewHealthManager(app.Logger)
	alertMgr := alert.NewAlertManager(app.Logger)

	venueClient := venue.NewClient(cfg.Venue, app.Logger, time.Duration(cfg.Timing.VenueRequestTimeoutSec)*time.Second)

	var sqliteMirror *persistence.SQLiteSnapshotMirror
	if cfg.Persistence.SnapshotSQLitePath != "" {
		sqliteMirror, err = persistence.NewSQLiteSnapshotMirror(cfg.Persistence.SnapshotSQLitePath)
		if err != nil {
			app.Logger.Fatal("sqlite snapshot mirror open failed", "error", err)
		}
	}
	snapshotRepo := persistence.NewMonitorSnapshotRepo(cfg.Persistence.DataDir, sqliteMirror)
	strategyRepo := persistence.NewStrategyRepo(cfg.Persistence.DataDir)
	tradeRepo := persistence.NewTradeRepo(cfg.Persistence.DataDir)

	optionSource := streaming.NewSubscriber(cfg.Venue.WSURL, app.Logger, alertMgr)
	spotSource := spotpoll.NewPoller(venueClient, app.Logger, time.Duration(cfg.Timing.SpotPollIntervalMillis)*time.Millisecond)

	webhookDispatcher := monitor.NewWebhookDispatcher(time.Duration(cfg.Timing.WebhookTimeoutSec)*time.Second, app.Logger, metrics)
	monitorSvc := monitor.NewService(monitor.Config{
		MaxActiveTasks:      cfg.Monitor.MaxActiveTasks,
		DefaultTimeout:      time.Duration(cfg.Monitor.DefaultTimeoutHours) * time.Hour,
		ExpirySweepInterval: time.Duration(cfg.Monitor.ExpirySweepIntervalSec) * time.Second,
	}, optionSource, spotSource, snapshotRepo, webhookDispatcher, app.Logger, metrics)

	executor := strategy.NewExecutor(venueClient, time.Duration(cfg.Timing.ExecutorMinSpacingSec)*time.Second, app.Logger, metrics)
	webhookBaseURL := fmt.Sprintf("http://localhost%s/api/strategies/webhook", cfg.HTTP.StrategyAddr)
	engine := strategy.NewEngine(strategyRepo, tradeRepo, monitorSvc, executor, webhookBaseURL, time.Duration(cfg.Monitor.DefaultTimeoutHours)*time.Hour, app.Logger, metrics)

	healthMgr.Register("monitor", func() error { return nil })
	healthMgr.Register("strategy_engine", func() error { return nil })

	monitorMux := httpapi.NewMonitorMux(monitorSvc, healthMgr)
	strategyMux := httpapi.NewStrategyMux(engine, tradeRepo)
	healthSrv := infraserver.NewHealthServer(trimColon(cfg.HTTP.HealthAddr), app.Logger, healthMgr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitorSvc.Start(ctx); err != nil {
		app.Logger.Fatal("price monitor start failed", "error", err)
	}

	monitorHTTP := &http.Server{Addr: cfg.HTTP.MonitorAddr, Handler: monitorMux}
	strategyHTTP := &http.Server{Addr: cfg.HTTP.StrategyAddr, Handler: strategyMux}

	go func() {
		app.Logger.Info("monitor API listening", "addr", cfg.HTTP.MonitorAddr)
		if err := monitorHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("monitor API server failed", "error", err)
		}
	}()
	go func() {
		app.Logger.Info("strategy API listening", "addr", cfg.HTTP.StrategyAddr)
		if err := strategyHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Error("strategy API server failed", "error", err)
		}
	}()
	healthSrv.Start()

	app.Logger.Info("bybitoptiond started")
	if err := app.Run(runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})); err != nil {
		app.Logger.Error("run loop exited with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cancel()
	_ = monitorSvc.Stop()
	executor.Stop()
	_ = monitorHTTP.Shutdown(shutdownCtx)
	_ = strategyHTTP.Shutdown(shutdownCtx)
	_ = healthSrv.Stop(shutdownCtx)
	if sqliteMirror != nil {
		_ = sqliteMirror.Close()
	}
	app.Shutdown(10 * time.Second)
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func trimColon(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return addr[1:]
	}
	return addr
}
