package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter29ljf/bybitoption/internal/core"
	"github.com/peter29ljf/bybitoption/internal/monitor"
	"github.com/peter29ljf/bybitoption/internal/persistence"
	"github.com/peter29ljf/bybitoption/pkg/telemetry"
)

// mockLogger discards everything, the tests assert on engine/repo state,
// not on log output.
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, f ...interface{})               {}
func (m *mockLogger) Info(msg string, f ...interface{})                {}
func (m *mockLogger) Warn(msg string, f ...interface{})                {}
func (m *mockLogger) Error(msg string, f ...interface{})               {}
func (m *mockLogger) Fatal(msg string, f ...interface{})               {}
func (m *mockLogger) WithField(k string, v interface{}) core.ILogger   { return m }
func (m *mockLogger) WithFields(f map[string]interface{}) core.ILogger { return m }

// noopTickerSource satisfies core.TickerSource without ever delivering a
// tick, the engine tests drive price crossings directly through
// HandleWebhook rather than through a live ticker feed.
type noopTickerSource struct{}

func (noopTickerSource) Start(context.Context) error         { return nil }
func (noopTickerSource) Stop() error                          { return nil }
func (noopTickerSource) SetCallback(func(core.TickerUpdate))  {}
func (noopTickerSource) UpdateSymbols(map[string]struct{}) error { return nil }

// stubVenue is a configurable core.VenueClient: PlaceOrder returns
// whatever outcome was queued for the call, in order, or the default
// result if the queue is empty.
type stubVenue struct {
	mu      sync.Mutex
	results []core.OrderResult
	errs    []error
	calls   []core.PlaceOrderRequest
}

func (v *stubVenue) PlaceOrder(_ context.Context, req core.PlaceOrderRequest) (core.OrderResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, req)
	if len(v.results) == 0 {
		return core.OrderResult{RetCode: 0, OrderStatus: "New", OrderID: "order-default"}, nil
	}
	res := v.results[0]
	v.results = v.results[1:]
	var err error
	if len(v.errs) > 0 {
		err = v.errs[0]
		v.errs = v.errs[1:]
	}
	return res, err
}

func (v *stubVenue) CancelOrder(context.Context, string, string, string) error { return nil }

func (v *stubVenue) GetTickers(context.Context, string, []string) (map[string]decimal.Decimal, error) {
	return nil, nil
}

func (v *stubVenue) callCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

func newTestEngine(t *testing.T, venue core.VenueClient) *Engine {
	t.Helper()
	dataDir := t.TempDir()
	logger := &mockLogger{}
	metrics := telemetry.GetGlobalMetrics()

	snapshotRepo := persistence.NewMonitorSnapshotRepo(dataDir, nil)
	dispatcher := monitor.NewWebhookDispatcher(time.Second, logger, metrics)
	monitorSvc := monitor.NewService(monitor.Config{
		MaxActiveTasks:      100,
		DefaultTimeout:      time.Hour,
		ExpirySweepInterval: time.Hour,
	}, noopTickerSource{}, noopTickerSource{}, snapshotRepo, dispatcher, logger, metrics)

	executor := NewExecutor(venue, 0, logger, metrics)
	t.Cleanup(executor.Stop)

	strategyRepo := persistence.NewStrategyRepo(dataDir)
	tradeRepo := persistence.NewTradeRepo(dataDir)

	return NewEngine(strategyRepo, tradeRepo, monitorSvc, executor, "http://localhost:8002/api/strategies/webhook", time.Hour, logger, metrics)
}

// waitForLevelStatus polls GetStrategy until levelID reaches want or the
// deadline passes; order dispatch completes on the executor's worker
// goroutine, asynchronously from the caller driving the webhook.
func waitForLevelStatus(t *testing.T, e *Engine, strategyID, levelID string, want core.LevelStatus) core.StrategyLevel {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := e.GetStrategy(strategyID)
		require.NoError(t, err)
		level := s.Level(levelID)
		require.NotNil(t, level)
		if level.Status == want {
			return *level
		}
		if time.Now().After(deadline) {
			t.Fatalf("level %s never reached status %s, last seen %s", levelID, want, level.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func conditionalLevel(levelID string) core.StrategyLevel {
	return core.StrategyLevel{
		LevelID:      levelID,
		OptionSymbol: "BTC-28JUN26-70000-C",
		Side:         core.SideBuy,
		Quantity:     decimal.NewFromInt(1),
		OrderType:    core.OrderMarket,
		TriggerType:  core.TriggerConditional,
		TriggerPrice: decimal.NewFromInt(100),
		TakeProfit:   decimal.NewFromInt(150),
		StopLoss:     decimal.NewFromInt(50),
	}
}

// TestEntryToTakeProfitChain drives a level from a fresh conditional
// ENTRY through a successful fill into TAKE_PROFIT, mirroring a
// conditional-entry ladder with both legs attached.
func TestEntryToTakeProfitChain(t *testing.T) {
	venue := &stubVenue{}
	e := newTestEngine(t, venue)

	strategy := core.TradingStrategy{
		Levels: []core.StrategyLevel{conditionalLevel("")},
	}
	created, err := e.CreateStrategy(strategy)
	require.NoError(t, err)
	level := created.Levels[0]
	require.Equal(t, core.LevelMonitoring, level.Status)
	entryTaskID, ok := level.MonitorTaskIDs[core.MonitorTypeEntry]
	require.True(t, ok)

	e.HandleWebhook(context.Background(), core.WebhookPayload{
		TaskID:           entryTaskID,
		StrategyID:       created.StrategyID,
		LevelID:          level.LevelID,
		MonitorType:      core.MonitorTypeEntry,
		TargetPrice:      level.TriggerPrice,
		TriggeredPrice:   level.TriggerPrice,
		TriggerDirection: core.TriggerUpCross,
	})

	afterEntry := waitForLevelStatus(t, e, created.StrategyID, level.LevelID, core.LevelMonitoring)
	require.True(t, afterEntry.EntrySucceeded())
	tpTaskID, ok := afterEntry.MonitorTaskIDs[core.MonitorTypeTakeProfit]
	require.True(t, ok)
	_, hasSL := afterEntry.MonitorTaskIDs[core.MonitorTypeStopLoss]
	require.True(t, hasSL)

	e.HandleWebhook(context.Background(), core.WebhookPayload{
		TaskID:           tpTaskID,
		StrategyID:       created.StrategyID,
		LevelID:          level.LevelID,
		MonitorType:      core.MonitorTypeTakeProfit,
		TargetPrice:      afterEntry.TakeProfit,
		TriggeredPrice:   afterEntry.TakeProfit,
		TriggerDirection: core.TriggerUpCross,
	})

	final := waitForLevelStatus(t, e, created.StrategyID, level.LevelID, core.LevelCompleted)
	assert.Empty(t, final.MonitorTaskIDs[core.MonitorTypeStopLoss])
	assert.Equal(t, 2, venue.callCount())

	trades, err := e.trades.List(0)
	require.NoError(t, err)
	assert.Len(t, trades, 2)
}

// TestLevelCloseChain verifies that a child level waiting on a parent's
// ENTRY event executes its own ENTRY only once that event has actually
// been recorded as successful.
func TestLevelCloseChain(t *testing.T) {
	venue := &stubVenue{}
	e := newTestEngine(t, venue)

	parent := conditionalLevel("parent")
	child := core.StrategyLevel{
		LevelID:           "child",
		OptionSymbol:      "BTC-28JUN26-80000-C",
		Side:              core.SideBuy,
		Quantity:          decimal.NewFromInt(1),
		OrderType:         core.OrderMarket,
		TriggerType:       core.TriggerLevelClose,
		TriggerLevelID:    "parent",
		TriggerLevelEvent: core.MonitorTypeEntry,
	}

	created, err := e.CreateStrategy(core.TradingStrategy{Levels: []core.StrategyLevel{parent, child}})
	require.NoError(t, err)

	childLevel := created.Level("child")
	require.Equal(t, core.LevelWaiting, childLevel.Status)

	parentLevel := created.Level("parent")
	entryTaskID := parentLevel.MonitorTaskIDs[core.MonitorTypeEntry]

	e.HandleWebhook(context.Background(), core.WebhookPayload{
		TaskID:           entryTaskID,
		StrategyID:       created.StrategyID,
		LevelID:          parentLevel.LevelID,
		MonitorType:      core.MonitorTypeEntry,
		TargetPrice:      parentLevel.TriggerPrice,
		TriggeredPrice:   parentLevel.TriggerPrice,
		TriggerDirection: core.TriggerUpCross,
	})

	waitForLevelStatus(t, e, created.StrategyID, "parent", core.LevelMonitoring)

	// The child has no take-profit/stop-loss of its own, so once its
	// ENTRY succeeds provisionExitMonitors completes it immediately.
	childFinal := waitForLevelStatus(t, e, created.StrategyID, "child", core.LevelCompleted)
	require.True(t, childFinal.EntrySucceeded())
}

// TestPauseIgnoresWebhookResumeDoesNotReplay confirms a webhook that
// arrives while a strategy is paused is a no-op, and that resuming does
// not replay it, the trigger already fired exactly once upstream.
func TestPauseIgnoresWebhookResumeDoesNotReplay(t *testing.T) {
	venue := &stubVenue{}
	e := newTestEngine(t, venue)

	created, err := e.CreateStrategy(core.TradingStrategy{
		Levels: []core.StrategyLevel{conditionalLevel("")},
	})
	require.NoError(t, err)
	level := created.Levels[0]
	entryTaskID := level.MonitorTaskIDs[core.MonitorTypeEntry]

	_, err = e.Pause(created.StrategyID)
	require.NoError(t, err)

	e.HandleWebhook(context.Background(), core.WebhookPayload{
		TaskID:           entryTaskID,
		StrategyID:       created.StrategyID,
		LevelID:          level.LevelID,
		MonitorType:      core.MonitorTypeEntry,
		TargetPrice:      level.TriggerPrice,
		TriggeredPrice:   level.TriggerPrice,
		TriggerDirection: core.TriggerUpCross,
	})

	time.Sleep(20 * time.Millisecond)
	paused, err := e.GetStrategy(created.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, core.LevelMonitoring, paused.Level(level.LevelID).Status)
	assert.Equal(t, 0, venue.callCount())

	resumed, err := e.Resume(created.StrategyID)
	require.NoError(t, err)
	assert.Equal(t, core.LevelMonitoring, resumed.Level(level.LevelID).Status)
	assert.Equal(t, 0, venue.callCount())
}

// TestExecuteEntryFailureMarksLevelFailed confirms a rejected venue
// response fails the level rather than leaving it stuck executing, and
// that a failed entry is never retried.
func TestExecuteEntryFailureMarksLevelFailed(t *testing.T) {
	venue := &stubVenue{results: []core.OrderResult{{RetCode: 10001, RetMsg: "insufficient balance"}}}
	e := newTestEngine(t, venue)

	created, err := e.CreateStrategy(core.TradingStrategy{
		Levels: []core.StrategyLevel{conditionalLevel("")},
	})
	require.NoError(t, err)
	level := created.Levels[0]
	entryTaskID := level.MonitorTaskIDs[core.MonitorTypeEntry]

	e.HandleWebhook(context.Background(), core.WebhookPayload{
		TaskID:           entryTaskID,
		StrategyID:       created.StrategyID,
		LevelID:          level.LevelID,
		MonitorType:      core.MonitorTypeEntry,
		TargetPrice:      level.TriggerPrice,
		TriggeredPrice:   level.TriggerPrice,
		TriggerDirection: core.TriggerUpCross,
	})

	final := waitForLevelStatus(t, e, created.StrategyID, level.LevelID, core.LevelFailed)
	require.Len(t, final.Executions, 1)
	assert.False(t, final.Executions[0].Success)
}
