// Package strategy implements the Strategy Engine and the Level
// Executor: the level lifecycle state machine that turns a
// TradingStrategy's declarative levels into live monitor tasks, and the
// serialized dispatcher that turns a fired webhook into a venue order.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/peter29ljf/bybitoption/internal/core"
	"github.com/peter29ljf/bybitoption/internal/monitor"
	"github.com/peter29ljf/bybitoption/internal/persistence"
	apperrors "github.com/peter29ljf/bybitoption/pkg/errors"
	"github.com/peter29ljf/bybitoption/pkg/telemetry"
)

const btcSpotSymbol = "BTCUSDT"

// Engine owns strategy/level lifecycle: creating and chaining monitor
// tasks per level, reacting to their webhooks, and driving levels through
// pending -> waiting/monitoring -> executing -> completed/failed/cancelled.
type Engine struct {
	repo      *persistence.StrategyRepo
	trades    *persistence.TradeRepo
	monitorSv *monitor.Service
	executor  *Executor
	logger    core.ILogger
	metrics   *telemetry.MetricsHolder

	webhookBaseURL string
	monitorTimeout time.Duration
}

// NewEngine builds a Strategy Engine. webhookBaseURL is this process's
// own externally reachable strategy-webhook endpoint (e.g.
// "http://localhost:8002/api/strategies/webhook"), every monitor task the engine
// creates points back at it, so triggers loop back into HandleWebhook
// rather than anywhere else.
func NewEngine(repo *persistence.StrategyRepo, trades *persistence.TradeRepo, monitorSv *monitor.Service, executor *Executor, webhookBaseURL string, monitorTimeout time.Duration, logger core.ILogger, metrics *telemetry.MetricsHolder) *Engine {
	return &Engine{
		repo:           repo,
		trades:         trades,
		monitorSv:      monitorSv,
		executor:       executor,
		logger:         logger.WithField("component", "strategy_engine"),
		metrics:        metrics,
		webhookBaseURL: webhookBaseURL,
		monitorTimeout: monitorTimeout,
	}
}

// CreateStrategy validates and persists a new strategy, assigning ids
// where absent, then immediately syncs it so its first levels start
// provisioning monitors.
func (e *Engine) CreateStrategy(strategy core.TradingStrategy) (core.TradingStrategy, error) {
	if strategy.StrategyID == "" {
		strategy.StrategyID = uuid.NewString()
	}
	now := time.Now().UTC()
	strategy.CreatedAt = now
	strategy.UpdatedAt = now
	if strategy.Status == "" {
		strategy.Status = core.StrategyRunning
	}
	for i := range strategy.Levels {
		if strategy.Levels[i].LevelID == "" {
			strategy.Levels[i].LevelID = uuid.NewString()
		}
		strategy.Levels[i].StrategyID = strategy.StrategyID
		if strategy.Levels[i].Status == "" {
			strategy.Levels[i].Status = core.LevelPending
		}
		strategy.Levels[i].CreatedAt = now
		strategy.Levels[i].UpdatedAt = now
		if !strategy.Levels[i].TriggerType.Valid() {
			return core.TradingStrategy{}, fmt.Errorf("%w: level %s has invalid trigger_type", apperrors.ErrInvalidTriggerCombo, strategy.Levels[i].LevelID)
		}
		if strategy.Levels[i].OrderType == core.OrderLimit && strategy.Levels[i].LimitPrice.IsZero() {
			return core.TradingStrategy{}, fmt.Errorf("%w: level %s is Limit but has no limit_price", apperrors.ErrInvalidTriggerCombo, strategy.Levels[i].LevelID)
		}
		if strategy.Levels[i].TriggerType == core.TriggerLevelClose && strategy.Levels[i].TriggerLevelID == "" {
			return core.TradingStrategy{}, fmt.Errorf("%w: level %s is level_close but has no trigger_level_id", apperrors.ErrInvalidTriggerCombo, strategy.Levels[i].LevelID)
		}
	}

	if err := e.repo.Upsert(strategy); err != nil {
		return core.TradingStrategy{}, err
	}
	e.logger.Info("strategy created", "strategy_id", strategy.StrategyID, "levels", len(strategy.Levels))

	e.syncByID(strategy.StrategyID)
	saved, err := e.repo.Get(strategy.StrategyID)
	if err != nil {
		return core.TradingStrategy{}, err
	}
	return *saved, nil
}

// UpdateStrategy replaces a strategy's levels with a new set, cancelling
// every monitor task the previous version owned before provisioning
// whatever the new levels call for. A level carried over by level_id
// keeps its accumulated executions, whether or not its trigger changed,
// and a carried-over level that had already reached a terminal status
// keeps that status. Every other level is reset to pending with no
// monitor tasks; this is what makes re-running Sync after an update safe
// rather than stacking stale targets on top of new ones.
func (e *Engine) UpdateStrategy(strategy core.TradingStrategy) (core.TradingStrategy, error) {
	existing, err := e.repo.Get(strategy.StrategyID)
	if err != nil {
		return core.TradingStrategy{}, err
	}

	prevByID := make(map[string]core.StrategyLevel, len(existing.Levels))
	for _, level := range existing.Levels {
		prevByID[level.LevelID] = level
	}

	now := time.Now().UTC()
	strategy.CreatedAt = existing.CreatedAt
	strategy.UpdatedAt = now
	if strategy.Status == "" {
		strategy.Status = existing.Status
	}
	for i := range strategy.Levels {
		level := &strategy.Levels[i]
		level.StrategyID = strategy.StrategyID
		if level.LevelID == "" {
			level.LevelID = uuid.NewString()
		}
		if !level.TriggerType.Valid() {
			return core.TradingStrategy{}, fmt.Errorf("%w: level %s has invalid trigger_type", apperrors.ErrInvalidTriggerCombo, level.LevelID)
		}
		if level.OrderType == core.OrderLimit && level.LimitPrice.IsZero() {
			return core.TradingStrategy{}, fmt.Errorf("%w: level %s is Limit but has no limit_price", apperrors.ErrInvalidTriggerCombo, level.LevelID)
		}
		if level.TriggerType == core.TriggerLevelClose && level.TriggerLevelID == "" {
			return core.TradingStrategy{}, fmt.Errorf("%w: level %s is level_close but has no trigger_level_id", apperrors.ErrInvalidTriggerCombo, level.LevelID)
		}
		if prev, ok := prevByID[level.LevelID]; ok {
			level.Executions = prev.Executions
			level.CreatedAt = prev.CreatedAt
		} else {
			level.CreatedAt = now
		}
		level.UpdatedAt = now
		level.Status = core.LevelPending
		if prev, ok := prevByID[level.LevelID]; ok && prev.Status.Terminal() {
			level.Status = prev.Status
		}
		level.MonitorTaskIDs = nil
	}

	e.cancelAllMonitors(existing)

	if err := e.repo.Upsert(strategy); err != nil {
		return core.TradingStrategy{}, err
	}
	e.logger.Info("strategy updated", "strategy_id", strategy.StrategyID, "levels", len(strategy.Levels))

	e.syncByID(strategy.StrategyID)
	saved, err := e.repo.Get(strategy.StrategyID)
	if err != nil {
		return core.TradingStrategy{}, err
	}
	return *saved, nil
}

// GetStrategy returns one strategy by id.
func (e *Engine) GetStrategy(strategyID string) (core.TradingStrategy, error) {
	s, err := e.repo.Get(strategyID)
	if err != nil {
		return core.TradingStrategy{}, err
	}
	return *s, nil
}

// ListStrategies returns every persisted strategy.
func (e *Engine) ListStrategies() ([]core.TradingStrategy, error) {
	return e.repo.List()
}

// Pause moves a running strategy to paused. Existing monitor tasks are
// left in place. HandleWebhook will simply ignore any trigger that
// arrives while paused, so resuming needs no re-provisioning.
func (e *Engine) Pause(strategyID string) (core.TradingStrategy, error) {
	s, err := e.repo.Mutate(strategyID, func(s *core.TradingStrategy) error {
		if s.Status == core.StrategyPaused {
			return nil
		}
		if s.Status != core.StrategyRunning {
			return fmt.Errorf("%w: strategy is %s", apperrors.ErrStrategyNotRunning, s.Status)
		}
		s.Status = core.StrategyPaused
		return nil
	})
	if err != nil {
		return core.TradingStrategy{}, err
	}
	return *s, nil
}

// Resume moves a paused strategy back to running and re-syncs it.
func (e *Engine) Resume(strategyID string) (core.TradingStrategy, error) {
	s, err := e.repo.Mutate(strategyID, func(s *core.TradingStrategy) error {
		if s.Status == core.StrategyStopped {
			return fmt.Errorf("%w: strategy is %s", apperrors.ErrStrategyNotRunning, s.Status)
		}
		s.Status = core.StrategyRunning
		return nil
	})
	if err != nil {
		return core.TradingStrategy{}, err
	}
	e.syncByID(strategyID)
	saved, err := e.repo.Get(strategyID)
	if err != nil {
		return core.TradingStrategy{}, err
	}
	return *saved, nil
}

// Stop permanently halts a strategy: every non-terminal level is
// cancelled and every monitor task it owns is torn down. A stopped
// strategy is not resumable, create a new one to restart the ladder.
func (e *Engine) Stop(strategyID string) (core.TradingStrategy, error) {
	s, err := e.repo.Mutate(strategyID, func(s *core.TradingStrategy) error {
		s.Status = core.StrategyStopped
		for i := range s.Levels {
			if !s.Levels[i].Status.Terminal() {
				s.Levels[i].Status = core.LevelCancelled
			}
		}
		return nil
	})
	if err != nil {
		return core.TradingStrategy{}, err
	}
	e.cancelAllMonitors(s)
	return *s, nil
}

// Delete cancels every monitor task owned by the strategy and removes it
// from persistence.
func (e *Engine) Delete(strategyID string) error {
	s, err := e.repo.Get(strategyID)
	if err != nil {
		return err
	}
	e.cancelAllMonitors(s)
	return e.repo.Delete(strategyID)
}

func (e *Engine) cancelAllMonitors(s *core.TradingStrategy) {
	for _, level := range s.Levels {
		for _, taskID := range level.MonitorTaskIDs {
			if err := e.monitorSv.RemoveTask(taskID); err != nil {
				e.logger.Warn("monitor task cancel on teardown failed", "task_id", taskID, "error", err)
			}
		}
	}
}

func (e *Engine) syncByID(strategyID string) {
	s, err := e.repo.Get(strategyID)
	if err != nil {
		e.logger.Error("sync: strategy lookup failed", "strategy_id", strategyID, "error", err)
		return
	}
	e.Sync(s)
}

// Sync walks every non-terminal level of a strategy and provisions (or
// advances) whatever monitor tasks its current state requires. It is
// idempotent: a level already holding the monitors its state calls for
// is left untouched.
func (e *Engine) Sync(s *core.TradingStrategy) {
	if s.Status != core.StrategyRunning {
		return
	}
	for i := range s.Levels {
		level := &s.Levels[i]
		if level.Status.Terminal() {
			continue
		}
		switch level.Status {
		case core.LevelPending:
			e.provisionEntry(s, level)
		case core.LevelMonitoring:
			e.provisionExitMonitors(s, level)
		case core.LevelWaiting:
			e.tryUnblockLevelClose(s, level)
		}
	}
}

// provisionEntry dispatches a pending level's ENTRY according to its
// trigger_type.
func (e *Engine) provisionEntry(s *core.TradingStrategy, level *core.StrategyLevel) {
	if level.EntrySucceeded() {
		level.Status = core.LevelMonitoring
		e.persistLevel(s, level)
		e.provisionExitMonitors(s, level)
		return
	}
	switch level.TriggerType {
	case core.TriggerImmediate:
		e.executeEntry(s, level, level.TriggerPrice, level.TriggerPrice, core.TriggerUpCross)
	case core.TriggerConditional:
		e.createEntryMonitor(s, level, level.OptionSymbol, core.InstrumentOption)
	case core.TriggerBTCPrice:
		e.createEntryMonitor(s, level, btcSpotSymbol, core.InstrumentSpot)
	case core.TriggerExistingPosition:
		e.recordExistingPositionEntry(s, level)
	case core.TriggerLevelClose:
		level.Status = core.LevelWaiting
		e.persistLevel(s, level)
	}
}

func (e *Engine) createEntryMonitor(s *core.TradingStrategy, level *core.StrategyLevel, symbol string, instrument core.InstrumentType) {
	taskID := core.SyncTaskID(s.StrategyID, level.LevelID, core.MonitorTypeEntry)
	task := core.MonitorTask{
		TaskID:        taskID,
		Instrument:    instrument,
		MonitorSymbol: symbol,
		TargetPrice:   level.TriggerPrice,
		WebhookURL:    e.webhookBaseURL,
		ExpiresAt:     time.Now().UTC().Add(e.monitorTimeout),
		StrategyID:    s.StrategyID,
		LevelID:       level.LevelID,
		MonitorType:   core.MonitorTypeEntry,
	}
	if instrument == core.InstrumentOption {
		task.OptionInfo = &core.OptionInfo{Symbol: symbol}
	}
	if _, err := e.monitorSv.AddTask(task); err != nil && err != apperrors.ErrDuplicateTaskID {
		e.logger.Error("entry monitor provisioning failed", "level_id", level.LevelID, "error", err)
		return
	}
	if level.MonitorTaskIDs == nil {
		level.MonitorTaskIDs = make(map[core.MonitorType]string)
	}
	level.MonitorTaskIDs[core.MonitorTypeEntry] = taskID
	level.Status = core.LevelMonitoring
	e.persistLevel(s, level)
}

func (e *Engine) recordExistingPositionEntry(s *core.TradingStrategy, level *core.StrategyLevel) {
	level.Executions = append(level.Executions, core.LevelExecution{
		MonitorType: core.MonitorTypeEntry,
		Side:        level.Side,
		Success:     true,
		Message:     "existing position assumed, no order placed",
		CreatedAt:   time.Now().UTC(),
	})
	level.Status = core.LevelMonitoring
	e.persistLevel(s, level)
}

// provisionExitMonitors provisions TAKE_PROFIT/STOP_LOSS monitors once
// ENTRY has succeeded.
func (e *Engine) provisionExitMonitors(s *core.TradingStrategy, level *core.StrategyLevel) {
	if !level.EntrySucceeded() {
		return
	}
	if !level.TakeProfit.IsZero() {
		e.createExitMonitor(s, level, core.MonitorTypeTakeProfit, level.TakeProfit)
	}
	if !level.StopLoss.IsZero() {
		e.createExitMonitor(s, level, core.MonitorTypeStopLoss, level.StopLoss)
	}
	if level.TakeProfit.IsZero() && level.StopLoss.IsZero() {
		level.Status = core.LevelCompleted
		e.persistLevel(s, level)
	}
}

func (e *Engine) createExitMonitor(s *core.TradingStrategy, level *core.StrategyLevel, monitorType core.MonitorType, targetPrice decimal.Decimal) {
	if level.MonitorTaskIDs != nil {
		if _, exists := level.MonitorTaskIDs[monitorType]; exists {
			return
		}
	}
	taskID := core.SyncTaskID(s.StrategyID, level.LevelID, monitorType)
	task := core.MonitorTask{
		TaskID:        taskID,
		Instrument:    core.InstrumentOption,
		MonitorSymbol: level.OptionSymbol,
		OptionInfo:    &core.OptionInfo{Symbol: level.OptionSymbol},
		TargetPrice:   targetPrice,
		WebhookURL:    e.webhookBaseURL,
		ExpiresAt:     time.Now().UTC().Add(e.monitorTimeout),
		StrategyID:    s.StrategyID,
		LevelID:       level.LevelID,
		MonitorType:   monitorType,
	}
	if _, err := e.monitorSv.AddTask(task); err != nil && err != apperrors.ErrDuplicateTaskID {
		e.logger.Error("exit monitor provisioning failed", "level_id", level.LevelID, "monitor_type", monitorType, "error", err)
		return
	}
	if level.MonitorTaskIDs == nil {
		level.MonitorTaskIDs = make(map[core.MonitorType]string)
	}
	level.MonitorTaskIDs[monitorType] = taskID
	e.persistLevel(s, level)
}

// tryUnblockLevelClose checks whether the parent level named by
// trigger_level_id has already produced the event this level is waiting
// on, and if so hands it to provisionEntry as if it were freshly pending.
func (e *Engine) tryUnblockLevelClose(s *core.TradingStrategy, level *core.StrategyLevel) {
	parent := s.Level(level.TriggerLevelID)
	if parent == nil {
		return
	}
	for _, exec := range parent.Executions {
		if exec.MonitorType == level.TriggerLevelEvent && exec.Success {
			level.Status = core.LevelPending
			if !level.TriggerPrice.IsZero() {
				e.createEntryMonitor(s, level, level.OptionSymbol, core.InstrumentOption)
			} else {
				e.executeEntry(s, level, level.TriggerPrice, level.TriggerPrice, core.TriggerUpCross)
			}
			return
		}
	}
}

func (e *Engine) persistLevel(s *core.TradingStrategy, level *core.StrategyLevel) {
	if _, err := e.repo.MutateLevel(s.StrategyID, level.LevelID, func(l *core.StrategyLevel) error {
		*l = *level
		return nil
	}); err != nil {
		e.logger.Error("level persist failed", "level_id", level.LevelID, "error", err)
	}
}

// HandleWebhook processes one fired monitor task's webhook: it is the
// only entry point that ever moves a level from monitoring into
// executing. Strategy-not-running and level-terminal are both silent
// no-ops by design, the trigger already fired exactly once upstream in
// the Price Monitor, so there is nothing to retry here.
func (e *Engine) HandleWebhook(ctx context.Context, payload core.WebhookPayload) {
	if payload.StrategyID == "" || payload.LevelID == "" {
		e.logger.Warn("webhook with no strategy/level binding ignored", "task_id", payload.TaskID)
		return
	}
	s, err := e.repo.Get(payload.StrategyID)
	if err != nil {
		e.logger.Warn("webhook for unknown strategy ignored", "strategy_id", payload.StrategyID, "task_id", payload.TaskID)
		return
	}
	if s.Status != core.StrategyRunning {
		e.logger.Info("webhook ignored, strategy not running", "strategy_id", s.StrategyID, "status", s.Status)
		return
	}
	level := s.Level(payload.LevelID)
	if level == nil || level.Status.Terminal() {
		e.logger.Info("webhook ignored, level absent or terminal", "level_id", payload.LevelID, "task_id", payload.TaskID)
		return
	}

	switch payload.MonitorType {
	case core.MonitorTypeEntry:
		e.executeEntry(s, level, payload.TargetPrice, payload.TriggeredPrice, payload.TriggerDirection)
	case core.MonitorTypeTakeProfit, core.MonitorTypeStopLoss:
		e.executeExit(s, level, payload.MonitorType, payload.TargetPrice, payload.TriggeredPrice, payload.TriggerDirection)
	default:
		e.logger.Warn("webhook with unrecognized monitor_type ignored", "monitor_type", payload.MonitorType, "task_id", payload.TaskID)
	}
}

// executeEntry submits a level's ENTRY order to the Level Executor and
// returns immediately, the order itself completes asynchronously on the
// executor's single worker and completeEntry records the outcome from
// there. The level sits in executing for the span of the call, so a
// concurrent read never sees it still reporting monitoring.
func (e *Engine) executeEntry(s *core.TradingStrategy, level *core.StrategyLevel, targetPrice, triggerPrice decimal.Decimal, direction core.TriggerDirection) {
	req := core.PlaceOrderRequest{
		Category: "option",
		Symbol:   level.OptionSymbol,
		Side:     level.Side,
		Type:     level.OrderType,
		Qty:      level.Quantity,
		Price:    level.LimitPrice,
		LinkID:   core.SyncTaskID(s.StrategyID, level.LevelID, core.MonitorTypeEntry),
	}

	level.Status = core.LevelExecuting
	e.persistLevel(s, level)

	strategyID, levelID := s.StrategyID, level.LevelID
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	submitErr := e.executor.Submit(ctx, req, func(res core.OrderResult, err error) {
		defer cancel()
		e.completeEntry(strategyID, levelID, req, targetPrice, triggerPrice, direction, res, err)
	})
	if submitErr != nil {
		cancel()
		e.logger.Error("entry order submit failed", "level_id", levelID, "error", submitErr)
		e.completeEntry(strategyID, levelID, req, targetPrice, triggerPrice, direction, core.OrderResult{}, submitErr)
	}
}

// completeEntry records an ENTRY order's outcome against the level's
// persisted state. It re-fetches strategy/level by id rather than
// closing over the caller's copy, by the time the executor calls back
// other Sync passes may already have touched the strategy.
func (e *Engine) completeEntry(strategyID, levelID string, req core.PlaceOrderRequest, targetPrice, triggerPrice decimal.Decimal, direction core.TriggerDirection, res core.OrderResult, err error) {
	s, level := e.fetchLevel(strategyID, levelID)
	if s == nil || level == nil {
		return
	}
	success := err == nil && res.Accepted()

	exec := core.LevelExecution{
		MonitorType:      core.MonitorTypeEntry,
		Side:             level.Side,
		TriggerPrice:     triggerPrice,
		TargetPrice:      targetPrice,
		TriggerDirection: direction,
		OrderID:          res.OrderID,
		Success:          success,
		CreatedAt:        time.Now().UTC(),
	}
	if err != nil {
		exec.Message = err.Error()
	} else {
		exec.Message = res.RetMsg
	}
	level.Executions = append(level.Executions, exec)
	delete(level.MonitorTaskIDs, core.MonitorTypeEntry)
	if success {
		level.Status = core.LevelMonitoring
	} else {
		level.Status = core.LevelFailed
	}
	e.persistLevel(s, level)
	e.recordTrade(s, level, core.MonitorTypeEntry, req, exec)

	if success {
		e.syncByID(s.StrategyID)
	}
}

// executeExit submits a level's TAKE_PROFIT/STOP_LOSS closing order,
// always the opposite side of the level's entry, and returns
// immediately; completeExit records the outcome once the executor
// dispatches it.
func (e *Engine) executeExit(s *core.TradingStrategy, level *core.StrategyLevel, monitorType core.MonitorType, targetPrice, triggerPrice decimal.Decimal, direction core.TriggerDirection) {
	req := core.PlaceOrderRequest{
		Category: "option",
		Symbol:   level.OptionSymbol,
		Side:     level.Side.Opposite(),
		Type:     core.OrderMarket,
		Qty:      level.Quantity,
		LinkID:   core.SyncTaskID(s.StrategyID, level.LevelID, monitorType),
	}

	level.Status = core.LevelExecuting
	e.persistLevel(s, level)

	strategyID, levelID := s.StrategyID, level.LevelID
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	submitErr := e.executor.Submit(ctx, req, func(res core.OrderResult, err error) {
		defer cancel()
		e.completeExit(strategyID, levelID, monitorType, req, targetPrice, triggerPrice, direction, res, err)
	})
	if submitErr != nil {
		cancel()
		e.logger.Error("exit order submit failed", "level_id", levelID, "monitor_type", monitorType, "error", submitErr)
		e.completeExit(strategyID, levelID, monitorType, req, targetPrice, triggerPrice, direction, core.OrderResult{}, submitErr)
	}
}

// completeExit records a TAKE_PROFIT/STOP_LOSS order's outcome, cancels
// the opposite leg's monitor (it can never fire now that one side has
// executed), and on success unblocks any level_close child waiting on
// this exact event via the next Sync pass.
func (e *Engine) completeExit(strategyID, levelID string, monitorType core.MonitorType, req core.PlaceOrderRequest, targetPrice, triggerPrice decimal.Decimal, direction core.TriggerDirection, res core.OrderResult, err error) {
	s, level := e.fetchLevel(strategyID, levelID)
	if s == nil || level == nil {
		return
	}
	success := err == nil && res.Accepted()

	exec := core.LevelExecution{
		MonitorType:      monitorType,
		Side:             req.Side,
		TriggerPrice:     triggerPrice,
		TargetPrice:      targetPrice,
		TriggerDirection: direction,
		OrderID:          res.OrderID,
		Success:          success,
		CreatedAt:        time.Now().UTC(),
	}
	if err != nil {
		exec.Message = err.Error()
	} else {
		exec.Message = res.RetMsg
	}
	level.Executions = append(level.Executions, exec)
	delete(level.MonitorTaskIDs, monitorType)

	// The other leg (TP or SL, whichever didn't fire) is no longer
	// relevant once one of them has executed, cancel it.
	other := core.MonitorTypeTakeProfit
	if monitorType == core.MonitorTypeTakeProfit {
		other = core.MonitorTypeStopLoss
	}
	if otherID, ok := level.MonitorTaskIDs[other]; ok {
		if err := e.monitorSv.RemoveTask(otherID); err != nil {
			e.logger.Warn("opposite exit monitor cancel failed", "task_id", otherID, "error", err)
		}
		delete(level.MonitorTaskIDs, other)
	}

	if success {
		level.Status = core.LevelCompleted
	} else {
		level.Status = core.LevelFailed
	}
	e.persistLevel(s, level)
	e.recordTrade(s, level, monitorType, req, exec)

	if success {
		e.syncByID(s.StrategyID)
	}
}

// fetchLevel re-reads a strategy and one of its levels by id, logging and
// returning nils if either has disappeared since the caller last saw it.
func (e *Engine) fetchLevel(strategyID, levelID string) (*core.TradingStrategy, *core.StrategyLevel) {
	s, err := e.repo.Get(strategyID)
	if err != nil {
		e.logger.Error("post-execution lookup: strategy not found", "strategy_id", strategyID, "error", err)
		return nil, nil
	}
	level := s.Level(levelID)
	if level == nil {
		e.logger.Error("post-execution lookup: level not found", "strategy_id", strategyID, "level_id", levelID)
		return nil, nil
	}
	return s, level
}

func (e *Engine) recordTrade(s *core.TradingStrategy, level *core.StrategyLevel, monitorType core.MonitorType, req core.PlaceOrderRequest, exec core.LevelExecution) {
	record := core.TradeRecord{
		ID:               uuid.NewString(),
		StrategyID:       s.StrategyID,
		LevelID:          level.LevelID,
		MonitorType:      monitorType,
		Symbol:           req.Symbol,
		Side:             req.Side,
		OrderType:        req.Type,
		Quantity:         req.Qty,
		TriggerPrice:     exec.TriggerPrice,
		TargetPrice:      exec.TargetPrice,
		TriggerDirection: exec.TriggerDirection,
		OrderID:          exec.OrderID,
		Success:          exec.Success,
		Message:          exec.Message,
		CreatedAt:        exec.CreatedAt,
	}
	if err := e.trades.Append(record); err != nil {
		e.logger.Error("trade record append failed", "level_id", level.LevelID, "error", err)
	}
}
