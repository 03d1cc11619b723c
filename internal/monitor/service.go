// Package monitor implements the Price Monitor: a stateful streaming
// service that tracks a set of directional price-cross watches
// (MonitorTask) across both the option ticker stream and the spot
// poller, firing each task's webhook exactly once.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/peter29ljf/bybitoption/internal/core"
	"github.com/peter29ljf/bybitoption/internal/persistence"
	apperrors "github.com/peter29ljf/bybitoption/pkg/errors"
	"github.com/peter29ljf/bybitoption/pkg/telemetry"
)

// Config bounds the service's capacity and sweep cadence.
type Config struct {
	MaxActiveTasks      int
	DefaultTimeout      time.Duration
	ExpirySweepInterval time.Duration
}

// Service owns the active task map and both ticker sources. All mutating
// operations hold mu for the in-memory update, then release it before
// doing any I/O (symbol resync, snapshot persistence, webhook dispatch).
type Service struct {
	cfg Config

	optionSource core.TickerSource
	spotSource   core.TickerSource
	snapshotRepo *persistence.MonitorSnapshotRepo
	dispatcher   *WebhookDispatcher
	logger       core.ILogger
	metrics      *telemetry.MetricsHolder

	mu    sync.Mutex
	tasks map[string]*core.MonitorTask

	sweepCancel context.CancelFunc
	sweepWG     sync.WaitGroup
}

// NewService builds a Price Monitor service. optionSource handles every
// option-instrument task, spotSource every spot-instrument task; both
// satisfy core.TickerSource so the service treats them uniformly.
func NewService(cfg Config, optionSource, spotSource core.TickerSource, snapshotRepo *persistence.MonitorSnapshotRepo, dispatcher *WebhookDispatcher, logger core.ILogger, metrics *telemetry.MetricsHolder) *Service {
	return &Service{
		cfg:          cfg,
		optionSource: optionSource,
		spotSource:   spotSource,
		snapshotRepo: snapshotRepo,
		dispatcher:   dispatcher,
		logger:       logger.WithField("component", "price_monitor"),
		metrics:      metrics,
		tasks:        make(map[string]*core.MonitorTask),
	}
}

// Start restores the last snapshot, wires both ticker sources to
// onPriceUpdate, starts them, and begins the expiry sweep loop.
func (s *Service) Start(ctx context.Context) error {
	snap, err := s.snapshotRepo.Load()
	if err != nil {
		return fmt.Errorf("monitor: load snapshot: %w", err)
	}
	s.mu.Lock()
	for i := range snap.Tasks {
		t := snap.Tasks[i]
		if t.Status == core.MonitorStatusActive {
			s.tasks[t.TaskID] = &t
		}
	}
	s.mu.Unlock()
	s.logger.Info("price monitor restored snapshot", "active_tasks", len(s.tasks))

	s.optionSource.SetCallback(s.onPriceUpdate)
	s.spotSource.SetCallback(s.onPriceUpdate)
	if err := s.optionSource.Start(ctx); err != nil {
		return fmt.Errorf("monitor: start option source: %w", err)
	}
	if err := s.spotSource.Start(ctx); err != nil {
		return fmt.Errorf("monitor: start spot source: %w", err)
	}
	s.resyncSources()

	sweepCtx, cancel := context.WithCancel(ctx)
	s.sweepCancel = cancel
	s.sweepWG.Add(1)
	go s.expirySweepLoop(sweepCtx)

	return nil
}

// Stop halts the expiry sweep and both ticker sources.
func (s *Service) Stop() error {
	if s.sweepCancel != nil {
		s.sweepCancel()
	}
	s.sweepWG.Wait()
	if err := s.optionSource.Stop(); err != nil {
		s.logger.Warn("option source stop error", "error", err)
	}
	if err := s.spotSource.Stop(); err != nil {
		s.logger.Warn("spot source stop error", "error", err)
	}
	return nil
}

// AddTask validates and registers a new monitor task. Returns
// apperrors.ErrDuplicateTaskID, apperrors.ErrCapacityExceeded, or a
// symbol validation error (wrap of ErrUnsupportedSpotSymbol / a parse
// error) on rejection.
func (s *Service) AddTask(task core.MonitorTask) (core.MonitorTask, error) {
	if !task.Instrument.Valid() {
		return core.MonitorTask{}, fmt.Errorf("monitor: invalid instrument_type %q", task.Instrument)
	}
	if task.Instrument == core.InstrumentOption {
		if err := core.ParseOptionSymbol(task.MonitorSymbol); err != nil {
			return core.MonitorTask{}, err
		}
	} else {
		if err := core.ValidateSpotSymbol(task.MonitorSymbol); err != nil {
			return core.MonitorTask{}, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedSpotSymbol, err)
		}
	}
	if task.TaskID == "" {
		return core.MonitorTask{}, fmt.Errorf("monitor: task_id is required")
	}

	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.ExpiresAt.IsZero() {
		task.ExpiresAt = now.Add(s.cfg.DefaultTimeout)
	}
	task.Status = core.MonitorStatusActive
	task.TriggeredAt = nil
	task.CurrentPrice = nil
	task.PreviousPrice = nil

	s.mu.Lock()
	if _, exists := s.tasks[task.TaskID]; exists {
		s.mu.Unlock()
		return core.MonitorTask{}, apperrors.ErrDuplicateTaskID
	}
	if len(s.tasks) >= s.cfg.MaxActiveTasks {
		s.mu.Unlock()
		return core.MonitorTask{}, apperrors.ErrCapacityExceeded
	}
	s.tasks[task.TaskID] = &task
	count := len(s.tasks)
	s.mu.Unlock()

	s.metrics.SetActiveTaskCount(count)
	s.resyncSources()
	s.persistSnapshot()
	s.logger.Info("monitor task added", "task_id", task.TaskID, "symbol", task.MonitorSymbol, "target_price", task.TargetPrice)
	return task, nil
}

// RemoveTask cancels an active task (status -> cancelled) and drops it
// from the active set. Returns apperrors.ErrTaskNotFound if absent.
func (s *Service) RemoveTask(taskID string) error {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return apperrors.ErrTaskNotFound
	}
	task.Status = core.MonitorStatusCancelled
	delete(s.tasks, taskID)
	count := len(s.tasks)
	s.mu.Unlock()

	s.metrics.SetActiveTaskCount(count)
	s.resyncSources()
	s.persistSnapshot()
	s.logger.Info("monitor task cancelled", "task_id", taskID)
	return nil
}

// GetTask returns a copy of one active task.
func (s *Service) GetTask(taskID string) (core.MonitorTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return core.MonitorTask{}, false
	}
	return *task, true
}

// ListTasks returns a copy of every currently active task.
func (s *Service) ListTasks() []core.MonitorTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.MonitorTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, *task)
	}
	return out
}

// triggerEvent is the snapshot of a task at the instant it crossed,
// captured while still holding mu so the webhook payload is built from a
// consistent view.
type triggerEvent struct {
	task      core.MonitorTask
	direction core.TriggerDirection
	triggered decimal.Decimal
	previous  decimal.Decimal
}

// onPriceUpdate is the callback both ticker sources invoke for every
// price tick. It checks every active task watching the updated symbol
// using the cross-detection algorithm in crossdetect.go, firing at most
// one trigger per task for the lifetime of the service.
func (s *Service) onPriceUpdate(update core.TickerUpdate) {
	var triggered []triggerEvent

	s.mu.Lock()
	for id, task := range s.tasks {
		if task.Status != core.MonitorStatusActive || task.MonitorSymbol != update.Symbol {
			continue
		}
		previous := task.CurrentPrice
		result := observe(task, update.Price)
		if !result.Crossed {
			continue
		}
		now := time.Now().UTC()
		task.Status = core.MonitorStatusTriggered
		task.TriggeredAt = &now
		var prevPrice decimal.Decimal
		if previous != nil {
			prevPrice = *previous
		}
		triggered = append(triggered, triggerEvent{
			task:      *task,
			direction: result.Direction,
			triggered: update.Price,
			previous:  prevPrice,
		})
		delete(s.tasks, id)
	}
	count := len(s.tasks)
	s.mu.Unlock()

	if len(triggered) == 0 {
		return
	}

	s.metrics.SetActiveTaskCount(count)
	s.resyncSources()
	s.persistSnapshot()

	for _, ev := range triggered {
		s.dispatchTrigger(ev)
	}
}

func (s *Service) dispatchTrigger(ev triggerEvent) {
	task := ev.task
	s.metrics.IncMonitorTrigger(context.Background(), string(ev.direction))
	s.logger.Info("monitor task triggered", "task_id", task.TaskID, "direction", ev.direction,
		"triggered_price", ev.triggered, "target_price", task.TargetPrice)

	var optionSymbol string
	if task.OptionInfo != nil {
		optionSymbol = task.OptionInfo.Symbol
	}
	payload := core.WebhookPayload{
		TaskID:            task.TaskID,
		OptionSymbol:      optionSymbol,
		MonitorSymbol:     task.MonitorSymbol,
		MonitorInstrument: task.Instrument,
		TargetPrice:       task.TargetPrice,
		TriggeredPrice:    ev.triggered,
		PreviousPrice:     ev.previous,
		TriggerDirection:  ev.direction,
		TriggeredAt:       task.TriggeredAt.Format(time.RFC3339),
		StrategyID:        task.StrategyID,
		LevelID:           task.LevelID,
		MonitorType:       task.MonitorType,
		Metadata:          task.Metadata,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.dispatcher.Send(ctx, task.WebhookURL, payload)
	}()
}

// expirySweepLoop periodically scans for active tasks past ExpiresAt and
// retires them without firing a webhook.
func (s *Service) expirySweepLoop(ctx context.Context) {
	defer s.sweepWG.Done()
	interval := s.cfg.ExpirySweepInterval
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Service) sweepExpired() {
	now := time.Now().UTC()
	var expiredIDs []string

	s.mu.Lock()
	for id, task := range s.tasks {
		if task.Status == core.MonitorStatusActive && now.After(task.ExpiresAt) {
			task.Status = core.MonitorStatusExpired
			expiredIDs = append(expiredIDs, id)
			delete(s.tasks, id)
		}
	}
	count := len(s.tasks)
	s.mu.Unlock()

	if len(expiredIDs) == 0 {
		return
	}
	s.metrics.SetActiveTaskCount(count)
	for range expiredIDs {
		s.metrics.IncMonitorExpired(context.Background())
	}
	s.resyncSources()
	s.persistSnapshot()
	s.logger.Info("monitor expiry sweep retired tasks", "count", len(expiredIDs), "task_ids", expiredIDs)
}

func (s *Service) resyncSources() {
	optionSet := make(map[string]struct{})
	spotSet := make(map[string]struct{})

	s.mu.Lock()
	for _, task := range s.tasks {
		if task.Status != core.MonitorStatusActive {
			continue
		}
		if task.Instrument == core.InstrumentOption {
			optionSet[task.MonitorSymbol] = struct{}{}
		} else {
			spotSet[task.MonitorSymbol] = struct{}{}
		}
	}
	s.mu.Unlock()

	if err := s.optionSource.UpdateSymbols(optionSet); err != nil {
		s.logger.Error("option source resync failed", "error", err)
	}
	if err := s.spotSource.UpdateSymbols(spotSet); err != nil {
		s.logger.Error("spot source resync failed", "error", err)
	}
}

func (s *Service) persistSnapshot() {
	tasks := s.ListTasks()
	if err := s.snapshotRepo.Save(tasks); err != nil {
		s.logger.Error("monitor snapshot persist failed", "error", err)
	}
}
