package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricMonitorTriggersTotal  = "bybitoption_monitor_triggers_total"
	MetricMonitorExpiredTotal   = "bybitoption_monitor_expired_total"
	MetricMonitorActiveTasks    = "bybitoption_monitor_active_tasks"
	MetricWebhookDeliveryTotal  = "bybitoption_webhook_delivery_total"
	MetricExecutorAttemptsTotal = "bybitoption_executor_attempts_total"
	MetricExecutorSuccessTotal  = "bybitoption_executor_success_total"
	MetricExecutorFailureTotal  = "bybitoption_executor_failure_total"
	MetricExecutorQueueDepth    = "bybitoption_executor_queue_depth"
	MetricLevelsActive          = "bybitoption_levels_active"
)

// MetricsHolder holds initialized instruments for the monitor and
// executor subsystems.
type MetricsHolder struct {
	MonitorTriggersTotal  metric.Int64Counter
	MonitorExpiredTotal   metric.Int64Counter
	MonitorActiveTasks    metric.Int64ObservableGauge
	WebhookDeliveryTotal  metric.Int64Counter
	ExecutorAttemptsTotal metric.Int64Counter
	ExecutorSuccessTotal  metric.Int64Counter
	ExecutorFailureTotal  metric.Int64Counter
	ExecutorQueueDepth    metric.Int64ObservableGauge
	LevelsActive          metric.Int64ObservableGauge

	mu              sync.RWMutex
	activeTasks     int64
	queueDepth      int64
	levelsActiveMap map[string]int64
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder.
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			levelsActiveMap: make(map[string]int64),
		}
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter.
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.MonitorTriggersTotal, err = meter.Int64Counter(MetricMonitorTriggersTotal,
		metric.WithDescription("Total monitor task triggers, by direction"))
	if err != nil {
		return err
	}

	m.MonitorExpiredTotal, err = meter.Int64Counter(MetricMonitorExpiredTotal,
		metric.WithDescription("Total monitor tasks expired by the sweep"))
	if err != nil {
		return err
	}

	m.WebhookDeliveryTotal, err = meter.Int64Counter(MetricWebhookDeliveryTotal,
		metric.WithDescription("Total webhook delivery attempts, by outcome"))
	if err != nil {
		return err
	}

	m.ExecutorAttemptsTotal, err = meter.Int64Counter(MetricExecutorAttemptsTotal,
		metric.WithDescription("Total execution attempts dequeued by the level executor"))
	if err != nil {
		return err
	}

	m.ExecutorSuccessTotal, err = meter.Int64Counter(MetricExecutorSuccessTotal,
		metric.WithDescription("Total executor attempts accepted by the venue"))
	if err != nil {
		return err
	}

	m.ExecutorFailureTotal, err = meter.Int64Counter(MetricExecutorFailureTotal,
		metric.WithDescription("Total executor attempts rejected or erroring"))
	if err != nil {
		return err
	}

	m.MonitorActiveTasks, err = meter.Int64ObservableGauge(MetricMonitorActiveTasks,
		metric.WithDescription("Current number of active monitor tasks"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.activeTasks)
			return nil
		}))
	if err != nil {
		return err
	}

	m.ExecutorQueueDepth, err = meter.Int64ObservableGauge(MetricExecutorQueueDepth,
		metric.WithDescription("Current depth of the level executor's FIFO queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.queueDepth)
			return nil
		}))
	if err != nil {
		return err
	}

	m.LevelsActive, err = meter.Int64ObservableGauge(MetricLevelsActive,
		metric.WithDescription("Current count of non-terminal levels, by status"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for status, val := range m.levelsActiveMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("status", status)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	return nil
}

// SetActiveTaskCount records the Price Monitor's current active task
// count for the MonitorActiveTasks gauge.
func (m *MetricsHolder) SetActiveTaskCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeTasks = int64(n)
}

// SetQueueDepth records the Level Executor's current FIFO queue depth.
func (m *MetricsHolder) SetQueueDepth(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = int64(n)
}

// SetLevelsActive records the count of levels currently in a given status.
func (m *MetricsHolder) SetLevelsActive(status string, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levelsActiveMap[status] = count
}

// GetActiveTaskCount returns the last recorded active task count, used by
// the health server's liveness payload.
func (m *MetricsHolder) GetActiveTaskCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeTasks
}

// IncMonitorTrigger records one monitor task firing in the given direction.
func (m *MetricsHolder) IncMonitorTrigger(ctx context.Context, direction string) {
	if m.MonitorTriggersTotal == nil {
		return
	}
	m.MonitorTriggersTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// IncMonitorExpired records one monitor task expiring unfired.
func (m *MetricsHolder) IncMonitorExpired(ctx context.Context) {
	if m.MonitorExpiredTotal == nil {
		return
	}
	m.MonitorExpiredTotal.Add(ctx, 1)
}

// IncWebhookDelivery records one webhook delivery attempt by outcome.
func (m *MetricsHolder) IncWebhookDelivery(ctx context.Context, outcome string) {
	if m.WebhookDeliveryTotal == nil {
		return
	}
	m.WebhookDeliveryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// IncExecutorAttempt records one level executor dequeue.
func (m *MetricsHolder) IncExecutorAttempt(ctx context.Context) {
	if m.ExecutorAttemptsTotal == nil {
		return
	}
	m.ExecutorAttemptsTotal.Add(ctx, 1)
}

// IncExecutorResult records one level executor outcome.
func (m *MetricsHolder) IncExecutorResult(ctx context.Context, success bool) {
	if success {
		if m.ExecutorSuccessTotal != nil {
			m.ExecutorSuccessTotal.Add(ctx, 1)
		}
		return
	}
	if m.ExecutorFailureTotal != nil {
		m.ExecutorFailureTotal.Add(ctx, 1)
	}
}
