package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/peter29ljf/bybitoption/internal/core"
	"github.com/peter29ljf/bybitoption/pkg/telemetry"
)

// WebhookDispatcher delivers a triggered task's payload to its
// webhook_url at most once. It deliberately does not retry: a task's
// status is already CAS'd to triggered before Send is ever called, so a
// failed delivery is logged and dropped rather than attempted again,
// retrying here would risk a second, inconsistent delivery racing a
// caller's own reconciliation.
type WebhookDispatcher struct {
	client  *http.Client
	logger  core.ILogger
	metrics *telemetry.MetricsHolder
}

// NewWebhookDispatcher builds a dispatcher with the given per-request
// timeout.
func NewWebhookDispatcher(timeout time.Duration, logger core.ILogger, metrics *telemetry.MetricsHolder) *WebhookDispatcher {
	return &WebhookDispatcher{
		client:  &http.Client{Timeout: timeout},
		logger:  logger.WithField("component", "webhook_dispatcher"),
		metrics: metrics,
	}
}

// Send POSTs payload to url as JSON. A non-2xx response or a transport
// error is logged at warn level and counted; neither is returned as an
// error the caller needs to act on, since there is nothing further to do.
func (d *WebhookDispatcher) Send(ctx context.Context, url string, payload core.WebhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error("webhook payload marshal failed", "task_id", payload.TaskID, "error", err)
		d.metrics.IncWebhookDelivery(ctx, "marshal_error")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Error("webhook request build failed", "task_id", payload.TaskID, "error", err)
		d.metrics.IncWebhookDelivery(ctx, "build_error")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed", "task_id", payload.TaskID, "url", url, "error", err)
		d.metrics.IncWebhookDelivery(ctx, "transport_error")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.logger.Info("webhook delivered", "task_id", payload.TaskID, "status", resp.StatusCode)
		d.metrics.IncWebhookDelivery(ctx, "success")
		return
	}

	d.logger.Warn("webhook delivery rejected", "task_id", payload.TaskID, "status", resp.StatusCode,
		"error", fmt.Sprintf("non-2xx response: %d", resp.StatusCode))
	d.metrics.IncWebhookDelivery(ctx, "rejected")
}
