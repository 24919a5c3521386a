package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"saffy-workflow/internal/domain"
)

// WebhookNotifier 报警事件推送到外部 webhook（值班/通知系统）
type WebhookNotifier struct {
	httpClient  *resty.Client
	url         string
	minSeverity domain.AlertSeverity
	logger      *zap.Logger
}

// NewWebhookNotifier minSeverity 为空时推送所有报警事件
func NewWebhookNotifier(url string, minSeverity domain.AlertSeverity, logger *zap.Logger) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if logger == nil {
		logger = zap.NewNop()
	}
	if minSeverity == "" {
		minSeverity = domain.SeverityLow
	}
	return &WebhookNotifier{
		httpClient:  client,
		url:         url,
		minSeverity: minSeverity,
		logger:      logger,
	}
}

// Accepts 仅报警事件且级别不低于 minSeverity
func (n *WebhookNotifier) Accepts(e Event) bool {
	if e.EntityType != "alert" {
		return false
	}
	return domain.AlertSeverity(e.Severity).Rank() >= n.minSeverity.Rank()
}

func (n *WebhookNotifier) Publish(ctx context.Context, e Event) error {
	if !n.Accepts(e) {
		return nil
	}
	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(e).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.IsError() {
		n.logger.Warn("Webhook returned error status",
			zap.String("event_type", e.Type),
			zap.String("entity_id", e.EntityID),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
