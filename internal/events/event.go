// Package events 领域事件发布（写入成功后尽力投递，不影响已提交的写）
package events

import (
	"context"
	"errors"
	"time"
)

// 事件类型
const (
	PermitCreated          = "permit.created"
	PermitSubmitted        = "permit.submitted"
	PermitStageDecided     = "permit.stage_decided"
	PermitChangesRequested = "permit.changes_requested"
	PermitActivated        = "permit.activated"
	PermitClosed           = "permit.closed"
	PermitDeleted          = "permit.deleted"

	RiskItemUpserted = "risk_item.upserted"

	TaskScheduled    = "task.scheduled"
	TaskStarted      = "task.started"
	TaskCompleted    = "task.completed"
	TaskCancelled    = "task.cancelled"
	TaskPermitLinked = "task.permit_linked"

	AlertRaised       = "alert.raised"
	AlertAcknowledged = "alert.acknowledged"
	AlertTaskSpawned  = "alert.task_spawned"
	AlertPermitLinked = "alert.permit_linked"
	AlertResolved     = "alert.resolved"
	AlertDismissed    = "alert.dismissed"
)

// Event 领域事件
type Event struct {
	Type       string         `json:"type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Status     string         `json:"status"`
	Version    int64          `json:"version"`
	ActorID    string         `json:"actor_id,omitempty"`
	Severity   string         `json:"severity,omitempty"` // 仅报警事件
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Publisher 事件发布者
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop 丢弃所有事件
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi 依次投递给所有发布者，单个失败不影响其他发布者
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder 记录事件（测试用）
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.Events = append(r.Events, e)
	return nil
}

// Types 已记录的事件类型
func (r *Recorder) Types() []string {
	out := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		out = append(out, e.Type)
	}
	return out
}
