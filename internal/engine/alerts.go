package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"saffy-workflow/internal/alert"
	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/events"
	"saffy-workflow/internal/repository"
)

// AlertFilter 报警列表过滤
type AlertFilter struct {
	Status   domain.AlertStatus
	Severity domain.AlertSeverity
}

func (e *Engine) alertEvent(ctx context.Context, typ string, a *domain.FacilityAlert, actor domain.Actor, detail map[string]any) {
	e.publish(ctx, events.Event{
		Type:       typ,
		EntityType: repository.EntityAlert,
		EntityID:   a.ID,
		Status:     string(a.Status),
		Version:    a.Version,
		ActorID:    actor.ID,
		Severity:   string(a.Severity),
		Detail:     detail,
	})
}

// RaiseAlert 根据传感器读数创建报警
func (e *Engine) RaiseAlert(ctx context.Context, actor domain.Actor, reading domain.SensorReading, th domain.Thresholds) (*domain.FacilityAlert, error) {
	a, err := e.alerts.Raise(e.newID(), reading, th, actor, e.now())
	if err != nil {
		e.logFailure("Alert rejected", err, zap.String("sensor_id", reading.SensorID))
		return nil, err
	}
	saved, err := create(ctx, e, e.store.Alerts, repository.EntityAlert, actor, a)
	if err != nil {
		return nil, err
	}
	e.alertEvent(ctx, events.AlertRaised, saved, actor, map[string]any{
		"sensor_id":     reading.SensorID,
		"current_value": reading.CurrentValue,
		"trend":         reading.Trend,
	})
	return saved, nil
}

// ReportAlert 人工 / AI 上报
func (e *Engine) ReportAlert(ctx context.Context, actor domain.Actor, r alert.ManualReport) (*domain.FacilityAlert, error) {
	a, err := e.alerts.Report(e.newID(), r, actor, e.now())
	if err != nil {
		e.logFailure("Alert rejected", err, zap.String("actor_id", actor.ID))
		return nil, err
	}
	saved, err := create(ctx, e, e.store.Alerts, repository.EntityAlert, actor, a)
	if err != nil {
		return nil, err
	}
	e.alertEvent(ctx, events.AlertRaised, saved, actor, map[string]any{"source": saved.Source})
	return saved, nil
}

func (e *Engine) GetAlert(ctx context.Context, id string) (*domain.FacilityAlert, error) {
	return e.store.Alerts.Get(ctx, id)
}

// ListAlerts 列出报警
func (e *Engine) ListAlerts(ctx context.Context, f AlertFilter) ([]*domain.FacilityAlert, error) {
	all, err := e.store.Alerts.List(ctx, repository.ListFilter{Status: string(f.Status)})
	if err != nil {
		e.logger.Error("Failed to list alerts", zap.Error(err))
		return nil, err
	}
	if f.Severity == "" {
		return all, nil
	}
	out := make([]*domain.FacilityAlert, 0, len(all))
	for _, a := range all {
		if a.Severity == f.Severity {
			out = append(out, a)
		}
	}
	return out, nil
}

// AcknowledgeAlert active -> acknowledged
func (e *Engine) AcknowledgeAlert(ctx context.Context, actor domain.Actor, id, notes string) (*domain.FacilityAlert, error) {
	saved, err := apply(ctx, e, e.store.Alerts, repository.EntityAlert, "acknowledge", id, actor, func(cur *domain.FacilityAlert) (*domain.FacilityAlert, error) {
		return e.alerts.Acknowledge(cur, notes, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.alertEvent(ctx, events.AlertAcknowledged, saved, actor, nil)
	return saved, nil
}

// SpawnTask 由报警派生维护任务。任务先落库，报警写入失败（含版本冲突）时删除该任务。
func (e *Engine) SpawnTask(ctx context.Context, actor domain.Actor, alertID string, draft *domain.MaintenanceTask) (*domain.FacilityAlert, *domain.MaintenanceTask, error) {
	fields := []zap.Field{zap.String("alert_id", alertID), zap.String("actor_id", actor.ID)}
	cur, err := e.store.Alerts.Get(ctx, alertID)
	if err != nil {
		e.logFailure("Failed to load entity", err, fields...)
		return nil, nil, err
	}
	if draft == nil {
		draft = &domain.MaintenanceTask{}
	}
	d := draft.Clone()
	d.ID = e.newID()
	now := e.now()
	if d.ScheduledDate.IsZero() {
		d.ScheduledDate = now
	}
	if d.DueDate.IsZero() {
		d.DueDate = d.ScheduledDate.Add(defaultDueWindow(cur.Severity))
	}

	nextAlert, task, err := e.alerts.SpawnTask(cur, d, actor, now)
	if err != nil {
		e.logFailure("Transition rejected", err, append(fields, zap.String("status", string(cur.Status)))...)
		return nil, nil, err
	}
	// 草稿指定的或从报警继承的许可证都必须存在
	if task.Safety.PermitID != nil {
		if err := e.ensurePermitExists(ctx, *task.Safety.PermitID); err != nil {
			return nil, nil, err
		}
	}

	savedTask, err := create(ctx, e, e.store.Tasks, repository.EntityTask, actor, task)
	if err != nil {
		return nil, nil, err
	}
	savedAlert, err := e.store.Alerts.Update(ctx, nextAlert, cur.Version)
	if err != nil {
		e.logFailure("Failed to save entity", err, fields...)
		if derr := e.store.Tasks.Delete(ctx, savedTask.ID, savedTask.Version); derr != nil {
			e.logger.Error("Failed to roll back spawned task",
				zap.String("task_id", savedTask.ID),
				zap.Error(derr),
			)
		}
		return nil, nil, err
	}
	e.logger.Info("Entity updated", append(fields,
		zap.String("action", "spawn_task"),
		zap.String("task_id", savedTask.ID),
		zap.Int64("version", savedAlert.Version),
	)...)

	e.taskEvent(ctx, events.TaskScheduled, savedTask, actor, map[string]any{"source_alert_id": alertID})
	e.alertEvent(ctx, events.AlertTaskSpawned, savedAlert, actor, map[string]any{"task_id": savedTask.ID})
	return savedAlert, e.projectTask(savedTask), nil
}

// defaultDueWindow 未指定截止日期时按报警级别给出处理时限
func defaultDueWindow(s domain.AlertSeverity) time.Duration {
	switch s {
	case domain.SeverityCritical:
		return 4 * time.Hour
	case domain.SeverityHigh:
		return 24 * time.Hour
	case domain.SeverityMedium:
		return 72 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// LinkAlertPermit 关联许可证（许可证必须存在）
func (e *Engine) LinkAlertPermit(ctx context.Context, actor domain.Actor, id, permitID string) (*domain.FacilityAlert, error) {
	if permitID != "" {
		if err := e.ensurePermitExists(ctx, permitID); err != nil {
			return nil, err
		}
	}
	saved, err := apply(ctx, e, e.store.Alerts, repository.EntityAlert, "link_permit", id, actor, func(cur *domain.FacilityAlert) (*domain.FacilityAlert, error) {
		return e.alerts.LinkPermit(cur, permitID, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.alertEvent(ctx, events.AlertPermitLinked, saved, actor, map[string]any{"permit_id": permitID})
	return saved, nil
}

// ResolveAlert acknowledged -> resolved；关联任务需已结束
func (e *Engine) ResolveAlert(ctx context.Context, actor domain.Actor, id, resolution string) (*domain.FacilityAlert, error) {
	saved, err := apply(ctx, e, e.store.Alerts, repository.EntityAlert, "resolve", id, actor, func(cur *domain.FacilityAlert) (*domain.FacilityAlert, error) {
		linked, err := e.loadLinkedTasks(ctx, cur)
		if err != nil {
			return nil, err
		}
		return e.alerts.Resolve(cur, resolution, linked, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.alertEvent(ctx, events.AlertResolved, saved, actor, nil)
	return saved, nil
}

// loadLinkedTasks 已删除的任务跳过（由生命周期报告为 unknown）
func (e *Engine) loadLinkedTasks(ctx context.Context, a *domain.FacilityAlert) ([]*domain.MaintenanceTask, error) {
	out := make([]*domain.MaintenanceTask, 0, len(a.LinkedTaskIDs))
	for _, tid := range a.LinkedTaskIDs {
		t, err := e.store.Tasks.Get(ctx, tid)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DismissAlert 误报，终态
func (e *Engine) DismissAlert(ctx context.Context, actor domain.Actor, id, reason string) (*domain.FacilityAlert, error) {
	saved, err := apply(ctx, e, e.store.Alerts, repository.EntityAlert, "dismiss", id, actor, func(cur *domain.FacilityAlert) (*domain.FacilityAlert, error) {
		return e.alerts.Dismiss(cur, reason, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.alertEvent(ctx, events.AlertDismissed, saved, actor, map[string]any{"reason": reason})
	return saved, nil
}
