package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/events"
	"saffy-workflow/internal/repository"
)

// TaskFilter 任务列表过滤（Status 按投影后的状态匹配，可为 overdue）
type TaskFilter struct {
	Status     domain.TaskStatus
	AssignedTo string
}

func (e *Engine) projectTask(t *domain.MaintenanceTask) *domain.MaintenanceTask {
	t.Status = t.EffectiveStatus(e.now())
	return t
}

func (e *Engine) taskEvent(ctx context.Context, typ string, t *domain.MaintenanceTask, actor domain.Actor, detail map[string]any) {
	e.publish(ctx, events.Event{
		Type:       typ,
		EntityType: repository.EntityTask,
		EntityID:   t.ID,
		Status:     string(t.Status),
		Version:    t.Version,
		ActorID:    actor.ID,
		Detail:     detail,
	})
}

// ScheduleTask 创建维护任务，状态 scheduled
func (e *Engine) ScheduleTask(ctx context.Context, actor domain.Actor, draft *domain.MaintenanceTask) (*domain.MaintenanceTask, error) {
	if draft == nil {
		return nil, domain.NewValidationError(repository.EntityTask, "task", "is required")
	}
	in := draft.Clone()
	in.ID = e.newID()
	if in.Safety.PermitID != nil {
		if err := e.ensurePermitExists(ctx, *in.Safety.PermitID); err != nil {
			return nil, err
		}
	}
	t, err := e.tasks.Schedule(in, actor, e.now())
	if err != nil {
		e.logFailure("Task rejected", err, zap.String("actor_id", actor.ID))
		return nil, err
	}
	saved, err := create(ctx, e, e.store.Tasks, repository.EntityTask, actor, t)
	if err != nil {
		return nil, err
	}
	e.taskEvent(ctx, events.TaskScheduled, saved, actor, nil)
	return e.projectTask(saved), nil
}

func (e *Engine) ensurePermitExists(ctx context.Context, permitID string) error {
	if _, err := e.store.Permits.Get(ctx, permitID); err != nil {
		e.logFailure("Linked permit unavailable", err, zap.String("permit_id", permitID))
		return err
	}
	return nil
}

// GetTask 读取任务（overdue 投影）
func (e *Engine) GetTask(ctx context.Context, id string) (*domain.MaintenanceTask, error) {
	t, err := e.store.Tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.projectTask(t), nil
}

// ListTasks 列出任务
func (e *Engine) ListTasks(ctx context.Context, f TaskFilter) ([]*domain.MaintenanceTask, error) {
	all, err := e.store.Tasks.List(ctx, repository.ListFilter{})
	if err != nil {
		e.logger.Error("Failed to list tasks", zap.Error(err))
		return nil, err
	}
	out := make([]*domain.MaintenanceTask, 0, len(all))
	for _, t := range all {
		e.projectTask(t)
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.AssignedTo != "" && t.AssignedTo != f.AssignedTo {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// BeginTask scheduled -> in_progress；需要许可证的任务由这里加载关联许可证后交给生命周期判断
func (e *Engine) BeginTask(ctx context.Context, actor domain.Actor, id string) (*domain.MaintenanceTask, error) {
	saved, err := apply(ctx, e, e.store.Tasks, repository.EntityTask, "begin", id, actor, func(cur *domain.MaintenanceTask) (*domain.MaintenanceTask, error) {
		linked, err := e.loadLinkedPermit(ctx, cur)
		if err != nil {
			return nil, err
		}
		return e.tasks.Begin(cur, linked, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.taskEvent(ctx, events.TaskStarted, saved, actor, nil)
	return e.projectTask(saved), nil
}

// loadLinkedPermit 许可证不存在时返回 nil（由生命周期报告 PermitNotActive）
func (e *Engine) loadLinkedPermit(ctx context.Context, t *domain.MaintenanceTask) (*domain.WorkPermit, error) {
	if !t.Safety.PermitRequired || t.Safety.PermitID == nil || *t.Safety.PermitID == "" {
		return nil, nil
	}
	p, err := e.store.Permits.Get(ctx, *t.Safety.PermitID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// CompleteTask in_progress -> completed
func (e *Engine) CompleteTask(ctx context.Context, actor domain.Actor, id string, data domain.CompletionData) (*domain.MaintenanceTask, error) {
	saved, err := apply(ctx, e, e.store.Tasks, repository.EntityTask, "complete", id, actor, func(cur *domain.MaintenanceTask) (*domain.MaintenanceTask, error) {
		return e.tasks.Complete(cur, data, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	detail := map[string]any{"total_cost": saved.Completion.TotalCost}
	if saved.ActualDuration != nil {
		detail["actual_duration"] = *saved.ActualDuration
	}
	e.taskEvent(ctx, events.TaskCompleted, saved, actor, detail)
	return e.projectTask(saved), nil
}

// CancelTask scheduled|in_progress -> cancelled
func (e *Engine) CancelTask(ctx context.Context, actor domain.Actor, id, reason string) (*domain.MaintenanceTask, error) {
	saved, err := apply(ctx, e, e.store.Tasks, repository.EntityTask, "cancel", id, actor, func(cur *domain.MaintenanceTask) (*domain.MaintenanceTask, error) {
		return e.tasks.Cancel(cur, reason, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.taskEvent(ctx, events.TaskCancelled, saved, actor, map[string]any{"reason": reason})
	return e.projectTask(saved), nil
}

// LinkTaskPermit 关联许可证（许可证必须存在）
func (e *Engine) LinkTaskPermit(ctx context.Context, actor domain.Actor, id, permitID string) (*domain.MaintenanceTask, error) {
	if permitID != "" {
		if err := e.ensurePermitExists(ctx, permitID); err != nil {
			return nil, err
		}
	}
	saved, err := apply(ctx, e, e.store.Tasks, repository.EntityTask, "link_permit", id, actor, func(cur *domain.MaintenanceTask) (*domain.MaintenanceTask, error) {
		return e.tasks.LinkPermit(cur, permitID, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.taskEvent(ctx, events.TaskPermitLinked, saved, actor, map[string]any{"permit_id": permitID})
	return e.projectTask(saved), nil
}
