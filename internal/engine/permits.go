package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/events"
	"saffy-workflow/internal/export"
	"saffy-workflow/internal/permit"
	"saffy-workflow/internal/repository"
)

// PermitFilter 许可证列表过滤（Status 按投影后的状态匹配，可为 expired）
type PermitFilter struct {
	Status domain.PermitStatus
	Type   domain.PermitType
}

// projectPermit 返回值使用读取时投影的状态
func (e *Engine) projectPermit(p *domain.WorkPermit) *domain.WorkPermit {
	p.Status = p.EffectiveStatus(e.now())
	return p
}

func (e *Engine) permitEvent(ctx context.Context, typ string, p *domain.WorkPermit, actor domain.Actor, detail map[string]any) {
	e.publish(ctx, events.Event{
		Type:       typ,
		EntityType: repository.EntityPermit,
		EntityID:   p.ID,
		Status:     string(p.Status),
		Version:    p.Version,
		ActorID:    actor.ID,
		Detail:     detail,
	})
}

// maxPermitNumberAttempts 编号冲突时最多尝试的次数
const maxPermitNumberAttempts = 5

// CreatePermit 分配许可证编号、按控制表生成审批阶段，状态 draft
func (e *Engine) CreatePermit(ctx context.Context, actor domain.Actor, draft *domain.WorkPermit) (*domain.WorkPermit, error) {
	now := e.now()
	if draft == nil {
		return nil, domain.NewValidationError(repository.EntityPermit, "permit", "is required")
	}
	in := draft.Clone()
	in.ID = e.newID()

	// 先校验再占用编号，避免无效请求消耗序号
	if _, err := e.chain.Create(in, actor, now); err != nil {
		e.logFailure("Permit rejected", err, zap.String("actor_id", actor.ID))
		return nil, err
	}
	var saved *domain.WorkPermit
	for attempt := 1; ; attempt++ {
		number, err := e.seq.Next(ctx, now)
		if err != nil {
			e.logger.Error("Failed to allocate permit number", zap.Error(err))
			return nil, err
		}
		in.PermitNumber = number
		p, err := e.chain.Create(in, actor, now)
		if err != nil {
			return nil, err
		}
		saved, err = create(ctx, e, e.store.Permits, repository.EntityPermit, actor, p)
		if err == nil {
			break
		}
		// 编号已被占用（计数器落后于存储）时取下一个编号
		if !errors.Is(err, domain.ErrDuplicateKey) || attempt >= maxPermitNumberAttempts {
			return nil, err
		}
		e.logger.Warn("Permit number already in use, allocating the next one",
			zap.String("permit_number", number),
			zap.Int("attempt", attempt),
		)
	}
	e.permitEvent(ctx, events.PermitCreated, saved, actor, map[string]any{"permit_number": saved.PermitNumber, "type": saved.Type})
	return e.projectPermit(saved), nil
}

// GetPermit 读取许可证（expired 投影）
func (e *Engine) GetPermit(ctx context.Context, id string) (*domain.WorkPermit, error) {
	p, err := e.store.Permits.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.projectPermit(p), nil
}

// ListPermits 列出许可证
func (e *Engine) ListPermits(ctx context.Context, f PermitFilter) ([]*domain.WorkPermit, error) {
	all, err := e.store.Permits.List(ctx, repository.ListFilter{})
	if err != nil {
		e.logger.Error("Failed to list permits", zap.Error(err))
		return nil, err
	}
	out := make([]*domain.WorkPermit, 0, len(all))
	for _, p := range all {
		e.projectPermit(p)
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// SubmitPermit draft -> submitted
func (e *Engine) SubmitPermit(ctx context.Context, actor domain.Actor, id string) (*domain.WorkPermit, error) {
	saved, err := apply(ctx, e, e.store.Permits, repository.EntityPermit, "submit", id, actor, func(cur *domain.WorkPermit) (*domain.WorkPermit, error) {
		return e.chain.Submit(cur, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.permitEvent(ctx, events.PermitSubmitted, saved, actor, nil)
	return e.projectPermit(saved), nil
}

// DecidePermitStage 当前阶段审批；actor.Role 必须等于阶段要求角色
func (e *Engine) DecidePermitStage(ctx context.Context, actor domain.Actor, id string, req permit.DecideRequest) (*domain.WorkPermit, error) {
	saved, err := apply(ctx, e, e.store.Permits, repository.EntityPermit, "decide", id, actor, func(cur *domain.WorkPermit) (*domain.WorkPermit, error) {
		return e.chain.Decide(cur, req, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.permitEvent(ctx, events.PermitStageDecided, saved, actor, map[string]any{"stage": req.Stage, "decision": req.Decision})
	return e.projectPermit(saved), nil
}

// RequestPermitChanges 退回 draft 并清空所有审批结论
func (e *Engine) RequestPermitChanges(ctx context.Context, actor domain.Actor, id, note string) (*domain.WorkPermit, error) {
	saved, err := apply(ctx, e, e.store.Permits, repository.EntityPermit, "request_changes", id, actor, func(cur *domain.WorkPermit) (*domain.WorkPermit, error) {
		return e.chain.RequestChanges(cur, note, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.permitEvent(ctx, events.PermitChangesRequested, saved, actor, map[string]any{"note": note})
	return e.projectPermit(saved), nil
}

// ActivatePermit approved -> active
func (e *Engine) ActivatePermit(ctx context.Context, actor domain.Actor, id string) (*domain.WorkPermit, error) {
	saved, err := apply(ctx, e, e.store.Permits, repository.EntityPermit, "activate", id, actor, func(cur *domain.WorkPermit) (*domain.WorkPermit, error) {
		return e.chain.Activate(cur, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.permitEvent(ctx, events.PermitActivated, saved, actor, nil)
	return e.projectPermit(saved), nil
}

// ClosePermit active -> completed
func (e *Engine) ClosePermit(ctx context.Context, actor domain.Actor, id string, closeOut domain.CloseOut) (*domain.WorkPermit, error) {
	saved, err := apply(ctx, e, e.store.Permits, repository.EntityPermit, "close", id, actor, func(cur *domain.WorkPermit) (*domain.WorkPermit, error) {
		return e.chain.Close(cur, closeOut, actor, e.now())
	})
	if err != nil {
		return nil, err
	}
	e.permitEvent(ctx, events.PermitClosed, saved, actor, nil)
	return e.projectPermit(saved), nil
}

// DeletePermit 仅 draft 可删除
func (e *Engine) DeletePermit(ctx context.Context, actor domain.Actor, id string) error {
	cur, err := e.store.Permits.Get(ctx, id)
	if err != nil {
		e.logFailure("Failed to load entity", err, zap.String("entity", repository.EntityPermit), zap.String("entity_id", id))
		return err
	}
	if err := e.chain.CanDelete(cur); err != nil {
		e.logFailure("Transition rejected", err, zap.String("entity", repository.EntityPermit), zap.String("entity_id", id), zap.String("action", "delete"))
		return err
	}
	if err := e.store.Permits.Delete(ctx, id, cur.Version); err != nil {
		e.logFailure("Failed to delete entity", err, zap.String("entity", repository.EntityPermit), zap.String("entity_id", id))
		return err
	}
	e.logger.Info("Entity deleted",
		zap.String("entity", repository.EntityPermit),
		zap.String("entity_id", id),
		zap.String("actor_id", actor.ID),
	)
	e.permitEvent(ctx, events.PermitDeleted, cur, actor, nil)
	return nil
}

// ExportPermitRegister 许可证登记册 xlsx
func (e *Engine) ExportPermitRegister(ctx context.Context, f PermitFilter) ([]byte, error) {
	permits, err := e.ListPermits(ctx, f)
	if err != nil {
		return nil, err
	}
	return export.PermitRegister(permits, e.now())
}
