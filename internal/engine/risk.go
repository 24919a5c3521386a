package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/events"
	"saffy-workflow/internal/export"
	"saffy-workflow/internal/repository"
	"saffy-workflow/internal/risk"
)

// ScoreRisk 计算 level 与 grade；输入超出 [1,5] 返回 InvalidInputError
func (e *Engine) ScoreRisk(frequency, severity int) (risk.Result, error) {
	r, err := risk.Score(frequency, severity)
	if err != nil {
		var re *risk.RangeError
		if errors.As(err, &re) {
			return risk.Result{}, &domain.InvalidInputError{Field: re.Field, Value: re.Value, Min: risk.MinInput, Max: risk.MaxInput}
		}
		return risk.Result{}, err
	}
	return r, nil
}

// UpsertRiskItem 新建或更新风险项。
// item.ID 为空或不存在时新建；已存在时 item.Version 必须等于存储中的版本。
func (e *Engine) UpsertRiskItem(ctx context.Context, actor domain.Actor, assessmentID string, item *domain.RiskAssessmentItem) (*domain.RiskAssessmentItem, error) {
	if item == nil {
		return nil, domain.NewValidationError(repository.EntityRiskItem, "item", "is required")
	}
	now := e.now()
	in := item.Clone()
	in.AssessmentID = assessmentID
	if in.Status == "" {
		in.Status = domain.RiskItemPlanned
	}
	if err := domain.ValidateRiskItem(in); err != nil {
		e.logFailure("Risk item rejected", err, zap.String("assessment_id", assessmentID), zap.String("actor_id", actor.ID))
		return nil, err
	}

	var existing *domain.RiskAssessmentItem
	if in.ID != "" {
		cur, err := e.store.RiskItems.Get(ctx, in.ID)
		switch {
		case err == nil:
			existing = cur
		case errors.Is(err, domain.ErrNotFound):
		default:
			e.logger.Error("Failed to load risk item", zap.String("entity_id", in.ID), zap.Error(err))
			return nil, err
		}
	} else {
		in.ID = e.newID()
	}

	var saved *domain.RiskAssessmentItem
	var err error
	if existing == nil {
		in.CreatedAt = now
		in.UpdatedAt = now
		saved, err = create(ctx, e, e.store.RiskItems, repository.EntityRiskItem, actor, in)
	} else {
		if existing.AssessmentID != assessmentID {
			err = domain.NewValidationError(repository.EntityRiskItem, "assessmentId", "item belongs to assessment "+existing.AssessmentID)
			e.logFailure("Risk item rejected", err, zap.String("entity_id", in.ID))
			return nil, err
		}
		in.CreatedAt = existing.CreatedAt
		in.UpdatedAt = now
		saved, err = e.store.RiskItems.Update(ctx, in, item.Version)
		if err != nil {
			e.logFailure("Failed to save entity", err, zap.String("entity", repository.EntityRiskItem), zap.String("entity_id", in.ID))
		} else {
			e.logger.Info("Entity updated",
				zap.String("entity", repository.EntityRiskItem),
				zap.String("entity_id", saved.ID),
				zap.String("from_status", string(existing.Status)),
				zap.String("to_status", string(saved.Status)),
				zap.Int64("version", saved.Version),
			)
		}
	}
	if err != nil {
		return nil, err
	}

	before, _ := saved.Before.Score()
	e.publish(ctx, events.Event{
		Type:       events.RiskItemUpserted,
		EntityType: repository.EntityRiskItem,
		EntityID:   saved.ID,
		Status:     string(saved.Status),
		Version:    saved.Version,
		ActorID:    actor.ID,
		Detail:     map[string]any{"assessment_id": assessmentID, "before_grade": before.Grade},
	})
	return saved, nil
}

// ListRiskItems 某评估下的所有风险项
func (e *Engine) ListRiskItems(ctx context.Context, assessmentID string) ([]*domain.RiskAssessmentItem, error) {
	items, err := e.store.RiskItems.List(ctx, repository.ListFilter{AssessmentID: assessmentID})
	if err != nil {
		e.logger.Error("Failed to list risk items", zap.String("assessment_id", assessmentID), zap.Error(err))
		return nil, err
	}
	return items, nil
}

// AggregateRisk 按 before 等级统计
func (e *Engine) AggregateRisk(ctx context.Context, assessmentID string) (risk.Summary, error) {
	items, err := e.ListRiskItems(ctx, assessmentID)
	if err != nil {
		return risk.Summary{}, err
	}
	return domain.SummarizeRiskItems(items)
}

// ExportRiskRegister 风险登记册 xlsx
func (e *Engine) ExportRiskRegister(ctx context.Context, assessmentID string) ([]byte, error) {
	items, err := e.ListRiskItems(ctx, assessmentID)
	if err != nil {
		return nil, err
	}
	return export.RiskRegister(items)
}
