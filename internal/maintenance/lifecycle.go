// Package maintenance 维护任务状态机。
// overdue 是读取时的投影（domain.MaintenanceTask.EffectiveStatus），这里从不写入。
package maintenance

import (
	"fmt"
	"strings"
	"time"

	"saffy-workflow/internal/domain"
)

const entityName = "task"

// 任务历史动作
const (
	ActionScheduled    = "scheduled"
	ActionStarted      = "started"
	ActionCompleted    = "completed"
	ActionCancelled    = "cancelled"
	ActionPermitLinked = "permit_linked"
)

// Lifecycle 维护任务生命周期
type Lifecycle struct{}

func NewLifecycle() *Lifecycle { return &Lifecycle{} }

func transitionError(t *domain.MaintenanceTask, action string, required ...domain.TaskStatus) *domain.InvalidTransitionError {
	req := make([]string, 0, len(required))
	for _, s := range required {
		req = append(req, string(s))
	}
	return &domain.InvalidTransitionError{
		Entity:   entityName,
		ID:       t.ID,
		Action:   action,
		Current:  string(t.Status),
		Required: req,
	}
}

// Schedule 创建任务，状态 scheduled；dueDate 不能早于 scheduledDate
func (l *Lifecycle) Schedule(t *domain.MaintenanceTask, actor domain.Actor, now time.Time) (*domain.MaintenanceTask, error) {
	v := &domain.ValidationError{Entity: entityName}
	if strings.TrimSpace(t.Title) == "" {
		v.Add("title", "is required")
	}
	if strings.TrimSpace(t.Location) == "" {
		v.Add("location", "is required")
	}
	if t.Category != "" && !t.Category.Valid() {
		v.Add("category", fmt.Sprintf("unknown category %q", t.Category))
	}
	if t.Priority != "" && !t.Priority.Valid() {
		v.Add("priority", "must be low|medium|high|critical")
	}
	if t.ScheduledDate.IsZero() {
		v.Add("scheduledDate", "is required")
	}
	if t.DueDate.IsZero() {
		v.Add("dueDate", "is required")
	}
	if !t.ScheduledDate.IsZero() && !t.DueDate.IsZero() && t.DueDate.Before(t.ScheduledDate) {
		v.Add("dueDate", "must not be before scheduledDate")
	}
	if t.EstimatedDuration < 0 {
		v.Add("estimatedDuration", "cannot be negative")
	}
	seen := map[string]bool{}
	for i, item := range t.Checklist {
		if item.ID == "" {
			v.Add(fmt.Sprintf("checklist[%d].id", i), "is required")
		} else if seen[item.ID] {
			v.Add(fmt.Sprintf("checklist[%d].id", i), "is duplicated")
		}
		seen[item.ID] = true
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	out := t.Clone()
	if out.Category == "" {
		out.Category = domain.CategoryCorrective
	}
	if out.Priority == "" {
		out.Priority = domain.PriorityMedium
	}
	for i := range out.Checklist {
		out.Checklist[i].Done = false
	}
	out.Status = domain.TaskScheduled
	out.ActualDuration = nil
	out.StartedAt = nil
	out.CompletedDate = nil
	out.Completion = nil
	out.History = nil
	out.AppendHistory(ActionScheduled, actor.ID, now, "")
	out.CreatedAt = now
	out.UpdatedAt = now
	return out, nil
}

// LinkPermit 为任务关联许可证（结束的任务不可再关联）
func (l *Lifecycle) LinkPermit(t *domain.MaintenanceTask, permitID string, actor domain.Actor, now time.Time) (*domain.MaintenanceTask, error) {
	if t.Status != domain.TaskScheduled && t.Status != domain.TaskInProgress {
		return nil, transitionError(t, "link permit", domain.TaskScheduled, domain.TaskInProgress)
	}
	if strings.TrimSpace(permitID) == "" {
		return nil, domain.NewValidationError(entityName, "permitId", "is required")
	}
	out := t.Clone()
	id := permitID
	out.Safety.PermitID = &id
	out.AppendHistory(ActionPermitLinked, actor.ID, now, permitID)
	out.UpdatedAt = now
	return out, nil
}

// Begin scheduled -> in_progress。
// permitRequired 的任务必须传入已关联且当前为 active 的许可证（由调用方加载）。
func (l *Lifecycle) Begin(t *domain.MaintenanceTask, linkedPermit *domain.WorkPermit, actor domain.Actor, now time.Time) (*domain.MaintenanceTask, error) {
	if t.Status != domain.TaskScheduled {
		return nil, transitionError(t, "begin", domain.TaskScheduled)
	}
	if t.Safety.PermitRequired {
		if t.Safety.PermitID == nil || *t.Safety.PermitID == "" {
			return nil, &domain.PermitNotActiveError{TaskID: t.ID}
		}
		if linkedPermit == nil || linkedPermit.ID != *t.Safety.PermitID {
			return nil, &domain.PermitNotActiveError{TaskID: t.ID, PermitID: *t.Safety.PermitID, PermitStatus: "unknown"}
		}
		if st := linkedPermit.EffectiveStatus(now); st != domain.PermitActive {
			return nil, &domain.PermitNotActiveError{TaskID: t.ID, PermitID: linkedPermit.ID, PermitStatus: string(st)}
		}
	}
	out := t.Clone()
	out.Status = domain.TaskInProgress
	startedAt := now
	out.StartedAt = &startedAt
	out.AppendHistory(ActionStarted, actor.ID, now, "")
	out.UpdatedAt = now
	return out, nil
}

// Complete in_progress -> completed；所有必选清单项必须完成
func (l *Lifecycle) Complete(t *domain.MaintenanceTask, data domain.CompletionData, actor domain.Actor, now time.Time) (*domain.MaintenanceTask, error) {
	if t.Status != domain.TaskInProgress {
		return nil, transitionError(t, "complete", domain.TaskInProgress)
	}

	out := t.Clone()
	v := &domain.ValidationError{Entity: entityName}
	index := make(map[string]int, len(out.Checklist))
	for i, item := range out.Checklist {
		index[item.ID] = i
	}
	for _, r := range data.Checklist {
		i, ok := index[r.ItemID]
		if !ok {
			v.Add("checklist", fmt.Sprintf("unknown checklist item %q", r.ItemID))
			continue
		}
		out.Checklist[i].Done = r.Done
	}
	for _, item := range out.Checklist {
		if item.Mandatory && !item.Done {
			v.Add("checklist."+item.ID, "mandatory item is not done")
		}
	}
	if data.ActualDuration < 0 {
		v.Add("actualDuration", "cannot be negative")
	}
	if data.Cost.Labor < 0 || data.Cost.Parts < 0 || data.Cost.External < 0 {
		v.Add("cost", "amounts cannot be negative")
	}
	if data.Feedback != nil && (data.Feedback.Rating < 1 || data.Feedback.Rating > 5) {
		v.Add("feedback.rating", "must be between 1 and 5")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	actual := data.ActualDuration
	out.ActualDuration = &actual
	completedAt := now
	out.CompletedDate = &completedAt
	out.Completion = &domain.CompletionRecord{
		CompletedBy: actor.ID,
		Cost:        data.Cost,
		TotalCost:   data.Cost.Total(),
		Feedback:    data.Feedback,
		Notes:       data.Notes,
	}
	out.Status = domain.TaskCompleted
	out.AppendHistory(ActionCompleted, actor.ID, now, data.Notes)
	out.UpdatedAt = now
	return out, nil
}

// Cancel scheduled|in_progress -> cancelled（终态）
func (l *Lifecycle) Cancel(t *domain.MaintenanceTask, reason string, actor domain.Actor, now time.Time) (*domain.MaintenanceTask, error) {
	if t.Status != domain.TaskScheduled && t.Status != domain.TaskInProgress {
		return nil, transitionError(t, "cancel", domain.TaskScheduled, domain.TaskInProgress)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, domain.NewValidationError(entityName, "reason", "is required")
	}
	out := t.Clone()
	out.Status = domain.TaskCancelled
	out.CancelReason = reason
	out.AppendHistory(ActionCancelled, actor.ID, now, reason)
	out.UpdatedAt = now
	return out, nil
}
