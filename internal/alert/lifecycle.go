// Package alert 设施报警状态机：active -> acknowledged -> resolved，
// active|acknowledged -> dismissed；报警可派生维护任务。
package alert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/maintenance"
)

const entityName = "alert"

// ManualReport 人工/AI 上报的报警（级别由上报方给出）
type ManualReport struct {
	Title    string               `json:"title"`
	Message  string               `json:"message"`
	Category string               `json:"category"`
	Location string               `json:"location,omitempty"`
	Severity domain.AlertSeverity `json:"severity"`
	Source   domain.AlertSource   `json:"source"`
}

// Lifecycle 报警生命周期
type Lifecycle struct {
	policy Policy
	tasks  *maintenance.Lifecycle
}

// NewLifecycle 创建报警生命周期；tasks 用于派生维护任务
func NewLifecycle(policy Policy, tasks *maintenance.Lifecycle) *Lifecycle {
	if policy.ProximityRatio == 0 {
		policy.ProximityRatio = DefaultProximityRatio
	}
	if tasks == nil {
		tasks = maintenance.NewLifecycle()
	}
	return &Lifecycle{policy: policy, tasks: tasks}
}

// Policy 当前策略
func (l *Lifecycle) Policy() Policy { return l.policy }

func transitionError(a *domain.FacilityAlert, action string, required ...domain.AlertStatus) *domain.InvalidTransitionError {
	req := make([]string, 0, len(required))
	for _, s := range required {
		req = append(req, string(s))
	}
	return &domain.InvalidTransitionError{
		Entity:   entityName,
		ID:       a.ID,
		Action:   action,
		Current:  string(a.Status),
		Required: req,
	}
}

// Raise 根据传感器读数创建 active 报警，并写入 raised 历史
func (l *Lifecycle) Raise(id string, reading domain.SensorReading, th domain.Thresholds, actor domain.Actor, now time.Time) (*domain.FacilityAlert, error) {
	v := &domain.ValidationError{Entity: entityName}
	if strings.TrimSpace(reading.SensorID) == "" {
		v.Add("sensorId", "is required")
	}
	if reading.Trend == "" {
		reading.Trend = domain.TrendStable
	}
	if !reading.Trend.Valid() {
		v.Add("trend", "must be increasing|decreasing|stable|fluctuating")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	if err := ValidateThresholds(th); err != nil {
		return nil, err
	}

	severity, thresholdValue := DeriveSeverity(reading.CurrentValue, th, reading.Trend, l.policy)

	title := reading.Title
	if title == "" {
		title = fmt.Sprintf("Sensor %s threshold alert", reading.SensorID)
	}
	category := reading.Category
	if category == "" {
		category = "sensor"
	}
	value := formatValue(reading.CurrentValue, reading.Unit)
	message := fmt.Sprintf("%s reads %s (threshold %s, trend %s)",
		reading.SensorID, value, formatValue(thresholdValue, reading.Unit), reading.Trend)

	a := &domain.FacilityAlert{
		ID:       id,
		Title:    title,
		Message:  message,
		Category: category,
		Location: reading.Location,
		Severity: severity,
		Source:   domain.SourceSensor,
		Detection: &domain.Detection{
			SensorID:       reading.SensorID,
			CurrentValue:   reading.CurrentValue,
			ThresholdValue: thresholdValue,
			Unit:           reading.Unit,
			Trend:          reading.Trend,
		},
		Status:        domain.AlertActive,
		LinkedTaskIDs: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a.AppendHistory(domain.AlertActionRaised, actorID(actor, reading.SensorID), now, "severity="+string(severity))
	return a, nil
}

// Report 人工或 AI 系统上报
func (l *Lifecycle) Report(id string, r ManualReport, actor domain.Actor, now time.Time) (*domain.FacilityAlert, error) {
	v := &domain.ValidationError{Entity: entityName}
	if strings.TrimSpace(r.Title) == "" {
		v.Add("title", "is required")
	}
	if strings.TrimSpace(r.Message) == "" {
		v.Add("message", "is required")
	}
	if !r.Severity.Valid() {
		v.Add("severity", "must be low|medium|high|critical")
	}
	if r.Source == "" {
		r.Source = domain.SourceManual
	}
	// sensor 来源只能经 Raise 产生
	if !r.Source.Valid() || r.Source == domain.SourceSensor {
		v.Add("source", "must be manual|ai_system")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	category := r.Category
	if category == "" {
		category = "general"
	}
	a := &domain.FacilityAlert{
		ID:            id,
		Title:         r.Title,
		Message:       r.Message,
		Category:      category,
		Location:      r.Location,
		Severity:      r.Severity,
		Source:        r.Source,
		Status:        domain.AlertActive,
		LinkedTaskIDs: []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a.AppendHistory(domain.AlertActionRaised, actor.ID, now, "severity="+string(r.Severity)+" source="+string(r.Source))
	return a, nil
}

// Acknowledge active -> acknowledged
func (l *Lifecycle) Acknowledge(a *domain.FacilityAlert, notes string, actor domain.Actor, now time.Time) (*domain.FacilityAlert, error) {
	if a.Status != domain.AlertActive {
		return nil, transitionError(a, "acknowledge", domain.AlertActive)
	}
	out := a.Clone()
	out.Status = domain.AlertAcknowledged
	out.Acknowledged = &domain.AlertHandling{By: actor.ID, At: now, Note: notes}
	out.AppendHistory(domain.AlertActionAcknowledged, actor.ID, now, notes)
	out.UpdatedAt = now
	return out, nil
}

// SpawnTask 由报警派生维护任务并关联，报警状态不变。
// draft.ID 由调用方分配；未指定优先级时按报警级别推导。
func (l *Lifecycle) SpawnTask(a *domain.FacilityAlert, draft *domain.MaintenanceTask, actor domain.Actor, now time.Time) (*domain.FacilityAlert, *domain.MaintenanceTask, error) {
	if a.Status != domain.AlertActive && a.Status != domain.AlertAcknowledged {
		return nil, nil, transitionError(a, "spawn task", domain.AlertActive, domain.AlertAcknowledged)
	}
	if draft == nil || draft.ID == "" {
		return nil, nil, domain.NewValidationError(entityName, "task", "task draft with id is required")
	}
	if a.HasLinkedTask(draft.ID) {
		return nil, nil, domain.NewValidationError(entityName, "task", "task "+draft.ID+" is already linked")
	}
	d := draft.Clone()
	if d.Priority == "" {
		d.Priority = a.Severity.TaskPriority()
	}
	if d.Title == "" {
		d.Title = a.Title
	}
	if d.Description == "" {
		d.Description = a.Message
	}
	if d.Location == "" {
		d.Location = a.Location
	}
	if d.Category == "" {
		if a.Severity == domain.SeverityCritical {
			d.Category = domain.CategoryEmergency
		} else {
			d.Category = domain.CategoryCorrective
		}
	}
	if d.Safety.PermitID == nil && a.LinkedPermitID != nil {
		pid := *a.LinkedPermitID
		d.Safety.PermitID = &pid
	}
	alertID := a.ID
	d.SourceAlertID = &alertID

	task, err := l.tasks.Schedule(d, actor, now)
	if err != nil {
		return nil, nil, err
	}

	out := a.Clone()
	out.LinkedTaskIDs = append(out.LinkedTaskIDs, task.ID)
	out.AppendHistory(domain.AlertActionTaskSpawned, actor.ID, now, task.ID)
	out.UpdatedAt = now
	return out, task, nil
}

// LinkPermit 关联许可证（最多一个）
func (l *Lifecycle) LinkPermit(a *domain.FacilityAlert, permitID string, actor domain.Actor, now time.Time) (*domain.FacilityAlert, error) {
	if a.Status != domain.AlertActive && a.Status != domain.AlertAcknowledged {
		return nil, transitionError(a, "link permit", domain.AlertActive, domain.AlertAcknowledged)
	}
	if strings.TrimSpace(permitID) == "" {
		return nil, domain.NewValidationError(entityName, "permitId", "is required")
	}
	if a.LinkedPermitID != nil && *a.LinkedPermitID != permitID {
		e := transitionError(a, "link permit")
		e.Reason = "alert is already linked to permit " + *a.LinkedPermitID
		return nil, e
	}
	out := a.Clone()
	pid := permitID
	out.LinkedPermitID = &pid
	out.AppendHistory(domain.AlertActionPermitLinked, actor.ID, now, permitID)
	out.UpdatedAt = now
	return out, nil
}

// Resolve acknowledged -> resolved。
// 需要非空的处理说明；所有关联任务（由调用方加载后传入）必须 completed 或 cancelled。
func (l *Lifecycle) Resolve(a *domain.FacilityAlert, resolution string, linkedTasks []*domain.MaintenanceTask, actor domain.Actor, now time.Time) (*domain.FacilityAlert, error) {
	if a.Status != domain.AlertAcknowledged {
		return nil, transitionError(a, "resolve", domain.AlertAcknowledged)
	}
	resolution = strings.TrimSpace(resolution)
	if resolution == "" {
		return nil, domain.NewValidationError(entityName, "resolution", "is required")
	}
	byID := make(map[string]*domain.MaintenanceTask, len(linkedTasks))
	for _, t := range linkedTasks {
		if t != nil {
			byID[t.ID] = t
		}
	}
	for _, id := range a.LinkedTaskIDs {
		t, ok := byID[id]
		if !ok {
			return nil, &domain.LinkedTaskOpenError{AlertID: a.ID, TaskID: id, TaskStatus: "unknown"}
		}
		if !t.Status.Closed() {
			return nil, &domain.LinkedTaskOpenError{AlertID: a.ID, TaskID: id, TaskStatus: string(t.Status)}
		}
	}
	out := a.Clone()
	out.Status = domain.AlertResolved
	out.Resolution = &domain.AlertHandling{By: actor.ID, At: now, Note: resolution}
	out.AppendHistory(domain.AlertActionResolved, actor.ID, now, resolution)
	out.UpdatedAt = now
	return out, nil
}

// Dismiss active|acknowledged -> dismissed（误报，终态）
func (l *Lifecycle) Dismiss(a *domain.FacilityAlert, reason string, actor domain.Actor, now time.Time) (*domain.FacilityAlert, error) {
	if a.Status != domain.AlertActive && a.Status != domain.AlertAcknowledged {
		return nil, transitionError(a, "dismiss", domain.AlertActive, domain.AlertAcknowledged)
	}
	out := a.Clone()
	out.Status = domain.AlertDismissed
	out.Dismissal = &domain.AlertHandling{By: actor.ID, At: now, Note: reason}
	out.AppendHistory(domain.AlertActionDismissed, actor.ID, now, reason)
	out.UpdatedAt = now
	return out, nil
}

func actorID(actor domain.Actor, fallback string) string {
	if actor.ID != "" {
		return actor.ID
	}
	return fallback
}

func formatValue(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit != "" {
		s += unit
	}
	return s
}
