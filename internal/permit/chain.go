// Package permit 作业许可证审批链状态机：
// draft -> submitted -> (逐阶段审批) -> approved -> active -> completed，
// submitted|under_review 可退回 draft 或被 rejected。
//
// 所有操作在副本上进行，失败时调用方持有的许可证保持不变。
package permit

import (
	"fmt"
	"strings"
	"time"

	"saffy-workflow/internal/domain"
)

const entityName = "permit"

// 许可证历史动作
const (
	ActionCreated          = "created"
	ActionSubmitted        = "submitted"
	ActionStageDecided     = "stage_decided"
	ActionChangesRequested = "changes_requested"
	ActionActivated        = "activated"
	ActionClosed           = "closed"
)

// Chain 审批链
type Chain struct {
	table ControlTable
}

// NewChain 使用给定控制表创建审批链；nil 使用内置表
func NewChain(table ControlTable) *Chain {
	if table == nil {
		table = DefaultControlTable()
	}
	return &Chain{table: table}
}

// Table 当前控制表
func (c *Chain) Table() ControlTable { return c.table }

// DecideRequest 审批请求
type DecideRequest struct {
	Stage      string          `json:"stage"`
	Decision   domain.Decision `json:"decision"`
	Comments   string          `json:"comments,omitempty"`
	Conditions []string        `json:"conditions,omitempty"`
}

func transitionError(p *domain.WorkPermit, action string, current domain.PermitStatus, required ...domain.PermitStatus) *domain.InvalidTransitionError {
	req := make([]string, 0, len(required))
	for _, s := range required {
		req = append(req, string(s))
	}
	return &domain.InvalidTransitionError{
		Entity:   entityName,
		ID:       p.ID,
		Action:   action,
		Current:  string(current),
		Required: req,
	}
}

// Create 校验草稿并初始化审批阶段，状态为 draft
func (c *Chain) Create(p *domain.WorkPermit, actor domain.Actor, now time.Time) (*domain.WorkPermit, error) {
	out := p.Clone()
	v := &domain.ValidationError{Entity: entityName}
	validateBasics(out, v)
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	stages, ok := c.table.Stages(out.Type)
	if !ok {
		return nil, domain.NewValidationError(entityName, "type", fmt.Sprintf("no approval stages configured for %q", out.Type))
	}
	out.Approvals = stages
	out.Status = domain.PermitDraft
	out.CloseOut = nil
	if out.Priority == "" {
		out.Priority = domain.PriorityMedium
	}
	if out.RequestedDate.IsZero() {
		out.RequestedDate = now
	}
	if out.EstimatedDuration == 0 {
		out.EstimatedDuration = out.PlannedEnd.Sub(out.PlannedStart).Hours()
	}
	if out.Requester.ID == "" {
		out.Requester.ID = actor.ID
		out.Requester.Name = actor.Name
	}
	out.History = nil
	out.AppendHistory(ActionCreated, actor.ID, now, out.PermitNumber)
	out.CreatedAt = now
	out.UpdatedAt = now
	return out, nil
}

func validateBasics(p *domain.WorkPermit, v *domain.ValidationError) {
	if strings.TrimSpace(p.Title) == "" {
		v.Add("title", "is required")
	}
	if !p.Type.Valid() {
		v.Add("type", fmt.Sprintf("unknown permit type %q", p.Type))
	}
	if strings.TrimSpace(p.Location) == "" {
		v.Add("location", "is required")
	}
	if p.PlannedStart.IsZero() || p.PlannedEnd.IsZero() {
		v.Add("plannedStart/plannedEnd", "are required")
	} else if !p.PlannedEnd.After(p.PlannedStart) {
		v.Add("plannedEnd", "must be after plannedStart")
	}
	if p.Priority != "" && !p.Priority.Valid() {
		v.Add("priority", "must be low|medium|high|critical")
	}
	if p.EstimatedDuration < 0 {
		v.Add("estimatedDuration", "cannot be negative")
	}
	if p.Hazards.RiskLevel != "" && p.Hazards.RiskLevel.Rank() < 0 {
		v.Add("hazards.riskLevel", "must be low|medium|high|critical")
	}
}

// Submit draft -> submitted，要求必填字段齐全
func (c *Chain) Submit(p *domain.WorkPermit, actor domain.Actor, now time.Time) (*domain.WorkPermit, error) {
	if p.Status != domain.PermitDraft {
		return nil, transitionError(p, "submit", p.Status, domain.PermitDraft)
	}
	v := &domain.ValidationError{Entity: entityName}
	validateBasics(p, v)
	if len(nonEmpty(p.Hazards.Identified)) == 0 {
		v.Add("hazards.identified", "at least one hazard is required")
	}
	if len(nonEmpty(p.Hazards.Mitigations)) == 0 {
		v.Add("hazards.mitigations", "at least one mitigation is required")
	}
	if p.Contractor != nil {
		if strings.TrimSpace(p.Contractor.Company) == "" {
			v.Add("contractor.company", "is required when a contractor is named")
		}
		if p.Contractor.InsuranceValidUntil != nil && p.Contractor.InsuranceValidUntil.Before(p.PlannedEnd) {
			v.Add("contractor.insuranceValidUntil", "insurance must be valid through plannedEnd")
		}
	}
	if len(p.Approvals) == 0 {
		v.Add("approvals", "permit has no approval stages")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	out := p.Clone()
	resetStages(out.Approvals)
	out.Status = domain.PermitSubmitted
	out.AppendHistory(ActionSubmitted, actor.ID, now, "")
	out.UpdatedAt = now
	return out, nil
}

// CurrentStage 当前待审批阶段（无则返回 nil）
func CurrentStage(p *domain.WorkPermit) *domain.ApprovalStage {
	idx := domain.CurrentStageIndex(p.Approvals)
	if idx < 0 {
		return nil
	}
	s := p.Approvals[idx]
	return &s
}

// Decide 对当前待审批阶段给出结论。阶段名必须是当前阶段，角色必须匹配。
func (c *Chain) Decide(p *domain.WorkPermit, req DecideRequest, actor domain.Actor, now time.Time) (*domain.WorkPermit, error) {
	if p.Status != domain.PermitSubmitted && p.Status != domain.PermitUnderReview {
		return nil, transitionError(p, "decide stage "+req.Stage, p.Status, domain.PermitSubmitted, domain.PermitUnderReview)
	}
	if req.Decision != domain.DecisionApproved && req.Decision != domain.DecisionRejected {
		return nil, domain.NewValidationError(entityName, "decision", "must be approved|rejected")
	}

	idx := domain.CurrentStageIndex(p.Approvals)
	if idx < 0 {
		e := transitionError(p, "decide stage "+req.Stage, p.Status)
		e.Reason = "no stage is awaiting a decision"
		return nil, e
	}
	cur := p.Approvals[idx]
	if req.Stage != cur.Stage {
		e := transitionError(p, "decide stage "+req.Stage, p.Status)
		e.ExpectedStage = cur.Stage
		e.ExpectedRole = string(cur.RequiredRole)
		e.Reason = "stage is not the current pending stage"
		return nil, e
	}
	if actor.Role != cur.RequiredRole {
		e := transitionError(p, "decide stage "+req.Stage, p.Status)
		e.ExpectedStage = cur.Stage
		e.ExpectedRole = string(cur.RequiredRole)
		e.Reason = fmt.Sprintf("role %q may not decide this stage", actor.Role)
		return nil, e
	}

	out := p.Clone()
	stage := &out.Approvals[idx]
	approver := actor
	stage.Approver = &approver
	stage.Decision = req.Decision
	decidedAt := now
	stage.DecidedAt = &decidedAt
	stage.Comments = req.Comments
	stage.Conditions = nonEmpty(req.Conditions)

	switch {
	case req.Decision == domain.DecisionRejected:
		out.Status = domain.PermitRejected
	case idx == len(out.Approvals)-1:
		out.Status = domain.PermitApproved
	default:
		out.Status = domain.PermitUnderReview
	}
	out.AppendHistory(ActionStageDecided, actor.ID, now, fmt.Sprintf("stage=%s decision=%s", cur.Stage, req.Decision))
	out.UpdatedAt = now
	return out, nil
}

// RequestChanges submitted|under_review -> draft，清空所有已记录的结论
func (c *Chain) RequestChanges(p *domain.WorkPermit, note string, actor domain.Actor, now time.Time) (*domain.WorkPermit, error) {
	if p.Status != domain.PermitSubmitted && p.Status != domain.PermitUnderReview {
		return nil, transitionError(p, "request changes", p.Status, domain.PermitSubmitted, domain.PermitUnderReview)
	}
	if strings.TrimSpace(note) == "" {
		return nil, domain.NewValidationError(entityName, "note", "is required")
	}
	out := p.Clone()
	resetStages(out.Approvals)
	out.Status = domain.PermitDraft
	out.AppendHistory(ActionChangesRequested, actor.ID, now, note)
	out.UpdatedAt = now
	return out, nil
}

// Activate approved -> active，需已到计划开始时间
func (c *Chain) Activate(p *domain.WorkPermit, actor domain.Actor, now time.Time) (*domain.WorkPermit, error) {
	current := p.EffectiveStatus(now)
	if current != domain.PermitApproved {
		return nil, transitionError(p, "activate", current, domain.PermitApproved)
	}
	if now.Before(p.PlannedStart) {
		e := transitionError(p, "activate", current, domain.PermitApproved)
		e.Reason = "planned start " + p.PlannedStart.Format(time.RFC3339) + " has not been reached"
		return nil, e
	}
	out := p.Clone()
	out.Status = domain.PermitActive
	out.AppendHistory(ActionActivated, actor.ID, now, "")
	out.UpdatedAt = now
	return out, nil
}

// Close active -> completed，需确认工作完成且最终检查通过
func (c *Chain) Close(p *domain.WorkPermit, closeOut domain.CloseOut, actor domain.Actor, now time.Time) (*domain.WorkPermit, error) {
	current := p.EffectiveStatus(now)
	if current != domain.PermitActive {
		return nil, transitionError(p, "close", current, domain.PermitActive)
	}
	v := &domain.ValidationError{Entity: entityName}
	if !closeOut.WorkCompleted {
		v.Add("closeOut.workCompleted", "must be true")
	}
	if !closeOut.FinalInspection {
		v.Add("closeOut.finalInspection", "must be true")
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	out := p.Clone()
	co := closeOut
	co.ClosedBy = actor.ID
	closedAt := now
	co.ClosedAt = &closedAt
	out.CloseOut = &co
	out.Status = domain.PermitCompleted
	out.AppendHistory(ActionClosed, actor.ID, now, closeOut.Remarks)
	out.UpdatedAt = now
	return out, nil
}

// CanDelete 只有 draft 可删除
func (c *Chain) CanDelete(p *domain.WorkPermit) error {
	if p.Status != domain.PermitDraft {
		return transitionError(p, "delete", p.Status, domain.PermitDraft)
	}
	return nil
}

func resetStages(stages []domain.ApprovalStage) {
	for i := range stages {
		stages[i].Approver = nil
		stages[i].Decision = domain.DecisionPending
		stages[i].DecidedAt = nil
		stages[i].Comments = ""
		stages[i].Conditions = nil
	}
}

func nonEmpty(list []string) []string {
	var out []string
	for _, s := range list {
		if t := strings.TrimSpace(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}
