package domain

import (
	"time"
)

// PermitType 作业许可证危险类别
type PermitType string

const (
	PermitHotWork          PermitType = "hot_work"
	PermitConfinedSpace    PermitType = "confined_space"
	PermitElectricalWork   PermitType = "electrical_work"
	PermitWorkingAtHeight  PermitType = "working_at_height"
	PermitExcavation       PermitType = "excavation"
	PermitChemicalHandling PermitType = "chemical_handling"
	PermitRadiationWork    PermitType = "radiation_work"
	PermitGeneral          PermitType = "general"
)

// PermitTypes 所有已知类别（顺序用于展示）
var PermitTypes = []PermitType{
	PermitHotWork,
	PermitConfinedSpace,
	PermitElectricalWork,
	PermitWorkingAtHeight,
	PermitExcavation,
	PermitChemicalHandling,
	PermitRadiationWork,
	PermitGeneral,
}

func (t PermitType) Valid() bool {
	for _, k := range PermitTypes {
		if k == t {
			return true
		}
	}
	return false
}

// PermitStatus 许可证状态
type PermitStatus string

const (
	PermitDraft       PermitStatus = "draft"
	PermitSubmitted   PermitStatus = "submitted"
	PermitUnderReview PermitStatus = "under_review"
	PermitApproved    PermitStatus = "approved"
	PermitActive      PermitStatus = "active"
	PermitCompleted   PermitStatus = "completed"
	PermitRejected    PermitStatus = "rejected"
	PermitExpired     PermitStatus = "expired"
)

// Terminal rejected/completed/expired 为终态
func (s PermitStatus) Terminal() bool {
	return s == PermitRejected || s == PermitCompleted || s == PermitExpired
}

// Decision 审批阶段结论
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ApprovalStage 审批阶段记录（WorkPermit 子记录）
type ApprovalStage struct {
	Stage        string     `json:"stage"`
	RequiredRole Role       `json:"requiredRole"`
	Approver     *Actor     `json:"approver,omitempty"`
	Decision     Decision   `json:"decision"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	Comments     string     `json:"comments,omitempty"`
	Conditions   []string   `json:"conditions,omitempty"`
}

// Requester 申请人
type Requester struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Contact    string `json:"contact,omitempty"`
}

// Contractor 外包承包商信息（可选）
type Contractor struct {
	Company             string     `json:"company"`
	Supervisor          string     `json:"supervisor,omitempty"`
	License             string     `json:"license,omitempty"`
	InsuranceValidUntil *time.Time `json:"insuranceValidUntil,omitempty"`
}

// PermitHazards 危险识别
type PermitHazards struct {
	Identified  []string  `json:"identified"`
	RiskLevel   RiskGrade `json:"riskLevel,omitempty"`
	Mitigations []string  `json:"mitigations"`
}

// SafetyRequirements 安全要求
type SafetyRequirements struct {
	RequiredTraining   []string `json:"requiredTraining,omitempty"`
	RequiredPPE        []string `json:"requiredPpe,omitempty"`
	EmergencyProcedure string   `json:"emergencyProcedure,omitempty"`
	FireWatchRequired  bool     `json:"fireWatchRequired"`
	GasTestRequired    bool     `json:"gasTestRequired"`
	IsolationRequired  bool     `json:"isolationRequired"`
}

// CloseOut 关闭确认
type CloseOut struct {
	WorkCompleted   bool       `json:"workCompleted"`
	FinalInspection bool       `json:"finalInspection"`
	Remarks         string     `json:"remarks,omitempty"`
	ClosedBy        string     `json:"closedBy,omitempty"`
	ClosedAt        *time.Time `json:"closedAt,omitempty"`
}

// WorkPermit 作业许可证（PTW）
type WorkPermit struct {
	ID           string       `json:"id"`
	PermitNumber string       `json:"permitNumber"`
	Type         PermitType   `json:"type"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	Location     string       `json:"location"`
	Priority     Priority     `json:"priority"`
	Status       PermitStatus `json:"status"`

	RequestedDate     time.Time `json:"requestedDate"`
	PlannedStart      time.Time `json:"plannedStart"`
	PlannedEnd        time.Time `json:"plannedEnd"`
	EstimatedDuration float64   `json:"estimatedDuration"` // 小时

	Requester  Requester          `json:"requester"`
	Contractor *Contractor        `json:"contractor,omitempty"`
	Hazards    PermitHazards      `json:"hazards"`
	Safety     SafetyRequirements `json:"safety"`

	// Approvals 顺序由许可证类别的控制表决定，创建后不再调整
	Approvals []ApprovalStage `json:"approvals"`
	CloseOut  *CloseOut       `json:"closeOut,omitempty"`
	History   []HistoryEntry  `json:"history"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *WorkPermit) DocID() string         { return p.ID }
func (p *WorkPermit) DocVersion() int64     { return p.Version }
func (p *WorkPermit) SetDocVersion(v int64) { p.Version = v }
func (p *WorkPermit) DocStatus() string     { return string(p.Status) }

// Clone 深拷贝
func (p *WorkPermit) Clone() *WorkPermit { return deepCopy(p) }

// EffectiveStatus 读取时投影：approved/active 且计划结束时间已过的许可证视为 expired，不写库
func (p *WorkPermit) EffectiveStatus(now time.Time) PermitStatus {
	if (p.Status == PermitActive || p.Status == PermitApproved) && now.After(p.PlannedEnd) {
		return PermitExpired
	}
	return p.Status
}

// CurrentStageIndex 当前待审批阶段：按顺序第一个 pending 且之前全部 approved 的阶段。
// 链上出现 rejected 或全部通过时返回 -1。
func CurrentStageIndex(stages []ApprovalStage) int {
	for i, s := range stages {
		switch s.Decision {
		case DecisionApproved:
			continue
		case DecisionPending:
			return i
		default:
			return -1
		}
	}
	return -1
}

// ApprovedConditions 所有已通过阶段附加的条件
func (p *WorkPermit) ApprovedConditions() []string {
	var out []string
	for _, s := range p.Approvals {
		if s.Decision == DecisionApproved {
			out = append(out, s.Conditions...)
		}
	}
	return out
}

// AppendHistory 追加审计记录
func (p *WorkPermit) AppendHistory(action string, actor string, at time.Time, detail string) {
	p.History = append(p.History, HistoryEntry{Action: action, Actor: actor, Timestamp: at, Detail: detail})
}
