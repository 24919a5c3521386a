package domain

import (
	"encoding/json"
	"errors"
	"time"

	"saffy-workflow/internal/risk"
)

// RiskGrade 风险等级（与 risk 包一致）
type RiskGrade = risk.Grade

// HazardType 危险类型
type HazardType string

const (
	HazardPhysical      HazardType = "physical"
	HazardChemical      HazardType = "chemical"
	HazardBiological    HazardType = "biological"
	HazardErgonomic     HazardType = "ergonomic"
	HazardPsychological HazardType = "psychological"
)

func (t HazardType) Valid() bool {
	switch t {
	case HazardPhysical, HazardChemical, HazardBiological, HazardErgonomic, HazardPsychological:
		return true
	}
	return false
}

// RiskItemStatus 风险项状态
type RiskItemStatus string

const (
	RiskItemPlanned    RiskItemStatus = "planned"
	RiskItemInProgress RiskItemStatus = "in-progress"
	RiskItemCompleted  RiskItemStatus = "completed"
)

func (s RiskItemStatus) Valid() bool {
	return s == RiskItemPlanned || s == RiskItemInProgress || s == RiskItemCompleted
}

// RiskMatrix 风险矩阵快照。只保存 frequency/severity，
// riskLevel/riskGrade 每次序列化时由输入重新计算。
type RiskMatrix struct {
	Frequency int
	Severity  int
}

// Score 重新计算 level/grade
func (m RiskMatrix) Score() (risk.Result, error) {
	return risk.Score(m.Frequency, m.Severity)
}

type riskMatrixJSON struct {
	Frequency int        `json:"frequency"`
	Severity  int        `json:"severity"`
	RiskLevel int        `json:"riskLevel,omitempty"`
	RiskGrade risk.Grade `json:"riskGrade,omitempty"`
}

func (m RiskMatrix) MarshalJSON() ([]byte, error) {
	out := riskMatrixJSON{Frequency: m.Frequency, Severity: m.Severity}
	if r, err := m.Score(); err == nil {
		out.RiskLevel = r.Level
		out.RiskGrade = r.Grade
	}
	return json.Marshal(out)
}

// UnmarshalJSON 忽略传入的 riskLevel/riskGrade
func (m *RiskMatrix) UnmarshalJSON(b []byte) error {
	var in riskMatrixJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	m.Frequency = in.Frequency
	m.Severity = in.Severity
	return nil
}

// ControlMeasures 控制措施
type ControlMeasures struct {
	Engineering    []string `json:"engineering"`
	Administrative []string `json:"administrative"`
	PPE            []string `json:"ppe"`
}

// Count 控制措施总数
func (c ControlMeasures) Count() int {
	return len(c.Engineering) + len(c.Administrative) + len(c.PPE)
}

// RiskAssessmentItem 风险评估项
type RiskAssessmentItem struct {
	ID                string          `json:"id"`
	AssessmentID      string          `json:"assessmentId"`
	Process           string          `json:"process"`
	HazardDescription string          `json:"hazardDescription"`
	HazardType        HazardType      `json:"hazardType"`
	Before            RiskMatrix      `json:"before"`
	After             RiskMatrix      `json:"after"`
	Controls          ControlMeasures `json:"controls"`
	ResponsiblePerson string          `json:"responsiblePerson,omitempty"`
	TargetDate        *time.Time      `json:"targetDate,omitempty"`
	Status            RiskItemStatus  `json:"status"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *RiskAssessmentItem) DocID() string         { return r.ID }
func (r *RiskAssessmentItem) DocVersion() int64     { return r.Version }
func (r *RiskAssessmentItem) SetDocVersion(v int64) { r.Version = v }
func (r *RiskAssessmentItem) DocStatus() string     { return string(r.Status) }

// Clone 深拷贝
func (r *RiskAssessmentItem) Clone() *RiskAssessmentItem { return deepCopy(r) }

// ValidateRiskItem 校验风险项：矩阵输入合法、高风险必须有工程或管理控制、
// 残余风险不高于初始风险、completed 必须有控制措施
func ValidateRiskItem(item *RiskAssessmentItem) error {
	v := &ValidationError{Entity: "risk_item"}
	if item.AssessmentID == "" {
		v.Add("assessmentId", "is required")
	}
	if item.Process == "" {
		v.Add("process", "is required")
	}
	if item.HazardDescription == "" {
		v.Add("hazardDescription", "is required")
	}
	if !item.HazardType.Valid() {
		v.Add("hazardType", "must be physical|chemical|biological|ergonomic|psychological")
	}
	if !item.Status.Valid() {
		v.Add("status", "must be planned|in-progress|completed")
	}

	before, errBefore := item.Before.Score()
	if errBefore != nil {
		var re *risk.RangeError
		if errors.As(errBefore, &re) {
			return &InvalidInputError{Field: "before." + re.Field, Value: re.Value, Min: risk.MinInput, Max: risk.MaxInput}
		}
		return errBefore
	}
	after, errAfter := item.After.Score()
	if errAfter != nil {
		var re *risk.RangeError
		if errors.As(errAfter, &re) {
			return &InvalidInputError{Field: "after." + re.Field, Value: re.Value, Min: risk.MinInput, Max: risk.MaxInput}
		}
		return errAfter
	}

	if before.Grade.Rank() >= risk.GradeHigh.Rank() &&
		len(item.Controls.Engineering)+len(item.Controls.Administrative) == 0 {
		v.Add("controls", "a "+string(before.Grade)+" risk requires at least one engineering or administrative control")
	}
	if after.Level > before.Level {
		v.Add("after", "residual risk level cannot exceed the initial level")
	}
	if item.Status == RiskItemCompleted && item.Controls.Count() == 0 {
		v.Add("controls", "a completed item requires at least one control measure")
	}
	return v.OrNil()
}

// SummarizeRiskItems 汇总 before 等级
func SummarizeRiskItems(items []*RiskAssessmentItem) (risk.Summary, error) {
	entries := make([]risk.Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, risk.Entry{
			Frequency: it.Before.Frequency,
			Severity:  it.Before.Severity,
			Completed: it.Status == RiskItemCompleted,
		})
	}
	return risk.Aggregate(entries)
}
