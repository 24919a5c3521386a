package domain

import (
	"time"
)

// AlertSeverity 报警级别
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

var severityOrder = []AlertSeverity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank 序号（未知为 -1）
func (s AlertSeverity) Rank() int {
	for i, k := range severityOrder {
		if k == s {
			return i
		}
	}
	return -1
}

func (s AlertSeverity) Valid() bool { return s.Rank() >= 0 }

// Promote 提升一级，最高 critical
func (s AlertSeverity) Promote() AlertSeverity {
	r := s.Rank()
	if r < 0 || r+1 >= len(severityOrder) {
		return s
	}
	return severityOrder[r+1]
}

// TaskPriority 报警级别对应的任务优先级
func (s AlertSeverity) TaskPriority() Priority {
	switch s {
	case SeverityCritical:
		return PriorityCritical
	case SeverityHigh:
		return PriorityHigh
	case SeverityMedium:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// AlertSource 报警来源
type AlertSource string

const (
	SourceSensor   AlertSource = "sensor"
	SourceAISystem AlertSource = "ai_system"
	SourceManual   AlertSource = "manual"
)

func (s AlertSource) Valid() bool {
	return s == SourceSensor || s == SourceAISystem || s == SourceManual
}

// Trend 读数趋势
type Trend string

const (
	TrendIncreasing  Trend = "increasing"
	TrendDecreasing  Trend = "decreasing"
	TrendStable      Trend = "stable"
	TrendFluctuating Trend = "fluctuating"
)

func (t Trend) Valid() bool {
	switch t {
	case TrendIncreasing, TrendDecreasing, TrendStable, TrendFluctuating:
		return true
	}
	return false
}

// AlertStatus 报警状态
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
	AlertDismissed    AlertStatus = "dismissed"
)

// 报警历史动作
const (
	AlertActionRaised       = "raised"
	AlertActionAcknowledged = "acknowledged"
	AlertActionTaskSpawned  = "task_spawned"
	AlertActionPermitLinked = "permit_linked"
	AlertActionResolved     = "resolved"
	AlertActionDismissed    = "dismissed"
)

// SensorReading 已归一化的传感器读数
type SensorReading struct {
	SensorID     string    `json:"sensorId"`
	Title        string    `json:"title,omitempty"`
	Category     string    `json:"category,omitempty"`
	Location     string    `json:"location,omitempty"`
	CurrentValue float64   `json:"currentValue"`
	Unit         string    `json:"unit,omitempty"`
	Trend        Trend     `json:"trend"`
	ObservedAt   time.Time `json:"observedAt,omitempty"`
}

// ThresholdDirection 阈值方向
type ThresholdDirection string

const (
	DirectionAbove ThresholdDirection = "above" // 读数越高越危险
	DirectionBelow ThresholdDirection = "below" // 读数越低越危险（如氧含量）
)

// Thresholds 报警阈值
type Thresholds struct {
	Warning   float64            `json:"warning"`
	Critical  float64            `json:"critical"`
	Direction ThresholdDirection `json:"direction,omitempty"`
}

// Detection 检测数据
type Detection struct {
	SensorID       string  `json:"sensorId,omitempty"`
	CurrentValue   float64 `json:"currentValue"`
	ThresholdValue float64 `json:"thresholdValue"`
	Unit           string  `json:"unit,omitempty"`
	Trend          Trend   `json:"trend,omitempty"`
}

// AlertHandling 确认/解决/忽略记录
type AlertHandling struct {
	By   string    `json:"by"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// FacilityAlert 设施报警
type FacilityAlert struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Message   string        `json:"message"`
	Category  string        `json:"category"`
	Location  string        `json:"location,omitempty"`
	Severity  AlertSeverity `json:"severity"`
	Source    AlertSource   `json:"source"`
	Detection *Detection    `json:"detection,omitempty"`
	Status    AlertStatus   `json:"status"`

	Acknowledged *AlertHandling `json:"acknowledged,omitempty"`
	Resolution   *AlertHandling `json:"resolution,omitempty"`
	Dismissal    *AlertHandling `json:"dismissal,omitempty"`

	// History 只追加
	History        []HistoryEntry `json:"history"`
	LinkedTaskIDs  []string       `json:"linkedTaskIds"`
	LinkedPermitID *string        `json:"linkedPermitId,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (a *FacilityAlert) DocID() string         { return a.ID }
func (a *FacilityAlert) DocVersion() int64     { return a.Version }
func (a *FacilityAlert) SetDocVersion(v int64) { a.Version = v }
func (a *FacilityAlert) DocStatus() string     { return string(a.Status) }

// Clone 深拷贝
func (a *FacilityAlert) Clone() *FacilityAlert { return deepCopy(a) }

// HasLinkedTask 是否已关联该任务
func (a *FacilityAlert) HasLinkedTask(taskID string) bool {
	return containsString(a.LinkedTaskIDs, taskID)
}

// AppendHistory 追加审计记录
func (a *FacilityAlert) AppendHistory(action string, actor string, at time.Time, detail string) {
	a.History = append(a.History, HistoryEntry{Action: action, Actor: actor, Timestamp: at, Detail: detail})
}
