package domain

import (
	"time"
)

// TaskStatus 维护任务状态
type TaskStatus string

const (
	TaskScheduled  TaskStatus = "scheduled"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskOverdue    TaskStatus = "overdue" // 只在读取时投影，不落库
	TaskCancelled  TaskStatus = "cancelled"
)

// Closed completed/cancelled
func (s TaskStatus) Closed() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// TaskCategory 维护类别
type TaskCategory string

const (
	CategoryPreventive  TaskCategory = "preventive"
	CategoryCorrective  TaskCategory = "corrective"
	CategoryInspection  TaskCategory = "inspection"
	CategoryCalibration TaskCategory = "calibration"
	CategoryEmergency   TaskCategory = "emergency"
)

func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryPreventive, CategoryCorrective, CategoryInspection, CategoryCalibration, CategoryEmergency:
		return true
	}
	return false
}

// TaskSafety 任务安全子记录
type TaskSafety struct {
	Hazards        []string `json:"hazards,omitempty"`
	Precautions    []string `json:"precautions,omitempty"`
	RequiredPPE    []string `json:"requiredPpe,omitempty"`
	LockoutTagout  bool     `json:"lockoutTagout"`
	PermitRequired bool     `json:"permitRequired"`
	PermitID       *string  `json:"permitId,omitempty"`
}

// ChecklistItem 检查清单项
type ChecklistItem struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Mandatory   bool   `json:"mandatory"`
	Done        bool   `json:"done"`
}

// CostBreakdown 费用明细
type CostBreakdown struct {
	Labor    float64 `json:"labor"`
	Parts    float64 `json:"parts"`
	External float64 `json:"external"`
}

// Total 合计
func (c CostBreakdown) Total() float64 { return c.Labor + c.Parts + c.External }

// Feedback 完工反馈
type Feedback struct {
	Rating   int    `json:"rating"`
	Comments string `json:"comments,omitempty"`
}

// ChecklistResult 完工时提交的清单勾选结果
type ChecklistResult struct {
	ItemID string `json:"itemId"`
	Done   bool   `json:"done"`
}

// CompletionData CompleteTask 的输入
type CompletionData struct {
	ActualDuration float64           `json:"actualDuration"` // 小时
	Checklist      []ChecklistResult `json:"checklist,omitempty"`
	Cost           CostBreakdown     `json:"cost"`
	Feedback       *Feedback         `json:"feedback,omitempty"`
	Notes          string            `json:"notes,omitempty"`
}

// CompletionRecord 完工记录
type CompletionRecord struct {
	CompletedBy string        `json:"completedBy"`
	Cost        CostBreakdown `json:"cost"`
	TotalCost   float64       `json:"totalCost"`
	Feedback    *Feedback     `json:"feedback,omitempty"`
	Notes       string        `json:"notes,omitempty"`
}

// MaintenanceTask 维护任务
type MaintenanceTask struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Category    TaskCategory `json:"category"`
	EquipmentID *string      `json:"equipmentId,omitempty"`
	Location    string       `json:"location"`
	AssignedTo  string       `json:"assignedTo,omitempty"`

	ScheduledDate     time.Time  `json:"scheduledDate"`
	DueDate           time.Time  `json:"dueDate"`
	EstimatedDuration float64    `json:"estimatedDuration"` // 小时
	ActualDuration    *float64   `json:"actualDuration,omitempty"`
	StartedAt         *time.Time `json:"startedAt,omitempty"`
	CompletedDate     *time.Time `json:"completedDate,omitempty"`

	Priority   Priority          `json:"priority"`
	Safety     TaskSafety        `json:"safety"`
	Checklist  []ChecklistItem   `json:"checklist,omitempty"`
	Status     TaskStatus        `json:"status"`
	Completion *CompletionRecord `json:"completion,omitempty"`

	CancelReason  string         `json:"cancelReason,omitempty"`
	SourceAlertID *string        `json:"sourceAlertId,omitempty"`
	History       []HistoryEntry `json:"history"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *MaintenanceTask) DocID() string         { return t.ID }
func (t *MaintenanceTask) DocVersion() int64     { return t.Version }
func (t *MaintenanceTask) SetDocVersion(v int64) { t.Version = v }
func (t *MaintenanceTask) DocStatus() string     { return string(t.Status) }

// Clone 深拷贝
func (t *MaintenanceTask) Clone() *MaintenanceTask { return deepCopy(t) }

// EffectiveStatus 读取时投影：scheduled/in_progress 且已过截止日期视为 overdue
func (t *MaintenanceTask) EffectiveStatus(now time.Time) TaskStatus {
	if (t.Status == TaskScheduled || t.Status == TaskInProgress) && now.After(t.DueDate) {
		return TaskOverdue
	}
	return t.Status
}

// AppendHistory 追加审计记录
func (t *MaintenanceTask) AppendHistory(action string, actor string, at time.Time, detail string) {
	t.History = append(t.History, HistoryEntry{Action: action, Actor: actor, Timestamp: at, Detail: detail})
}
