// Package repository 版本化实体存储（EntityStore）。
//
// 每个实体带单调递增的 version：Create 置为 1，Update 仅在 expectedVersion
// 与存储中的版本一致时成功并 +1，否则返回 domain.ConcurrencyConflictError。
// 存取都是快照拷贝，调用方修改返回值不会影响存储。
package repository

import (
	"context"

	"saffy-workflow/internal/domain"
)

// DocPtr 约束：*E 实现 domain.Document
type DocPtr[E any] interface {
	*E
	domain.Document
}

// ListFilter 列表过滤条件
type ListFilter struct {
	Status       string
	AssessmentID string // 仅风险项
	Limit        int
	Offset       int
}

// Store 单一实体类型的版本化存储
type Store[P domain.Document] interface {
	Create(ctx context.Context, doc P) (P, error)
	Get(ctx context.Context, id string) (P, error)
	Update(ctx context.Context, doc P, expectedVersion int64) (P, error)
	Delete(ctx context.Context, id string, expectedVersion int64) error
	List(ctx context.Context, filter ListFilter) ([]P, error)
}

type (
	PermitStore   = Store[*domain.WorkPermit]
	TaskStore     = Store[*domain.MaintenanceTask]
	AlertStore    = Store[*domain.FacilityAlert]
	RiskItemStore = Store[*domain.RiskAssessmentItem]
)

// EntityStore 所有实体的存储
type EntityStore struct {
	Permits   PermitStore
	Tasks     TaskStore
	Alerts    AlertStore
	RiskItems RiskItemStore
}

// 实体名（错误信息、表名映射使用）
const (
	EntityPermit   = "permit"
	EntityTask     = "task"
	EntityAlert    = "alert"
	EntityRiskItem = "risk_item"
)

// NewMemoryEntityStore 内存存储（DB 未启用或测试时使用）
func NewMemoryEntityStore() *EntityStore {
	return &EntityStore{
		Permits:   NewMemoryStore[domain.WorkPermit](EntityPermit, withUniquePermitNumber()),
		Tasks:     NewMemoryStore[domain.MaintenanceTask](EntityTask),
		Alerts:    NewMemoryStore[domain.FacilityAlert](EntityAlert),
		RiskItems: NewMemoryStore[domain.RiskAssessmentItem](EntityRiskItem, withAssessmentID()),
	}
}

func withAssessmentID() memoryOption {
	return func(o *memoryOptions) {
		o.assessmentID = func(doc domain.Document) string {
			if it, ok := doc.(*domain.RiskAssessmentItem); ok {
				return it.AssessmentID
			}
			return ""
		}
	}
}

func withUniquePermitNumber() memoryOption {
	return func(o *memoryOptions) {
		o.uniqueKey = "permitNumber"
		o.uniqueValue = func(doc domain.Document) string {
			if p, ok := doc.(*domain.WorkPermit); ok {
				return p.PermitNumber
			}
			return ""
		}
	}
}
