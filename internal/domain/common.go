package domain

import (
	"encoding/json"
	"time"
)

// Actor 已认证的操作人（由调用方的 ActorContext 提供）
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// Role 操作人角色
type Role string

const (
	RoleRequester              Role = "requester"
	RoleTechnician             Role = "technician"
	RoleAreaSupervisor         Role = "area_supervisor"
	RoleSafetyOfficer          Role = "safety_officer"
	RoleFireMarshal            Role = "fire_marshal"
	RoleGasTester              Role = "gas_tester"
	RoleElectricalAuthority    Role = "electrical_authority"
	RoleRadiationSafetyOfficer Role = "radiation_safety_officer"
	RoleFacilityManager        Role = "facility_manager"
)

// Priority 优先级（许可证、维护任务通用）
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// HistoryEntry 审计日志条目（只追加，不修改）
type HistoryEntry struct {
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Document 可持久化的版本化实体（EntityStore 使用）
type Document interface {
	DocID() string
	DocVersion() int64
	SetDocVersion(v int64)
	DocStatus() string
}

// deepCopy 通过 JSON 深拷贝实体，保证状态机操作不修改调用方持有的快照
func deepCopy[T any](src *T) *T {
	if src == nil {
		return nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		// 实体只包含可序列化字段，这里不可能失败
		panic("domain: marshal entity: " + err.Error())
	}
	var dst T
	if err := json.Unmarshal(b, &dst); err != nil {
		panic("domain: unmarshal entity: " + err.Error())
	}
	return &dst
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
