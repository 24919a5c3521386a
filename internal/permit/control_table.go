package permit

import (
	"fmt"

	"saffy-workflow/internal/domain"
)

// StageDef 控制表中的一个审批阶段
type StageDef struct {
	Name string      `yaml:"name" json:"name"`
	Role domain.Role `yaml:"role" json:"role"`
}

// ControlTable 许可证类别 -> 有序审批阶段
type ControlTable map[domain.PermitType][]StageDef

// DefaultControlTable 内置控制表
func DefaultControlTable() ControlTable {
	return ControlTable{
		domain.PermitHotWork: {
			{Name: "area_supervisor", Role: domain.RoleAreaSupervisor},
			{Name: "safety_officer", Role: domain.RoleSafetyOfficer},
			{Name: "fire_marshal", Role: domain.RoleFireMarshal},
			{Name: "facility_manager", Role: domain.RoleFacilityManager},
		},
		domain.PermitConfinedSpace: {
			{Name: "area_supervisor", Role: domain.RoleAreaSupervisor},
			{Name: "safety_officer", Role: domain.RoleSafetyOfficer},
			{Name: "gas_tester", Role: domain.RoleGasTester},
			{Name: "facility_manager", Role: domain.RoleFacilityManager},
		},
		domain.PermitElectricalWork: {
			{Name: "area_supervisor", Role: domain.RoleAreaSupervisor},
			{Name: "electrical_authority", Role: domain.RoleElectricalAuthority},
			{Name: "safety_officer", Role: domain.RoleSafetyOfficer},
		},
		domain.PermitWorkingAtHeight: {
			{Name: "area_supervisor", Role: domain.RoleAreaSupervisor},
			{Name: "safety_officer", Role: domain.RoleSafetyOfficer},
		},
		domain.PermitExcavation: {
			{Name: "area_supervisor", Role: domain.RoleAreaSupervisor},
			{Name: "safety_officer", Role: domain.RoleSafetyOfficer},
			{Name: "facility_manager", Role: domain.RoleFacilityManager},
		},
		domain.PermitChemicalHandling: {
			{Name: "area_supervisor", Role: domain.RoleAreaSupervisor},
			{Name: "safety_officer", Role: domain.RoleSafetyOfficer},
		},
		domain.PermitRadiationWork: {
			{Name: "area_supervisor", Role: domain.RoleAreaSupervisor},
			{Name: "radiation_safety_officer", Role: domain.RoleRadiationSafetyOfficer},
			{Name: "safety_officer", Role: domain.RoleSafetyOfficer},
			{Name: "facility_manager", Role: domain.RoleFacilityManager},
		},
		domain.PermitGeneral: {
			{Name: "area_supervisor", Role: domain.RoleAreaSupervisor},
		},
	}
}

// Merge 用 override 中出现的类别替换当前表，返回新表
func (t ControlTable) Merge(override ControlTable) ControlTable {
	out := make(ControlTable, len(t))
	for k, v := range t {
		out[k] = append([]StageDef(nil), v...)
	}
	for k, v := range override {
		out[k] = append([]StageDef(nil), v...)
	}
	return out
}

// Validate 每个已知类别至少一个阶段，阶段名唯一且角色非空
func (t ControlTable) Validate() error {
	for pt, stages := range t {
		if !pt.Valid() {
			return fmt.Errorf("control table: unknown permit type %q", pt)
		}
		if len(stages) == 0 {
			return fmt.Errorf("control table: permit type %q has no stages", pt)
		}
		seen := make(map[string]bool, len(stages))
		for i, s := range stages {
			if s.Name == "" {
				return fmt.Errorf("control table: %s stage %d has no name", pt, i)
			}
			if s.Role == "" {
				return fmt.Errorf("control table: %s stage %q has no role", pt, s.Name)
			}
			if seen[s.Name] {
				return fmt.Errorf("control table: %s stage %q is duplicated", pt, s.Name)
			}
			seen[s.Name] = true
		}
	}
	for _, pt := range domain.PermitTypes {
		if _, ok := t[pt]; !ok {
			return fmt.Errorf("control table: permit type %q is missing", pt)
		}
	}
	return nil
}

// Stages 为许可证类别生成全部 pending 的审批记录
func (t ControlTable) Stages(pt domain.PermitType) ([]domain.ApprovalStage, bool) {
	defs, ok := t[pt]
	if !ok {
		return nil, false
	}
	out := make([]domain.ApprovalStage, 0, len(defs))
	for _, d := range defs {
		out = append(out, domain.ApprovalStage{
			Stage:        d.Name,
			RequiredRole: d.Role,
			Decision:     domain.DecisionPending,
		})
	}
	return out, true
}
