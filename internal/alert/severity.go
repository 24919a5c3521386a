package alert

import (
	"fmt"
	"math"

	"saffy-workflow/internal/domain"
)

// DefaultProximityRatio 距阈值 10% 以内视为“即将越限”
const DefaultProximityRatio = 0.10

// Policy 报警升级策略参数
type Policy struct {
	// ProximityRatio 距阈值的相对距离带宽
	ProximityRatio float64 `yaml:"proximity_ratio" json:"proximityRatio"`
	// PromoteFluctuating fluctuating 趋势是否也按“逼近”处理
	PromoteFluctuating bool `yaml:"promote_fluctuating" json:"promoteFluctuating"`
}

// DefaultPolicy 默认策略
func DefaultPolicy() Policy {
	return Policy{ProximityRatio: DefaultProximityRatio}
}

// Validate 0 < ratio < 1
func (p Policy) Validate() error {
	if p.ProximityRatio <= 0 || p.ProximityRatio >= 1 {
		return fmt.Errorf("alert policy: proximity_ratio must be in (0,1), got %v", p.ProximityRatio)
	}
	return nil
}

// ValidateThresholds above 要求 critical > warning，below 要求 critical < warning
func ValidateThresholds(th domain.Thresholds) error {
	switch direction(th) {
	case domain.DirectionAbove:
		if !(th.Critical > th.Warning) {
			return domain.NewValidationError("alert", "thresholds", "critical must be greater than warning for direction above")
		}
	case domain.DirectionBelow:
		if !(th.Critical < th.Warning) {
			return domain.NewValidationError("alert", "thresholds", "critical must be less than warning for direction below")
		}
	default:
		return domain.NewValidationError("alert", "thresholds.direction", "must be above|below")
	}
	return nil
}

func direction(th domain.Thresholds) domain.ThresholdDirection {
	if th.Direction == "" {
		return domain.DirectionAbove
	}
	return th.Direction
}

// DeriveSeverity 根据读数、阈值与趋势计算级别，并返回参照的阈值。
//
//	越过 critical            -> critical
//	越过 warning             -> high
//	距 warning 在带宽内       -> medium
//	其他                     -> low
//
// 趋势朝越限方向（above: increasing，below: decreasing）且距下一阈值在带宽内时提升一级。
func DeriveSeverity(value float64, th domain.Thresholds, trend domain.Trend, p Policy) (domain.AlertSeverity, float64) {
	dir := direction(th)
	// 统一换算为“越大越危险”
	sign := 1.0
	if dir == domain.DirectionBelow {
		sign = -1.0
	}
	v := value * sign
	warn := th.Warning * sign
	crit := th.Critical * sign

	approaching := false
	switch trend {
	case domain.TrendIncreasing:
		approaching = dir == domain.DirectionAbove
	case domain.TrendDecreasing:
		approaching = dir == domain.DirectionBelow
	case domain.TrendFluctuating:
		approaching = p.PromoteFluctuating
	}

	near := func(threshold float64) bool {
		return threshold-v <= p.ProximityRatio*math.Abs(threshold)
	}

	var (
		sev  domain.AlertSeverity
		next float64 // 下一阈值（已换算）
		ref  float64
	)
	switch {
	case v >= crit:
		return domain.SeverityCritical, th.Critical
	case v >= warn:
		sev, next, ref = domain.SeverityHigh, crit, th.Critical
	case near(warn):
		sev, next, ref = domain.SeverityMedium, warn, th.Warning
	default:
		return domain.SeverityLow, th.Warning
	}
	if approaching && near(next) {
		return sev.Promote(), ref
	}
	return sev, th.Warning
}
