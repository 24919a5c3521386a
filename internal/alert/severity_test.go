package alert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"saffy-workflow/internal/domain"
)

func TestDeriveSeverity_Above(t *testing.T) {
	th := domain.Thresholds{Warning: 50, Critical: 80}
	p := DefaultPolicy()
	tests := []struct {
		name      string
		value     float64
		trend     domain.Trend
		want      domain.AlertSeverity
		threshold float64
	}{
		{"low", 30, domain.TrendStable, domain.SeverityLow, 50},
		{"low increasing far", 40, domain.TrendIncreasing, domain.SeverityLow, 50},
		{"near warning", 46, domain.TrendStable, domain.SeverityMedium, 50},
		{"near warning increasing", 46, domain.TrendIncreasing, domain.SeverityHigh, 50},
		{"near warning decreasing", 46, domain.TrendDecreasing, domain.SeverityMedium, 50},
		{"at warning", 50, domain.TrendStable, domain.SeverityHigh, 50},
		{"near critical increasing", 75, domain.TrendIncreasing, domain.SeverityCritical, 80},
		{"near critical stable", 75, domain.TrendStable, domain.SeverityHigh, 50},
		{"at critical", 80, domain.TrendDecreasing, domain.SeverityCritical, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, threshold := DeriveSeverity(tt.value, th, tt.trend, p)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.threshold, threshold)
		})
	}
}

func TestDeriveSeverity_Below(t *testing.T) {
	// 氧含量：越低越危险
	th := domain.Thresholds{Warning: 19.5, Critical: 16, Direction: domain.DirectionBelow}
	p := DefaultPolicy()

	sev, _ := DeriveSeverity(20.9, th, domain.TrendStable, p)
	assert.Equal(t, domain.SeverityMedium, sev)
	sev, _ = DeriveSeverity(20.9, th, domain.TrendDecreasing, p)
	assert.Equal(t, domain.SeverityHigh, sev)
	sev, _ = DeriveSeverity(23, th, domain.TrendDecreasing, p)
	assert.Equal(t, domain.SeverityLow, sev)
	sev, _ = DeriveSeverity(18, th, domain.TrendStable, p)
	assert.Equal(t, domain.SeverityHigh, sev)
	sev, _ = DeriveSeverity(15, th, domain.TrendIncreasing, p)
	assert.Equal(t, domain.SeverityCritical, sev)
}

func TestDeriveSeverity_Fluctuating(t *testing.T) {
	th := domain.Thresholds{Warning: 50, Critical: 80}
	sev, _ := DeriveSeverity(46, th, domain.TrendFluctuating, DefaultPolicy())
	assert.Equal(t, domain.SeverityMedium, sev)
	sev, _ = DeriveSeverity(46, th, domain.TrendFluctuating, Policy{ProximityRatio: 0.1, PromoteFluctuating: true})
	assert.Equal(t, domain.SeverityHigh, sev)
}

func TestDeriveSeverity_Monotonic(t *testing.T) {
	th := domain.Thresholds{Warning: 50, Critical: 80}
	for _, trend := range []domain.Trend{domain.TrendStable, domain.TrendIncreasing} {
		prev := -1
		for v := 0.0; v <= 100; v += 0.5 {
			sev, _ := DeriveSeverity(v, th, trend, DefaultPolicy())
			assert.GreaterOrEqual(t, sev.Rank(), prev, "value %v trend %s", v, trend)
			prev = sev.Rank()
		}
	}
}

func TestValidateThresholds(t *testing.T) {
	assert.NoError(t, ValidateThresholds(domain.Thresholds{Warning: 1, Critical: 2}))
	assert.NoError(t, ValidateThresholds(domain.Thresholds{Warning: 2, Critical: 1, Direction: domain.DirectionBelow}))

	for _, th := range []domain.Thresholds{
		{Warning: 2, Critical: 2},
		{Warning: 1, Critical: 2, Direction: domain.DirectionBelow},
		{Warning: 1, Critical: 2, Direction: "sideways"},
	} {
		err := ValidateThresholds(th)
		assert.True(t, errors.Is(err, domain.ErrValidation), "%+v", th)
	}
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{ProximityRatio: 0}.Validate())
	assert.Error(t, Policy{ProximityRatio: 1.2}.Validate())
}
