package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"saffy-workflow/internal/domain"
)

func openWorkbook(t *testing.T, data []byte) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestRiskRegister(t *testing.T) {
	items := []*domain.RiskAssessmentItem{
		{
			ID:                "r1",
			AssessmentID:      "RA-1",
			Process:           "Grinding",
			HazardDescription: "Flying particles",
			HazardType:        domain.HazardType("physical"),
			Before:            domain.RiskMatrix{Frequency: 4, Severity: 5},
			After:             domain.RiskMatrix{Frequency: 2, Severity: 2},
			Controls: domain.ControlMeasures{
				Engineering: []string{"Machine guard"},
				PPE:         []string{"Face shield", "Gloves"},
			},
			Status: domain.RiskItemCompleted,
		},
		{
			ID:                "r2",
			AssessmentID:      "RA-1",
			Process:           "Solvent wipe",
			HazardDescription: "Vapour inhalation",
			HazardType:        domain.HazardType("chemical"),
			Before:            domain.RiskMatrix{Frequency: 3, Severity: 2},
			After:             domain.RiskMatrix{Frequency: 1, Severity: 2},
			Status:            domain.RiskItemPlanned,
		},
	}

	data, err := RiskRegister(items)
	require.NoError(t, err)

	f := openWorkbook(t, data)
	rows, err := f.GetRows(RiskSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, RiskRegisterHeader, rows[0])
	assert.Equal(t, "r1", rows[1][0])
	assert.Equal(t, "20", rows[1][6])
	assert.Equal(t, "critical", rows[1][7])
	assert.Equal(t, "Face shield; Gloves", rows[1][10])
	assert.Equal(t, "4", rows[1][13])
	assert.Equal(t, "low", rows[1][14])
	assert.Equal(t, "medium", rows[2][7])

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"critical", "1"}, summary[1])
	assert.Equal(t, []string{"medium", "1"}, summary[3])
	assert.Equal(t, []string{"total", "2"}, summary[5])
	assert.Equal(t, []string{"completed", "1"}, summary[6])
}

func TestRiskRegister_InvalidMatrix(t *testing.T) {
	_, err := RiskRegister([]*domain.RiskAssessmentItem{{ID: "bad", Before: domain.RiskMatrix{Frequency: 9, Severity: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestPermitRegister_ProjectsExpired(t *testing.T) {
	start := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	permits := []*domain.WorkPermit{
		{
			PermitNumber: "PTW-2024-0001",
			Type:         domain.PermitHotWork,
			Title:        "Weld handrail",
			Location:     "Roof",
			Priority:     domain.PriorityHigh,
			Status:       domain.PermitApproved,
			PlannedStart: start,
			PlannedEnd:   start.Add(8 * time.Hour),
			Requester:    domain.Requester{ID: "u1", Name: "Lee"},
			Approvals: []domain.ApprovalStage{
				{Stage: "area_supervisor", Decision: domain.DecisionApproved, Conditions: []string{"Fire watch 30 min"}},
			},
		},
	}

	data, err := PermitRegister(permits, start.Add(24*time.Hour))
	require.NoError(t, err)

	rows, err := openWorkbook(t, data).GetRows(PermitSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "PTW-2024-0001", rows[1][0])
	assert.Equal(t, "expired", rows[1][5])
	assert.Equal(t, "Lee", rows[1][8])
	assert.Equal(t, "Fire watch 30 min", rows[1][10])
}
