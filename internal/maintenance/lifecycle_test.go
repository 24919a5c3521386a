package maintenance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saffy-workflow/internal/domain"
)

var (
	now  = time.Date(2024, 6, 3, 7, 30, 0, 0, time.UTC)
	tech = domain.Actor{ID: "tech-1", Role: domain.RoleTechnician}
)

func draft() *domain.MaintenanceTask {
	return &domain.MaintenanceTask{
		ID:            "t1",
		Title:         "Quarterly chiller inspection",
		Location:      "Roof plant",
		ScheduledDate: now,
		DueDate:       now.Add(48 * time.Hour),
		Checklist: []domain.ChecklistItem{
			{ID: "oil", Description: "Check oil level", Mandatory: true},
			{ID: "filters", Description: "Check filters", Mandatory: true},
			{ID: "notes", Description: "General notes"},
		},
	}
}

func permitWithStatus(id string, s domain.PermitStatus) *domain.WorkPermit {
	return &domain.WorkPermit{ID: id, Status: s, PlannedStart: now.Add(-time.Hour), PlannedEnd: now.Add(8 * time.Hour)}
}

func TestSchedule(t *testing.T) {
	l := NewLifecycle()
	in := draft()
	in.Checklist[0].Done = true
	out, err := l.Schedule(in, tech, now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskScheduled, out.Status)
	assert.Equal(t, domain.CategoryCorrective, out.Category)
	assert.Equal(t, domain.PriorityMedium, out.Priority)
	assert.False(t, out.Checklist[0].Done, "checklist starts unchecked")
	assert.True(t, in.Checklist[0].Done, "input must not be modified")
	require.Len(t, out.History, 1)
	assert.Equal(t, ActionScheduled, out.History[0].Action)
}

func TestSchedule_Validation(t *testing.T) {
	l := NewLifecycle()
	tests := []struct {
		name   string
		mutate func(*domain.MaintenanceTask)
		field  string
	}{
		{"title", func(t *domain.MaintenanceTask) { t.Title = "" }, "title"},
		{"location", func(t *domain.MaintenanceTask) { t.Location = "" }, "location"},
		{"category", func(t *domain.MaintenanceTask) { t.Category = "cosmetic" }, "category"},
		{"due before scheduled", func(t *domain.MaintenanceTask) { t.DueDate = now.Add(-time.Hour) }, "dueDate"},
		{"missing due", func(t *domain.MaintenanceTask) { t.DueDate = time.Time{} }, "dueDate"},
		{"duplicate checklist", func(t *domain.MaintenanceTask) { t.Checklist[1].ID = "oil" }, "checklist[1].id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := draft()
			tt.mutate(in)
			_, err := l.Schedule(in, tech, now)
			var v *domain.ValidationError
			require.True(t, errors.As(err, &v))
			assert.Equal(t, tt.field, v.Problems[0].Field)
		})
	}
}

func TestBegin_PermitGate(t *testing.T) {
	l := NewLifecycle()
	base, err := l.Schedule(draft(), tech, now)
	require.NoError(t, err)
	pid := "p1"

	tests := []struct {
		name       string
		required   bool
		permitID   *string
		linked     *domain.WorkPermit
		wantStatus string
		wantOK     bool
	}{
		{"not required", false, nil, nil, "", true},
		{"required none linked", true, nil, nil, "", false},
		{"required not loaded", true, &pid, nil, "unknown", false},
		{"required draft", true, &pid, permitWithStatus("p1", domain.PermitDraft), "draft", false},
		{"required approved", true, &pid, permitWithStatus("p1", domain.PermitApproved), "approved", false},
		{"required other permit", true, &pid, permitWithStatus("p2", domain.PermitActive), "unknown", false},
		{"required active", true, &pid, permitWithStatus("p1", domain.PermitActive), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := base.Clone()
			task.Safety.PermitRequired = tt.required
			task.Safety.PermitID = tt.permitID

			out, err := l.Begin(task, tt.linked, tech, now)
			if tt.wantOK {
				require.NoError(t, err)
				assert.Equal(t, domain.TaskInProgress, out.Status)
				return
			}
			var pe *domain.PermitNotActiveError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.wantStatus, pe.PermitStatus)
			assert.Equal(t, domain.TaskScheduled, task.Status)
		})
	}
}

func TestBegin_ExpiredPermit(t *testing.T) {
	l := NewLifecycle()
	task, err := l.Schedule(draft(), tech, now)
	require.NoError(t, err)
	pid := "p1"
	task.Safety.PermitRequired = true
	task.Safety.PermitID = &pid

	_, err = l.Begin(task, permitWithStatus("p1", domain.PermitActive), tech, now.Add(9*time.Hour))
	var pe *domain.PermitNotActiveError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "expired", pe.PermitStatus)
}

func TestComplete(t *testing.T) {
	l := NewLifecycle()
	task, err := l.Schedule(draft(), tech, now)
	require.NoError(t, err)

	_, err = l.Complete(task, domain.CompletionData{}, tech, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "must be in progress")

	task, err = l.Begin(task, nil, tech, now)
	require.NoError(t, err)

	_, err = l.Complete(task, domain.CompletionData{
		Checklist: []domain.ChecklistResult{{ItemID: "oil", Done: true}},
	}, tech, now)
	var v *domain.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "checklist.filters", v.Problems[0].Field)

	_, err = l.Complete(task, domain.CompletionData{
		Checklist: []domain.ChecklistResult{{ItemID: "oil", Done: true}, {ItemID: "filters", Done: true}, {ItemID: "ghost", Done: true}},
	}, tech, now)
	assert.True(t, errors.Is(err, domain.ErrValidation), "unknown checklist item")

	_, err = l.Complete(task, domain.CompletionData{
		Checklist: []domain.ChecklistResult{{ItemID: "oil", Done: true}, {ItemID: "filters", Done: true}},
		Feedback:  &domain.Feedback{Rating: 6},
	}, tech, now)
	assert.True(t, errors.Is(err, domain.ErrValidation), "rating out of range")

	done, err := l.Complete(task, domain.CompletionData{
		ActualDuration: 1.5,
		Checklist:      []domain.ChecklistResult{{ItemID: "oil", Done: true}, {ItemID: "filters", Done: true}},
		Cost:           domain.CostBreakdown{Labor: 90, Parts: 10, External: 0.5},
		Notes:          "All good",
	}, tech, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCompleted, done.Status)
	require.NotNil(t, done.ActualDuration)
	assert.Equal(t, 1.5, *done.ActualDuration)
	assert.InDelta(t, 100.5, done.Completion.TotalCost, 1e-9)
	assert.Equal(t, now.Add(2*time.Hour), *done.CompletedDate)
	assert.False(t, task.Checklist[0].Done, "input must not be modified")
}

func TestCancel(t *testing.T) {
	l := NewLifecycle()
	task, err := l.Schedule(draft(), tech, now)
	require.NoError(t, err)

	_, err = l.Cancel(task, "", tech, now)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	cancelled, err := l.Cancel(task, "Equipment decommissioned", tech, now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, cancelled.Status)

	_, err = l.Cancel(cancelled, "again", tech, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
	_, err = l.LinkPermit(cancelled, "p1", tech, now)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestOverdueProjection(t *testing.T) {
	l := NewLifecycle()
	task, err := l.Schedule(draft(), tech, now)
	require.NoError(t, err)

	assert.Equal(t, domain.TaskScheduled, task.EffectiveStatus(now.Add(48*time.Hour)))
	assert.Equal(t, domain.TaskOverdue, task.EffectiveStatus(now.Add(49*time.Hour)))
	assert.Equal(t, domain.TaskScheduled, task.Status)

	cancelled, err := l.Cancel(task, "no longer needed", tech, now)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskCancelled, cancelled.EffectiveStatus(now.Add(100*time.Hour)))
}
