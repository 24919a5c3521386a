package permit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saffy-workflow/internal/domain"
)

var (
	t0         = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	requester  = domain.Actor{ID: "u1", Name: "Ana", Role: domain.RoleRequester}
	supervisor = domain.Actor{ID: "u2", Role: domain.RoleAreaSupervisor}
	electrical = domain.Actor{ID: "u3", Role: domain.RoleElectricalAuthority}
	safety     = domain.Actor{ID: "u4", Role: domain.RoleSafetyOfficer}
)

func electricalDraft() *domain.WorkPermit {
	return &domain.WorkPermit{
		ID:           "p1",
		PermitNumber: "PTW-2024-0001",
		Type:         domain.PermitElectricalWork,
		Title:        "Replace MCC breaker",
		Location:     "Substation 2",
		PlannedStart: t0.Add(time.Hour),
		PlannedEnd:   t0.Add(5 * time.Hour),
		Hazards: domain.PermitHazards{
			Identified:  []string{"arc flash"},
			Mitigations: []string{"LOTO"},
		},
	}
}

func submitted(t *testing.T, c *Chain) *domain.WorkPermit {
	t.Helper()
	p, err := c.Create(electricalDraft(), requester, t0)
	require.NoError(t, err)
	p, err = c.Submit(p, requester, t0)
	require.NoError(t, err)
	return p
}

func TestCreate(t *testing.T) {
	c := NewChain(nil)
	draft := electricalDraft()
	p, err := c.Create(draft, requester, t0)
	require.NoError(t, err)

	assert.Equal(t, domain.PermitDraft, p.Status)
	assert.Equal(t, domain.PriorityMedium, p.Priority)
	assert.Equal(t, 4.0, p.EstimatedDuration)
	assert.Equal(t, "u1", p.Requester.ID)
	assert.Equal(t, "Ana", p.Requester.Name)
	require.Len(t, p.Approvals, 3)
	assert.Equal(t, "electrical_authority", p.Approvals[1].Stage)
	assert.Equal(t, domain.RoleElectricalAuthority, p.Approvals[1].RequiredRole)
	require.Len(t, p.History, 1)
	assert.Equal(t, ActionCreated, p.History[0].Action)

	assert.Empty(t, draft.Status, "input must not be modified")
	assert.Nil(t, draft.Approvals)
}

func TestCreate_Validation(t *testing.T) {
	c := NewChain(nil)
	tests := []struct {
		name   string
		mutate func(p *domain.WorkPermit)
		field  string
	}{
		{"missing title", func(p *domain.WorkPermit) { p.Title = " " }, "title"},
		{"unknown type", func(p *domain.WorkPermit) { p.Type = "diving" }, "type"},
		{"missing location", func(p *domain.WorkPermit) { p.Location = "" }, "location"},
		{"end before start", func(p *domain.WorkPermit) { p.PlannedEnd = p.PlannedStart }, "plannedEnd"},
		{"bad priority", func(p *domain.WorkPermit) { p.Priority = "urgent" }, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := electricalDraft()
			tt.mutate(p)
			_, err := c.Create(p, requester, t0)
			var v *domain.ValidationError
			require.True(t, errors.As(err, &v))
			assert.Equal(t, tt.field, v.Problems[0].Field)
		})
	}
}

func TestCreate_TypeWithoutStages(t *testing.T) {
	table := DefaultControlTable()
	delete(table, domain.PermitGeneral)
	c := NewChain(table)

	p := electricalDraft()
	p.Type = domain.PermitGeneral
	_, err := c.Create(p, requester, t0)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestSubmit(t *testing.T) {
	c := NewChain(nil)
	p, err := c.Create(electricalDraft(), requester, t0)
	require.NoError(t, err)

	bad := p.Clone()
	bad.Hazards.Mitigations = []string{" "}
	_, err = c.Submit(bad, requester, t0)
	var v *domain.ValidationError
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "hazards.mitigations", v.Problems[0].Field)

	insured := t0.Add(2 * time.Hour)
	withContractor := p.Clone()
	withContractor.Contractor = &domain.Contractor{Company: "Sparks Ltd", InsuranceValidUntil: &insured}
	_, err = c.Submit(withContractor, requester, t0)
	require.True(t, errors.As(err, &v))
	assert.Equal(t, "contractor.insuranceValidUntil", v.Problems[0].Field)

	out, err := c.Submit(p, requester, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.PermitSubmitted, out.Status)
	assert.Equal(t, domain.PermitDraft, p.Status)

	_, err = c.Submit(out, requester, t0)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestDecide_Sequence(t *testing.T) {
	c := NewChain(nil)
	p := submitted(t, c)

	assert.Equal(t, "area_supervisor", CurrentStage(p).Stage)

	p, err := c.Decide(p, DecideRequest{Stage: "area_supervisor", Decision: domain.DecisionApproved, Conditions: []string{"barrier tape", ""}}, supervisor, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.PermitUnderReview, p.Status)
	assert.Equal(t, []string{"barrier tape"}, p.Approvals[0].Conditions)
	require.NotNil(t, p.Approvals[0].Approver)
	assert.Equal(t, "u2", p.Approvals[0].Approver.ID)

	// 跳过当前阶段
	_, err = c.Decide(p, DecideRequest{Stage: "safety_officer", Decision: domain.DecisionApproved}, safety, t0)
	var te *domain.InvalidTransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "electrical_authority", te.ExpectedStage)

	p, err = c.Decide(p, DecideRequest{Stage: "electrical_authority", Decision: domain.DecisionApproved}, electrical, t0)
	require.NoError(t, err)
	p, err = c.Decide(p, DecideRequest{Stage: "safety_officer", Decision: domain.DecisionApproved, Conditions: []string{"fire extinguisher"}}, safety, t0)
	require.NoError(t, err)

	assert.Equal(t, domain.PermitApproved, p.Status)
	assert.Nil(t, CurrentStage(p))
	assert.Equal(t, []string{"barrier tape", "fire extinguisher"}, p.ApprovedConditions())
}

func TestDecide_InvalidDecision(t *testing.T) {
	c := NewChain(nil)
	p := submitted(t, c)
	_, err := c.Decide(p, DecideRequest{Stage: "area_supervisor", Decision: domain.DecisionPending}, supervisor, t0)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestDecide_WrongRole(t *testing.T) {
	c := NewChain(nil)
	p := submitted(t, c)
	_, err := c.Decide(p, DecideRequest{Stage: "area_supervisor", Decision: domain.DecisionApproved}, requester, t0)
	var te *domain.InvalidTransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, string(domain.RoleAreaSupervisor), te.ExpectedRole)
	assert.Equal(t, domain.DecisionPending, p.Approvals[0].Decision)
}

func TestRequestChanges(t *testing.T) {
	c := NewChain(nil)
	p := submitted(t, c)
	p, err := c.Decide(p, DecideRequest{Stage: "area_supervisor", Decision: domain.DecisionApproved, Comments: "ok"}, supervisor, t0)
	require.NoError(t, err)

	out, err := c.RequestChanges(p, "Add single line diagram", electrical, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.PermitDraft, out.Status)
	for _, s := range out.Approvals {
		assert.Equal(t, domain.DecisionPending, s.Decision)
		assert.Nil(t, s.Approver)
		assert.Nil(t, s.DecidedAt)
		assert.Empty(t, s.Comments)
	}

	draft, err := c.Create(electricalDraft(), requester, t0)
	require.NoError(t, err)
	_, err = c.RequestChanges(draft, "note", supervisor, t0)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func approved(t *testing.T, c *Chain) *domain.WorkPermit {
	t.Helper()
	p := submitted(t, c)
	var err error
	for _, a := range []domain.Actor{supervisor, electrical, safety} {
		p, err = c.Decide(p, DecideRequest{Stage: CurrentStage(p).Stage, Decision: domain.DecisionApproved}, a, t0)
		require.NoError(t, err)
	}
	return p
}

func TestActivateAndClose(t *testing.T) {
	c := NewChain(nil)
	p := approved(t, c)

	_, err := c.Activate(p, supervisor, t0)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "before planned start")

	active, err := c.Activate(p, supervisor, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.PermitActive, active.Status)

	_, err = c.Close(active, domain.CloseOut{FinalInspection: true}, supervisor, t0.Add(2*time.Hour))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	closed, err := c.Close(active, domain.CloseOut{WorkCompleted: true, FinalInspection: true}, supervisor, t0.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.PermitCompleted, closed.Status)
	require.NotNil(t, closed.CloseOut.ClosedAt)
	assert.Equal(t, t0.Add(2*time.Hour), *closed.CloseOut.ClosedAt)
}

func TestExpiredIsTerminal(t *testing.T) {
	c := NewChain(nil)
	p := approved(t, c)
	late := t0.Add(6 * time.Hour)

	assert.Equal(t, domain.PermitExpired, p.EffectiveStatus(late))
	_, err := c.Activate(p, supervisor, late)
	var te *domain.InvalidTransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "expired", te.Current)

	active, err := c.Activate(p, supervisor, t0.Add(time.Hour))
	require.NoError(t, err)
	_, err = c.Close(active, domain.CloseOut{WorkCompleted: true, FinalInspection: true}, supervisor, late)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestCanDelete(t *testing.T) {
	c := NewChain(nil)
	draft, err := c.Create(electricalDraft(), requester, t0)
	require.NoError(t, err)
	assert.NoError(t, c.CanDelete(draft))
	assert.Error(t, c.CanDelete(submitted(t, c)))
}
