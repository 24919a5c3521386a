package httpapi

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/engine"
	"saffy-workflow/internal/permit"
)

// WorkflowHandler 工作流 HTTP 处理器（许可证、风险、维护任务、报警）
type WorkflowHandler struct {
	engine *engine.Engine
	logger *zap.Logger
}

func NewWorkflowHandler(e *engine.Engine, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{engine: e, logger: logger}
}

// permitView 许可证响应：附带当前审批阶段与已批准的条件
type permitView struct {
	*domain.WorkPermit
	CurrentStage       *domain.ApprovalStage `json:"currentStage"`
	ApprovedConditions []string              `json:"approvedConditions"`
}

func newPermitView(p *domain.WorkPermit) permitView {
	conds := p.ApprovedConditions()
	if conds == nil {
		conds = []string{}
	}
	return permitView{WorkPermit: p, CurrentStage: permit.CurrentStage(p), ApprovedConditions: conds}
}

// CreatePermit POST /api/v1/permits
func (h *WorkflowHandler) CreatePermit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	var draft domain.WorkPermit
	if err := readBodyJSON(r, maxBodyBytes, &draft); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	p, err := h.engine.CreatePermit(r.Context(), actor, &draft)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(newPermitView(p)))
}

// ListPermits GET /api/v1/permits?status=&type=&page=&size=
func (h *WorkflowHandler) ListPermits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	permits, err := h.engine.ListPermits(r.Context(), engine.PermitFilter{
		Status: domain.PermitStatus(q.Get("status")),
		Type:   domain.PermitType(q.Get("type")),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	views := make([]permitView, 0, len(permits))
	for _, p := range permits {
		views = append(views, newPermitView(p))
	}
	writeJSON(w, http.StatusOK, Ok(paginate(views, parseIntQuery(r, "page", 1), parseIntQuery(r, "size", 0))))
}

// GetPermit GET /api/v1/permits/{id}
func (h *WorkflowHandler) GetPermit(w http.ResponseWriter, r *http.Request) {
	p, err := h.engine.GetPermit(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(newPermitView(p)))
}

// DeletePermit DELETE /api/v1/permits/{id}
func (h *WorkflowHandler) DeletePermit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := h.engine.DeletePermit(r.Context(), actor, id); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id, "deleted": true}))
}

// SubmitPermit POST /api/v1/permits/{id}/submit
func (h *WorkflowHandler) SubmitPermit(w http.ResponseWriter, r *http.Request) {
	h.permitAction(w, r, func(actor domain.Actor, id string) (*domain.WorkPermit, error) {
		return h.engine.SubmitPermit(r.Context(), actor, id)
	})
}

// DecidePermit POST /api/v1/permits/{id}/decisions
func (h *WorkflowHandler) DecidePermit(w http.ResponseWriter, r *http.Request) {
	var req permit.DecideRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.permitAction(w, r, func(actor domain.Actor, id string) (*domain.WorkPermit, error) {
		return h.engine.DecidePermitStage(r.Context(), actor, id, req)
	})
}

type noteRequest struct {
	Note string `json:"note"`
}

// RequestPermitChanges POST /api/v1/permits/{id}/request-changes
func (h *WorkflowHandler) RequestPermitChanges(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.permitAction(w, r, func(actor domain.Actor, id string) (*domain.WorkPermit, error) {
		return h.engine.RequestPermitChanges(r.Context(), actor, id, req.Note)
	})
}

// ActivatePermit POST /api/v1/permits/{id}/activate
func (h *WorkflowHandler) ActivatePermit(w http.ResponseWriter, r *http.Request) {
	h.permitAction(w, r, func(actor domain.Actor, id string) (*domain.WorkPermit, error) {
		return h.engine.ActivatePermit(r.Context(), actor, id)
	})
}

// ClosePermit POST /api/v1/permits/{id}/close
func (h *WorkflowHandler) ClosePermit(w http.ResponseWriter, r *http.Request) {
	var closeOut domain.CloseOut
	if err := readBodyJSON(r, maxBodyBytes, &closeOut); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.permitAction(w, r, func(actor domain.Actor, id string) (*domain.WorkPermit, error) {
		return h.engine.ClosePermit(r.Context(), actor, id, closeOut)
	})
}

// ExportPermits GET /api/v1/permits/export?status=&type=
func (h *WorkflowHandler) ExportPermits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data, err := h.engine.ExportPermitRegister(r.Context(), engine.PermitFilter{
		Status: domain.PermitStatus(q.Get("status")),
		Type:   domain.PermitType(q.Get("type")),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeXLSX(w, fmt.Sprintf("permit-register-%s.xlsx", h.engine.Now().Format("20060102")), data)
}

func (h *WorkflowHandler) permitAction(w http.ResponseWriter, r *http.Request, fn func(actor domain.Actor, id string) (*domain.WorkPermit, error)) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	p, err := fn(actor, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(newPermitView(p)))
}
