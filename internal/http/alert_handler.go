package httpapi

import (
	"net/http"

	"saffy-workflow/internal/alert"
	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/engine"
)

// raiseRequest 传感器读数 + 阈值
type raiseRequest struct {
	Reading    domain.SensorReading `json:"reading"`
	Thresholds domain.Thresholds    `json:"thresholds"`
}

// RaiseAlert POST /api/v1/alerts
func (h *WorkflowHandler) RaiseAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	var req raiseRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	a, err := h.engine.RaiseAlert(r.Context(), actor, req.Reading, req.Thresholds)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(a))
}

// ReportAlert POST /api/v1/alerts/manual
func (h *WorkflowHandler) ReportAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	var req alert.ManualReport
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	a, err := h.engine.ReportAlert(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(a))
}

// ListAlerts GET /api/v1/alerts?status=&severity=&page=&size=
func (h *WorkflowHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	alerts, err := h.engine.ListAlerts(r.Context(), engine.AlertFilter{
		Status:   domain.AlertStatus(q.Get("status")),
		Severity: domain.AlertSeverity(q.Get("severity")),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(paginate(alerts, parseIntQuery(r, "page", 1), parseIntQuery(r, "size", 0))))
}

// GetAlert GET /api/v1/alerts/{id}
func (h *WorkflowHandler) GetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.GetAlert(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(a))
}

type notesRequest struct {
	Notes string `json:"notes"`
}

// AcknowledgeAlert POST /api/v1/alerts/{id}/acknowledge
func (h *WorkflowHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.alertAction(w, r, func(actor domain.Actor, id string) (*domain.FacilityAlert, error) {
		return h.engine.AcknowledgeAlert(r.Context(), actor, id, req.Notes)
	})
}

// spawnResponse 报警与派生的任务
type spawnResponse struct {
	Alert *domain.FacilityAlert   `json:"alert"`
	Task  *domain.MaintenanceTask `json:"task"`
}

// SpawnTask POST /api/v1/alerts/{id}/tasks（body 为可选的任务草稿）
func (h *WorkflowHandler) SpawnTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	var draft domain.MaintenanceTask
	if err := readBodyJSON(r, maxBodyBytes, &draft); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	a, t, err := h.engine.SpawnTask(r.Context(), actor, r.PathValue("id"), &draft)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(spawnResponse{Alert: a, Task: t}))
}

type resolutionRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveAlert POST /api/v1/alerts/{id}/resolve
func (h *WorkflowHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req resolutionRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.alertAction(w, r, func(actor domain.Actor, id string) (*domain.FacilityAlert, error) {
		return h.engine.ResolveAlert(r.Context(), actor, id, req.Resolution)
	})
}

// DismissAlert POST /api/v1/alerts/{id}/dismiss
func (h *WorkflowHandler) DismissAlert(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.alertAction(w, r, func(actor domain.Actor, id string) (*domain.FacilityAlert, error) {
		return h.engine.DismissAlert(r.Context(), actor, id, req.Reason)
	})
}

// LinkAlertPermit POST /api/v1/alerts/{id}/permit
func (h *WorkflowHandler) LinkAlertPermit(w http.ResponseWriter, r *http.Request) {
	var req permitLinkRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.alertAction(w, r, func(actor domain.Actor, id string) (*domain.FacilityAlert, error) {
		return h.engine.LinkAlertPermit(r.Context(), actor, id, req.PermitID)
	})
}

func (h *WorkflowHandler) alertAction(w http.ResponseWriter, r *http.Request, fn func(actor domain.Actor, id string) (*domain.FacilityAlert, error)) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	a, err := fn(actor, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(a))
}
