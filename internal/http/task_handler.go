package httpapi

import (
	"net/http"

	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/engine"
)

// ScheduleTask POST /api/v1/tasks
func (h *WorkflowHandler) ScheduleTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	var draft domain.MaintenanceTask
	if err := readBodyJSON(r, maxBodyBytes, &draft); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	t, err := h.engine.ScheduleTask(r.Context(), actor, &draft)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok(t))
}

// ListTasks GET /api/v1/tasks?status=&assignedTo=&page=&size=
func (h *WorkflowHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := h.engine.ListTasks(r.Context(), engine.TaskFilter{
		Status:     domain.TaskStatus(q.Get("status")),
		AssignedTo: q.Get("assignedTo"),
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(paginate(tasks, parseIntQuery(r, "page", 1), parseIntQuery(r, "size", 0))))
}

// GetTask GET /api/v1/tasks/{id}
func (h *WorkflowHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.engine.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(t))
}

// BeginTask POST /api/v1/tasks/{id}/begin
func (h *WorkflowHandler) BeginTask(w http.ResponseWriter, r *http.Request) {
	h.taskAction(w, r, func(actor domain.Actor, id string) (*domain.MaintenanceTask, error) {
		return h.engine.BeginTask(r.Context(), actor, id)
	})
}

// CompleteTask POST /api/v1/tasks/{id}/complete
func (h *WorkflowHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	var data domain.CompletionData
	if err := readBodyJSON(r, maxBodyBytes, &data); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.taskAction(w, r, func(actor domain.Actor, id string) (*domain.MaintenanceTask, error) {
		return h.engine.CompleteTask(r.Context(), actor, id, data)
	})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// CancelTask POST /api/v1/tasks/{id}/cancel
func (h *WorkflowHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.taskAction(w, r, func(actor domain.Actor, id string) (*domain.MaintenanceTask, error) {
		return h.engine.CancelTask(r.Context(), actor, id, req.Reason)
	})
}

type permitLinkRequest struct {
	PermitID string `json:"permitId"`
}

// LinkTaskPermit POST /api/v1/tasks/{id}/permit
func (h *WorkflowHandler) LinkTaskPermit(w http.ResponseWriter, r *http.Request) {
	var req permitLinkRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	h.taskAction(w, r, func(actor domain.Actor, id string) (*domain.MaintenanceTask, error) {
		return h.engine.LinkTaskPermit(r.Context(), actor, id, req.PermitID)
	})
}

func (h *WorkflowHandler) taskAction(w http.ResponseWriter, r *http.Request, fn func(actor domain.Actor, id string) (*domain.MaintenanceTask, error)) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	t, err := fn(actor, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(t))
}
