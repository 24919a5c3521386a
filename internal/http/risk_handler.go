package httpapi

import (
	"net/http"

	"saffy-workflow/internal/domain"
)

type scoreRequest struct {
	Frequency int `json:"frequency"`
	Severity  int `json:"severity"`
}

// ScoreRisk POST /api/v1/risk/score
func (h *WorkflowHandler) ScoreRisk(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	res, err := h.engine.ScoreRisk(req.Frequency, req.Severity)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(res))
}

// UpsertRiskItem PUT /api/v1/risk-assessments/{assessmentId}/items
func (h *WorkflowHandler) UpsertRiskItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromReq(w, r)
	if !ok {
		return
	}
	var item domain.RiskAssessmentItem
	if err := readBodyJSON(r, maxBodyBytes, &item); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	saved, err := h.engine.UpsertRiskItem(r.Context(), actor, r.PathValue("assessmentId"), &item)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(saved))
}

// ListRiskItems GET /api/v1/risk-assessments/{assessmentId}/items
func (h *WorkflowHandler) ListRiskItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.engine.ListRiskItems(r.Context(), r.PathValue("assessmentId"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(paginate(items, parseIntQuery(r, "page", 1), parseIntQuery(r, "size", 0))))
}

// RiskSummary GET /api/v1/risk-assessments/{assessmentId}/summary
func (h *WorkflowHandler) RiskSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.AggregateRisk(r.Context(), r.PathValue("assessmentId"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(s))
}

// ExportRiskRegister GET /api/v1/risk-assessments/{assessmentId}/export
func (h *WorkflowHandler) ExportRiskRegister(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("assessmentId")
	data, err := h.engine.ExportRiskRegister(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeXLSX(w, "risk-register-"+id+".xlsx", data)
}
