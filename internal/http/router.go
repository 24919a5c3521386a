package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（方法 + 路径模式）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

const apiPrefix = "/api/v1"

// RegisterWorkflowRoutes 注册工作流路由
func (r *Router) RegisterWorkflowRoutes(h *WorkflowHandler) {
	r.Handle("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, Ok("ok"))
	})

	// permits
	r.Handle("POST "+apiPrefix+"/permits", h.CreatePermit)
	r.Handle("GET "+apiPrefix+"/permits", h.ListPermits)
	r.Handle("GET "+apiPrefix+"/permits/export", h.ExportPermits)
	r.Handle("GET "+apiPrefix+"/permits/{id}", h.GetPermit)
	r.Handle("DELETE "+apiPrefix+"/permits/{id}", h.DeletePermit)
	r.Handle("POST "+apiPrefix+"/permits/{id}/submit", h.SubmitPermit)
	r.Handle("POST "+apiPrefix+"/permits/{id}/decisions", h.DecidePermit)
	r.Handle("POST "+apiPrefix+"/permits/{id}/request-changes", h.RequestPermitChanges)
	r.Handle("POST "+apiPrefix+"/permits/{id}/activate", h.ActivatePermit)
	r.Handle("POST "+apiPrefix+"/permits/{id}/close", h.ClosePermit)

	// risk
	r.Handle("POST "+apiPrefix+"/risk/score", h.ScoreRisk)
	r.Handle("PUT "+apiPrefix+"/risk-assessments/{assessmentId}/items", h.UpsertRiskItem)
	r.Handle("GET "+apiPrefix+"/risk-assessments/{assessmentId}/items", h.ListRiskItems)
	r.Handle("GET "+apiPrefix+"/risk-assessments/{assessmentId}/summary", h.RiskSummary)
	r.Handle("GET "+apiPrefix+"/risk-assessments/{assessmentId}/export", h.ExportRiskRegister)

	// tasks
	r.Handle("POST "+apiPrefix+"/tasks", h.ScheduleTask)
	r.Handle("GET "+apiPrefix+"/tasks", h.ListTasks)
	r.Handle("GET "+apiPrefix+"/tasks/{id}", h.GetTask)
	r.Handle("POST "+apiPrefix+"/tasks/{id}/begin", h.BeginTask)
	r.Handle("POST "+apiPrefix+"/tasks/{id}/complete", h.CompleteTask)
	r.Handle("POST "+apiPrefix+"/tasks/{id}/cancel", h.CancelTask)
	r.Handle("POST "+apiPrefix+"/tasks/{id}/permit", h.LinkTaskPermit)

	// alerts
	r.Handle("POST "+apiPrefix+"/alerts", h.RaiseAlert)
	r.Handle("POST "+apiPrefix+"/alerts/manual", h.ReportAlert)
	r.Handle("GET "+apiPrefix+"/alerts", h.ListAlerts)
	r.Handle("GET "+apiPrefix+"/alerts/{id}", h.GetAlert)
	r.Handle("POST "+apiPrefix+"/alerts/{id}/acknowledge", h.AcknowledgeAlert)
	r.Handle("POST "+apiPrefix+"/alerts/{id}/tasks", h.SpawnTask)
	r.Handle("POST "+apiPrefix+"/alerts/{id}/resolve", h.ResolveAlert)
	r.Handle("POST "+apiPrefix+"/alerts/{id}/dismiss", h.DismissAlert)
	r.Handle("POST "+apiPrefix+"/alerts/{id}/permit", h.LinkAlertPermit)
}
