package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/engine"
	"saffy-workflow/internal/repository"
)

var testNow = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T, store *repository.EntityStore) http.Handler {
	t.Helper()
	n := 0
	e := engine.New(store,
		engine.WithClock(func() time.Time { return testNow }),
		engine.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
		engine.WithLogger(zap.NewNop()),
	)
	r := NewRouter(zap.NewNop())
	r.RegisterWorkflowRoutes(NewWorkflowHandler(e, zap.NewNop()))
	return r
}

type envelope struct {
	Code      int             `json:"code"`
	Type      string          `json:"type"`
	Message   string          `json:"message"`
	ErrorKind string          `json:"error_kind"`
	Result    json.RawMessage `json:"result"`
}

// do 发送请求；role 为空时不带操作人头
func do(t *testing.T, h http.Handler, method, path, role string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if role != "" {
		req.Header.Set(HeaderUserID, "u-"+role)
		req.Header.Set(HeaderUserName, role)
		req.Header.Set(HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func hotWorkBody() map[string]any {
	start := testNow.Add(2 * time.Hour)
	return map[string]any{
		"type":         "hot_work",
		"title":        "Weld pipe support",
		"location":     "Boiler house",
		"plannedStart": start.Format(time.RFC3339),
		"plannedEnd":   start.Add(8 * time.Hour).Format(time.RFC3339),
		"hazards": map[string]any{
			"identified":  []string{"sparks"},
			"mitigations": []string{"fire watch"},
		},
	}
}

type permitResponse struct {
	ID           string `json:"id"`
	PermitNumber string `json:"permitNumber"`
	Status       string `json:"status"`
	CurrentStage *struct {
		Stage        string `json:"stage"`
		RequiredRole string `json:"requiredRole"`
	} `json:"currentStage"`
	ApprovedConditions []string `json:"approvedConditions"`
}

func createPermit(t *testing.T, h http.Handler) permitResponse {
	t.Helper()
	rec, env := do(t, h, http.MethodPost, "/api/v1/permits", "requester", hotWorkBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var p permitResponse
	require.NoError(t, json.Unmarshal(env.Result, &p))
	return p
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(t, nil)
	rec, env := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, env.Code)
}

func TestMutationsRequireActor(t *testing.T) {
	h := newTestRouter(t, nil)
	rec, env := do(t, h, http.MethodPost, "/api/v1/permits", "", hotWorkBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ResultError, env.Code)
	assert.Equal(t, "Unauthorized", env.ErrorKind)

	// 读取不需要操作人
	rec, env = do(t, h, http.MethodGet, "/api/v1/permits", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultSuccess, env.Code)
}

func TestPermitFlowOverHTTP(t *testing.T) {
	h := newTestRouter(t, nil)
	p := createPermit(t, h)
	assert.Equal(t, "PTW-2024-0001", p.PermitNumber)
	assert.Equal(t, "draft", p.Status)
	assert.Nil(t, p.CurrentStage)
	assert.NotNil(t, p.ApprovedConditions)

	rec, env := do(t, h, http.MethodPost, "/api/v1/permits/"+p.ID+"/submit", "requester", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Result, &p))
	assert.Equal(t, "submitted", p.Status)
	require.NotNil(t, p.CurrentStage)
	assert.Equal(t, "area_supervisor", p.CurrentStage.RequiredRole)

	decision := map[string]any{"stage": "area_supervisor", "decision": "approved", "conditions": []string{"barrier tape"}}
	rec, env = do(t, h, http.MethodPost, "/api/v1/permits/"+p.ID+"/decisions", "area_supervisor", decision)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Result, &p))
	assert.Equal(t, "under_review", p.Status)
	assert.Equal(t, "safety_officer", p.CurrentStage.RequiredRole)
	assert.Equal(t, []string{"barrier tape"}, p.ApprovedConditions)

	// 越级审批
	decision = map[string]any{"stage": "fire_marshal", "decision": "approved"}
	rec, env = do(t, h, http.MethodPost, "/api/v1/permits/"+p.ID+"/decisions", "fire_marshal", decision)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ResultError, env.Code)
	assert.Equal(t, "InvalidTransition", env.ErrorKind)
}

func TestErrorStatusMapping(t *testing.T) {
	h := newTestRouter(t, nil)

	t.Run("validation", func(t *testing.T) {
		body := hotWorkBody()
		delete(body, "title")
		rec, env := do(t, h, http.MethodPost, "/api/v1/permits", "requester", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "ValidationError", env.ErrorKind)
		var problems []domain.FieldProblem
		require.NoError(t, json.Unmarshal(env.Result, &problems))
		require.NotEmpty(t, problems)
		assert.Equal(t, "title", problems[0].Field)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/permits", bytes.NewBufferString("{"))
		req.Header.Set(HeaderUserID, "u-1")
		req.Header.Set(HeaderUserRole, "requester")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid input", func(t *testing.T) {
		rec, env := do(t, h, http.MethodPost, "/api/v1/risk/score", "", map[string]int{"frequency": 6, "severity": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "InvalidInput", env.ErrorKind)
	})

	t.Run("not found", func(t *testing.T) {
		rec, env := do(t, h, http.MethodGet, "/api/v1/tasks/missing", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NotFound", env.ErrorKind)
	})
}

// brokenPermits 模拟数据库故障
type brokenPermits struct{ repository.PermitStore }

func (brokenPermits) Get(context.Context, string) (*domain.WorkPermit, error) {
	return nil, errors.New("pq: connection refused")
}

func TestInternalErrorIsMasked(t *testing.T) {
	store := repository.NewMemoryEntityStore()
	store.Permits = brokenPermits{store.Permits}
	h := newTestRouter(t, store)

	rec, env := do(t, h, http.MethodGet, "/api/v1/permits/any", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "InternalError", env.ErrorKind)
	assert.Equal(t, "internal error", env.Message)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestScoreRiskEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	rec, env := do(t, h, http.MethodPost, "/api/v1/risk/score", "", map[string]int{"frequency": 3, "severity": 4})
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Level int    `json:"level"`
		Grade string `json:"grade"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &res))
	assert.Equal(t, 12, res.Level)
	assert.Equal(t, "high", res.Grade)
}

func TestAlertSpawnTaskOverHTTP(t *testing.T) {
	h := newTestRouter(t, nil)
	raise := map[string]any{
		"reading": map[string]any{
			"sensorId":     "TEMP-01",
			"location":     "Boiler house",
			"currentValue": 90,
			"unit":         "C",
			"trend":        "increasing",
		},
		"thresholds": map[string]any{"warning": 50, "critical": 80, "direction": "above"},
	}
	rec, env := do(t, h, http.MethodPost, "/api/v1/alerts", "technician", raise)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var a struct {
		ID       string `json:"id"`
		Severity string `json:"severity"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &a))
	assert.Equal(t, "critical", a.Severity)

	rec, env = do(t, h, http.MethodPost, "/api/v1/alerts/"+a.ID+"/tasks", "technician", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var spawned struct {
		Alert struct {
			LinkedTaskIDs []string `json:"linkedTaskIds"`
		} `json:"alert"`
		Task struct {
			ID       string `json:"id"`
			Priority string `json:"priority"`
			Category string `json:"category"`
		} `json:"task"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &spawned))
	assert.Equal(t, "critical", spawned.Task.Priority)
	assert.Equal(t, "emergency", spawned.Task.Category)

	// 关联任务未完成，不能解决
	rec, env = do(t, h, http.MethodPost, "/api/v1/alerts/"+a.ID+"/resolve", "technician", map[string]string{"resolution": "fixed"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "LinkedTaskOpen", env.ErrorKind)

	rec, env = do(t, h, http.MethodGet, "/api/v1/alerts?severity=critical", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Items      []json.RawMessage `json:"items"`
		Pagination Pagination        `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &page))
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Pagination.Total)
}

func TestExportPermitsContentType(t *testing.T) {
	h := newTestRouter(t, nil)
	createPermit(t, h)

	rec, _ := do(t, h, http.MethodGet, "/api/v1/permits/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "permit-register-20240304.xlsx")
	// xlsx 是 zip 包
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

func TestPaginate(t *testing.T) {
	all := []int{1, 2, 3, 4, 5}

	p := paginate(all, 2, 2)
	assert.Equal(t, []int{3, 4}, p.Items)
	assert.Equal(t, Pagination{Size: 2, Page: 2, Count: 2, Total: 5}, p.Pagination)

	p = paginate(all, 9, 2)
	assert.Empty(t, p.Items)
	assert.Equal(t, 5, p.Pagination.Total)

	p = paginate(all, 1, 0)
	assert.Len(t, p.Items, 5)
}

func TestRiskItemsOverHTTP(t *testing.T) {
	h := newTestRouter(t, nil)
	item := map[string]any{
		"process":           "Boiler descaling",
		"hazardDescription": "Acid splash",
		"hazardType":        "chemical",
		"before":            map[string]int{"frequency": 5, "severity": 4},
		"after":             map[string]int{"frequency": 2, "severity": 2},
		"controls":          map[string]any{"engineering": []string{"splash guard"}, "ppe": []string{"face shield"}},
	}
	rec, env := do(t, h, http.MethodPut, "/api/v1/risk-assessments/RA-1/items", "safety_officer", item)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved struct {
		ID           string `json:"id"`
		AssessmentID string `json:"assessmentId"`
		Version      int64  `json:"version"`
		Before       struct {
			RiskLevel int    `json:"riskLevel"`
			RiskGrade string `json:"riskGrade"`
		} `json:"before"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &saved))
	assert.Equal(t, "RA-1", saved.AssessmentID)
	assert.Equal(t, int64(1), saved.Version)
	assert.Equal(t, 20, saved.Before.RiskLevel)
	assert.Equal(t, "critical", saved.Before.RiskGrade)

	// 版本过期
	item["id"] = saved.ID
	item["version"] = 0
	rec, env = do(t, h, http.MethodPut, "/api/v1/risk-assessments/RA-1/items", "safety_officer", item)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ConcurrencyConflict", env.ErrorKind)

	rec, env = do(t, h, http.MethodGet, "/api/v1/risk-assessments/RA-1/summary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary struct {
		Total   int            `json:"total"`
		ByGrade map[string]int `json:"byGrade"`
	}
	require.NoError(t, json.Unmarshal(env.Result, &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.ByGrade["critical"])

	rec, _ = do(t, h, http.MethodGet, "/api/v1/risk-assessments/RA-1/export", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "risk-register-RA-1.xlsx")
}
