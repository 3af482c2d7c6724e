package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weibaohui/decision-council/internal/domain"
	"github.com/weibaohui/decision-council/internal/pkg/llm"
	"github.com/weibaohui/decision-council/internal/repository"
	"github.com/weibaohui/decision-council/internal/service"
	"github.com/weibaohui/decision-council/internal/service/orchestrator"
)

type mockCouncilService struct {
	ConsultFunc   func(ctx context.Context, req service.ConsultRequest) (*service.ConsultResponse, error)
	ConsultCalled int
	LastRequest   service.ConsultRequest
	GetFunc       func(ctx context.Context, id string) (*service.ConsultResponse, error)
}

func (m *mockCouncilService) Consult(ctx context.Context, req service.ConsultRequest) (*service.ConsultResponse, error) {
	m.ConsultCalled++
	m.LastRequest = req
	return m.ConsultFunc(ctx, req)
}

func (m *mockCouncilService) Get(ctx context.Context, id string) (*service.ConsultResponse, error) {
	return m.GetFunc(ctx, id)
}

func (m *mockCouncilService) Preview(ctx context.Context, req service.ConsultRequest) (*service.WeightPreview, error) {
	return &service.WeightPreview{
		Roles:    []domain.RoleKey{domain.RoleFinancialAnalyst},
		Emphasis: map[domain.RoleKey]domain.Emphasis{domain.RoleFinancialAnalyst: domain.EmphasisLead},
	}, nil
}

func (m *mockCouncilService) Roles() []service.RoleInfo {
	return []service.RoleInfo{{Key: domain.RoleStrategist, Title: "Strategist"}}
}

func (m *mockCouncilService) Presets() []domain.Preset {
	return service.BuiltinPresets()
}

type mockCostService struct {
	llm.UsageObserver
}

func (m *mockCostService) Report(ctx context.Context, consultationID string) (*service.CostReport, error) {
	return &service.CostReport{ConsultationID: consultationID, Total: repository.CostSummary{Calls: 7}}, nil
}

func (m *mockCostService) SumSince(ctx context.Context, since time.Time) (*repository.CostSummary, error) {
	return &repository.CostSummary{Calls: 3, CostUSD: 0.5}, nil
}

type fixedStatus struct{}

func (fixedStatus) GetStatus() *orchestrator.Status {
	return &orchestrator.Status{Capacity: 16}
}

func setupCouncilRouter(svc service.CouncilService, cost service.CostService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewCouncilHandler(svc, nil, cost)
	health := NewHealthHandler("mock", fixedStatus{})
	r.GET("/api/health", health.Health)
	r.POST("/api/consultations", h.Consult)
	r.GET("/api/consultations/:id", h.Get)
	r.GET("/api/consultations/:id/audit", h.Audit)
	r.GET("/api/consultations/:id/cost", h.Cost)
	r.GET("/api/cost", h.CostSince)
	r.GET("/api/council/roles", h.Roles)
	r.GET("/api/council/presets", h.Presets)
	r.POST("/api/council/weights", h.Preview)
	return r
}

type errorBody struct {
	Error struct {
		Kind       string `json:"kind"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retry_after"`
	} `json:"error"`
}

func postJSON(r *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestConsultSuccess(t *testing.T) {
	svc := &mockCouncilService{ConsultFunc: func(ctx context.Context, req service.ConsultRequest) (*service.ConsultResponse, error) {
		return &service.ConsultResponse{
			ID:          "c-1",
			Status:      "completed",
			Consensus:   &domain.Consensus{Decision: "Go"},
			RoleOutputs: []domain.RoleOutput{{Role: domain.RoleStrategist, Data: map[string]any{"summary": "ok"}}},
		}, nil
	}}
	r := setupCouncilRouter(svc, nil)

	w := postJSON(r, "/api/consultations", map[string]any{
		"question": "Launch?",
		"lineup":   map[string]any{"roles": []map[string]any{{"role_key": "strategist", "weight": 1, "position": 1}}},
	}, map[string]string{SessionHeader: "tok-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if svc.ConsultCalled != 1 {
		t.Fatalf("expected 1 consult call, got %d", svc.ConsultCalled)
	}
	if svc.LastRequest.SessionToken != "tok-1" || svc.LastRequest.Origin == "" {
		t.Fatalf("caller identity not forwarded: %+v", svc.LastRequest)
	}
	if svc.LastRequest.Lineup == nil || svc.LastRequest.Lineup.Roles[0].RoleKey != "strategist" {
		t.Fatalf("lineup not forwarded: %+v", svc.LastRequest.Lineup)
	}

	var resp service.ConsultResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "c-1" || resp.Consensus.Decision != "Go" || len(resp.RoleOutputs) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestConsultErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
		retryAfter string
	}{
		{"admission denied", &service.ConsultError{Kind: domain.KindAdmissionDenied, Message: "slow down", RetryAfter: 2}, http.StatusTooManyRequests, "AdmissionDenied", "2"},
		{"invalid request", &service.ConsultError{Kind: domain.KindInvalidRequest, Message: "lineup or preset_id is required"}, http.StatusBadRequest, "InvalidRequest", ""},
		{"all roles failed", &service.ConsultError{Kind: domain.KindBackendUnavailable, Message: "all advisory roles failed"}, http.StatusInternalServerError, "BackendUnavailable", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCouncilService{ConsultFunc: func(ctx context.Context, req service.ConsultRequest) (*service.ConsultResponse, error) {
				return nil, tt.err
			}}
			r := setupCouncilRouter(svc, nil)
			w := postJSON(r, "/api/consultations", map[string]any{"question": "Launch?", "preset_id": "balanced"}, nil)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, w.Code)
			}
			var body errorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Error.Kind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, body.Error.Kind)
			}
			if got := w.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Fatalf("expected Retry-After %q, got %q", tt.retryAfter, got)
			}
		})
	}
}

func TestConsultMalformedBody(t *testing.T) {
	svc := &mockCouncilService{}
	r := setupCouncilRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/consultations", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if svc.ConsultCalled != 0 {
		t.Fatalf("service should not be called for malformed body")
	}
}

func TestGetConsultationNotFound(t *testing.T) {
	svc := &mockCouncilService{GetFunc: func(ctx context.Context, id string) (*service.ConsultResponse, error) {
		return nil, &service.ConsultError{Kind: domain.KindNotFound, Message: "consultation " + id + " not found"}
	}}
	r := setupCouncilRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/consultations/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetConsultationStorageErrorIsHidden(t *testing.T) {
	svc := &mockCouncilService{GetFunc: func(ctx context.Context, id string) (*service.ConsultResponse, error) {
		return nil, errors.New("dial tcp 10.0.0.5:3306: connect: connection refused")
	}}
	r := setupCouncilRouter(svc, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/consultations/c-1", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Kind != string(domain.KindInternal) {
		t.Errorf("expected kind %s, got %s", domain.KindInternal, body.Error.Kind)
	}
	if body.Error.Message != "internal error" {
		t.Errorf("expected fixed message, got %q", body.Error.Message)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("response leaks internal error text: %s", w.Body.String())
	}
}

func TestDisabledAuditAndCost(t *testing.T) {
	r := setupCouncilRouter(&mockCouncilService{}, nil)

	for _, path := range []string{"/api/consultations/c-1/audit", "/api/consultations/c-1/cost"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestCostEndpoints(t *testing.T) {
	r := setupCouncilRouter(&mockCouncilService{}, &mockCostService{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/consultations/c-9/cost", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var report service.CostReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil || report.ConsultationID != "c-9" || report.Total.Calls != 7 {
		t.Fatalf("unexpected report: %+v, %v", report, err)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cost?since=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad duration, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/cost?since=1h", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCatalogAndHealth(t *testing.T) {
	r := setupCouncilRouter(&mockCouncilService{}, nil)

	for path, want := range map[string]string{
		"/api/council/roles":   "STRATEGIST",
		"/api/council/presets": "finance-first",
		"/api/health":          `"capacity":16`,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		if !bytes.Contains(w.Body.Bytes(), []byte(want)) {
			t.Fatalf("%s: body %s does not contain %s", path, w.Body.String(), want)
		}
	}

	w := postJSON(r, "/api/council/weights", map[string]any{"question": "budget?", "preset_id": "balanced"}, nil)
	if w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("lead voice")) {
		t.Fatalf("unexpected preview response %d: %s", w.Code, w.Body.String())
	}
}

func TestSessionTokenFromBearer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Request.Header.Set("Authorization", "Bearer abc")
	if got := sessionToken(c); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}
