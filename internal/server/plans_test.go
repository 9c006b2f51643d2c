package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/planscribe/planscribe/internal/research"
	"github.com/planscribe/planscribe/internal/store"
	"github.com/planscribe/planscribe/models"
)

type stubProvider struct {
	response string
	err      error
}

func (p *stubProvider) Complete(ctx context.Context, system, user string) (string, error) {
	return p.response, p.err
}

func (p *stubProvider) CompleteStream(ctx context.Context, system, user string, onChunk func(string)) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if onChunk != nil {
		onChunk(p.response)
	}
	return p.response, nil
}

const stubPlanResponse = `{
  "sections": {"executive_overview": "Acme overview."},
  "competitors": [{"name": "Globex", "share_percent": 100}],
  "confidence": 0.5
}`

func newTestHandler(t *testing.T, prov *stubProvider) (*PlansHandler, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	fuser := &research.Fuser{
		Caps:           map[models.Depth]int{models.DepthQuick: 6, models.DepthStandard: 14, models.DepthDeep: 24},
		DedupThreshold: 0.8,
		RAGTimeout:     time.Second,
		WebTimeout:     time.Second,
	}
	engine := research.NewEngine(st, prov, fuser, research.NewTracker(0.5, 3), 12, nil)
	return &PlansHandler{Engine: engine, Store: st}, st
}

func seedPlan(t *testing.T, h *PlansHandler) *models.AccountPlan {
	t.Helper()
	plan, err := h.Engine.StartResearch(context.Background(), "Acme", models.DepthStandard)
	if err != nil {
		t.Fatalf("StartResearch: %v", err)
	}
	return plan
}

func doJSON(h echo.HandlerFunc, method, path, body string, params map[string]string) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return rec, h(c)
}

func TestStartResearchHandler(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})

	rec, err := doJSON(h.startResearch, http.MethodPost, "/api/research/start", `{"company":"Acme","depth":"quick"}`, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var plan models.AccountPlan
	if err := json.Unmarshal(rec.Body.Bytes(), &plan); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if plan.Company != "Acme" || plan.Version != 2 {
		t.Errorf("plan = company %q version %d", plan.Company, plan.Version)
	}
}

func TestStartResearchRequiresCompany(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	_, err := doJSON(h.startResearch, http.MethodPost, "/api/research/start", `{"company":"  "}`, nil)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("err = %v, want 400", err)
	}
}

func TestGetPlanNotFound(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	_, err := doJSON(h.getPlan, http.MethodGet, "/api/plans/missing", "", map[string]string{"id": "missing"})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("err = %v, want 404", err)
	}
}

func TestGetPlanOK(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)

	rec, err := doJSON(h.getPlan, http.MethodGet, "/api/plans/"+plan.ID, "", map[string]string{"id": plan.ID})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestEditSectionStaleReturns409WithCurrentVersion(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)

	// First edit advances past the base the second one will claim.
	body := `{"content":"new overview","base_version":` + strconv.Itoa(plan.Version) + `}`
	if _, err := doJSON(h.editSection, http.MethodPut, "/x", body, map[string]string{"id": plan.ID, "key": "executive_overview"}); err != nil {
		t.Fatalf("first edit: %v", err)
	}

	_, err := doJSON(h.editSection, http.MethodPut, "/x", body, map[string]string{"id": plan.ID, "key": "executive_overview"})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("err = %v, want 409", err)
	}
	msg, ok := he.Message.(map[string]interface{})
	if !ok {
		t.Fatalf("message = %T, want map with current_version", he.Message)
	}
	if _, ok := msg["current_version"]; !ok {
		t.Errorf("body = %+v, want current_version for client retry", msg)
	}
}

func TestEditSectionUnknownKey(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)
	_, err := doJSON(h.editSection, http.MethodPut, "/x", `{"content":"x","base_version":2}`, map[string]string{"id": plan.ID, "key": "bogus"})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("err = %v, want 400", err)
	}
}

func TestDeepDiveUnknownConflict(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)
	_, err := doJSON(h.deepDive, http.MethodPost, "/x", "", map[string]string{"id": plan.ID, "cid": "missing"})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("err = %v, want 404", err)
	}
}

func TestChartsHandler(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)

	rec, err := doJSON(h.charts, http.MethodGet, "/x", "", map[string]string{"id": plan.ID})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	var charts models.ChartPayloads
	if err := json.Unmarshal(rec.Body.Bytes(), &charts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if charts.PlanVersion != plan.Version {
		t.Errorf("charts version = %d, plan = %d", charts.PlanVersion, plan.Version)
	}
	if len(charts.Pie) != 1 {
		t.Errorf("pie = %+v", charts.Pie)
	}
}

func TestChatRequiresMessage(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)
	_, err := doJSON(h.chat, http.MethodPost, "/x", `{"message":""}`, map[string]string{"id": plan.ID})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("err = %v, want 400", err)
	}
}

func TestFeedbackHandler(t *testing.T) {
	h, st := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)

	rec, err := doJSON(h.feedback, http.MethodPost, "/x", `{"notes":"competitor list feels thin"}`, map[string]string{"id": plan.ID})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["summary"] == "" {
		t.Error("no review summary in response")
	}
	turns, _ := st.ListTurns(context.Background(), plan.ID)
	found := false
	for _, turn := range turns {
		if strings.Contains(turn.Text, "competitor list feels thin") {
			found = true
		}
	}
	if !found {
		t.Error("feedback not recorded in turns")
	}
}

func TestFeedbackRequiresNotes(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)
	_, err := doJSON(h.feedback, http.MethodPost, "/x", `{"notes":"  "}`, map[string]string{"id": plan.ID})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("err = %v, want 400", err)
	}
}

func TestStreamResearchHandlerEmitsSSE(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/research/stream", strings.NewReader(`{"company":"Acme"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.streamResearch(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: step") {
		t.Errorf("no step events:\n%s", body)
	}
	if !strings.Contains(body, "event: plan") {
		t.Errorf("no final plan event:\n%s", body)
	}
}

func TestDeletePlanHandler(t *testing.T) {
	h, _ := newTestHandler(t, &stubProvider{response: stubPlanResponse})
	plan := seedPlan(t, h)

	rec, err := doJSON(h.deletePlan, http.MethodDelete, "/x", "", map[string]string{"id": plan.ID})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	_, err = doJSON(h.getPlan, http.MethodGet, "/x", "", map[string]string{"id": plan.ID})
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("err = %v, want 404 after delete", err)
	}
}

