//go:build !integration

package main

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/aeo-cli/internal/audit"
	"github.com/sells-group/aeo-cli/internal/metrics"
	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/normalize"
	"github.com/sells-group/aeo-cli/internal/store"
)

type fakeRunner struct {
	result *audit.Result
	err    error
	gotURL string
}

func (f *fakeRunner) Run(_ context.Context, url string) (*audit.Result, error) {
	f.gotURL = url
	return f.result, f.err
}

type fakeAudits struct {
	audits    []model.Audit
	gotFilter store.AuditFilter
	err       error
}

func (f *fakeAudits) GetAudit(_ context.Context, id string) (*model.Audit, error) {
	for i := range f.audits {
		if f.audits[i].ID == id {
			return &f.audits[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeAudits) ListAudits(_ context.Context, filter store.AuditFilter) ([]model.Audit, error) {
	f.gotFilter = filter
	return f.audits, f.err
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestRouter_RootAndHealth(t *testing.T) {
	h := newRouter(serverDeps{})

	rr := doRequest(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, map[string]any{"message": "aeo-cli API", "status": "running"}, decodeMap(t, rr))

	rr = doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeMap(t, rr)["status"])
}

func TestRouter_Analyze_Success(t *testing.T) {
	report, err := normalize.New().NormalizeString("Overall Score: 81\nCitation Lift: 20", "https://acme.com")
	require.NoError(t, err)
	runner := &fakeRunner{result: &audit.Result{AuditID: "audit-1", Report: report}}
	h := newRouter(serverDeps{Runner: runner})

	rr := doRequest(t, h, http.MethodPost, "/analyze", `{"url":"acme.com"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "acme.com", runner.gotURL)
	assert.Equal(t, "audit-1", rr.Header().Get("X-Audit-ID"))

	var got model.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 81, got.Scorecard.OverallScore)
	assert.Equal(t, 20, got.Scorecard.CitationLift)
	assert.Equal(t, "https://acme.com", got.URLAnalyzed)
}

func TestRouter_Analyze_ExplicitFullMode(t *testing.T) {
	report, err := normalize.New().NormalizeString("Overall Score: 70", "https://acme.com")
	require.NoError(t, err)
	h := newRouter(serverDeps{Runner: &fakeRunner{result: &audit.Result{Report: report}}})

	rr := doRequest(t, h, http.MethodPost, "/analyze", `{"url":"https://acme.com","mode":"full"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("X-Audit-ID"))
}

func TestRouter_Analyze_BadRequests(t *testing.T) {
	h := newRouter(serverDeps{Runner: &fakeRunner{}})

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"url":`, "invalid request body"},
		{"missing url", `{"mode":"full"}`, "url is required"},
		{"unsupported mode", `{"url":"https://acme.com","mode":"quick"}`, "unsupported mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, h, http.MethodPost, "/analyze", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, decodeMap(t, rr)["error"], tt.want)
		})
	}
}

func TestRouter_Analyze_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid url", &audit.Error{Kind: audit.ErrInvalidURL}, http.StatusBadRequest},
		{"scrape failed", &audit.Error{Kind: audit.ErrScrapeFailed, Err: errors.New("blocked")}, http.StatusBadGateway},
		{"model failed", &audit.Error{Kind: audit.ErrModelFailed, Err: errors.New("overloaded")}, http.StatusBadGateway},
		{"store failure", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(serverDeps{Runner: &fakeRunner{err: tt.err}})
			rr := doRequest(t, h, http.MethodPost, "/analyze", `{"url":"https://acme.com"}`)
			assert.Equal(t, tt.want, rr.Code)
			assert.Equal(t, tt.err.Error(), decodeMap(t, rr)["error"])
		})
	}
}

func TestRouter_Analyze_NoRunner(t *testing.T) {
	h := newRouter(serverDeps{})
	rr := doRequest(t, h, http.MethodPost, "/analyze", `{"url":"https://acme.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRouter_Normalize_Text(t *testing.T) {
	h := newRouter(serverDeps{})

	rr := doRequest(t, h, http.MethodPost, "/normalize", `{"url":"https://acme.com","report":"Overall Score: 88"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 88, got.Scorecard.OverallScore)
	assert.Equal(t, "https://acme.com", got.URLAnalyzed)
	assert.NotContains(t, got.Fallbacks, "scorecard.overall_score")
}

func TestRouter_Normalize_Object(t *testing.T) {
	h := newRouter(serverDeps{})

	body := `{"url":"https://acme.com","report":{"scorecard":{"overall_score":64},"roadmap":{"timeline":"60 days"}}}`
	rr := doRequest(t, h, http.MethodPost, "/normalize", body)
	require.Equal(t, http.StatusOK, rr.Code)

	var got model.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 64, got.Scorecard.OverallScore)
	assert.Equal(t, "60 days", got.Roadmap.Timeline)
}

func TestRouter_Normalize_Malformed(t *testing.T) {
	h := newRouter(serverDeps{})

	for _, body := range []string{
		`{"url":"https://acme.com","report":[1,2,3]}`,
		`{"url":"https://acme.com"}`,
		`{"url":"https://acme.com","report":"   "}`,
	} {
		rr := doRequest(t, h, http.MethodPost, "/normalize", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code, body)
		assert.NotEmpty(t, decodeMap(t, rr)["error"], body)
	}

	rr := doRequest(t, h, http.MethodPost, "/normalize", `{"report":[1,2,3]}`)
	assert.Equal(t, "[1,2,3]", decodeMap(t, rr)["snippet"])

	rr = doRequest(t, h, http.MethodPost, "/normalize", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_ListAudits(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fa := &fakeAudits{audits: []model.Audit{
		{ID: "a1", URL: "https://acme.com", Status: model.AuditStatusComplete, CreatedAt: now, UpdatedAt: now},
	}}
	h := newRouter(serverDeps{Audits: fa})

	rr := doRequest(t, h, http.MethodGet, "/audits?status=complete&url=https://acme.com&limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, store.AuditFilter{Status: model.AuditStatusComplete, URL: "https://acme.com", Limit: 5}, fa.gotFilter)

	var got []model.Audit
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].ID)
}

func TestRouter_ListAudits_EmptyIsArray(t *testing.T) {
	h := newRouter(serverDeps{Audits: &fakeAudits{}})

	rr := doRequest(t, h, http.MethodGet, "/audits", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestRouter_ListAudits_BadQuery(t *testing.T) {
	h := newRouter(serverDeps{Audits: &fakeAudits{}})

	assert.Equal(t, http.StatusBadRequest, doRequest(t, h, http.MethodGet, "/audits?status=bogus", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, h, http.MethodGet, "/audits?limit=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(t, h, http.MethodGet, "/audits?limit=-1", "").Code)
}

func TestRouter_ListAudits_StoreError(t *testing.T) {
	h := newRouter(serverDeps{Audits: &fakeAudits{err: errors.New("db down")}})

	rr := doRequest(t, h, http.MethodGet, "/audits", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRouter_GetAudit(t *testing.T) {
	fa := &fakeAudits{audits: []model.Audit{{ID: "a1", URL: "https://acme.com", Status: model.AuditStatusFailed, Error: "boom"}}}
	h := newRouter(serverDeps{Audits: fa})

	rr := doRequest(t, h, http.MethodGet, "/audits/a1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "boom", body["error"])

	rr = doRequest(t, h, http.MethodGet, "/audits/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouter_AuditsNotMountedWithoutStore(t *testing.T) {
	h := newRouter(serverDeps{})
	assert.Equal(t, http.StatusNotFound, doRequest(t, h, http.MethodGet, "/audits", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(t, h, http.MethodGet, "/metrics", "").Code)
}

func TestRouter_Metrics(t *testing.T) {
	m := metrics.New()
	m.ObserveScrape("local_http")
	h := newRouter(serverDeps{Metrics: m.Handler()})

	rr := doRequest(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `aeo_scrapes_total{source="local_http"} 1`)
}

func TestRouter_CORS(t *testing.T) {
	h := newRouter(serverDeps{AllowedOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/analyze", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_BodyTooLarge(t *testing.T) {
	h := newRouter(serverDeps{})

	big := `{"report":"` + strings.Repeat("a", maxBodyBytes+10) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/normalize", bytes.NewBufferString(big))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAuditErrorStatus_Wrapped(t *testing.T) {
	err := &audit.Error{Kind: audit.ErrModelFailed, Err: context.DeadlineExceeded}
	assert.Equal(t, http.StatusBadGateway, auditErrorStatus(err))
	assert.Equal(t, http.StatusInternalServerError, auditErrorStatus(context.Canceled))
}
