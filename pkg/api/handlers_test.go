package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-labs/fairway/core/pkg/audit"
	"github.com/fairway-labs/fairway/core/pkg/compliance"
	"github.com/fairway-labs/fairway/core/pkg/config"
	"github.com/fairway-labs/fairway/core/pkg/contracts"
	"github.com/fairway-labs/fairway/core/pkg/docanalysis"
	"github.com/fairway-labs/fairway/core/pkg/ledger"
	"github.com/fairway-labs/fairway/core/pkg/notify"
	"github.com/fairway-labs/fairway/core/pkg/observability"
	"github.com/fairway-labs/fairway/core/pkg/pipeline"
	"github.com/fairway-labs/fairway/core/pkg/statestore"
	"github.com/fairway-labs/fairway/core/pkg/underwriting"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	profile := config.DefaultProfile()
	checker, err := compliance.NewChecker(profile, nil, nil)
	require.NoError(t, err)

	events := audit.NewMemoryLog()
	led := ledger.New(nil)

	var seq int
	orch, err := pipeline.New(pipeline.Deps{
		State:       statestore.NewManager(statestore.NewMemory(), nil),
		Analyzer:    docanalysis.NewRuleAnalyzer(),
		Underwriter: underwriting.NewEvaluator(profile, nil, nil),
		Compliance:  checker,
		Notifier:    notify.NewNotifier(),
		Ledger:      led,
		Audit:       events,
		NewID: func() string {
			seq++
			return fmt.Sprintf("APP-%04d", seq)
		},
	})
	require.NoError(t, err)

	srv, err := NewServer(orch, audit.NewExporter(events, led), nil)
	require.NoError(t, err)
	return srv
}

const completeSubmission = `{
	"loan": {
		"loan_amount": 400000,
		"loan_term_years": 30,
		"interest_rate": 5.5,
		"loan_type": "CONVENTIONAL",
		"property_value": 533334,
		"annual_income": 150000,
		"points_and_fees": 5000,
		"disclosures": {
			"tila_respa": {"provided": true},
			"loan_estimate": {"provided": true},
			"fee_disclosure": {"provided": true}
		}
	},
	"documents": [
		{"document_type": "INCOME_VERIFICATION", "fields": {"confidence": 0.92, "income_amount": 150000}},
		{"document_type": "CREDIT_REPORT", "fields": {"confidence": 0.9, "credit_score": 760}},
		{"document_type": "PROPERTY_APPRAISAL", "fields": {"confidence": 0.88, "property_value": 533334}},
		{"document_type": "IDENTITY_DOCUMENT", "fields": {"confidence": 0.95}}
	]
}`

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func submitApplication(t *testing.T, srv *Server) pipeline.Result {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/applications", completeSubmission)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestSubmitRunsPipeline(t *testing.T) {
	srv := newTestServer(t)

	result := submitApplication(t, srv)
	assert.Equal(t, contracts.StatusApproved, result.Status)
	assert.NotEmpty(t, result.ApplicationID)
	require.NotNil(t, result.Notification)
	assert.Equal(t, notify.KindDecision, result.Notification.Kind)
}

func TestSubmitSchemaValidation(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"loan": `, http.StatusBadRequest},
		{"missing loan", `{"documents": []}`, http.StatusUnprocessableEntity},
		{"missing amount", `{"loan": {"loan_term_years": 30, "loan_type": "FHA"}}`, http.StatusUnprocessableEntity},
		{"bad loan type", `{"loan": {"loan_amount": 1, "loan_term_years": 30, "loan_type": "BALLOON"}}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/v1/applications", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer(t)
	result := submitApplication(t, srv)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/applications/"+result.ApplicationID+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report pipeline.StatusReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, contracts.StatusApproved, report.Status)
	assert.Equal(t, "Application Approved", report.CurrentStage)
	assert.NotEmpty(t, report.History)
}

func TestStatusUnknownApplication(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/applications/APP-9999/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentsEndpointResumesPipeline(t *testing.T) {
	srv := newTestServer(t)

	// Submit without the identity document: the pipeline halts.
	incomplete := `{
		"loan": {
			"loan_amount": 400000,
			"loan_term_years": 30,
			"interest_rate": 5.5,
			"loan_type": "CONVENTIONAL",
			"property_value": 533334,
			"annual_income": 150000,
			"points_and_fees": 5000,
			"disclosures": {
				"tila_respa": {"provided": true},
				"loan_estimate": {"provided": true},
				"fee_disclosure": {"provided": true}
			}
		},
		"documents": [
			{"document_type": "INCOME_VERIFICATION", "fields": {"confidence": 0.92, "income_amount": 150000}},
			{"document_type": "CREDIT_REPORT", "fields": {"confidence": 0.9, "credit_score": 760}},
			{"document_type": "PROPERTY_APPRAISAL", "fields": {"confidence": 0.88, "property_value": 533334}}
		]
	}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/applications", incomplete)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, contracts.StatusIncompleteDocuments, result.Status)

	// Supplying the missing document completes the set and resumes.
	update := `{"documents": [{"document_type": "IDENTITY_DOCUMENT", "fields": {"confidence": 0.95}}]}`
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/applications/"+result.ApplicationID+"/documents", update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, contracts.StatusApproved, result.Status)
}

func TestDocumentsEndpointStillIncomplete(t *testing.T) {
	srv := newTestServer(t)

	incomplete := `{
		"loan": {"loan_amount": 400000, "loan_term_years": 30, "loan_type": "CONVENTIONAL", "property_value": 533334, "annual_income": 150000},
		"documents": [{"document_type": "INCOME_VERIFICATION", "fields": {"confidence": 0.92, "income_amount": 150000}}]
	}`
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/applications", incomplete)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, contracts.StatusIncompleteDocuments, result.Status)

	update := `{"documents": [{"document_type": "CREDIT_REPORT", "fields": {"confidence": 0.9, "credit_score": 760}}]}`
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/applications/"+result.ApplicationID+"/documents", update)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DocumentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, contracts.StatusDocumentsUpdated, resp.Status)
	require.NotNil(t, resp.Analysis)
	assert.False(t, resp.Analysis.IsComplete)
}

func TestAuditEndpointReturnsZip(t *testing.T) {
	srv := newTestServer(t)
	result := submitApplication(t, srv)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/applications/"+result.ApplicationID+"/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Content-Checksum"), "sha256:"))

	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "events.json")
	assert.Contains(t, names, "decisions.json")
	assert.Contains(t, names, "manifest.json")
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSLOEndpoint(t *testing.T) {
	srv := newTestServer(t)
	submitApplication(t, srv)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/slo", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var statuses []observability.SLOStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 4)

	byStage := make(map[string]observability.SLOStatus, len(statuses))
	for _, s := range statuses {
		byStage[s.Stage] = s
	}
	uw := byStage[observability.StageUnderwriting]
	assert.True(t, uw.InCompliance)
	assert.Equal(t, 1, uw.ObservationCount)
}

func TestReadyEndpointReportsBudgetBurn(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	// A failed stage run burns the success budget and degrades readiness.
	srv.pipeline.SLO().Record(observability.SLOObservation{
		Stage:   observability.StageUnderwriting,
		Latency: 10 * time.Millisecond,
		Success: false,
	})

	rec = doRequest(t, srv, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["degraded_stages"], observability.StageUnderwriting)
}
