// Package api is the HTTP surface of the decision core: application
// submission, status, document updates and audit retrieval. All error
// responses are RFC 7807 problem details.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/fairway-labs/fairway/core/pkg/audit"
	"github.com/fairway-labs/fairway/core/pkg/contracts"
	"github.com/fairway-labs/fairway/core/pkg/pipeline"
	"github.com/fairway-labs/fairway/core/pkg/problem"
)

const maxBodyBytes = 1 << 20 // 1MB

// submitSchema validates the submission envelope before it reaches the
// pipeline. Field-level business validation stays in the pipeline.
const submitSchema = `{
	"type": "object",
	"required": ["loan"],
	"properties": {
		"loan": {
			"type": "object",
			"required": ["loan_amount", "loan_term_years", "loan_type"],
			"properties": {
				"loan_amount": {"type": "number", "exclusiveMinimum": 0},
				"loan_term_years": {"type": "integer", "minimum": 1},
				"loan_type": {"type": "string", "enum": ["CONVENTIONAL", "FHA", "VA", "JUMBO"]},
				"interest_rate": {"type": "number", "minimum": 0},
				"property_value": {"type": "number", "minimum": 0},
				"annual_income": {"type": "number", "minimum": 0},
				"down_payment": {"type": "number", "minimum": 0}
			}
		},
		"documents": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["document_type"],
				"properties": {
					"document_type": {"type": "string"}
				}
			}
		}
	}
}`

// SubmitRequest is the POST /api/v1/applications body.
type SubmitRequest struct {
	Loan      *contracts.LoanApplication `json:"loan"`
	Documents []contracts.DocumentInput  `json:"documents,omitempty"`
}

// DocumentsRequest is the POST /api/v1/applications/{id}/documents body.
type DocumentsRequest struct {
	Documents []contracts.DocumentInput `json:"documents"`
}

// DocumentsResponse is returned when a document update leaves the
// application still incomplete; a completing update returns the full
// pipeline result instead.
type DocumentsResponse struct {
	ApplicationID string                      `json:"application_id"`
	Status        contracts.ApplicationStatus `json:"status"`
	Analysis      *contracts.DocumentAnalysis `json:"document_analysis"`
}

// Server is the HTTP surface over the pipeline. Authentication and rate
// limiting are middleware concerns wired by the caller; handlers assume
// requests are already admitted.
type Server struct {
	pipeline *pipeline.Orchestrator
	exporter *audit.Exporter
	logger   *slog.Logger
	schema   *jsonschema.Schema
}

func NewServer(p *pipeline.Orchestrator, exporter *audit.Exporter, logger *slog.Logger) (*Server, error) {
	if p == nil {
		return nil, fmt.Errorf("api: pipeline is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://fairwaylabs.io/schemas/submit.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(submitSchema)); err != nil {
		return nil, fmt.Errorf("api: load submit schema: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("api: compile submit schema: %w", err)
	}

	return &Server{
		pipeline: p,
		exporter: exporter,
		logger:   logger.With("component", "api"),
		schema:   compiled,
	}, nil
}

// Routes registers the handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/applications", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/applications/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/applications/{id}/audit", s.handleAudit)
	mux.HandleFunc("POST /api/v1/applications/{id}/documents", s.handleDocuments)
	mux.HandleFunc("GET /api/v1/slo", s.handleSLO)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	return mux
}

// handleSubmit accepts a new application and runs the pipeline on it
// synchronously. The response carries the full run outcome, including the
// incomplete-documents halt.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		problem.WriteBadRequest(w, "Invalid request body")
		return
	}

	var loose any
	if err := json.Unmarshal(raw, &loose); err != nil {
		problem.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := s.schema.Validate(loose); err != nil {
		problem.WriteUnprocessable(w, fmt.Sprintf("Submission failed validation: %v", err))
		return
	}

	var req SubmitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		problem.WriteBadRequest(w, "Invalid request body")
		return
	}

	sub, err := s.pipeline.Submit(r.Context(), req.Loan, req.Documents)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	result, err := s.pipeline.Process(r.Context(), sub.ApplicationID)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.pipeline.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleDocuments merges new documents into an application. A completing
// update resumes the pipeline and returns its result; an update that still
// leaves documents missing returns the refreshed analysis.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req DocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		problem.WriteBadRequest(w, "Invalid request body")
		return
	}

	analysis, err := s.pipeline.UpdateDocuments(r.Context(), id, req.Documents)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	if !analysis.IsComplete {
		s.writeJSON(w, http.StatusOK, DocumentsResponse{
			ApplicationID: id,
			Status:        contracts.StatusDocumentsUpdated,
			Analysis:      analysis,
		})
		return
	}

	result, err := s.pipeline.Process(r.Context(), id)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleAudit streams the evidence pack for an application as a zip.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		problem.WriteError(w, http.StatusNotImplemented, "Audit Export Unavailable", "Audit export is not configured on this deployment")
		return
	}

	id := r.PathValue("id")
	pack, checksum, err := s.exporter.GeneratePack(id)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-"+id+".zip"))
	w.Header().Set("X-Content-Checksum", "sha256:"+checksum)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pack)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSLO reports per-stage objective compliance from the pipeline's
// tracker.
func (s *Server) handleSLO(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pipeline.SLO().Overview())
}

// handleReady reports readiness together with any stages currently out of
// objective compliance. Burned error budget degrades the report but never
// fails it; the process can still serve.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	var degraded []string
	for _, status := range s.pipeline.SLO().Overview() {
		if !status.InCompliance {
			degraded = append(degraded, status.Stage)
		}
	}

	body := map[string]any{"status": "ok"}
	if len(degraded) > 0 {
		body["status"] = "degraded"
		body["degraded_stages"] = degraded
	}
	s.writeJSON(w, http.StatusOK, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// writePipelineError maps pipeline error classes to problem responses.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var perr *contracts.PipelineError
	switch {
	case errors.Is(err, contracts.ErrNotFound):
		problem.WriteNotFound(w, err.Error())
	case errors.Is(err, contracts.ErrValidation):
		problem.WriteBadRequest(w, err.Error())
	case errors.As(err, &perr):
		problem.WriteError(w, http.StatusInternalServerError, "Pipeline Failure",
			fmt.Sprintf("Processing failed during the %s stage", perr.Stage))
	default:
		problem.WriteInternal(w, err)
	}
}
