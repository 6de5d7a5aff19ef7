// Package pipeline drives a mortgage application through document analysis,
// underwriting, compliance and customer notification, persisting every stage
// output to the state store and every decision to the ledger.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fairway-labs/fairway/core/pkg/audit"
	"github.com/fairway-labs/fairway/core/pkg/compliance"
	"github.com/fairway-labs/fairway/core/pkg/contracts"
	"github.com/fairway-labs/fairway/core/pkg/docanalysis"
	"github.com/fairway-labs/fairway/core/pkg/ledger"
	"github.com/fairway-labs/fairway/core/pkg/notify"
	"github.com/fairway-labs/fairway/core/pkg/observability"
	"github.com/fairway-labs/fairway/core/pkg/statestore"
	"github.com/fairway-labs/fairway/core/pkg/underwriting"
)

// Stage output keys in the application state context. Each stage writes its
// result under its own key; keys are never overwritten by a later stage.
const (
	ContextKeyApplication  = statestore.ContextKeyApplication
	ContextKeyDocuments    = "documents"
	ContextKeyAnalysis     = "document_analysis"
	ContextKeyUnderwriting = "underwriting"
	ContextKeyCompliance   = "compliance"
	ContextKeyResponse     = "customer_response"
	ContextKeyError        = "error"
)

// Deps are the orchestrator's collaborators. State, Analyzer, Underwriter,
// Compliance, Notifier and Ledger are required; the rest default to inert
// or in-process implementations when nil.
type Deps struct {
	State       *statestore.Manager
	Analyzer    docanalysis.Analyzer
	Underwriter *underwriting.Evaluator
	Compliance  *compliance.Checker
	Notifier    *notify.Notifier
	Ledger      *ledger.Ledger
	Vault       docanalysis.Vault
	Audit       audit.Logger
	Observe     *observability.Provider
	SLO         *observability.SLOTracker
	Logger      *slog.Logger
	NewID       func() string
}

// Orchestrator runs the application pipeline. Stages for one application run
// strictly sequentially; callers must not issue concurrent runs for the same
// application id.
type Orchestrator struct {
	state       *statestore.Manager
	analyzer    docanalysis.Analyzer
	underwriter *underwriting.Evaluator
	compliance  *compliance.Checker
	notifier    *notify.Notifier
	ledger      *ledger.Ledger
	vault       docanalysis.Vault
	audit       audit.Logger
	observe     *observability.Provider
	slo         *observability.SLOTracker
	logger      *slog.Logger
	newID       func() string
}

func New(deps Deps) (*Orchestrator, error) {
	switch {
	case deps.State == nil:
		return nil, fmt.Errorf("pipeline: state manager is required")
	case deps.Analyzer == nil:
		return nil, fmt.Errorf("pipeline: document analyzer is required")
	case deps.Underwriter == nil:
		return nil, fmt.Errorf("pipeline: underwriting evaluator is required")
	case deps.Compliance == nil:
		return nil, fmt.Errorf("pipeline: compliance checker is required")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("pipeline: notifier is required")
	case deps.Ledger == nil:
		return nil, fmt.Errorf("pipeline: decision ledger is required")
	}

	o := &Orchestrator{
		state:       deps.State,
		analyzer:    deps.Analyzer,
		underwriter: deps.Underwriter,
		compliance:  deps.Compliance,
		notifier:    deps.Notifier,
		ledger:      deps.Ledger,
		vault:       deps.Vault,
		audit:       deps.Audit,
		observe:     deps.Observe,
		slo:         deps.SLO,
		logger:      deps.Logger,
		newID:       deps.NewID,
	}
	if o.vault == nil {
		o.vault = docanalysis.NewMemoryVault()
	}
	if o.audit == nil {
		o.audit = audit.NewLogger()
	}
	if o.observe == nil {
		o.observe = &observability.Provider{}
	}
	if o.slo == nil {
		o.slo = observability.NewSLOTracker()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "pipeline")
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	return o, nil
}

// SLO exposes the stage objective tracker for operational reporting.
func (o *Orchestrator) SLO() *observability.SLOTracker { return o.slo }

// SubmitResult is returned to the applicant on intake.
type SubmitResult struct {
	ApplicationID    string                      `json:"application_id"`
	Status           contracts.ApplicationStatus `json:"status"`
	NextSteps        []string                    `json:"next_steps"`
	MissingDocuments []contracts.DocumentType    `json:"missing_documents,omitempty"`
}

// Result is the outcome of a full pipeline run.
type Result struct {
	ApplicationID    string                        `json:"application_id"`
	Status           contracts.ApplicationStatus   `json:"status"`
	MissingDocuments []contracts.DocumentType      `json:"missing_documents,omitempty"`
	Documents        *contracts.DocumentAnalysis   `json:"document_analysis,omitempty"`
	Underwriting     *contracts.UnderwritingResult `json:"underwriting,omitempty"`
	Compliance       *contracts.ComplianceResult   `json:"compliance,omitempty"`
	Notification     *notify.Notification          `json:"customer_response,omitempty"`
}

// Submit validates a new application, assigns its id and registers it in
// INITIATED state with the submitted loan data and documents. The pipeline
// itself does not run until Process is called.
func (o *Orchestrator) Submit(ctx context.Context, loan *contracts.LoanApplication, docs []contracts.DocumentInput) (*SubmitResult, error) {
	if err := validateLoan(loan); err != nil {
		return nil, err
	}
	docs, err := o.archiveDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}

	id := o.newID()
	if _, err := o.state.Create(ctx, id, loan); err != nil {
		return nil, fmt.Errorf("submit application: %w", err)
	}
	if err := o.state.PutContext(ctx, id, ContextKeyDocuments, docs); err != nil {
		return nil, fmt.Errorf("store submitted documents: %w", err)
	}

	o.recordAudit(ctx, audit.EventStage, "application submitted", id, map[string]any{
		"loan_type":   loan.LoanType,
		"loan_amount": loan.LoanAmount,
	})
	o.logger.InfoContext(ctx, "application submitted",
		"application_id", id, "loan_type", loan.LoanType, "documents", len(docs))

	// A dry analysis pass tells the applicant up front what is still
	// missing; nothing is persisted or transitioned here.
	missing := o.previewMissing(ctx, id, docs)

	return &SubmitResult{
		ApplicationID:    id,
		Status:           contracts.StatusInitiated,
		NextSteps:        submitNextSteps(missing),
		MissingDocuments: missing,
	}, nil
}

// Process runs the pipeline for a submitted application: document analysis,
// then underwriting, then compliance, then the customer notification and the
// final decision. An incomplete document set halts after analysis with an
// INCOMPLETE_DOCUMENTS status and a missing-documents notice; underwriting
// and compliance do not run. Any stage failure moves the application to
// ERROR and returns a *contracts.PipelineError.
func (o *Orchestrator) Process(ctx context.Context, applicationID string) (*Result, error) {
	app, err := o.state.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != contracts.StatusInitiated && app.Status != contracts.StatusDocumentsUpdated {
		return nil, contracts.NewValidationError("application %s is not processable in status %s", applicationID, app.Status)
	}

	loan, err := decodeContext[contracts.LoanApplication](app, ContextKeyApplication)
	if err != nil {
		return nil, o.fail(ctx, applicationID, "documents", err)
	}
	docs, err := decodeContext[[]contracts.DocumentInput](app, ContextKeyDocuments)
	if err != nil {
		return nil, o.fail(ctx, applicationID, "documents", err)
	}

	// Stage 1: document analysis.
	analysis, err := o.runDocuments(ctx, applicationID, *docs)
	if err != nil {
		return nil, o.fail(ctx, applicationID, "documents", err)
	}

	if !analysis.IsComplete {
		notice := o.notifier.MissingDocuments(applicationID, analysis)
		if err := o.state.PutContext(ctx, applicationID, ContextKeyResponse, notice); err != nil {
			return nil, o.fail(ctx, applicationID, "documents", err)
		}
		if _, err := o.state.Transition(ctx, applicationID, contracts.StatusIncompleteDocuments, "required documents missing"); err != nil {
			return nil, o.fail(ctx, applicationID, "documents", err)
		}
		o.recordAudit(ctx, audit.EventNotification, "missing documents notice issued", applicationID, map[string]any{
			"missing_documents": analysis.MissingDocuments,
		})
		o.logger.InfoContext(ctx, "pipeline halted on incomplete documents",
			"application_id", applicationID, "missing", len(analysis.MissingDocuments))

		return &Result{
			ApplicationID:    applicationID,
			Status:           contracts.StatusIncompleteDocuments,
			MissingDocuments: analysis.MissingDocuments,
			Documents:        analysis,
			Notification:     notice,
		}, nil
	}

	// Stage 2: underwriting.
	uw, err := o.runUnderwriting(ctx, applicationID, loan, analysis)
	if err != nil {
		return nil, o.fail(ctx, applicationID, "underwriting", err)
	}

	// Stage 3: compliance.
	comp, err := o.runCompliance(ctx, applicationID, loan, analysis, uw)
	if err != nil {
		return nil, o.fail(ctx, applicationID, "compliance", err)
	}

	// Stage 4: customer notification and final decision.
	notice, final, err := o.finalize(ctx, applicationID, uw, comp)
	if err != nil {
		return nil, o.fail(ctx, applicationID, "notification", err)
	}

	return &Result{
		ApplicationID: applicationID,
		Status:        final,
		Documents:     analysis,
		Underwriting:  uw,
		Compliance:    comp,
		Notification:  notice,
	}, nil
}

// UpdateDocuments merges newly submitted documents into the application and
// re-runs document analysis, parking the application in DOCUMENTS_UPDATED.
// Call Process to resume the pipeline from there.
func (o *Orchestrator) UpdateDocuments(ctx context.Context, applicationID string, newDocs []contracts.DocumentInput) (*contracts.DocumentAnalysis, error) {
	if len(newDocs) == 0 {
		return nil, contracts.NewValidationError("no documents supplied for update")
	}
	newDocs, err := o.archiveDocuments(ctx, newDocs)
	if err != nil {
		return nil, err
	}
	app, err := o.state.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	docs, err := decodeContext[[]contracts.DocumentInput](app, ContextKeyDocuments)
	if err != nil {
		return nil, err
	}
	merged := mergeDocuments(*docs, newDocs)

	analysis, err := o.analyzer.Analyze(ctx, applicationID, merged)
	if err != nil {
		return nil, fmt.Errorf("%w: document analysis: %v", contracts.ErrCollaboratorUnavailable, err)
	}

	if err := o.state.PutContext(ctx, applicationID, ContextKeyDocuments, merged); err != nil {
		return nil, err
	}
	if err := o.state.PutContext(ctx, applicationID, ContextKeyAnalysis, analysis); err != nil {
		return nil, err
	}
	if _, err := o.state.Transition(ctx, applicationID, contracts.StatusDocumentsUpdated, "documents updated"); err != nil {
		return nil, err
	}

	o.recordAudit(ctx, audit.EventStage, "documents updated", applicationID, map[string]any{
		"new_documents": len(newDocs),
		"is_complete":   analysis.IsComplete,
	})
	return analysis, nil
}

// Resubmit replaces the loan data of an existing application and reprocesses
// it under a fresh application id, carrying the stored documents forward.
// The prior application keeps its history; a SYSTEM audit event links it to
// its successor.
func (o *Orchestrator) Resubmit(ctx context.Context, applicationID string, loan *contracts.LoanApplication) (*Result, error) {
	if err := validateLoan(loan); err != nil {
		return nil, err
	}
	prior, err := o.state.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	docs, err := decodeContext[[]contracts.DocumentInput](prior, ContextKeyDocuments)
	if err != nil {
		return nil, err
	}

	sub, err := o.Submit(ctx, loan, *docs)
	if err != nil {
		return nil, err
	}
	o.recordAudit(ctx, audit.EventSystem, "application superseded", applicationID, map[string]any{
		"successor_id": sub.ApplicationID,
	})
	return o.Process(ctx, sub.ApplicationID)
}

func (o *Orchestrator) runDocuments(ctx context.Context, applicationID string, docs []contracts.DocumentInput) (*contracts.DocumentAnalysis, error) {
	stageCtx, done := o.startStage(ctx, applicationID, observability.StageDocuments)
	analysis, err := o.analyzer.Analyze(stageCtx, applicationID, docs)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("%w: document analysis: %v", contracts.ErrCollaboratorUnavailable, err)
	}

	if err := o.state.PutContext(ctx, applicationID, ContextKeyAnalysis, analysis); err != nil {
		return nil, err
	}
	if _, err := o.state.Transition(ctx, applicationID, contracts.StatusDocumentsProcessed, "document analysis complete"); err != nil {
		return nil, err
	}
	o.recordAudit(ctx, audit.EventStage, "documents processed", applicationID, map[string]any{
		"is_complete": analysis.IsComplete,
		"confidence":  analysis.OverallConfidence,
	})
	return analysis, nil
}

func (o *Orchestrator) runUnderwriting(ctx context.Context, applicationID string, loan *contracts.LoanApplication, analysis *contracts.DocumentAnalysis) (*contracts.UnderwritingResult, error) {
	stageCtx, done := o.startStage(ctx, applicationID, observability.StageUnderwriting)
	uw, err := o.underwriter.Evaluate(stageCtx, applicationID, loan, analysis)
	done(err)
	if err != nil {
		return nil, err
	}

	if err := o.state.PutContext(ctx, applicationID, ContextKeyUnderwriting, uw); err != nil {
		return nil, err
	}
	if _, err := o.state.Transition(ctx, applicationID, contracts.StatusUnderwritingCompleted, "underwriting evaluation complete"); err != nil {
		return nil, err
	}

	if _, err := o.ledger.Record(ctx, contracts.Decision{
		ApplicationID: applicationID,
		DecisionType:  contracts.DecisionUnderwriting,
		Outcome:       uw.IsApproved,
		Factors:       uw.DecisionFactors,
		Agent:         "underwriting",
		Explanation:   uw.Explanation,
	}); err != nil {
		return nil, err
	}
	o.observe.RecordDecision(ctx, string(contracts.DecisionUnderwriting), uw.IsApproved)
	o.recordAudit(ctx, audit.EventDecision, "underwriting decision recorded", applicationID, map[string]any{
		"approved":      uw.IsApproved,
		"approval_type": uw.ApprovalType,
		"risk_score":    uw.RiskScore,
	})
	return uw, nil
}

func (o *Orchestrator) runCompliance(ctx context.Context, applicationID string, loan *contracts.LoanApplication, analysis *contracts.DocumentAnalysis, uw *contracts.UnderwritingResult) (*contracts.ComplianceResult, error) {
	stageCtx, done := o.startStage(ctx, applicationID, observability.StageCompliance)
	comp, err := o.compliance.Check(stageCtx, applicationID, loan, analysis, uw)
	done(err)
	if err != nil {
		return nil, err
	}

	if err := o.state.PutContext(ctx, applicationID, ContextKeyCompliance, comp); err != nil {
		return nil, err
	}
	if _, err := o.state.Transition(ctx, applicationID, contracts.StatusComplianceChecked, "compliance checks complete"); err != nil {
		return nil, err
	}

	if _, err := o.ledger.Record(ctx, contracts.Decision{
		ApplicationID: applicationID,
		DecisionType:  contracts.DecisionCompliance,
		Outcome:       comp.IsCompliant,
		Factors:       comp.Factors,
		Agent:         "compliance",
		Explanation:   comp.Explanation,
	}); err != nil {
		return nil, err
	}
	o.observe.RecordDecision(ctx, string(contracts.DecisionCompliance), comp.IsCompliant)
	o.recordAudit(ctx, audit.EventDecision, "compliance decision recorded", applicationID, map[string]any{
		"compliant":        comp.IsCompliant,
		"required_actions": len(comp.RequiredActions),
	})
	return comp, nil
}

func (o *Orchestrator) finalize(ctx context.Context, applicationID string, uw *contracts.UnderwritingResult, comp *contracts.ComplianceResult) (*notify.Notification, contracts.ApplicationStatus, error) {
	_, done := o.startStage(ctx, applicationID, observability.StageNotification)
	notice := o.notifier.Decision(applicationID, uw, comp)
	done(nil)

	if err := o.state.PutContext(ctx, applicationID, ContextKeyResponse, notice); err != nil {
		return nil, "", err
	}

	final := finalStatus(uw, comp)
	if _, err := o.state.Transition(ctx, applicationID, final, "final decision"); err != nil {
		return nil, "", err
	}

	if _, err := o.ledger.Record(ctx, contracts.Decision{
		ApplicationID: applicationID,
		DecisionType:  contracts.DecisionFinal,
		Outcome:       final == contracts.StatusApproved,
		Factors: map[string]any{
			"underwriting_approved": uw.IsApproved,
			"compliance_approved":   comp.IsCompliant,
		},
		Agent:       "pipeline",
		Explanation: notice.Message,
	}); err != nil {
		return nil, "", err
	}
	o.observe.RecordDecision(ctx, string(contracts.DecisionFinal), final == contracts.StatusApproved)
	o.recordAudit(ctx, audit.EventNotification, "decision notice issued", applicationID, map[string]any{
		"final_status": final,
	})
	o.logger.InfoContext(ctx, "pipeline complete",
		"application_id", applicationID, "status", final)
	return notice, final, nil
}

// finalStatus applies the reporting precedence: a compliance failure is
// reported over an underwriting failure even though underwriting runs first.
func finalStatus(uw *contracts.UnderwritingResult, comp *contracts.ComplianceResult) contracts.ApplicationStatus {
	switch {
	case !comp.IsCompliant:
		return contracts.StatusRejectedCompliance
	case !uw.IsApproved:
		return contracts.StatusRejectedUnderwriting
	default:
		return contracts.StatusApproved
	}
}

// fail moves the application to ERROR with the failure attached and wraps
// the cause for the caller. Nothing at this layer retries.
func (o *Orchestrator) fail(ctx context.Context, applicationID, stage string, cause error) error {
	o.logger.ErrorContext(ctx, "pipeline stage failed",
		"application_id", applicationID, "stage", stage, "error", cause)

	if err := o.state.PutContext(ctx, applicationID, ContextKeyError, cause.Error()); err != nil {
		o.logger.ErrorContext(ctx, "failed to record error context",
			"application_id", applicationID, "error", err)
	}
	if _, err := o.state.Transition(ctx, applicationID, contracts.StatusError, cause.Error()); err != nil {
		o.logger.ErrorContext(ctx, "failed to transition to error state",
			"application_id", applicationID, "error", err)
	}
	o.recordAudit(ctx, audit.EventSystem, "pipeline error", applicationID, map[string]any{
		"stage": stage,
		"error": cause.Error(),
	})
	return &contracts.PipelineError{ApplicationID: applicationID, Stage: stage, Err: cause}
}

func (o *Orchestrator) startStage(ctx context.Context, applicationID, stage string) (context.Context, func(error)) {
	stageCtx, done := o.observe.StartStage(ctx, applicationID, stage)
	began := time.Now()
	return stageCtx, func(err error) {
		done(err)
		o.slo.Record(observability.SLOObservation{
			Stage:   stage,
			Latency: time.Since(began),
			Success: err == nil,
		})
	}
}

func (o *Orchestrator) recordAudit(ctx context.Context, eventType audit.EventType, action, applicationID string, metadata map[string]any) {
	if err := o.audit.Record(ctx, eventType, action, applicationID, metadata); err != nil {
		o.logger.WarnContext(ctx, "audit record failed",
			"application_id", applicationID, "action", action, "error", err)
	}
}

// archiveDocuments moves raw document content into the vault, replacing
// the bytes with their content hash before the documents reach the state
// store. Documents without content pass through untouched.
func (o *Orchestrator) archiveDocuments(ctx context.Context, docs []contracts.DocumentInput) ([]contracts.DocumentInput, error) {
	out := make([]contracts.DocumentInput, len(docs))
	copy(out, docs)
	for i := range out {
		if len(out[i].Content) == 0 {
			continue
		}
		hash, err := o.vault.Store(ctx, out[i].Content)
		if err != nil {
			return nil, fmt.Errorf("%w: archive %s content: %v", contracts.ErrCollaboratorUnavailable, out[i].Type, err)
		}
		out[i].ContentHash = hash
		out[i].Content = nil
	}
	return out, nil
}

// previewMissing is best-effort: an analyzer failure at submit time only
// suppresses the preview, it never rejects the submission.
func (o *Orchestrator) previewMissing(ctx context.Context, applicationID string, docs []contracts.DocumentInput) []contracts.DocumentType {
	analysis, err := o.analyzer.Analyze(ctx, applicationID, docs)
	if err != nil {
		o.logger.WarnContext(ctx, "document preview unavailable",
			"application_id", applicationID, "error", err)
		return nil
	}
	return analysis.MissingDocuments
}

func submitNextSteps(missing []contracts.DocumentType) []string {
	var steps []string
	for _, doc := range missing {
		steps = append(steps, fmt.Sprintf("Submit %s document", doc))
	}
	return append(steps, "Initial document review", "Underwriting evaluation", "Compliance check")
}

func validateLoan(loan *contracts.LoanApplication) error {
	switch {
	case loan == nil:
		return contracts.NewValidationError("loan application is required")
	case loan.LoanAmount <= 0:
		return contracts.NewValidationError("loan amount must be positive")
	case loan.LoanTermYears <= 0:
		return contracts.NewValidationError("loan term must be positive")
	}
	switch loan.LoanType {
	case contracts.LoanConventional, contracts.LoanFHA, contracts.LoanVA, contracts.LoanJumbo:
		return nil
	default:
		return contracts.NewValidationError("unknown loan type %q", loan.LoanType)
	}
}

func mergeDocuments(existing, incoming []contracts.DocumentInput) []contracts.DocumentInput {
	byType := make(map[contracts.DocumentType]int, len(existing))
	merged := make([]contracts.DocumentInput, len(existing))
	copy(merged, existing)
	for i, doc := range merged {
		byType[doc.Type] = i
	}
	for _, doc := range incoming {
		if i, ok := byType[doc.Type]; ok {
			merged[i] = doc
			continue
		}
		byType[doc.Type] = len(merged)
		merged = append(merged, doc)
	}
	return merged
}

func decodeContext[T any](app *contracts.Application, key string) (*T, error) {
	raw, ok := app.Context[key]
	if !ok {
		return nil, contracts.NewValidationError("application %s has no %q context", app.ID, key)
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode %q context for application %s: %w", key, app.ID, err)
	}
	return &value, nil
}
