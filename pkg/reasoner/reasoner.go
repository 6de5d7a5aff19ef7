// Package reasoner abstracts the external reasoning services consulted for
// enhanced underwriting review, borderline assessments and compliance
// review. Results are tagged so callers can tell "service said no" apart
// from "service could not be reached"; the pipeline treats the latter as a
// degraded run, never a rejection.
package reasoner

import (
	"context"
	"errors"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// Kind selects the review the reasoner is asked to perform.
type Kind string

const (
	KindUnderwriting Kind = "underwriting"
	KindBorderline   Kind = "borderline"
	KindCompliance   Kind = "compliance"
)

// Request carries the evaluation context handed to the reasoning service.
// Only the fields relevant to the Kind need to be set.
type Request struct {
	Kind          Kind                                   `json:"kind"`
	ApplicationID string                                 `json:"application_id"`
	Application   *contracts.LoanApplication             `json:"application,omitempty"`
	Ratios        *contracts.FinancialRatios             `json:"financial_ratios,omitempty"`
	Criteria      map[string]contracts.CriteriaEvaluation `json:"criteria_evaluation,omitempty"`
	Documents     *contracts.DocumentAnalysis            `json:"document_analysis,omitempty"`
}

// Verdict is the reasoning service's answer.
type Verdict struct {
	Approve         bool     `json:"approve"`
	Recommendation  string   `json:"recommendation,omitempty"`
	Rationale       string   `json:"rationale,omitempty"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	Strengths       []string `json:"strengths,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Status tags a Result.
type Status string

const (
	StatusOK          Status = "OK"
	StatusUnavailable Status = "UNAVAILABLE"
	StatusError       Status = "ERROR"
)

// Result is a tagged reasoner outcome. Exactly one of Verdict or Err is
// meaningful: Verdict when Status is OK, Err otherwise.
type Result struct {
	Status  Status
	Verdict *Verdict
	Err     error
}

func OK(v *Verdict) Result { return Result{Status: StatusOK, Verdict: v} }

func Unavailable(err error) Result {
	return Result{Status: StatusUnavailable, Err: errors.Join(contracts.ErrCollaboratorUnavailable, err)}
}

func Failed(err error) Result { return Result{Status: StatusError, Err: err} }

// Available reports whether the result carries a usable verdict.
func (r Result) Available() bool { return r.Status == StatusOK && r.Verdict != nil }

// Client is a reasoning service.
type Client interface {
	Evaluate(ctx context.Context, req Request) Result
}

// Disabled is the Client used when no reasoning backend is configured.
// Every evaluation reports unavailable, so the pipeline runs on
// deterministic criteria alone.
type Disabled struct{}

func (Disabled) Evaluate(ctx context.Context, req Request) Result {
	return Unavailable(errors.New("no reasoning backend configured"))
}
