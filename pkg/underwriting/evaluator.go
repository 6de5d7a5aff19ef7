// Package underwriting evaluates mortgage applications: financial ratios,
// per-loan-type criteria with fixed weights, optional reasoner-assisted
// review, approval synthesis, risk scoring and the rate/max-loan side
// computations.
package underwriting

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/fairway-labs/fairway/core/pkg/config"
	"github.com/fairway-labs/fairway/core/pkg/contracts"
	"github.com/fairway-labs/fairway/core/pkg/reasoner"
)

// Criteria weights. The deterministic four sum to 100; assessment criteria
// carry their own weights and are synthesized separately.
const (
	weightCreditScore = 35
	weightDTI         = 25
	weightLTV         = 25
	weightFrontend    = 15
	weightEnhanced    = 40
	weightBorderline  = 50
)

// borderlineMargin is the relative distance to a threshold inside which a
// criterion counts as borderline. The value is a documented choice: within
// 5% either side of the threshold.
const borderlineMargin = 0.05

// Evaluator runs the underwriting stage.
type Evaluator struct {
	profile  *config.LendingProfile
	reasoner reasoner.Client
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Evaluator)

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(profile *config.LendingProfile, rc reasoner.Client, logger *slog.Logger, opts ...Option) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if rc == nil {
		rc = reasoner.Disabled{}
	}
	e := &Evaluator{
		profile:  profile,
		reasoner: rc,
		logger:   logger.With("component", "underwriting"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate produces the underwriting verdict for one application. Ratio
// math failures are fatal; reasoner failures degrade to the deterministic
// path.
func (e *Evaluator) Evaluate(ctx context.Context, applicationID string, app *contracts.LoanApplication, docs *contracts.DocumentAnalysis) (*contracts.UnderwritingResult, error) {
	debts := reportedDebts(docs)
	ratios, err := computeRatios(app, debts)
	if err != nil {
		return nil, err
	}

	thresholds := e.profile.ThresholdsFor(app.LoanType)
	criteria := deterministicCriteria(app, docs, ratios, thresholds)

	// Enhanced review first: its verdict, when available, dominates the
	// synthesis. Unavailability is logged and the evaluation proceeds.
	var enhanced *contracts.EnhancedSummary
	res := e.reasoner.Evaluate(ctx, reasoner.Request{
		Kind:          reasoner.KindUnderwriting,
		ApplicationID: applicationID,
		Application:   app,
		Ratios:        &ratios,
		Documents:     docs,
	})
	switch res.Status {
	case reasoner.StatusOK:
		enhanced = &contracts.EnhancedSummary{
			Qualified:      res.Verdict.Approve,
			Recommendation: res.Verdict.Recommendation,
			RiskFactors:    res.Verdict.RiskFactors,
			Strengths:      res.Verdict.Strengths,
		}
		criteria[contracts.CriterionEnhancedAI] = enhancedCriterion(res.Verdict)
	default:
		e.logger.Warn("enhanced review unavailable, continuing with deterministic criteria",
			"application_id", applicationID, "status", res.Status, "error", res.Err)
	}

	// Borderline adjudication runs only when no enhanced verdict exists;
	// an available enhanced verdict already dominates the synthesis.
	if enhanced == nil && isBorderline(criteria) {
		bres := e.reasoner.Evaluate(ctx, reasoner.Request{
			Kind:          reasoner.KindBorderline,
			ApplicationID: applicationID,
			Application:   app,
			Ratios:        &ratios,
			Criteria:      criteria,
		})
		if bres.Available() {
			criteria[contracts.CriterionAIBorder] = contracts.CriteriaEvaluation{
				Criterion:           contracts.CriterionAIBorder,
				Value:               boolValue(bres.Verdict.Approve),
				Threshold:           1,
				Passed:              bres.Verdict.Approve,
				Weight:              weightBorderline,
				CompensatingFactors: bres.Verdict.Strengths,
				Rationale:           bres.Verdict.Rationale,
			}
		} else {
			e.logger.Warn("borderline adjudication unavailable, falling back to deterministic rule",
				"application_id", applicationID, "status", bres.Status, "error", bres.Err)
		}
	}

	approval := synthesizeApproval(criteria, enhanced)
	riskScore := riskScore(criteria)

	result := &contracts.UnderwritingResult{
		ApplicationID:   applicationID,
		IsApproved:      approval.IsApproved,
		ApprovalType:    approval.ApprovalType,
		RiskScore:       riskScore,
		Ratios:          ratios,
		Criteria:        criteria,
		DecisionFactors: approval.DecisionFactors,
		Conditions:      approval.Conditions,
		MaxLoanAmount:   e.maxLoanAmount(app, docs, ratios, thresholds),
		Enhanced:        enhanced,
		Timestamp:       e.now().UTC(),
	}
	if approval.IsApproved {
		result.RecommendedRate = e.recommendedRate(riskScore, app)
	}
	return result, nil
}

// reportedDebts pulls the outstanding debts from the credit report result.
func reportedDebts(docs *contracts.DocumentAnalysis) []contracts.Debt {
	if docs == nil {
		return nil
	}
	return docs.DocumentResults[contracts.DocCreditReport].Debts
}

// reportedCreditScore reads the credit score from the credit report,
// falling back to the application's declared score.
func reportedCreditScore(app *contracts.LoanApplication, docs *contracts.DocumentAnalysis) float64 {
	if docs != nil {
		if r, ok := docs.DocumentResults[contracts.DocCreditReport]; ok && r.CreditScore > 0 {
			return float64(r.CreditScore)
		}
	}
	return float64(app.CreditScore)
}

func deterministicCriteria(app *contracts.LoanApplication, docs *contracts.DocumentAnalysis, ratios contracts.FinancialRatios, t config.LoanThresholds) map[string]contracts.CriteriaEvaluation {
	creditScore := reportedCreditScore(app, docs)
	return map[string]contracts.CriteriaEvaluation{
		contracts.CriterionDTI: {
			Criterion: contracts.CriterionDTI,
			Value:     ratios.DTI,
			Threshold: t.MaxDTI,
			Passed:    ratios.DTI <= t.MaxDTI,
			Weight:    weightDTI,
		},
		contracts.CriterionLTV: {
			Criterion: contracts.CriterionLTV,
			Value:     ratios.LTV,
			Threshold: t.MaxLTV,
			Passed:    ratios.LTV <= t.MaxLTV,
			Weight:    weightLTV,
		},
		contracts.CriterionFrontend: {
			Criterion: contracts.CriterionFrontend,
			Value:     ratios.FrontendRatio,
			Threshold: t.MaxFrontend,
			Passed:    ratios.FrontendRatio <= t.MaxFrontend,
			Weight:    weightFrontend,
		},
		contracts.CriterionCreditScore: {
			Criterion: contracts.CriterionCreditScore,
			Value:     creditScore,
			Threshold: t.MinCreditScore,
			Passed:    creditScore >= t.MinCreditScore,
			Weight:    weightCreditScore,
		},
	}
}

func enhancedCriterion(v *reasoner.Verdict) contracts.CriteriaEvaluation {
	return contracts.CriteriaEvaluation{
		Criterion:   contracts.CriterionEnhancedAI,
		Value:       boolValue(v.Approve),
		Threshold:   1,
		Passed:      v.Approve,
		Weight:      weightEnhanced,
		RiskFactors: v.RiskFactors,
		Strengths:   v.Strengths,
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// isBorderline reports whether the deterministic criteria warrant an
// AI-assisted second look: a mixed pass/fail outcome, or any criterion
// within the borderline margin of its threshold. Assessment criteria are
// excluded from the check.
func isBorderline(criteria map[string]contracts.CriteriaEvaluation) bool {
	passed, failed := 0, 0
	for name, c := range criteria {
		if isAssessment(name) {
			continue
		}
		if c.Passed {
			passed++
		} else {
			failed++
		}
	}
	if passed > 0 && failed > 0 {
		return true
	}

	for name, c := range criteria {
		if isAssessment(name) || c.Threshold <= 0 {
			continue
		}
		if c.Value > c.Threshold*(1-borderlineMargin) && c.Value < c.Threshold*(1+borderlineMargin) {
			return true
		}
	}
	return false
}

func isAssessment(criterion string) bool {
	return criterion == contracts.CriterionEnhancedAI || criterion == contracts.CriterionAIBorder
}

// synthesizeApproval reconciles the evaluation into a single verdict, in
// strict priority order: enhanced verdict, then borderline AI assessment,
// then the deterministic all-pass rule.
func synthesizeApproval(criteria map[string]contracts.CriteriaEvaluation, enhanced *contracts.EnhancedSummary) contracts.ApprovalResult {
	if enhanced != nil {
		if enhanced.Qualified {
			approvalType := contracts.Approved
			if enhanced.Recommendation == "Refer to Underwriter" {
				approvalType = contracts.ApprovedWithConditions
			}
			return contracts.ApprovalResult{
				IsApproved:   true,
				ApprovalType: approvalType,
				DecisionFactors: map[string]any{
					"primary_factor": contracts.FactorEnhancedEvaluation,
					"strengths":      enhanced.Strengths,
					"risk_factors":   enhanced.RiskFactors,
				},
			}
		}
		return contracts.ApprovalResult{
			IsApproved:   false,
			ApprovalType: contracts.Rejected,
			DecisionFactors: map[string]any{
				"primary_factor": contracts.FactorEnhancedEvaluation,
				"risk_factors":   enhanced.RiskFactors,
			},
		}
	}

	if ai, ok := criteria[contracts.CriterionAIBorder]; ok {
		if ai.Passed {
			return contracts.ApprovalResult{
				IsApproved:   true,
				ApprovalType: contracts.ApprovedWithConditions,
				DecisionFactors: map[string]any{
					"primary_factor":       contracts.FactorAIAssessment,
					"compensating_factors": ai.CompensatingFactors,
				},
				Conditions: borderlineConditions(criteria),
			}
		}
		return contracts.ApprovalResult{
			IsApproved:   false,
			ApprovalType: contracts.Rejected,
			DecisionFactors: map[string]any{
				"primary_factor": contracts.FactorAIAssessment,
				"rationale":      ai.Rationale,
			},
		}
	}

	var failed []string
	for name, c := range criteria {
		if !c.Passed {
			failed = append(failed, name)
		}
	}
	if len(failed) == 0 {
		return contracts.ApprovalResult{
			IsApproved:   true,
			ApprovalType: contracts.Approved,
			DecisionFactors: map[string]any{
				"primary_factor": contracts.FactorAllCriteriaPassed,
			},
		}
	}
	return contracts.ApprovalResult{
		IsApproved:   false,
		ApprovalType: contracts.Rejected,
		DecisionFactors: map[string]any{
			"primary_factor":  contracts.FactorFailedCriteria,
			"failed_criteria": failed,
		},
	}
}

// borderlineConditions lists closing conditions for an AI-assisted
// approval: one per failed deterministic criterion plus the standard pair.
func borderlineConditions(criteria map[string]contracts.CriteriaEvaluation) []string {
	var conditions []string
	for _, name := range []string{contracts.CriterionDTI, contracts.CriterionLTV, contracts.CriterionFrontend, contracts.CriterionCreditScore} {
		c, ok := criteria[name]
		if !ok || c.Passed {
			continue
		}
		switch name {
		case contracts.CriterionDTI:
			conditions = append(conditions, "Reduce overall debt or increase income before closing")
		case contracts.CriterionLTV:
			conditions = append(conditions, "Increase down payment to reduce loan-to-value ratio")
		case contracts.CriterionFrontend:
			conditions = append(conditions, "Provide additional cash reserves")
		case contracts.CriterionCreditScore:
			conditions = append(conditions, "Provide additional collateral or guarantor")
		}
	}
	conditions = append(conditions,
		"Submit updated bank statements before closing",
		"Provide letter explaining any recent credit inquiries",
	)
	return conditions
}

// riskScore grades the application 0-100, higher is better. Deterministic
// criteria contribute a weighted distance-from-threshold score; assessment
// criteria contribute a flat bonus or penalty.
func riskScore(criteria map[string]contracts.CriteriaEvaluation) float64 {
	score := 50.0
	for name, c := range criteria {
		if isAssessment(name) {
			if c.Passed {
				score += 10
			} else {
				score -= 10
			}
			continue
		}
		if c.Threshold == 0 {
			continue
		}

		var criterionScore float64
		if name == contracts.CriterionCreditScore {
			// Higher is better.
			if c.Passed {
				criterionScore = (c.Value - c.Threshold) / c.Threshold * 100
			} else {
				criterionScore = -((c.Threshold - c.Value) / c.Threshold * 100)
			}
		} else {
			// Lower is better.
			if c.Passed {
				criterionScore = 100 - (c.Value / c.Threshold * 100)
			} else {
				criterionScore = -((c.Value - c.Threshold) / c.Threshold * 100)
			}
		}
		score += criterionScore * float64(c.Weight) / 100
	}
	return math.Max(0, math.Min(100, score))
}

// recommendedRate prices an approved loan: the profile base rate plus a
// risk adjustment, rounded to two decimals.
func (e *Evaluator) recommendedRate(riskScore float64, app *contracts.LoanApplication) float64 {
	base := e.profile.BaseRateFor(app.LoanType, app.LoanTermYears)

	var adjustment float64
	switch {
	case riskScore >= 90:
		adjustment = -0.5
	case riskScore >= 80:
		adjustment = -0.25
	case riskScore >= 70:
		adjustment = 0
	case riskScore >= 60:
		adjustment = 0.25
	case riskScore >= 50:
		adjustment = 0.5
	default:
		adjustment = 0.75
	}
	return math.Round((base+adjustment)*100) / 100
}

// maxLoanAmount estimates the largest supportable loan: the present value
// of the income left under the DTI cap, bounded by the LTV cap on the
// appraised property value. Independent of the approval decision.
func (e *Evaluator) maxLoanAmount(app *contracts.LoanApplication, docs *contracts.DocumentAnalysis, ratios contracts.FinancialRatios, t config.LoanThresholds) float64 {
	available := ratios.MonthlyIncome*t.MaxDTI - ratios.MonthlyDebts
	if available <= 0 {
		return 0
	}

	rate := app.InterestRate
	if rate <= 0 {
		rate = e.profile.BaseRateFor(app.LoanType, app.LoanTermYears)
	}
	r := rate / 100 / 12
	n := float64(app.LoanTermYears * 12)

	var maxByIncome float64
	if r > 0 {
		maxByIncome = available * ((1 - math.Pow(1+r, -n)) / r)
	} else {
		maxByIncome = available * n
	}

	propertyValue := app.PropertyValue
	if docs != nil {
		if a, ok := docs.DocumentResults[contracts.DocPropertyAppraisal]; ok && a.PropertyValue > 0 {
			propertyValue = a.PropertyValue
		}
	}
	maxByProperty := propertyValue * t.MaxLTV

	return math.Min(maxByIncome, maxByProperty)
}
