package underwriting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-labs/fairway/core/pkg/config"
	"github.com/fairway-labs/fairway/core/pkg/contracts"
	"github.com/fairway-labs/fairway/core/pkg/reasoner"
)

// stubReasoner returns a fixed result and counts invocations per kind.
type stubReasoner struct {
	results map[reasoner.Kind]reasoner.Result
	calls   map[reasoner.Kind]int
}

func newStubReasoner() *stubReasoner {
	return &stubReasoner{
		results: make(map[reasoner.Kind]reasoner.Result),
		calls:   make(map[reasoner.Kind]int),
	}
}

func (s *stubReasoner) Evaluate(ctx context.Context, req reasoner.Request) reasoner.Result {
	s.calls[req.Kind]++
	if res, ok := s.results[req.Kind]; ok {
		return res
	}
	return reasoner.Unavailable(nil)
}

func newEvaluator(rc reasoner.Client) *Evaluator {
	return NewEvaluator(config.DefaultProfile(), rc, nil,
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }))
}

// strongApplication passes every conventional criterion with margin:
// credit 760, DTI ~0.21, LTV 0.75, frontend ~0.24.
func strongApplication() (*contracts.LoanApplication, *contracts.DocumentAnalysis) {
	app := &contracts.LoanApplication{
		LoanAmount:    400000,
		LoanTermYears: 30,
		InterestRate:  5.5,
		LoanType:      contracts.LoanConventional,
		PropertyValue: 533334,
		CreditScore:   760,
		AnnualIncome:  150000,
	}
	docs := &contracts.DocumentAnalysis{
		IsComplete: true,
		DocumentResults: map[contracts.DocumentType]contracts.DocumentResult{
			contracts.DocCreditReport: {
				Confidence:  0.95,
				CreditScore: 760,
				Debts:       []contracts.Debt{{Type: contracts.DebtCreditCard, Balance: 10000}},
			},
			contracts.DocPropertyAppraisal: {Confidence: 0.9, PropertyValue: 533334},
		},
		OverallConfidence: 0.92,
	}
	return app, docs
}

// weakApplication fails credit score and DTI: credit 550, DTI ~0.55.
func weakApplication() (*contracts.LoanApplication, *contracts.DocumentAnalysis) {
	app := &contracts.LoanApplication{
		LoanAmount:    400000,
		LoanTermYears: 30,
		InterestRate:  5.5,
		LoanType:      contracts.LoanConventional,
		PropertyValue: 533334,
		CreditScore:   550,
		AnnualIncome:  72000,
	}
	docs := &contracts.DocumentAnalysis{
		IsComplete: true,
		DocumentResults: map[contracts.DocumentType]contracts.DocumentResult{
			contracts.DocCreditReport: {
				Confidence:  0.9,
				CreditScore: 550,
				Debts:       []contracts.Debt{{Type: contracts.DebtCreditCard, Balance: 35000}},
			},
		},
	}
	return app, docs
}

func TestEvaluateAllCriteriaPassApproved(t *testing.T) {
	e := newEvaluator(reasoner.Disabled{})
	app, docs := strongApplication()

	res, err := e.Evaluate(context.Background(), "app-1", app, docs)
	require.NoError(t, err)

	assert.True(t, res.IsApproved)
	assert.Equal(t, contracts.Approved, res.ApprovalType)
	assert.Equal(t, contracts.FactorAllCriteriaPassed, res.DecisionFactors["primary_factor"])
	assert.Len(t, res.Criteria, 4, "no assessment criteria without a reasoner")
	for name, c := range res.Criteria {
		assert.True(t, c.Passed, "criterion %s should pass", name)
	}
	assert.Greater(t, res.RiskScore, 70.0)
	assert.Less(t, res.RiskScore, 80.0)
	assert.Equal(t, 5.5, res.RecommendedRate, "base rate with neutral risk adjustment")
	assert.Nil(t, res.Enhanced)
}

func TestEvaluateFailedCriteriaRejected(t *testing.T) {
	e := newEvaluator(reasoner.Disabled{})
	app, docs := weakApplication()

	res, err := e.Evaluate(context.Background(), "app-2", app, docs)
	require.NoError(t, err)

	assert.False(t, res.IsApproved)
	assert.Equal(t, contracts.Rejected, res.ApprovalType)
	assert.Equal(t, contracts.FactorFailedCriteria, res.DecisionFactors["primary_factor"])
	failed, ok := res.DecisionFactors["failed_criteria"].([]string)
	require.True(t, ok)
	assert.Contains(t, failed, contracts.CriterionCreditScore)
	assert.Contains(t, failed, contracts.CriterionDTI)
	assert.Zero(t, res.RecommendedRate, "no rate recommendation for rejections")
}

func TestEvaluateEnhancedQualifiedApproved(t *testing.T) {
	stub := newStubReasoner()
	stub.results[reasoner.KindUnderwriting] = reasoner.OK(&reasoner.Verdict{
		Approve:        true,
		Recommendation: "Approve",
		Strengths:      []string{"stable employment"},
	})
	e := newEvaluator(stub)
	app, docs := strongApplication()

	res, err := e.Evaluate(context.Background(), "app-3", app, docs)
	require.NoError(t, err)

	assert.True(t, res.IsApproved)
	assert.Equal(t, contracts.Approved, res.ApprovalType)
	assert.Equal(t, contracts.FactorEnhancedEvaluation, res.DecisionFactors["primary_factor"])
	require.NotNil(t, res.Enhanced)
	assert.True(t, res.Enhanced.Qualified)
	assert.Contains(t, res.Criteria, contracts.CriterionEnhancedAI)
	assert.Equal(t, 0, stub.calls[reasoner.KindBorderline], "enhanced verdict suppresses borderline adjudication")
}

func TestEvaluateEnhancedReferToUnderwriter(t *testing.T) {
	stub := newStubReasoner()
	stub.results[reasoner.KindUnderwriting] = reasoner.OK(&reasoner.Verdict{
		Approve:        true,
		Recommendation: "Refer to Underwriter",
	})
	e := newEvaluator(stub)
	app, docs := strongApplication()

	res, err := e.Evaluate(context.Background(), "app-4", app, docs)
	require.NoError(t, err)
	assert.True(t, res.IsApproved)
	assert.Equal(t, contracts.ApprovedWithConditions, res.ApprovalType)
}

// An enhanced rejection dominates even when every deterministic criterion
// passes.
func TestEvaluateEnhancedRejectionDominates(t *testing.T) {
	stub := newStubReasoner()
	stub.results[reasoner.KindUnderwriting] = reasoner.OK(&reasoner.Verdict{
		Approve:     false,
		RiskFactors: []string{"undisclosed liabilities"},
	})
	e := newEvaluator(stub)
	app, docs := strongApplication()

	res, err := e.Evaluate(context.Background(), "app-5", app, docs)
	require.NoError(t, err)

	assert.False(t, res.IsApproved)
	assert.Equal(t, contracts.Rejected, res.ApprovalType)
	assert.Equal(t, contracts.FactorEnhancedEvaluation, res.DecisionFactors["primary_factor"])
}

// borderlineApplication has mixed pass/fail: LTV slightly over, the rest
// passing.
func borderlineApplication() (*contracts.LoanApplication, *contracts.DocumentAnalysis) {
	app, docs := strongApplication()
	app.LoanAmount = 440000 // LTV ~0.825, over the 0.80 cap
	return app, docs
}

func TestEvaluateBorderlinePassApprovedWithConditions(t *testing.T) {
	stub := newStubReasoner()
	stub.results[reasoner.KindBorderline] = reasoner.OK(&reasoner.Verdict{
		Approve:   true,
		Strengths: []string{"large cash reserves"},
		Rationale: "compensating factors outweigh the marginal LTV",
	})
	e := newEvaluator(stub)
	app, docs := borderlineApplication()

	res, err := e.Evaluate(context.Background(), "app-6", app, docs)
	require.NoError(t, err)

	assert.True(t, res.IsApproved)
	assert.Equal(t, contracts.ApprovedWithConditions, res.ApprovalType)
	assert.Equal(t, contracts.FactorAIAssessment, res.DecisionFactors["primary_factor"])
	assert.Contains(t, res.Criteria, contracts.CriterionAIBorder)
	assert.Contains(t, res.Conditions, "Increase down payment to reduce loan-to-value ratio")
	assert.Contains(t, res.Conditions, "Submit updated bank statements before closing")
	assert.Contains(t, res.Conditions, "Provide letter explaining any recent credit inquiries")
	assert.Equal(t, 1, stub.calls[reasoner.KindBorderline])
}

func TestEvaluateBorderlineFailRejected(t *testing.T) {
	stub := newStubReasoner()
	stub.results[reasoner.KindBorderline] = reasoner.OK(&reasoner.Verdict{
		Approve:   false,
		Rationale: "insufficient reserves for the elevated LTV",
	})
	e := newEvaluator(stub)
	app, docs := borderlineApplication()

	res, err := e.Evaluate(context.Background(), "app-7", app, docs)
	require.NoError(t, err)

	assert.False(t, res.IsApproved)
	assert.Equal(t, contracts.Rejected, res.ApprovalType)
	assert.Equal(t, contracts.FactorAIAssessment, res.DecisionFactors["primary_factor"])
	assert.Equal(t, "insufficient reserves for the elevated LTV", res.DecisionFactors["rationale"])
}

// With no reasoner at all, a borderline case falls back to the
// deterministic rule.
func TestEvaluateBorderlineUnavailableFallsBack(t *testing.T) {
	e := newEvaluator(reasoner.Disabled{})
	app, docs := borderlineApplication()

	res, err := e.Evaluate(context.Background(), "app-8", app, docs)
	require.NoError(t, err)

	assert.False(t, res.IsApproved)
	assert.Equal(t, contracts.FactorFailedCriteria, res.DecisionFactors["primary_factor"])
	assert.NotContains(t, res.Criteria, contracts.CriterionAIBorder)
}

func TestEvaluateMissingRatioInputsFatal(t *testing.T) {
	e := newEvaluator(reasoner.Disabled{})
	app, docs := strongApplication()
	app.PropertyValue = 0
	docs.DocumentResults = nil

	_, err := e.Evaluate(context.Background(), "app-9", app, docs)
	assert.ErrorIs(t, err, contracts.ErrValidation)
}

func TestMaxLoanAmountBoundedByProperty(t *testing.T) {
	e := newEvaluator(reasoner.Disabled{})
	app, docs := strongApplication()

	res, err := e.Evaluate(context.Background(), "app-10", app, docs)
	require.NoError(t, err)

	// Income supports far more than the 80% LTV cap on the appraisal.
	assert.InDelta(t, 533334*0.80, res.MaxLoanAmount, 1.0)
}

func TestMaxLoanAmountZeroWhenDebtsExhaustIncome(t *testing.T) {
	e := newEvaluator(reasoner.Disabled{})
	app, docs := strongApplication()
	docs.DocumentResults[contracts.DocCreditReport] = contracts.DocumentResult{
		Confidence:  0.9,
		CreditScore: 760,
		Debts:       []contracts.Debt{{Type: contracts.DebtOther, Balance: 2_000_000}},
	}

	res, err := e.Evaluate(context.Background(), "app-11", app, docs)
	require.NoError(t, err)
	assert.Zero(t, res.MaxLoanAmount)
}

func TestRecommendedRateAdjustments(t *testing.T) {
	e := newEvaluator(reasoner.Disabled{})
	app := &contracts.LoanApplication{LoanType: contracts.LoanConventional, LoanTermYears: 30}

	assert.Equal(t, 5.0, e.recommendedRate(95, app))
	assert.Equal(t, 5.25, e.recommendedRate(85, app))
	assert.Equal(t, 5.5, e.recommendedRate(75, app))
	assert.Equal(t, 5.75, e.recommendedRate(65, app))
	assert.Equal(t, 6.0, e.recommendedRate(55, app))
	assert.Equal(t, 6.25, e.recommendedRate(30, app))

	app15 := &contracts.LoanApplication{LoanType: contracts.LoanVA, LoanTermYears: 15}
	assert.Equal(t, 4.75, e.recommendedRate(75, app15))
}
