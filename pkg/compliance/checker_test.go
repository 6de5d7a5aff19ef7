package compliance

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

type stubReasoner struct {
	result reasoner.Result
	calls  int
}

func (s *stubReasoner) Evaluate(ctx context.Context, req reasoner.Request) reasoner.Result {
	s.calls++
	return s.result
}

func newChecker(t *testing.T, rc reasoner.Client) *Checker {
	t.Helper()
	c, err := NewChecker(config.DefaultProfile(), rc, nil,
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }))
	require.NoError(t, err)
	return c
}

func cleanApplication() *contracts.LoanApplication {
	return &contracts.LoanApplication{
		LoanAmount:    400000,
		LoanTermYears: 30,
		InterestRate:  5.5,
		LoanType:      contracts.LoanConventional,
		PropertyValue: 533334,
		PointsAndFees: 5000,
		Disclosures: map[string]contracts.Disclosure{
			"tila_respa":     {Provided: true, DateProvided: "2026-02-01"},
			"loan_estimate":  {Provided: true, DateProvided: "2026-02-02"},
			"fee_disclosure": {Provided: true, DateProvided: "2026-02-02"},
		},
	}
}

func completeDocs() *contracts.DocumentAnalysis {
	return &contracts.DocumentAnalysis{
		IsComplete: true,
		DocumentResults: map[contracts.DocumentType]contracts.DocumentResult{
			contracts.DocIncomeProof:       {Type: contracts.DocIncomeProof, Confidence: 0.92},
			contracts.DocCreditReport:      {Type: contracts.DocCreditReport, Confidence: 0.9, CreditScore: 760},
			contracts.DocPropertyAppraisal: {Type: contracts.DocPropertyAppraisal, Confidence: 0.88, PropertyValue: 533334},
			contracts.DocIdentity:          {Type: contracts.DocIdentity, Confidence: 0.95},
		},
		OverallConfidence: 0.91,
	}
}

func approvedUnderwriting() *contracts.UnderwritingResult {
	return &contracts.UnderwritingResult{
		ApplicationID: "APP-1001",
		IsApproved:    true,
		ApprovalType:  contracts.Approved,
		RiskScore:     73,
		Ratios: contracts.FinancialRatios{
			DTI:           0.21,
			LTV:           0.75,
			FrontendRatio: 0.24,
		},
		DecisionFactors: map[string]any{"primary_factor": contracts.FactorAllCriteriaPassed},
	}
}

// TestCheckCompliantApplication verifies a clean application passes every
// check with no required actions.
func TestCheckCompliantApplication(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	res, err := c.Check(context.Background(), "APP-1001", cleanApplication(), completeDocs(), approvedUnderwriting())
	require.NoError(t, err)

	assert.True(t, res.IsCompliant)
	assert.Len(t, res.Checks, 5)
	for key, check := range res.Checks {
		assert.True(t, check.Passed, "check %s should pass", key)
	}
	assert.Empty(t, res.Factors)
	assert.Empty(t, res.RequiredActions)
	assert.Equal(t, "The application is compliant with all regulatory requirements.", res.Explanation)
	assert.Equal(t, contracts.RiskLow, res.Checks[keyHighRiskFactors].RiskLevel)
}

func TestCheckRequiresApplicationID(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	_, err := c.Check(context.Background(), "", cleanApplication(), completeDocs(), approvedUnderwriting())
	require.ErrorIs(t, err, contracts.ErrValidation)
}

// TestConformingLimitViolation verifies a conventional loan over the
// conforming limit fails regulatory limits even when underwriting approved.
func TestConformingLimitViolation(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	app := cleanApplication()
	app.LoanAmount = 800000
	app.PropertyValue = 1100000

	res, err := c.Check(context.Background(), "APP-1002", app, completeDocs(), approvedUnderwriting())
	require.NoError(t, err)

	assert.False(t, res.IsCompliant)
	check := res.Checks[keyRegulatoryLimits]
	assert.False(t, check.Passed)
	require.Len(t, check.Issues, 1)
	assert.Contains(t, check.Issues[0], "conforming loan limit of $726200")
	assert.Contains(t, res.Factors, "regulatory_limits")
	assert.Contains(t, res.RequiredActions, "Address regulatory limit issue: "+check.Issues[0])
}

func TestFHALimitViolation(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	app := cleanApplication()
	app.LoanType = contracts.LoanFHA
	app.LoanAmount = 500000

	res, err := c.Check(context.Background(), "APP-1003", app, completeDocs(), approvedUnderwriting())
	require.NoError(t, err)

	check := res.Checks[keyRegulatoryLimits]
	assert.False(t, check.Passed)
	require.Len(t, check.Issues, 1)
	assert.Contains(t, check.Issues[0], "FHA loan limit of $420680")
}

func TestHOEPAAndQMViolations(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	app := cleanApplication()
	app.InterestRate = 12
	app.PointsAndFees = 20000 // 5% of the loan

	res, err := c.Check(context.Background(), "APP-1004", app, completeDocs(), approvedUnderwriting())
	require.NoError(t, err)

	check := res.Checks[keyRegulatoryLimits]
	assert.False(t, check.Passed)
	assert.Contains(t, check.Issues, "interest rate exceeds HOEPA high-cost mortgage threshold")
	assert.Contains(t, check.Issues, "points and fees exceed QM threshold of 3% of loan amount")
}

// TestMissingDisclosures verifies each absent disclosure is reported with a
// matching required action.
func TestMissingDisclosures(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	app := cleanApplication()
	app.Disclosures = map[string]contracts.Disclosure{
		"tila_respa": {Provided: true},
	}

	res, err := c.Check(context.Background(), "APP-1005", app, completeDocs(), approvedUnderwriting())
	require.NoError(t, err)

	check := res.Checks[keyDisclosures]
	assert.False(t, check.Passed)
	require.Len(t, check.Issues, 1)
	assert.Contains(t, check.Issues[0], "loan_estimate, fee_disclosure")
	assert.Equal(t, []string{
		"Provide required disclosure: loan_estimate",
		"Provide required disclosure: fee_disclosure",
	}, res.RequiredActions)
}

func TestMissingDocumentsFailCheck(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	docs := completeDocs()
	docs.IsComplete = false
	docs.MissingDocuments = []contracts.DocumentType{contracts.DocCreditReport}
	delete(docs.DocumentResults, contracts.DocCreditReport)

	res, err := c.Check(context.Background(), "APP-1006", cleanApplication(), docs, approvedUnderwriting())
	require.NoError(t, err)

	check := res.Checks[keyRequiredDocs]
	assert.False(t, check.Passed)
	assert.Equal(t, []contracts.DocumentType{contracts.DocCreditReport}, check.MissingDocuments)
	assert.Contains(t, res.RequiredActions, "Obtain missing document: CREDIT_REPORT")
	assert.Contains(t, res.Factors, "missing_documents")
}

func TestLowConfidenceDocumentFailsCheck(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	docs := completeDocs()
	result := docs.DocumentResults[contracts.DocIdentity]
	result.Confidence = 0.5
	docs.DocumentResults[contracts.DocIdentity] = result

	res, err := c.Check(context.Background(), "APP-1007", cleanApplication(), docs, approvedUnderwriting())
	require.NoError(t, err)

	check := res.Checks[keyRequiredDocs]
	assert.False(t, check.Passed)
	assert.Contains(t, res.RequiredActions, "Obtain clearer copy of document: IDENTITY_DOCUMENT")
}

func TestNilDocumentAnalysisFailsConservatively(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	res, err := c.Check(context.Background(), "APP-1008", cleanApplication(), nil, approvedUnderwriting())
	require.NoError(t, err)

	assert.False(t, res.IsCompliant)
	assert.False(t, res.Checks[keyRequiredDocs].Passed)
}

// TestHighSeverityRiskFactorFailsCheck verifies a critical rule match fails
// the high-risk check and requests a due diligence review.
func TestHighSeverityRiskFactorFailsCheck(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	uw := approvedUnderwriting()
	uw.RiskScore = 30

	res, err := c.Check(context.Background(), "APP-1009", cleanApplication(), completeDocs(), uw)
	require.NoError(t, err)

	check := res.Checks[keyHighRiskFactors]
	assert.False(t, check.Passed)
	assert.Equal(t, contracts.RiskHigh, check.RiskLevel)
	assert.True(t, check.RequiresReview)
	assert.Contains(t, check.Issues, "Critical risk factor: underwriting risk score below 40")
	assert.Contains(t, res.RequiredActions, "Perform enhanced due diligence review")
}

// TestMediumRiskFactorPassesWithReview verifies MEDIUM-severity matches do
// not fail the check but still flag the application for review.
func TestMediumRiskFactorPassesWithReview(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	uw := approvedUnderwriting()
	uw.Ratios.DTI = 0.48

	res, err := c.Check(context.Background(), "APP-1010", cleanApplication(), completeDocs(), uw)
	require.NoError(t, err)

	check := res.Checks[keyHighRiskFactors]
	assert.True(t, check.Passed)
	assert.Equal(t, contracts.RiskMedium, check.RiskLevel)
	assert.True(t, check.RequiresReview)
	assert.True(t, res.IsCompliant)
	assert.Contains(t, res.RequiredActions, "Perform enhanced due diligence review")
}

// TestMissingUnderwritingTripsRulesConservatively verifies that rules which
// cannot be evaluated count as matched rather than silently passing.
func TestMissingUnderwritingTripsRulesConservatively(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	res, err := c.Check(context.Background(), "APP-1011", cleanApplication(), completeDocs(), nil)
	require.NoError(t, err)

	check := res.Checks[keyHighRiskFactors]
	assert.False(t, check.Passed)
	assert.Equal(t, contracts.RiskHigh, check.RiskLevel)
}

func TestProhibitedBasisFailsFairLending(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	uw := approvedUnderwriting()
	uw.DecisionFactors["age"] = 62

	res, err := c.Check(context.Background(), "APP-1012", cleanApplication(), completeDocs(), uw)
	require.NoError(t, err)

	check := res.Checks[keyFairLending]
	assert.False(t, check.Passed)
	require.Len(t, check.Issues, 1)
	assert.Contains(t, check.Issues[0], "prohibited basis present in decision factors: age")
	assert.Contains(t, res.Factors, "fair_lending")
}

// TestEnhancedVetoOverridesPassingChecks verifies an available reasoner
// rejection vetoes compliance even when all five checks pass.
func TestEnhancedVetoOverridesPassingChecks(t *testing.T) {
	rc := &stubReasoner{result: reasoner.OK(&reasoner.Verdict{
		Approve:         false,
		Rationale:       "undisclosed obligation pattern",
		RiskFactors:     []string{"income source concentration"},
		Recommendations: []string{"Request employer verification letter"},
	})}
	c := newChecker(t, rc)

	res, err := c.Check(context.Background(), "APP-1013", cleanApplication(), completeDocs(), approvedUnderwriting())
	require.NoError(t, err)

	assert.False(t, res.IsCompliant)
	for key, check := range res.Checks {
		assert.True(t, check.Passed, "check %s should pass", key)
	}
	assert.Equal(t, []string{"income source concentration"}, res.Factors["enhanced_compliance"])
	assert.Contains(t, res.RequiredActions, "Request employer verification letter")
	assert.Equal(t, 1, rc.calls)
}

// TestEnhancedApprovalCannotGrantCompliance verifies the reasoner verdict
// only vetoes: failed deterministic checks stay failed.
func TestEnhancedApprovalCannotGrantCompliance(t *testing.T) {
	rc := &stubReasoner{result: reasoner.OK(&reasoner.Verdict{Approve: true})}
	c := newChecker(t, rc)

	app := cleanApplication()
	app.LoanAmount = 800000
	app.PropertyValue = 1100000

	res, err := c.Check(context.Background(), "APP-1014", app, completeDocs(), approvedUnderwriting())
	require.NoError(t, err)

	assert.False(t, res.IsCompliant)
	assert.False(t, res.Checks[keyRegulatoryLimits].Passed)
}

func TestRequiredActionsDeduplicated(t *testing.T) {
	results := []contracts.ComplianceCheckResult{
		{Passed: false, Recommendations: []string{"Obtain missing document: CREDIT_REPORT", "Perform enhanced due diligence review"}},
		{Passed: false, Recommendations: []string{"Perform enhanced due diligence review", "Provide required disclosure: tila_respa"}},
	}

	actions := requiredActions(results, reasoner.Result{Status: reasoner.StatusUnavailable})
	assert.Equal(t, []string{
		"Obtain missing document: CREDIT_REPORT",
		"Perform enhanced due diligence review",
		"Provide required disclosure: tila_respa",
	}, actions)
}

func TestGuardedCheckConvertsPanic(t *testing.T) {
	c := newChecker(t, reasoner.Disabled{})

	result := c.guarded("APP-1015", keyDisclosures, func() contracts.ComplianceCheckResult {
		panic("boom")
	})

	assert.Equal(t, contracts.CheckDisclosures, result.CheckType)
	assert.False(t, result.Passed)
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "check aborted: boom")
}

func TestRiskRuleSetRejectsBadExpression(t *testing.T) {
	_, err := NewRiskRuleSet([]RiskRule{{Name: "broken", Expr: "app.loan_amount >"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestNegativeEquityRule(t *testing.T) {
	rules, err := NewRiskRuleSet(DefaultRiskRules())
	require.NoError(t, err)

	app := cleanApplication()
	app.LoanAmount = 600000
	app.PropertyValue = 550000

	tripped := rules.Evaluate(app, approvedUnderwriting())
	require.Len(t, tripped, 1)
	assert.Equal(t, "negative_equity", tripped[0].Name)
	assert.Equal(t, contracts.RiskHigh, tripped[0].Severity)
}
