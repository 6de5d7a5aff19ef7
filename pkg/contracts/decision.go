package contracts

import "time"

// DecisionType categorizes ledger records by the stage that produced them.
type DecisionType string

const (
	DecisionUnderwriting DecisionType = "underwriting"
	DecisionCompliance   DecisionType = "compliance"
	DecisionDocuments    DecisionType = "documents"
	DecisionFinal        DecisionType = "final"
)

// Decision is one immutable record in the decision ledger. "Updating" a
// decision means appending a new record of the same type; existing records
// are never rewritten.
type Decision struct {
	ID            string         `json:"id"`
	ApplicationID string         `json:"application_id"`
	DecisionType  DecisionType   `json:"decision_type"`
	Outcome       bool           `json:"outcome"`
	Factors       map[string]any `json:"factors,omitempty"`
	Agent         string         `json:"agent,omitempty"`
	Explanation   string         `json:"explanation,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// ApprovalType is the granularity of an underwriting approval.
type ApprovalType string

const (
	Approved               ApprovalType = "APPROVED"
	ApprovedWithConditions ApprovalType = "APPROVED_WITH_CONDITIONS"
	Rejected               ApprovalType = "REJECTED"
)

// Well-known criterion names. The criterion set is loan-type dependent, but
// these four deterministic criteria are always present; the two assessment
// criteria appear only when the corresponding reasoning path ran.
const (
	CriterionDTI         = "DTI_RATIO"
	CriterionLTV         = "LTV_RATIO"
	CriterionFrontend    = "FRONTEND_RATIO"
	CriterionCreditScore = "CREDIT_SCORE"
	CriterionEnhancedAI  = "ENHANCED_AI_ASSESSMENT"
	CriterionAIBorder    = "AI_ASSESSMENT"
)

// Primary decision factor values recorded with every approval result.
const (
	FactorAllCriteriaPassed  = "ALL_CRITERIA_PASSED"
	FactorFailedCriteria     = "FAILED_CRITERIA"
	FactorEnhancedEvaluation = "ENHANCED_EVALUATION"
	FactorAIAssessment       = "AI_ASSESSMENT"
)

// FinancialRatios holds the ratios computed fresh for each evaluation.
// Ratios are decimals in [0, +inf): a DTI of 0.43 is 43%.
type FinancialRatios struct {
	DTI            float64 `json:"dti"`
	LTV            float64 `json:"ltv"`
	FrontendRatio  float64 `json:"frontend_ratio"`
	MonthlyIncome  float64 `json:"monthly_income"`
	MonthlyDebts   float64 `json:"monthly_debt_payments"`
	MonthlyPayment float64 `json:"monthly_mortgage_payment"`
	HousingExpense float64 `json:"housing_expenses"`
}

// CriteriaEvaluation is one criterion checked against its threshold.
type CriteriaEvaluation struct {
	Criterion           string   `json:"criterion"`
	Value               float64  `json:"value"`
	Threshold           float64  `json:"threshold"`
	Passed              bool     `json:"passed"`
	Weight              int      `json:"weight"`
	RiskFactors         []string `json:"risk_factors,omitempty"`
	Strengths           []string `json:"strengths,omitempty"`
	CompensatingFactors []string `json:"compensating_factors,omitempty"`
	Rationale           string   `json:"rationale,omitempty"`
}

// ApprovalResult is the synthesized underwriting verdict.
type ApprovalResult struct {
	IsApproved      bool           `json:"is_approved"`
	ApprovalType    ApprovalType   `json:"approval_type"`
	DecisionFactors map[string]any `json:"decision_factors,omitempty"`
	Conditions      []string       `json:"conditions,omitempty"`
}

// UnderwritingResult is the full output of the underwriting evaluator.
type UnderwritingResult struct {
	ApplicationID   string                        `json:"application_id"`
	IsApproved      bool                          `json:"is_approved"`
	ApprovalType    ApprovalType                  `json:"approval_type"`
	RiskScore       float64                       `json:"risk_score"`
	Ratios          FinancialRatios               `json:"financial_ratios"`
	Criteria        map[string]CriteriaEvaluation `json:"criteria_evaluation"`
	DecisionFactors map[string]any                `json:"decision_factors,omitempty"`
	Conditions      []string                      `json:"conditions,omitempty"`
	RecommendedRate float64                       `json:"recommended_interest_rate,omitempty"`
	MaxLoanAmount   float64                       `json:"max_loan_amount"`
	Explanation     string                        `json:"explanation,omitempty"`
	Enhanced        *EnhancedSummary              `json:"enhanced_evaluation,omitempty"`
	Timestamp       time.Time                     `json:"timestamp"`
}

// EnhancedSummary condenses an external reasoner verdict for audit records.
type EnhancedSummary struct {
	Qualified      bool     `json:"qualified"`
	Recommendation string   `json:"loan_recommendation,omitempty"`
	RiskFactors    []string `json:"risk_factors,omitempty"`
	Strengths      []string `json:"strengths,omitempty"`
}

// Compliance check type names. All five run on every evaluation.
const (
	CheckFairLending      = "FAIR_LENDING"
	CheckRequiredDocs     = "REQUIRED_DOCUMENTS"
	CheckDisclosures      = "DISCLOSURES"
	CheckHighRiskFactors  = "HIGH_RISK_FACTORS"
	CheckRegulatoryLimits = "REGULATORY_LIMITS"
)

// RiskLevel grades the high-risk factor check.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ComplianceCheckResult is one sub-check's outcome. Extra fields beyond
// check_type/passed/issues are populated per check where meaningful.
type ComplianceCheckResult struct {
	CheckType        string         `json:"check_type"`
	Passed           bool           `json:"passed"`
	Issues           []string       `json:"issues,omitempty"`
	MissingDocuments []DocumentType `json:"missing_documents,omitempty"`
	RiskLevel        RiskLevel      `json:"risk_level,omitempty"`
	RequiresReview   bool           `json:"requires_additional_scrutiny,omitempty"`
	Recommendations  []string       `json:"recommendations,omitempty"`
}

// ComplianceResult aggregates the five sub-checks. IsCompliant is the
// logical AND of every sub-check plus the enhanced overall status when an
// external reasoner verdict was available.
type ComplianceResult struct {
	ApplicationID   string                           `json:"application_id"`
	IsCompliant     bool                             `json:"is_compliant"`
	Checks          map[string]ComplianceCheckResult `json:"compliance_checks"`
	Factors         map[string]any                   `json:"compliance_factors,omitempty"`
	RequiredActions []string                         `json:"required_actions,omitempty"`
	Explanation     string                           `json:"explanation,omitempty"`
	Timestamp       time.Time                        `json:"timestamp"`
}
