// Package compliance runs the regulatory checks on an underwritten
// application: fair lending, required documents, disclosures, high-risk
// factors and regulatory limits. The five checks run concurrently and are
// individually panic-guarded; a check that cannot complete reports
// non-compliance rather than silence.
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fairway-labs/fairway/core/pkg/config"
	"github.com/fairway-labs/fairway/core/pkg/contracts"
	"github.com/fairway-labs/fairway/core/pkg/reasoner"
)

// Map keys under which each check's result is reported.
const (
	keyFairLending      = "fair_lending"
	keyRequiredDocs     = "required_documents"
	keyDisclosures      = "disclosures"
	keyHighRiskFactors  = "high_risk_factors"
	keyRegulatoryLimits = "regulatory_limits"
)

// requiredDisclosures must be provided to the applicant before closing.
var requiredDisclosures = []string{"tila_respa", "loan_estimate", "fee_disclosure"}

// prohibitedBasis lists the factor keys that must never appear in a lending
// decision (ECOA prohibited bases).
var prohibitedBasis = map[string]bool{
	"race":            true,
	"color":           true,
	"religion":        true,
	"national_origin": true,
	"sex":             true,
	"gender":          true,
	"marital_status":  true,
	"age":             true,
	"ethnicity":       true,
}

// Checker runs the compliance stage.
type Checker struct {
	profile  *config.LendingProfile
	reasoner reasoner.Client
	rules    *RiskRuleSet
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Checker)

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// WithRiskRules replaces the built-in high-risk rule set.
func WithRiskRules(rules *RiskRuleSet) Option {
	return func(c *Checker) { c.rules = rules }
}

func NewChecker(profile *config.LendingProfile, rc reasoner.Client, logger *slog.Logger, opts ...Option) (*Checker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if rc == nil {
		rc = reasoner.Disabled{}
	}
	rules, err := NewRiskRuleSet(DefaultRiskRules())
	if err != nil {
		return nil, err
	}
	c := &Checker{
		profile:  profile,
		reasoner: rc,
		rules:    rules,
		logger:   logger.With("component", "compliance"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Check runs all five compliance checks and aggregates the verdict.
// Overall compliance is the AND of every check; an available reasoner
// verdict can additionally veto but never grant compliance.
func (c *Checker) Check(ctx context.Context, applicationID string, app *contracts.LoanApplication, docs *contracts.DocumentAnalysis, uw *contracts.UnderwritingResult) (*contracts.ComplianceResult, error) {
	if applicationID == "" {
		return nil, contracts.NewValidationError("compliance check requires an application id")
	}
	if app == nil {
		return nil, contracts.NewValidationError("compliance check requires application data")
	}

	// The external review runs first so its verdict is available to the
	// aggregation. Unavailability degrades to the deterministic checks.
	review := c.reasoner.Evaluate(ctx, reasoner.Request{
		Kind:          reasoner.KindCompliance,
		ApplicationID: applicationID,
		Application:   app,
		Documents:     docs,
	})
	if !review.Available() {
		c.logger.Warn("compliance review unavailable, continuing with deterministic checks",
			"application_id", applicationID, "status", review.Status, "error", review.Err)
	}

	type namedCheck struct {
		key string
		run func() contracts.ComplianceCheckResult
	}
	checks := []namedCheck{
		{keyFairLending, func() contracts.ComplianceCheckResult { return c.checkFairLending(uw) }},
		{keyRequiredDocs, func() contracts.ComplianceCheckResult { return c.checkRequiredDocuments(docs) }},
		{keyDisclosures, func() contracts.ComplianceCheckResult { return c.checkDisclosures(app) }},
		{keyHighRiskFactors, func() contracts.ComplianceCheckResult { return c.checkHighRiskFactors(app, uw) }},
		{keyRegulatoryLimits, func() contracts.ComplianceCheckResult { return c.checkRegulatoryLimits(app) }},
	}

	results := make([]contracts.ComplianceCheckResult, len(checks))
	var wg sync.WaitGroup
	for i, nc := range checks {
		wg.Add(1)
		go func(i int, nc namedCheck) {
			defer wg.Done()
			results[i] = c.guarded(applicationID, nc.key, nc.run)
		}(i, nc)
	}
	wg.Wait()

	compliant := true
	checkMap := make(map[string]contracts.ComplianceCheckResult, len(checks))
	factors := map[string]any{}
	for i, nc := range checks {
		checkMap[nc.key] = results[i]
		if !results[i].Passed {
			compliant = false
			factors[factorKey(nc.key)] = results[i].Issues
		}
	}

	if review.Available() && !review.Verdict.Approve {
		compliant = false
		if len(review.Verdict.RiskFactors) > 0 {
			factors["enhanced_compliance"] = review.Verdict.RiskFactors
		} else {
			factors["enhanced_compliance"] = []string{review.Verdict.Rationale}
		}
	}

	result := &contracts.ComplianceResult{
		ApplicationID:   applicationID,
		IsCompliant:     compliant,
		Checks:          checkMap,
		Factors:         factors,
		RequiredActions: requiredActions(results, review),
		Explanation:     explanation(compliant, results),
		Timestamp:       c.now().UTC(),
	}
	return result, nil
}

// guarded runs one check, converting a panic into a conservative failure.
func (c *Checker) guarded(applicationID, key string, run func() contracts.ComplianceCheckResult) (result contracts.ComplianceCheckResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("compliance check aborted",
				"application_id", applicationID, "check", key, "panic", r)
			result = contracts.ComplianceCheckResult{
				CheckType: checkType(key),
				Passed:    false,
				Issues:    []string{fmt.Sprintf("check aborted: %v", r)},
			}
		}
	}()
	return run()
}

// checkFairLending verifies that no prohibited basis appears among the
// underwriting decision factors or criteria.
func (c *Checker) checkFairLending(uw *contracts.UnderwritingResult) contracts.ComplianceCheckResult {
	var issues, recommendations []string
	if uw != nil {
		for key := range uw.DecisionFactors {
			if prohibitedBasis[strings.ToLower(key)] {
				issues = append(issues, fmt.Sprintf("prohibited basis present in decision factors: %s", key))
			}
		}
		for name := range uw.Criteria {
			if prohibitedBasis[strings.ToLower(name)] {
				issues = append(issues, fmt.Sprintf("prohibited basis used as underwriting criterion: %s", name))
			}
		}
	}
	for _, issue := range issues {
		recommendations = append(recommendations, "Fair lending remediation: "+issue)
	}
	return contracts.ComplianceCheckResult{
		CheckType:       contracts.CheckFairLending,
		Passed:          len(issues) == 0,
		Issues:          issues,
		Recommendations: recommendations,
	}
}

// checkRequiredDocuments verifies the document set is complete, consistent
// and analyzed with sufficient confidence.
func (c *Checker) checkRequiredDocuments(docs *contracts.DocumentAnalysis) contracts.ComplianceCheckResult {
	if docs == nil {
		return contracts.ComplianceCheckResult{
			CheckType: contracts.CheckRequiredDocs,
			Passed:    false,
			Issues:    []string{"no document analysis available"},
		}
	}

	threshold := c.profile.Limits.DocConfidenceThreshold
	var lowConfidence []contracts.DocumentType
	for docType, dr := range docs.DocumentResults {
		if dr.Confidence < threshold {
			lowConfidence = append(lowConfidence, docType)
		}
	}

	var issues, recommendations []string
	if len(docs.MissingDocuments) > 0 {
		issues = append(issues, fmt.Sprintf("missing required documents: %s", joinDocs(docs.MissingDocuments)))
		for _, d := range docs.MissingDocuments {
			recommendations = append(recommendations, fmt.Sprintf("Obtain missing document: %s", d))
		}
	}
	if len(docs.Inconsistencies) > 0 {
		issues = append(issues, fmt.Sprintf("document inconsistencies detected: %d issues found", len(docs.Inconsistencies)))
	}
	if len(lowConfidence) > 0 {
		issues = append(issues, fmt.Sprintf("low confidence in document analysis: %s", joinDocs(lowConfidence)))
		for _, d := range lowConfidence {
			recommendations = append(recommendations, fmt.Sprintf("Obtain clearer copy of document: %s", d))
		}
	}

	return contracts.ComplianceCheckResult{
		CheckType:        contracts.CheckRequiredDocs,
		Passed:           docs.IsComplete && len(docs.Inconsistencies) == 0 && len(lowConfidence) == 0,
		Issues:           issues,
		MissingDocuments: docs.MissingDocuments,
		Recommendations:  recommendations,
	}
}

// checkDisclosures verifies every required disclosure was provided.
func (c *Checker) checkDisclosures(app *contracts.LoanApplication) contracts.ComplianceCheckResult {
	var missing []string
	for _, name := range requiredDisclosures {
		d, ok := app.Disclosures[name]
		if !ok || !d.Provided {
			missing = append(missing, name)
		}
	}

	var issues, recommendations []string
	if len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("missing required disclosures: %s", strings.Join(missing, ", ")))
		for _, name := range missing {
			recommendations = append(recommendations, fmt.Sprintf("Provide required disclosure: %s", name))
		}
	}
	return contracts.ComplianceCheckResult{
		CheckType:       contracts.CheckDisclosures,
		Passed:          len(missing) == 0,
		Issues:          issues,
		Recommendations: recommendations,
	}
}

// checkHighRiskFactors evaluates the rule set. The check fails only on a
// HIGH-severity match; MEDIUM matches pass but flag the application for
// additional scrutiny.
func (c *Checker) checkHighRiskFactors(app *contracts.LoanApplication, uw *contracts.UnderwritingResult) contracts.ComplianceCheckResult {
	tripped := c.rules.Evaluate(app, uw)

	level := contracts.RiskLow
	var issues []string
	for _, t := range tripped {
		switch t.Severity {
		case contracts.RiskHigh:
			level = contracts.RiskHigh
			issues = append(issues, fmt.Sprintf("Critical risk factor: %s", t.Description))
		default:
			if level != contracts.RiskHigh {
				level = contracts.RiskMedium
			}
			issues = append(issues, fmt.Sprintf("Risk factor: %s", t.Description))
		}
	}

	requiresReview := level != contracts.RiskLow
	var recommendations []string
	if requiresReview {
		recommendations = append(recommendations, "Perform enhanced due diligence review")
	}
	return contracts.ComplianceCheckResult{
		CheckType:       contracts.CheckHighRiskFactors,
		Passed:          level != contracts.RiskHigh,
		Issues:          issues,
		RiskLevel:       level,
		RequiresReview:  requiresReview,
		Recommendations: recommendations,
	}
}

// checkRegulatoryLimits verifies conforming/FHA loan limits, the HOEPA
// rate threshold and the QM points-and-fees cap from the lending profile.
func (c *Checker) checkRegulatoryLimits(app *contracts.LoanApplication) contracts.ComplianceCheckResult {
	limits := c.profile.Limits
	var violations []string

	switch app.LoanType {
	case contracts.LoanConventional:
		if app.LoanAmount > limits.ConformingLoanLimit {
			violations = append(violations, fmt.Sprintf("loan amount exceeds conforming loan limit of $%.0f", limits.ConformingLoanLimit))
		}
	case contracts.LoanFHA:
		if app.LoanAmount > limits.FHALoanLimit {
			violations = append(violations, fmt.Sprintf("loan amount exceeds FHA loan limit of $%.0f", limits.FHALoanLimit))
		}
	}

	if app.InterestRate > limits.HOEPARateThreshold {
		violations = append(violations, "interest rate exceeds HOEPA high-cost mortgage threshold")
	}
	if app.LoanAmount > 0 && app.PointsAndFees/app.LoanAmount > limits.QMPointsFeesCap {
		violations = append(violations, fmt.Sprintf("points and fees exceed QM threshold of %.0f%% of loan amount", limits.QMPointsFeesCap*100))
	}

	var recommendations []string
	for _, v := range violations {
		recommendations = append(recommendations, "Address regulatory limit issue: "+v)
	}
	return contracts.ComplianceCheckResult{
		CheckType:       contracts.CheckRegulatoryLimits,
		Passed:          len(violations) == 0,
		Issues:          violations,
		Recommendations: recommendations,
	}
}

// requiredActions collects the recommendations of every failed or flagged
// check plus the external review, de-duplicated in first-seen order.
func requiredActions(results []contracts.ComplianceCheckResult, review reasoner.Result) []string {
	seen := map[string]bool{}
	var actions []string
	add := func(a string) {
		if a == "" || seen[a] {
			return
		}
		seen[a] = true
		actions = append(actions, a)
	}

	for _, r := range results {
		if r.Passed && !r.RequiresReview {
			continue
		}
		for _, rec := range r.Recommendations {
			add(rec)
		}
	}
	if review.Available() {
		for _, rec := range review.Verdict.Recommendations {
			add(rec)
		}
	}
	return actions
}

func explanation(compliant bool, results []contracts.ComplianceCheckResult) string {
	if compliant {
		return "The application is compliant with all regulatory requirements."
	}
	var issues []string
	for _, r := range results {
		if !r.Passed {
			issues = append(issues, r.Issues...)
		}
	}
	if len(issues) == 0 {
		return "The application has compliance issues that need to be addressed."
	}
	return "The application has compliance issues: " + strings.Join(issues, "; ")
}

func factorKey(key string) string {
	if key == keyRequiredDocs {
		return "missing_documents"
	}
	if key == keyHighRiskFactors {
		return "risk_factors"
	}
	return key
}

func checkType(key string) string {
	switch key {
	case keyFairLending:
		return contracts.CheckFairLending
	case keyRequiredDocs:
		return contracts.CheckRequiredDocs
	case keyDisclosures:
		return contracts.CheckDisclosures
	case keyHighRiskFactors:
		return contracts.CheckHighRiskFactors
	case keyRegulatoryLimits:
		return contracts.CheckRegulatoryLimits
	}
	return key
}

func joinDocs(docs []contracts.DocumentType) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = string(d)
	}
	return strings.Join(parts, ", ")
}
