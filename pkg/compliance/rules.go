package compliance

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// RiskRule is one high-risk detection expression. Expressions see two
// variables: `app` (the loan application) and `underwriting` (the
// underwriting result), both as maps.
type RiskRule struct {
	Name        string
	Description string
	Severity    contracts.RiskLevel
	Expr        string
}

// DefaultRiskRules is the built-in high-risk rule set.
func DefaultRiskRules() []RiskRule {
	return []RiskRule{
		{
			Name:        "negative_equity",
			Description: "loan amount exceeds property value",
			Severity:    contracts.RiskHigh,
			Expr:        `app.property_value > 0.0 && app.loan_amount > app.property_value`,
		},
		{
			Name:        "severe_risk_score",
			Description: "underwriting risk score below 40",
			Severity:    contracts.RiskHigh,
			Expr:        `underwriting.risk_score < 40.0`,
		},
		{
			Name:        "stretched_dti",
			Description: "debt-to-income ratio above 45%",
			Severity:    contracts.RiskMedium,
			Expr:        `underwriting.dti > 0.45`,
		},
		{
			Name:        "minimal_down_payment",
			Description: "first-time buyer with under 5% down",
			Severity:    contracts.RiskMedium,
			Expr:        `app.is_first_time_homebuyer && app.property_value > 0.0 && app.down_payment < app.property_value * 0.05`,
		},
		{
			Name:        "elevated_rate",
			Description: "interest rate above 8%",
			Severity:    contracts.RiskMedium,
			Expr:        `app.interest_rate > 8.0`,
		},
	}
}

type compiledRule struct {
	rule RiskRule
	prg  cel.Program
}

// RiskRuleSet holds compiled rules. Compilation happens once, at
// construction; a rule that does not compile is a configuration error.
type RiskRuleSet struct {
	rules []compiledRule
}

func NewRiskRuleSet(rules []RiskRule) (*RiskRuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("app", cel.DynType),
		cel.Variable("underwriting", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}

	set := &RiskRuleSet{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("rule %s: compile: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast,
			cel.InterruptCheckFrequency(100),
			cel.CostLimit(10000),
		)
		if err != nil {
			return nil, fmt.Errorf("rule %s: program: %w", r.Name, err)
		}
		set.rules = append(set.rules, compiledRule{rule: r, prg: prg})
	}
	return set, nil
}

// TrippedRule is one matched high-risk rule.
type TrippedRule struct {
	Name        string
	Description string
	Severity    contracts.RiskLevel
}

// Evaluate runs every rule against the application and underwriting result.
// An evaluation error counts the rule as tripped: an expression that cannot
// be decided must not silently pass.
func (s *RiskRuleSet) Evaluate(app *contracts.LoanApplication, uw *contracts.UnderwritingResult) []TrippedRule {
	input := map[string]any{
		"app":          applicationVars(app),
		"underwriting": underwritingVars(uw),
	}

	var tripped []TrippedRule
	for _, c := range s.rules {
		out, _, err := c.prg.Eval(input)
		if err != nil {
			tripped = append(tripped, TrippedRule{
				Name:        c.rule.Name,
				Description: fmt.Sprintf("%s (rule evaluation failed: %v)", c.rule.Description, err),
				Severity:    c.rule.Severity,
			})
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			tripped = append(tripped, TrippedRule{
				Name:        c.rule.Name,
				Description: c.rule.Description,
				Severity:    c.rule.Severity,
			})
		}
	}
	return tripped
}

func applicationVars(app *contracts.LoanApplication) map[string]any {
	if app == nil {
		return map[string]any{}
	}
	return map[string]any{
		"loan_amount":             app.LoanAmount,
		"loan_type":               string(app.LoanType),
		"loan_term_years":         app.LoanTermYears,
		"interest_rate":           app.InterestRate,
		"property_value":          app.PropertyValue,
		"down_payment":            app.DownPayment,
		"points_and_fees":         app.PointsAndFees,
		"annual_income":           app.AnnualIncome,
		"is_first_time_homebuyer": app.FirstTimeBuyer,
		"is_veteran":              app.Veteran,
	}
}

func underwritingVars(uw *contracts.UnderwritingResult) map[string]any {
	if uw == nil {
		return map[string]any{}
	}
	return map[string]any{
		"is_approved":    uw.IsApproved,
		"risk_score":     uw.RiskScore,
		"dti":            uw.Ratios.DTI,
		"ltv":            uw.Ratios.LTV,
		"frontend_ratio": uw.Ratios.FrontendRatio,
	}
}
