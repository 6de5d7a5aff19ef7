package underwriting

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

func TestMonthlyPaymentKnownValue(t *testing.T) {
	// 100k at 6% over 30 years is the textbook 599.55.
	got := monthlyPayment(100000, 6.0, 30)
	assert.InDelta(t, 599.55, got, 0.01)
}

func TestMonthlyPaymentZeroRate(t *testing.T) {
	assert.InDelta(t, 1000.0, monthlyPayment(360000, 0, 30), 0.001)
}

func TestMonthlyPaymentDegenerateInputs(t *testing.T) {
	assert.Zero(t, monthlyPayment(0, 5, 30))
	assert.Zero(t, monthlyPayment(-100, 5, 30))
	assert.Zero(t, monthlyPayment(100000, 5, 0))
}

func TestEstimateMonthlyDebt(t *testing.T) {
	assert.InDelta(t, 300.0, estimateMonthlyDebt(contracts.Debt{Type: contracts.DebtCreditCard, Balance: 10000}), 0.001)
	assert.InDelta(t, monthlyPayment(20000, 5.0, 5), estimateMonthlyDebt(contracts.Debt{Type: contracts.DebtAutoLoan, Balance: 20000}), 0.001)
	assert.InDelta(t, monthlyPayment(40000, 4.0, 10), estimateMonthlyDebt(contracts.Debt{Type: contracts.DebtStudentLoan, Balance: 40000}), 0.001)
	assert.InDelta(t, monthlyPayment(250000, 6.0, 30), estimateMonthlyDebt(contracts.Debt{Type: contracts.DebtMortgage, Balance: 250000}), 0.001)
	assert.InDelta(t, 500.0, estimateMonthlyDebt(contracts.Debt{Type: contracts.DebtOther, Balance: 10000}), 0.001)

	// A declared monthly payment always wins over the estimate.
	assert.InDelta(t, 123.0, estimateMonthlyDebt(contracts.Debt{Type: contracts.DebtCreditCard, Balance: 10000, MonthlyPayment: 123}), 0.001)
}

func TestComputeRatiosZeroIncomeSentinel(t *testing.T) {
	app := &contracts.LoanApplication{
		LoanAmount:    400000,
		LoanTermYears: 30,
		InterestRate:  5.5,
		PropertyValue: 533334,
		AnnualIncome:  0,
	}
	ratios, err := computeRatios(app, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, ratios.DTI, "zero income saturates DTI, never divides")
	assert.Equal(t, 1.0, ratios.FrontendRatio)
	assert.InDelta(t, 0.75, ratios.LTV, 0.001)
}

func TestComputeRatiosMissingFieldsFatal(t *testing.T) {
	_, err := computeRatios(&contracts.LoanApplication{PropertyValue: 500000}, nil)
	assert.ErrorIs(t, err, contracts.ErrValidation)

	_, err = computeRatios(&contracts.LoanApplication{LoanAmount: 400000}, nil)
	assert.ErrorIs(t, err, contracts.ErrValidation)
}

func TestComputeRatios(t *testing.T) {
	app := &contracts.LoanApplication{
		LoanAmount:    400000,
		LoanTermYears: 30,
		InterestRate:  5.5,
		PropertyValue: 533334,
		AnnualIncome:  150000,
	}
	debts := []contracts.Debt{{Type: contracts.DebtCreditCard, Balance: 10000}}

	ratios, err := computeRatios(app, debts)
	require.NoError(t, err)

	assert.InDelta(t, 12500.0, ratios.MonthlyIncome, 0.001)
	assert.InDelta(t, 300.0, ratios.MonthlyDebts, 0.001)
	assert.InDelta(t, 2271.16, ratios.MonthlyPayment, 1.0)
	assert.InDelta(t, (300+ratios.MonthlyPayment)/12500, ratios.DTI, 0.0001)
	assert.InDelta(t, 0.75, ratios.LTV, 0.001)
	// Housing = P&I + flat 1.5%/yr tax+insurance estimate.
	assert.InDelta(t, (ratios.MonthlyPayment+533334*0.015/12)/12500, ratios.FrontendRatio, 0.0001)
}

func TestHousingExpensesDeclaredFiguresOverrideEstimate(t *testing.T) {
	app := &contracts.LoanApplication{
		LoanAmount:      400000,
		LoanTermYears:   30,
		InterestRate:    5.5,
		PropertyValue:   533334,
		AnnualTaxes:     6000,
		AnnualInsurance: 2400,
		MonthlyHOA:      150,
	}
	pi := monthlyPayment(400000, 5.5, 30)
	assert.InDelta(t, pi+700+150, housingExpenses(app), 0.01)
}

func TestRatioProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("DTI never exceeds sentinel when income is non-positive", prop.ForAll(
		func(loan, property, income float64) bool {
			app := &contracts.LoanApplication{
				LoanAmount:    loan,
				LoanTermYears: 30,
				InterestRate:  5.0,
				PropertyValue: property,
				AnnualIncome:  -income,
			}
			ratios, err := computeRatios(app, nil)
			return err == nil && ratios.DTI == 1.0 && ratios.FrontendRatio == 1.0
		},
		gen.Float64Range(1000, 2_000_000),
		gen.Float64Range(1000, 5_000_000),
		gen.Float64Range(0, 1_000_000),
	))

	properties.Property("monthly payment is non-negative", prop.ForAll(
		func(principal, rate float64, years int) bool {
			return monthlyPayment(principal, rate, years) >= 0
		},
		gen.Float64Range(-1000, 2_000_000),
		gen.Float64Range(0, 20),
		gen.IntRange(-5, 40),
	))

	properties.Property("risk score stays within 0..100", prop.ForAll(
		func(dti, ltv, frontend, credit float64) bool {
			criteria := map[string]contracts.CriteriaEvaluation{
				contracts.CriterionDTI:         {Criterion: contracts.CriterionDTI, Value: dti, Threshold: 0.43, Passed: dti <= 0.43, Weight: weightDTI},
				contracts.CriterionLTV:         {Criterion: contracts.CriterionLTV, Value: ltv, Threshold: 0.80, Passed: ltv <= 0.80, Weight: weightLTV},
				contracts.CriterionFrontend:    {Criterion: contracts.CriterionFrontend, Value: frontend, Threshold: 0.28, Passed: frontend <= 0.28, Weight: weightFrontend},
				contracts.CriterionCreditScore: {Criterion: contracts.CriterionCreditScore, Value: credit, Threshold: 640, Passed: credit >= 640, Weight: weightCreditScore},
			}
			score := riskScore(criteria)
			return score >= 0 && score <= 100
		},
		gen.Float64Range(0, 3),
		gen.Float64Range(0, 3),
		gen.Float64Range(0, 3),
		gen.Float64Range(300, 850),
	))

	properties.TestingRun(t)
}
