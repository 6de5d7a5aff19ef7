package underwriting

import (
	"math"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// taxInsuranceRate is the flat annual tax+insurance estimate applied when
// the application does not declare its own figures: 1.5% of property value
// per year.
const taxInsuranceRate = 0.015

// monthlyPayment computes the standard annuity payment for a principal at
// an annual rate (percent) over a term in years. Zero or negative rates
// amortize linearly.
func monthlyPayment(principal, annualRate float64, termYears int) float64 {
	if principal <= 0 || termYears <= 0 {
		return 0
	}
	n := float64(termYears * 12)
	r := (annualRate / 100) / 12
	if r <= 0 {
		return principal / n
	}
	factor := math.Pow(1+r, n)
	return principal * (r * factor) / (factor - 1)
}

// estimateMonthlyDebt estimates the monthly obligation for one reported
// debt. A declared monthly payment always wins; otherwise the estimate
// depends on the debt type.
func estimateMonthlyDebt(d contracts.Debt) float64 {
	if d.MonthlyPayment > 0 {
		return d.MonthlyPayment
	}
	switch d.Type {
	case contracts.DebtCreditCard:
		// Minimum payment approximation: 3% of balance.
		return d.Balance * 0.03
	case contracts.DebtAutoLoan:
		return monthlyPayment(d.Balance, 5.0, 5)
	case contracts.DebtStudentLoan:
		return monthlyPayment(d.Balance, 4.0, 10)
	case contracts.DebtMortgage:
		return monthlyPayment(d.Balance, 6.0, 30)
	default:
		return d.Balance * 0.05
	}
}

// totalMonthlyDebts sums estimated monthly payments over all reported debts.
func totalMonthlyDebts(debts []contracts.Debt) float64 {
	var total float64
	for _, d := range debts {
		total += estimateMonthlyDebt(d)
	}
	return total
}

// housingExpenses estimates monthly PITI: amortized principal+interest plus
// taxes, insurance and HOA dues. Declared annual taxes/insurance override
// the flat estimate.
func housingExpenses(app *contracts.LoanApplication) float64 {
	pi := monthlyPayment(app.LoanAmount, app.InterestRate, app.LoanTermYears)

	taxIns := app.PropertyValue * taxInsuranceRate / 12
	if app.AnnualTaxes > 0 || app.AnnualInsurance > 0 {
		taxIns = (app.AnnualTaxes + app.AnnualInsurance) / 12
	}
	return pi + taxIns + app.MonthlyHOA
}

// computeRatios derives the three underwriting ratios. Income of zero or
// less never divides: DTI and the frontend ratio saturate at the 1.0
// sentinel. Missing loan amount or property value is a validation failure
// because LTV is undefined without them.
func computeRatios(app *contracts.LoanApplication, debts []contracts.Debt) (contracts.FinancialRatios, error) {
	if app.LoanAmount <= 0 {
		return contracts.FinancialRatios{}, contracts.NewValidationError("loan amount must be positive")
	}
	if app.PropertyValue <= 0 {
		return contracts.FinancialRatios{}, contracts.NewValidationError("property value must be positive")
	}

	monthlyIncome := app.AnnualIncome / 12
	monthlyDebts := totalMonthlyDebts(debts)
	payment := monthlyPayment(app.LoanAmount, app.InterestRate, app.LoanTermYears)
	housing := housingExpenses(app)

	dti, frontend := 1.0, 1.0
	if monthlyIncome > 0 {
		dti = (monthlyDebts + payment) / monthlyIncome
		frontend = housing / monthlyIncome
	}

	return contracts.FinancialRatios{
		DTI:            dti,
		LTV:            app.LoanAmount / app.PropertyValue,
		FrontendRatio:  frontend,
		MonthlyIncome:  monthlyIncome,
		MonthlyDebts:   monthlyDebts,
		MonthlyPayment: payment,
		HousingExpense: housing,
	}, nil
}
