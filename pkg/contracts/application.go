// Package contracts defines the shared data model of the Fairway decision
// core: applications, their state records, decisions, and the evaluation
// results exchanged between pipeline stages.
//
// Records defined here are plain structured values. They serialize to JSON
// for persistence and audit export; nothing in this package touches storage.
package contracts

import (
	"encoding/json"
	"time"
)

// ApplicationStatus is the lifecycle state of a mortgage application.
type ApplicationStatus string

const (
	StatusInitiated             ApplicationStatus = "INITIATED"
	StatusDocumentsProcessed    ApplicationStatus = "DOCUMENTS_PROCESSED"
	StatusDocumentsUpdated      ApplicationStatus = "DOCUMENTS_UPDATED"
	StatusIncompleteDocuments   ApplicationStatus = "INCOMPLETE_DOCUMENTS"
	StatusUnderwritingCompleted ApplicationStatus = "UNDERWRITING_COMPLETED"
	StatusComplianceChecked     ApplicationStatus = "COMPLIANCE_CHECKED"
	StatusApproved              ApplicationStatus = "APPROVED"
	StatusRejectedUnderwriting  ApplicationStatus = "REJECTED_UNDERWRITING"
	StatusRejectedCompliance    ApplicationStatus = "REJECTED_COMPLIANCE"
	StatusError                 ApplicationStatus = "ERROR"
)

// statusGraph lists the legal forward transitions for each status.
// ERROR is reachable from every non-terminal status and is terminal itself.
var statusGraph = map[ApplicationStatus][]ApplicationStatus{
	StatusInitiated: {
		StatusDocumentsProcessed,
	},
	StatusDocumentsProcessed: {
		StatusIncompleteDocuments,
		StatusUnderwritingCompleted,
	},
	StatusIncompleteDocuments: {
		StatusDocumentsUpdated,
	},
	StatusDocumentsUpdated: {
		StatusDocumentsProcessed,
		StatusUnderwritingCompleted,
	},
	StatusUnderwritingCompleted: {
		StatusComplianceChecked,
	},
	StatusComplianceChecked: {
		StatusApproved,
		StatusRejectedUnderwriting,
		StatusRejectedCompliance,
	},
}

// Terminal reports whether no further processing happens in this status.
func (s ApplicationStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejectedUnderwriting, StatusRejectedCompliance, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether from → to is a legal status transition.
func CanTransition(from, to ApplicationStatus) bool {
	if to == StatusError {
		return !from.Terminal()
	}
	for _, next := range statusGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LoanType selects the underwriting threshold table and regulatory limits.
type LoanType string

const (
	LoanConventional LoanType = "CONVENTIONAL"
	LoanFHA          LoanType = "FHA"
	LoanVA           LoanType = "VA"
	LoanJumbo        LoanType = "JUMBO"
)

// DocumentType identifies a submitted document.
type DocumentType string

const (
	DocW2Form            DocumentType = "W2_FORM"
	DocPayStub           DocumentType = "PAY_STUB"
	DocBankStatement     DocumentType = "BANK_STATEMENT"
	DocTaxReturn         DocumentType = "TAX_RETURN"
	DocCreditReport      DocumentType = "CREDIT_REPORT"
	DocIncomeProof       DocumentType = "INCOME_VERIFICATION"
	DocPropertyAppraisal DocumentType = "PROPERTY_APPRAISAL"
	DocIdentity          DocumentType = "IDENTITY_DOCUMENT"
	DocOther             DocumentType = "OTHER"
)

// Disclosure records whether a required disclosure was provided to the
// applicant and when.
type Disclosure struct {
	Provided     bool   `json:"provided"`
	DateProvided string `json:"date_provided,omitempty"`
}

// LoanApplication is the applicant-supplied core of an application. Values
// that can also be established from documents (credit score, property value)
// are optional here; evaluators prefer the application field and fall back
// to document extraction.
type LoanApplication struct {
	LoanAmount      float64               `json:"loan_amount"`
	LoanTermYears   int                   `json:"loan_term_years"`
	InterestRate    float64               `json:"interest_rate"` // annual, percent
	LoanType        LoanType              `json:"loan_type"`
	PropertyValue   float64               `json:"property_value,omitempty"`
	PropertyType    string                `json:"property_type,omitempty"`
	CreditScore     int                   `json:"credit_score,omitempty"`
	AnnualIncome    float64               `json:"annual_income,omitempty"`
	DownPayment     float64               `json:"down_payment,omitempty"`
	PointsAndFees   float64               `json:"points_and_fees,omitempty"`
	AnnualTaxes     float64               `json:"property_taxes,omitempty"`
	AnnualInsurance float64               `json:"insurance,omitempty"`
	MonthlyHOA      float64               `json:"hoa_fees,omitempty"`
	FirstTimeBuyer  bool                  `json:"is_first_time_homebuyer,omitempty"`
	Veteran         bool                  `json:"is_veteran,omitempty"`
	Disclosures     map[string]Disclosure `json:"disclosures,omitempty"`
	ApplicationDate string                `json:"application_date,omitempty"`
}

// HistoryEntry is one append-only status change on an application.
type HistoryEntry struct {
	Status    ApplicationStatus `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Note      string            `json:"note,omitempty"`
}

// Application is the durable per-application state record. It is owned by
// the state store; pipeline stages never mutate it directly. Context holds
// each stage's output keyed by stage name; History is append-only and
// ordered by update sequence.
type Application struct {
	ID          string                     `json:"application_id"`
	Status      ApplicationStatus          `json:"status"`
	Context     map[string]json.RawMessage `json:"context"`
	History     []HistoryEntry             `json:"history"`
	LastUpdated time.Time                  `json:"last_updated"`
}

// Clone returns a deep copy so callers can hand state out without aliasing
// the store's record.
func (a *Application) Clone() *Application {
	cp := *a
	cp.Context = make(map[string]json.RawMessage, len(a.Context))
	for k, v := range a.Context {
		buf := make(json.RawMessage, len(v))
		copy(buf, v)
		cp.Context[k] = buf
	}
	cp.History = make([]HistoryEntry, len(a.History))
	copy(cp.History, a.History)
	return &cp
}
