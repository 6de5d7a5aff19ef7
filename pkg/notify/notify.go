// Package notify generates customer-facing notifications: missing-document
// notices, decision letters and status updates. Text is template-based and
// deterministic; amounts and rates are locale-formatted.
package notify

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// Kind labels a notification.
type Kind string

const (
	KindMissingDocuments Kind = "missing_documents"
	KindDecision         Kind = "application_decision"
	KindStatus           Kind = "application_status"
)

// DocumentExplanation pairs a missing document with guidance for the
// applicant.
type DocumentExplanation struct {
	DocumentType contracts.DocumentType `json:"document_type"`
	Explanation  string                 `json:"explanation"`
	Steps        string                 `json:"steps"`
}

// Notification is a customer-facing message plus its structured context.
type Notification struct {
	ApplicationID    string                   `json:"application_id"`
	Kind             Kind                     `json:"kind"`
	Message          string                   `json:"message"`
	Explanation      string                   `json:"explanation,omitempty"`
	MissingDocuments []contracts.DocumentType `json:"missing_documents,omitempty"`
	DocumentGuide    []DocumentExplanation    `json:"document_guide,omitempty"`
	NextSteps        []string                 `json:"next_steps,omitempty"`
	Timestamp        time.Time                `json:"timestamp"`
}

// documentExplanations describe why each document type is required.
var documentExplanations = map[contracts.DocumentType]string{
	contracts.DocIncomeProof:       "Proof of income lets us verify your ability to repay the loan. Recent pay stubs, W-2 forms or tax returns all qualify.",
	contracts.DocCreditReport:      "A credit report is required to review your existing obligations and payment history.",
	contracts.DocPropertyAppraisal: "An independent appraisal establishes the value of the property securing the loan.",
	contracts.DocIdentity:          "A government-issued photo ID is required to verify your identity.",
	contracts.DocBankStatement:     "Bank statements verify your assets and cash reserves.",
	contracts.DocW2Form:            "Your W-2 form verifies employment income reported to the IRS.",
	contracts.DocPayStub:           "Recent pay stubs verify your current employment and income.",
	contracts.DocTaxReturn:         "Tax returns verify your income history, which is especially important for self-employed applicants.",
}

const genericDocumentExplanation = "This document is required to verify information in your mortgage application."
const submissionSteps = "Please upload a clear, complete copy of this document through our secure portal."

// statusSummaries map each lifecycle status to an applicant-facing summary
// and a rough timeline.
var statusSummaries = map[contracts.ApplicationStatus]struct {
	summary  string
	timeline string
}{
	contracts.StatusInitiated:             {"Your application has been received and is queued for document review.", "1-2 business days"},
	contracts.StatusDocumentsProcessed:    {"Your documents have been reviewed and your application is moving to underwriting.", "2-4 business days"},
	contracts.StatusIncompleteDocuments:   {"Your application is on hold until the requested documents are received.", "resumes on document receipt"},
	contracts.StatusDocumentsUpdated:      {"Your updated documents have been received and are being re-reviewed.", "1-2 business days"},
	contracts.StatusUnderwritingCompleted: {"Underwriting is complete and your application is in final compliance review.", "1-2 business days"},
	contracts.StatusComplianceChecked:     {"Compliance review is complete and a final decision is being prepared.", "1 business day"},
	contracts.StatusApproved:              {"Your application has been approved.", "closing within 30 days"},
	contracts.StatusRejectedUnderwriting:  {"Your application was not approved based on the underwriting review.", ""},
	contracts.StatusRejectedCompliance:    {"Your application was not approved due to regulatory requirements.", ""},
	contracts.StatusError:                 {"Your application requires attention from our support team.", ""},
}

// Notifier produces the customer notification for each pipeline outcome.
type Notifier struct {
	printer *message.Printer
	now     func() time.Time
}

type Option func(*Notifier)

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

func NewNotifier(opts ...Option) *Notifier {
	n := &Notifier{
		printer: message.NewPrinter(language.AmericanEnglish),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// MissingDocuments builds the notice sent when a submission is incomplete.
func (n *Notifier) MissingDocuments(applicationID string, docs *contracts.DocumentAnalysis) *Notification {
	var missing []contracts.DocumentType
	if docs != nil {
		missing = docs.MissingDocuments
	}

	names := make([]string, len(missing))
	guide := make([]DocumentExplanation, len(missing))
	for i, d := range missing {
		names[i] = string(d)
		explanation, ok := documentExplanations[d]
		if !ok {
			explanation = genericDocumentExplanation
		}
		guide[i] = DocumentExplanation{
			DocumentType: d,
			Explanation:  explanation,
			Steps:        submissionSteps,
		}
	}

	return &Notification{
		ApplicationID:    applicationID,
		Kind:             KindMissingDocuments,
		Message:          "Your mortgage application requires additional documentation. Please provide the following documents: " + strings.Join(names, ", "),
		MissingDocuments: missing,
		DocumentGuide:    guide,
		Timestamp:        n.now().UTC(),
	}
}

// Decision builds the decision letter from the underwriting and compliance
// outcomes. Approval requires both.
func (n *Notifier) Decision(applicationID string, uw *contracts.UnderwritingResult, comp *contracts.ComplianceResult) *Notification {
	approved := uw != nil && uw.IsApproved && comp != nil && comp.IsCompliant

	note := &Notification{
		ApplicationID: applicationID,
		Kind:          KindDecision,
		Timestamp:     n.now().UTC(),
	}

	if approved {
		note.Message = "Congratulations! Your mortgage application has been approved."
		if uw.RecommendedRate > 0 {
			note.Message += n.printer.Sprintf(" Your recommended interest rate is %v.",
				number.Percent(uw.RecommendedRate/100, number.MaxFractionDigits(2)))
		}
		if uw.MaxLoanAmount > 0 {
			note.Message += n.printer.Sprintf(" Based on your finances you qualify for loans up to %v.",
				currency.Symbol(currency.USD.Amount(uw.MaxLoanAmount)))
		}
		note.NextSteps = approvedNextSteps(uw)
		return note
	}

	note.Message = "We regret to inform you that your mortgage application has not been approved at this time."
	if uw != nil && uw.Explanation != "" {
		note.Explanation = uw.Explanation
	} else if comp != nil && !comp.IsCompliant {
		note.Explanation = comp.Explanation
	}
	note.NextSteps = rejectedNextSteps(uw, comp)
	return note
}

// Status builds the applicant-facing status summary.
func (n *Notifier) Status(app *contracts.Application) *Notification {
	summary, ok := statusSummaries[app.Status]
	if !ok {
		summary.summary = fmt.Sprintf("Your application is currently in %s status.", app.Status)
	}

	msg := summary.summary
	if summary.timeline != "" {
		msg += " Estimated time to next update: " + summary.timeline + "."
	}
	return &Notification{
		ApplicationID: app.ID,
		Kind:          KindStatus,
		Message:       msg,
		Timestamp:     n.now().UTC(),
	}
}

func approvedNextSteps(uw *contracts.UnderwritingResult) []string {
	steps := []string{
		"Review and sign your loan documents",
		"Schedule closing with your loan officer",
		"Prepare for closing costs payment",
	}
	for _, condition := range uw.Conditions {
		steps = append(steps, "Satisfy condition: "+condition)
	}
	return steps
}

func rejectedNextSteps(uw *contracts.UnderwritingResult, comp *contracts.ComplianceResult) []string {
	steps := []string{
		"Review the explanation for the decision",
		"Consider addressing the issues identified",
	}

	if uw != nil && !uw.IsApproved {
		for _, criterion := range failedCriteria(uw) {
			switch criterion {
			case contracts.CriterionDTI:
				steps = append(steps, "Work on reducing your existing debt")
			case contracts.CriterionLTV:
				steps = append(steps, "Consider increasing your down payment")
			case contracts.CriterionCreditScore:
				steps = append(steps, "Take steps to improve your credit score")
			}
		}
	} else if comp != nil && !comp.IsCompliant {
		if _, ok := comp.Factors["missing_documents"]; ok {
			steps = append(steps, "Submit all required documentation")
		}
		if _, ok := comp.Factors["regulatory_limits"]; ok {
			steps = append(steps, "Consider a different loan type or amount")
		}
	}

	return append(steps, "Schedule a call with a loan officer to discuss options")
}

// failedCriteria reads the failed-criteria list from the decision factors,
// in the fixed deterministic order.
func failedCriteria(uw *contracts.UnderwritingResult) []string {
	raw, ok := uw.DecisionFactors["failed_criteria"]
	if !ok {
		return nil
	}
	failed, ok := raw.([]string)
	if !ok {
		return nil
	}

	set := make(map[string]bool, len(failed))
	for _, f := range failed {
		set[f] = true
	}
	var ordered []string
	for _, name := range []string{contracts.CriterionDTI, contracts.CriterionLTV, contracts.CriterionFrontend, contracts.CriterionCreditScore} {
		if set[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}
