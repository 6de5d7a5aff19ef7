package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

func testNotifier() *Notifier {
	return NewNotifier(WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
}

func TestMissingDocumentsNotification(t *testing.T) {
	n := testNotifier()

	docs := &contracts.DocumentAnalysis{
		IsComplete:       false,
		MissingDocuments: []contracts.DocumentType{contracts.DocCreditReport, contracts.DocIdentity},
	}

	note := n.MissingDocuments("APP-2001", docs)
	assert.Equal(t, KindMissingDocuments, note.Kind)
	assert.Equal(t, "APP-2001", note.ApplicationID)
	assert.Contains(t, note.Message, "CREDIT_REPORT, IDENTITY_DOCUMENT")
	require.Len(t, note.DocumentGuide, 2)
	assert.Equal(t, contracts.DocCreditReport, note.DocumentGuide[0].DocumentType)
	assert.Contains(t, note.DocumentGuide[0].Explanation, "credit report")
	assert.Equal(t, submissionSteps, note.DocumentGuide[0].Steps)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), note.Timestamp)
}

func TestMissingDocumentsUnknownTypeGetsGenericExplanation(t *testing.T) {
	n := testNotifier()

	docs := &contracts.DocumentAnalysis{
		MissingDocuments: []contracts.DocumentType{contracts.DocOther},
	}

	note := n.MissingDocuments("APP-2002", docs)
	require.Len(t, note.DocumentGuide, 1)
	assert.Equal(t, genericDocumentExplanation, note.DocumentGuide[0].Explanation)
}

// TestDecisionApproved verifies the approval letter carries the formatted
// rate and loan ceiling plus the condition steps.
func TestDecisionApproved(t *testing.T) {
	n := testNotifier()

	uw := &contracts.UnderwritingResult{
		IsApproved:      true,
		ApprovalType:    contracts.ApprovedWithConditions,
		RecommendedRate: 5.5,
		MaxLoanAmount:   426667.20,
		Conditions:      []string{"Submit updated bank statements before closing"},
	}
	comp := &contracts.ComplianceResult{IsCompliant: true}

	note := n.Decision("APP-2003", uw, comp)
	assert.Equal(t, KindDecision, note.Kind)
	assert.Contains(t, note.Message, "Congratulations")
	assert.Contains(t, note.Message, "5.5%")
	assert.Contains(t, note.Message, "426,667")
	assert.Contains(t, note.NextSteps, "Review and sign your loan documents")
	assert.Contains(t, note.NextSteps, "Satisfy condition: Submit updated bank statements before closing")
}

// TestDecisionRejectedUnderwriting verifies per-criterion guidance appears
// in deterministic order.
func TestDecisionRejectedUnderwriting(t *testing.T) {
	n := testNotifier()

	uw := &contracts.UnderwritingResult{
		IsApproved:   false,
		ApprovalType: contracts.Rejected,
		DecisionFactors: map[string]any{
			"primary_factor":  contracts.FactorFailedCriteria,
			"failed_criteria": []string{contracts.CriterionCreditScore, contracts.CriterionDTI},
		},
		Explanation: "Debt-to-income ratio and credit score below program thresholds.",
	}
	comp := &contracts.ComplianceResult{IsCompliant: true}

	note := n.Decision("APP-2004", uw, comp)
	assert.Contains(t, note.Message, "has not been approved")
	assert.Equal(t, uw.Explanation, note.Explanation)
	require.Len(t, note.NextSteps, 5)
	assert.Equal(t, "Work on reducing your existing debt", note.NextSteps[2])
	assert.Equal(t, "Take steps to improve your credit score", note.NextSteps[3])
	assert.Equal(t, "Schedule a call with a loan officer to discuss options", note.NextSteps[4])
}

// TestDecisionRejectedCompliance verifies compliance-driven rejections point
// at the failing factor groups.
func TestDecisionRejectedCompliance(t *testing.T) {
	n := testNotifier()

	uw := &contracts.UnderwritingResult{IsApproved: true, ApprovalType: contracts.Approved}
	comp := &contracts.ComplianceResult{
		IsCompliant: false,
		Factors: map[string]any{
			"regulatory_limits": []string{"loan amount exceeds conforming loan limit of $726200"},
		},
		Explanation: "The application has compliance issues: loan amount exceeds conforming loan limit of $726200",
	}

	note := n.Decision("APP-2005", uw, comp)
	assert.Contains(t, note.Message, "has not been approved")
	assert.Equal(t, comp.Explanation, note.Explanation)
	assert.Contains(t, note.NextSteps, "Consider a different loan type or amount")
	assert.NotContains(t, note.NextSteps, "Submit all required documentation")
}

func TestStatusNotification(t *testing.T) {
	n := testNotifier()

	app := &contracts.Application{ID: "APP-2006", Status: contracts.StatusIncompleteDocuments}
	note := n.Status(app)
	assert.Equal(t, KindStatus, note.Kind)
	assert.Contains(t, note.Message, "on hold")
	assert.Contains(t, note.Message, "resumes on document receipt")

	app.Status = contracts.ApplicationStatus("ARCHIVED")
	note = n.Status(app)
	assert.Contains(t, note.Message, "ARCHIVED")
}
