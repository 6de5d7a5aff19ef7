package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// StatusReport is the applicant-facing view of an application's progress.
type StatusReport struct {
	ApplicationID        string                      `json:"application_id"`
	Status               contracts.ApplicationStatus `json:"status"`
	CurrentStage         string                      `json:"current_stage"`
	Explanation          string                      `json:"status_explanation"`
	PendingItems         []string                    `json:"pending_items,omitempty"`
	EstimatedCompletion  string                      `json:"estimated_completion"`
	MissingDocuments     []contracts.DocumentType    `json:"missing_documents,omitempty"`
	UnderwritingApproved *bool                       `json:"underwriting_approved,omitempty"`
	ComplianceApproved   *bool                       `json:"compliance_approved,omitempty"`
	History              []contracts.HistoryEntry    `json:"history"`
	LastUpdated          time.Time                   `json:"last_updated"`
}

var stageNames = map[contracts.ApplicationStatus]string{
	contracts.StatusInitiated:             "Application Initiated",
	contracts.StatusDocumentsProcessed:    "Document Review",
	contracts.StatusDocumentsUpdated:      "Document Review",
	contracts.StatusIncompleteDocuments:   "Awaiting Documents",
	contracts.StatusUnderwritingCompleted: "Underwriting",
	contracts.StatusComplianceChecked:     "Compliance Review",
	contracts.StatusApproved:              "Application Approved",
	contracts.StatusRejectedUnderwriting:  "Application Rejected",
	contracts.StatusRejectedCompliance:    "Application Rejected",
	contracts.StatusError:                 "Processing Error",
}

var completionEstimates = map[contracts.ApplicationStatus]string{
	contracts.StatusInitiated:             "7-10 business days",
	contracts.StatusDocumentsProcessed:    "5-7 business days",
	contracts.StatusDocumentsUpdated:      "5-7 business days",
	contracts.StatusIncompleteDocuments:   "resumes on document receipt",
	contracts.StatusUnderwritingCompleted: "3-5 business days",
	contracts.StatusComplianceChecked:     "1-2 business days",
	contracts.StatusApproved:              "Processing complete",
	contracts.StatusRejectedUnderwriting:  "Processing complete",
	contracts.StatusRejectedCompliance:    "Processing complete",
}

// Status reports the current stage, pending items and an estimated
// completion window for an application.
func (o *Orchestrator) Status(ctx context.Context, applicationID string) (*StatusReport, error) {
	app, err := o.state.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		ApplicationID:       app.ID,
		Status:              app.Status,
		CurrentStage:        stageName(app.Status),
		Explanation:         statusExplanation(app),
		EstimatedCompletion: completionEstimate(app.Status),
		History:             app.History,
		LastUpdated:         app.LastUpdated,
	}

	analysis, _ := decodeContext[contracts.DocumentAnalysis](app, ContextKeyAnalysis)
	uw, _ := decodeContext[contracts.UnderwritingResult](app, ContextKeyUnderwriting)
	comp, _ := decodeContext[contracts.ComplianceResult](app, ContextKeyCompliance)

	switch app.Status {
	case contracts.StatusDocumentsProcessed, contracts.StatusIncompleteDocuments, contracts.StatusDocumentsUpdated:
		if analysis != nil {
			report.MissingDocuments = analysis.MissingDocuments
		}
	case contracts.StatusUnderwritingCompleted, contracts.StatusComplianceChecked,
		contracts.StatusApproved, contracts.StatusRejectedUnderwriting, contracts.StatusRejectedCompliance:
		if uw != nil {
			report.UnderwritingApproved = &uw.IsApproved
		}
		if comp != nil {
			report.ComplianceApproved = &comp.IsCompliant
		}
	}

	report.PendingItems = pendingItems(app.Status, analysis, uw, comp)
	return report, nil
}

func stageName(status contracts.ApplicationStatus) string {
	if name, ok := stageNames[status]; ok {
		return name
	}
	return "Processing"
}

func completionEstimate(status contracts.ApplicationStatus) string {
	if estimate, ok := completionEstimates[status]; ok {
		return estimate
	}
	return "7-10 business days"
}

func statusExplanation(app *contracts.Application) string {
	switch app.Status {
	case contracts.StatusInitiated:
		return "Your application has been received and is awaiting document review."
	case contracts.StatusDocumentsProcessed:
		return "Your documents have been processed and are now being reviewed."
	case contracts.StatusIncompleteDocuments:
		return "We're reviewing your documents and found that some required documents are missing."
	case contracts.StatusDocumentsUpdated:
		return "Your updated documents have been received and are being processed."
	case contracts.StatusUnderwritingCompleted:
		if uw, _ := decodeContext[contracts.UnderwritingResult](app, ContextKeyUnderwriting); uw != nil && uw.IsApproved {
			return "Your application has passed underwriting review and is now in compliance review."
		}
		return "Your application has been reviewed by underwriting and requires additional evaluation."
	case contracts.StatusComplianceChecked:
		if comp, _ := decodeContext[contracts.ComplianceResult](app, ContextKeyCompliance); comp != nil && comp.IsCompliant {
			return "Your application has passed compliance review and is now in final decision stage."
		}
		return "Your application has been reviewed for compliance and requires additional evaluation."
	case contracts.StatusApproved:
		return "Congratulations! Your mortgage application has been approved."
	case contracts.StatusRejectedUnderwriting:
		return "We're sorry, but your application did not meet our underwriting criteria."
	case contracts.StatusRejectedCompliance:
		return "We're sorry, but your application could not proceed due to compliance requirements."
	case contracts.StatusError:
		return "There was an error processing your application. Our team has been notified."
	default:
		return "Your application is being processed. Thank you for your patience."
	}
}

func pendingItems(status contracts.ApplicationStatus, analysis *contracts.DocumentAnalysis, uw *contracts.UnderwritingResult, comp *contracts.ComplianceResult) []string {
	var items []string
	switch status {
	case contracts.StatusInitiated:
		items = append(items, "Initial document review", "Underwriting evaluation", "Compliance check")

	case contracts.StatusDocumentsProcessed, contracts.StatusIncompleteDocuments, contracts.StatusDocumentsUpdated:
		if analysis != nil {
			for _, doc := range analysis.MissingDocuments {
				items = append(items, fmt.Sprintf("Submit %s document", doc))
			}
		}
		items = append(items, "Underwriting evaluation", "Compliance check")

	case contracts.StatusUnderwritingCompleted:
		if uw != nil {
			for _, condition := range uw.Conditions {
				items = append(items, "Satisfy condition: "+condition)
			}
		}
		items = append(items, "Compliance check")

	case contracts.StatusComplianceChecked:
		if comp != nil {
			items = append(items, comp.RequiredActions...)
		}
		items = append(items, "Final decision")

	case contracts.StatusApproved:
		items = append(items, "Sign loan documents", "Schedule closing")
	}
	return items
}
