package observability

import "go.opentelemetry.io/otel/attribute"

// Domain attribute keys used on spans and metrics. Keep the set small:
// high-cardinality values (amounts, free text) never become attributes.
const (
	AttrApplicationID   = attribute.Key("fairway.application.id")
	AttrStage           = attribute.Key("fairway.stage")
	AttrStatus          = attribute.Key("fairway.application.status")
	AttrLoanType        = attribute.Key("fairway.loan.type")
	AttrDecisionType    = attribute.Key("fairway.decision.type")
	AttrDecisionOutcome = attribute.Key("fairway.decision.outcome")
	AttrRiskLevel       = attribute.Key("fairway.risk.level")
	AttrDocumentType    = attribute.Key("fairway.document.type")
)

// Pipeline stage names as they appear in spans and SLO tracking.
const (
	StageDocuments    = "documents"
	StageUnderwriting = "underwriting"
	StageCompliance   = "compliance"
	StageNotification = "notification"
)
