package contracts

// DebtType classifies an outstanding obligation on a credit report. The
// monthly payment estimate applied during underwriting depends on it.
type DebtType string

const (
	DebtCreditCard  DebtType = "CREDIT_CARD"
	DebtAutoLoan    DebtType = "AUTO_LOAN"
	DebtStudentLoan DebtType = "STUDENT_LOAN"
	DebtMortgage    DebtType = "MORTGAGE"
	DebtOther       DebtType = "OTHER"
)

// Debt is one outstanding obligation from a credit report.
type Debt struct {
	Type           DebtType `json:"type"`
	Balance        float64  `json:"amount"`
	MonthlyPayment float64  `json:"monthly_payment,omitempty"`
}

// DocumentInput is a raw document handed to the document analysis
// collaborator: a type tag plus extracted or uploaded content. Once the
// content is archived to the document vault, ContentHash replaces Content.
type DocumentInput struct {
	Type        DocumentType `json:"document_type"`
	Content     []byte       `json:"content,omitempty"`
	ContentHash string       `json:"content_hash,omitempty"`
	// Fields carries extraction output when the upstream OCR service has
	// already run (the analysis collaborator passes it through).
	Fields *DocumentResult `json:"fields,omitempty"`
}

// DocumentResult is the per-document extraction output. Only the fields
// relevant to the document type are populated.
type DocumentResult struct {
	Type          DocumentType `json:"document_type"`
	Confidence    float64      `json:"confidence"`
	CreditScore   int          `json:"credit_score,omitempty"`
	AnnualIncome  float64      `json:"income_amount,omitempty"`
	PropertyValue float64      `json:"property_value,omitempty"`
	Debts         []Debt       `json:"outstanding_debts,omitempty"`
}

// DocumentAnalysis is the document analysis collaborator's verdict over a
// full submission.
type DocumentAnalysis struct {
	IsComplete        bool                            `json:"is_complete"`
	MissingDocuments  []DocumentType                  `json:"missing_documents,omitempty"`
	DocumentResults   map[DocumentType]DocumentResult `json:"document_results"`
	Inconsistencies   []string                        `json:"inconsistencies,omitempty"`
	Summary           string                          `json:"summary,omitempty"`
	OverallConfidence float64                         `json:"overall_confidence"`
}
