// Package docanalysis implements the document analysis collaborator: it
// consolidates per-document extraction results, identifies missing required
// documents and cross-document inconsistencies, and stores raw document
// content in a content-addressed vault.
package docanalysis

import (
	"context"
	"fmt"
	"math"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// Analyzer consolidates submitted documents into a single analysis.
type Analyzer interface {
	Analyze(ctx context.Context, applicationID string, docs []contracts.DocumentInput) (*contracts.DocumentAnalysis, error)
}

// Required document types for every mortgage application. Income
// verification is satisfied by any income-bearing document.
var requiredDocuments = []contracts.DocumentType{
	contracts.DocIncomeProof,
	contracts.DocCreditReport,
	contracts.DocPropertyAppraisal,
	contracts.DocIdentity,
}

// incomeDocuments satisfy the INCOME_VERIFICATION requirement.
var incomeDocuments = map[contracts.DocumentType]bool{
	contracts.DocIncomeProof: true,
	contracts.DocW2Form:      true,
	contracts.DocPayStub:     true,
	contracts.DocTaxReturn:   true,
}

// RuleAnalyzer is the deterministic analyzer. Extraction itself is an
// external concern: documents arrive with pre-extracted fields, and the
// analyzer's job is consolidation, completeness and consistency.
type RuleAnalyzer struct {
	// DefaultConfidence is assigned to documents submitted without
	// extraction results.
	DefaultConfidence float64
}

func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{DefaultConfidence: 0.5}
}

func (a *RuleAnalyzer) Analyze(ctx context.Context, applicationID string, docs []contracts.DocumentInput) (*contracts.DocumentAnalysis, error) {
	if applicationID == "" {
		return nil, contracts.NewValidationError("document analysis requires an application id")
	}
	if len(docs) == 0 {
		return &contracts.DocumentAnalysis{
			IsComplete:       false,
			MissingDocuments: append([]contracts.DocumentType(nil), requiredDocuments...),
			Summary:          "no documents provided",
		}, nil
	}

	results := make(map[contracts.DocumentType]contracts.DocumentResult, len(docs))
	var confidenceSum float64
	for _, doc := range docs {
		r := a.analyzeOne(doc)
		// Later submissions of the same document type supersede earlier ones.
		results[doc.Type] = r
		confidenceSum += r.Confidence
	}

	missing := missingDocuments(results)
	inconsistencies := findInconsistencies(results)

	return &contracts.DocumentAnalysis{
		IsComplete:        len(missing) == 0,
		MissingDocuments:  missing,
		DocumentResults:   results,
		Inconsistencies:   inconsistencies,
		Summary:           fmt.Sprintf("%d documents analyzed, %d missing, %d inconsistencies", len(results), len(missing), len(inconsistencies)),
		OverallConfidence: confidenceSum / float64(len(docs)),
	}, nil
}

func (a *RuleAnalyzer) analyzeOne(doc contracts.DocumentInput) contracts.DocumentResult {
	if doc.Fields != nil {
		r := *doc.Fields
		r.Type = doc.Type
		if r.Confidence == 0 {
			r.Confidence = a.DefaultConfidence
		}
		return r
	}
	return contracts.DocumentResult{Type: doc.Type, Confidence: a.DefaultConfidence}
}

func missingDocuments(results map[contracts.DocumentType]contracts.DocumentResult) []contracts.DocumentType {
	var missing []contracts.DocumentType
	for _, req := range requiredDocuments {
		if req == contracts.DocIncomeProof {
			if !hasIncomeDocument(results) {
				missing = append(missing, req)
			}
			continue
		}
		if _, ok := results[req]; !ok {
			missing = append(missing, req)
		}
	}
	return missing
}

func hasIncomeDocument(results map[contracts.DocumentType]contracts.DocumentResult) bool {
	for dt := range results {
		if incomeDocuments[dt] {
			return true
		}
	}
	return false
}

// findInconsistencies flags material disagreement between documents that
// report the same financial fact. Income and property value tolerate a 5%
// spread; credit scores must agree exactly.
func findInconsistencies(results map[contracts.DocumentType]contracts.DocumentResult) []string {
	var out []string
	if disagree(results, func(r contracts.DocumentResult) float64 { return r.AnnualIncome }, 0.05) {
		out = append(out, "reported annual income differs across documents")
	}
	if disagree(results, func(r contracts.DocumentResult) float64 { return r.PropertyValue }, 0.05) {
		out = append(out, "reported property value differs across documents")
	}
	if disagree(results, func(r contracts.DocumentResult) float64 { return float64(r.CreditScore) }, 0) {
		out = append(out, "reported credit score differs across documents")
	}
	return out
}

func disagree(results map[contracts.DocumentType]contracts.DocumentResult, field func(contracts.DocumentResult) float64, tolerance float64) bool {
	var values []float64
	for _, r := range results {
		if v := field(r); v > 0 {
			values = append(values, v)
		}
	}
	for i := 1; i < len(values); i++ {
		base := math.Max(values[0], values[i])
		if math.Abs(values[0]-values[i]) > base*tolerance {
			return true
		}
	}
	return false
}
