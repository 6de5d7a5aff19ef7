package docanalysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

func doc(dt contracts.DocumentType, fields *contracts.DocumentResult) contracts.DocumentInput {
	return contracts.DocumentInput{Type: dt, Fields: fields}
}

func completeDocs() []contracts.DocumentInput {
	return []contracts.DocumentInput{
		doc(contracts.DocW2Form, &contracts.DocumentResult{Confidence: 0.95, AnnualIncome: 150000}),
		doc(contracts.DocCreditReport, &contracts.DocumentResult{Confidence: 0.9, CreditScore: 760}),
		doc(contracts.DocPropertyAppraisal, &contracts.DocumentResult{Confidence: 0.85, PropertyValue: 533333}),
		doc(contracts.DocIdentity, &contracts.DocumentResult{Confidence: 0.9}),
	}
}

func TestAnalyzeCompleteSubmission(t *testing.T) {
	a := NewRuleAnalyzer()
	res, err := a.Analyze(context.Background(), "app-1", completeDocs())
	require.NoError(t, err)

	assert.True(t, res.IsComplete)
	assert.Empty(t, res.MissingDocuments)
	assert.Empty(t, res.Inconsistencies)
	assert.InDelta(t, 0.9, res.OverallConfidence, 0.001)
	assert.Len(t, res.DocumentResults, 4)
}

func TestAnalyzeMissingCreditReport(t *testing.T) {
	a := NewRuleAnalyzer()
	docs := []contracts.DocumentInput{
		doc(contracts.DocW2Form, &contracts.DocumentResult{Confidence: 0.95, AnnualIncome: 150000}),
		doc(contracts.DocPropertyAppraisal, &contracts.DocumentResult{Confidence: 0.85, PropertyValue: 533333}),
		doc(contracts.DocIdentity, &contracts.DocumentResult{Confidence: 0.9}),
	}
	res, err := a.Analyze(context.Background(), "app-1", docs)
	require.NoError(t, err)

	assert.False(t, res.IsComplete)
	assert.Equal(t, []contracts.DocumentType{contracts.DocCreditReport}, res.MissingDocuments)
}

func TestAnalyzeIncomeSatisfiedByAnyIncomeDocument(t *testing.T) {
	a := NewRuleAnalyzer()
	docs := []contracts.DocumentInput{
		doc(contracts.DocPayStub, &contracts.DocumentResult{Confidence: 0.8, AnnualIncome: 90000}),
		doc(contracts.DocCreditReport, &contracts.DocumentResult{Confidence: 0.9, CreditScore: 700}),
		doc(contracts.DocPropertyAppraisal, &contracts.DocumentResult{Confidence: 0.85, PropertyValue: 400000}),
		doc(contracts.DocIdentity, &contracts.DocumentResult{Confidence: 0.9}),
	}
	res, err := a.Analyze(context.Background(), "app-1", docs)
	require.NoError(t, err)
	assert.True(t, res.IsComplete)
}

func TestAnalyzeNoDocuments(t *testing.T) {
	a := NewRuleAnalyzer()
	res, err := a.Analyze(context.Background(), "app-1", nil)
	require.NoError(t, err)

	assert.False(t, res.IsComplete)
	assert.Len(t, res.MissingDocuments, 4)
	assert.Zero(t, res.OverallConfidence)
}

func TestAnalyzeRequiresApplicationID(t *testing.T) {
	a := NewRuleAnalyzer()
	_, err := a.Analyze(context.Background(), "", completeDocs())
	assert.ErrorIs(t, err, contracts.ErrValidation)
}

func TestAnalyzeFlagsIncomeInconsistency(t *testing.T) {
	a := NewRuleAnalyzer()
	docs := []contracts.DocumentInput{
		doc(contracts.DocW2Form, &contracts.DocumentResult{Confidence: 0.95, AnnualIncome: 150000}),
		doc(contracts.DocTaxReturn, &contracts.DocumentResult{Confidence: 0.9, AnnualIncome: 95000}),
		doc(contracts.DocCreditReport, &contracts.DocumentResult{Confidence: 0.9, CreditScore: 760}),
		doc(contracts.DocPropertyAppraisal, &contracts.DocumentResult{Confidence: 0.85, PropertyValue: 533333}),
		doc(contracts.DocIdentity, &contracts.DocumentResult{Confidence: 0.9}),
	}
	res, err := a.Analyze(context.Background(), "app-1", docs)
	require.NoError(t, err)
	assert.Contains(t, res.Inconsistencies, "reported annual income differs across documents")
}

func TestAnalyzeDefaultConfidence(t *testing.T) {
	a := NewRuleAnalyzer()
	res, err := a.Analyze(context.Background(), "app-1", []contracts.DocumentInput{
		{Type: contracts.DocIdentity, Content: []byte("scan")},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.DocumentResults[contracts.DocIdentity].Confidence)
}

func TestMemoryVaultRoundtrip(t *testing.T) {
	v := NewMemoryVault()
	ctx := context.Background()

	hash, err := v.Store(ctx, []byte("w2 content"))
	require.NoError(t, err)
	assert.Contains(t, hash, "sha256:")

	// Idempotent store.
	hash2, err := v.Store(ctx, []byte("w2 content"))
	require.NoError(t, err)
	assert.Equal(t, hash, hash2)

	data, err := v.Retrieve(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("w2 content"), data)

	_, err = v.Retrieve(ctx, "sha256:missing")
	assert.Error(t, err)
}
