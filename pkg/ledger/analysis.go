package ledger

import (
	"sort"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// AuditTrail is the complete decision history of one application: every
// entry oldest-first, the same entries grouped by decision type newest-first,
// and the latest decision of each type.
type AuditTrail struct {
	ApplicationID string                             `json:"application_id"`
	Entries       []Entry                            `json:"entries"`
	ByType        map[contracts.DecisionType][]Entry `json:"by_type"`
	Final         map[contracts.DecisionType]Entry   `json:"final_decisions"`
	Counts        map[contracts.DecisionType]int     `json:"counts"`
	ChainIntact   bool                               `json:"chain_intact"`
}

// AuditTrail returns the decision history for an application together with
// the by-type groupings and a chain integrity verdict.
func (l *Ledger) AuditTrail(applicationID string) AuditTrail {
	newest := l.Decisions(applicationID)

	// Decisions() is newest-first; the flat trail reads oldest-first while
	// the groupings keep the newest decision of each type at the front.
	entries := make([]Entry, len(newest))
	byType := make(map[contracts.DecisionType][]Entry)
	final := make(map[contracts.DecisionType]Entry)
	counts := make(map[contracts.DecisionType]int)
	for i, e := range newest {
		entries[len(newest)-1-i] = e
		dt := e.Decision.DecisionType
		byType[dt] = append(byType[dt], e)
		if _, ok := final[dt]; !ok {
			final[dt] = e
		}
		counts[dt]++
	}

	intact, _ := l.Verify()
	return AuditTrail{
		ApplicationID: applicationID,
		Entries:       entries,
		ByType:        byType,
		Final:         final,
		Counts:        counts,
		ChainIntact:   intact,
	}
}

// FactorStats aggregates how one decision factor correlated with outcomes
// across an application's decisions of one type.
type FactorStats struct {
	Factor      string `json:"factor"`
	Occurrences int    `json:"occurrences"`
	Approvals   int    `json:"approvals"`
	Rejections  int    `json:"rejections"`
	// Impact is (approvals - rejections) / occurrences, in [-1, 1].
	// Positive factors accompany approvals, negative ones rejections.
	Impact float64 `json:"impact"`
}

// FactorAnalysis is the factor breakdown for one application, keyed by
// decision type.
type FactorAnalysis struct {
	ApplicationID string                                   `json:"application_id"`
	ByType        map[contracts.DecisionType][]FactorStats `json:"by_type"`
}

// AnalyzeFactors aggregates the decision factors recorded for an
// application, per decision type, each sorted by impact descending then
// factor name.
func (l *Ledger) AnalyzeFactors(applicationID string) FactorAnalysis {
	l.mu.RLock()
	grouped := make(map[contracts.DecisionType]map[string]*FactorStats)
	for _, idx := range l.byApp[applicationID] {
		e := l.entries[idx]
		dt := e.Decision.DecisionType
		stats, ok := grouped[dt]
		if !ok {
			stats = make(map[string]*FactorStats)
			grouped[dt] = stats
		}
		for factor := range e.Decision.Factors {
			s, ok := stats[factor]
			if !ok {
				s = &FactorStats{Factor: factor}
				stats[factor] = s
			}
			s.Occurrences++
			if e.Decision.Outcome {
				s.Approvals++
			} else {
				s.Rejections++
			}
		}
	}
	l.mu.RUnlock()

	byType := make(map[contracts.DecisionType][]FactorStats, len(grouped))
	for dt, stats := range grouped {
		out := make([]FactorStats, 0, len(stats))
		for _, s := range stats {
			s.Impact = float64(s.Approvals-s.Rejections) / float64(s.Occurrences)
			out = append(out, *s)
		}
		sort.Slice(out, func(i, j int) bool {
			if out[i].Impact != out[j].Impact {
				return out[i].Impact > out[j].Impact
			}
			return out[i].Factor < out[j].Factor
		})
		byType[dt] = out
	}

	return FactorAnalysis{ApplicationID: applicationID, ByType: byType}
}
