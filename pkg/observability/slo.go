package observability

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SLOTarget defines a latency and success objective for one pipeline stage.
type SLOTarget struct {
	SLOID       string        `json:"slo_id"`
	Name        string        `json:"name"`
	Stage       string        `json:"stage"`
	LatencyP99  time.Duration `json:"latency_p99"`
	SuccessRate float64       `json:"success_rate"` // 0-1
	WindowHours int           `json:"window_hours"`
}

// SLOObservation is a single stage execution.
type SLOObservation struct {
	Stage     string        `json:"stage"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// SLOStatus reports current compliance for one stage.
type SLOStatus struct {
	SLOID            string  `json:"slo_id"`
	Stage            string  `json:"stage"`
	CurrentP99       float64 `json:"current_p99_ms"`
	CurrentSuccess   float64 `json:"current_success_rate"`
	InCompliance     bool    `json:"in_compliance"`
	BurnRate         float64 `json:"burn_rate"`         // >1 means burning faster than budget allows
	ErrorBudgetLeft  float64 `json:"error_budget_left"` // percentage remaining
	ObservationCount int     `json:"observation_count"`
}

// SLOTracker monitors stage-level objectives.
type SLOTracker struct {
	mu           sync.Mutex
	targets      map[string]*SLOTarget
	observations map[string][]SLOObservation
	clock        func() time.Time
}

// NewSLOTracker creates a tracker preloaded with the default stage targets.
func NewSLOTracker() *SLOTracker {
	t := &SLOTracker{
		targets:      make(map[string]*SLOTarget),
		observations: make(map[string][]SLOObservation),
		clock:        time.Now,
	}
	for _, target := range DefaultStageTargets() {
		t.targets[target.Stage] = target
	}
	return t
}

// DefaultStageTargets returns the baseline objectives for each pipeline
// stage. Document analysis gets the loosest latency target since it is
// bounded by extraction work rather than pure computation.
func DefaultStageTargets() []*SLOTarget {
	return []*SLOTarget{
		{SLOID: "slo-documents", Name: "Document analysis", Stage: StageDocuments, LatencyP99: 30 * time.Second, SuccessRate: 0.99, WindowHours: 24},
		{SLOID: "slo-underwriting", Name: "Underwriting evaluation", Stage: StageUnderwriting, LatencyP99: 10 * time.Second, SuccessRate: 0.999, WindowHours: 24},
		{SLOID: "slo-compliance", Name: "Compliance checks", Stage: StageCompliance, LatencyP99: 10 * time.Second, SuccessRate: 0.999, WindowHours: 24},
		{SLOID: "slo-notification", Name: "Customer notification", Stage: StageNotification, LatencyP99: 5 * time.Second, SuccessRate: 0.995, WindowHours: 24},
	}
}

// WithClock overrides the clock for testing.
func (t *SLOTracker) WithClock(clock func() time.Time) *SLOTracker {
	t.clock = clock
	return t
}

// SetTarget sets or replaces the objective for a stage.
func (t *SLOTracker) SetTarget(target *SLOTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[target.Stage] = target
}

// Record records one stage execution.
func (t *SLOTracker) Record(obs SLOObservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if obs.Timestamp.IsZero() {
		obs.Timestamp = t.clock()
	}
	t.observations[obs.Stage] = append(t.observations[obs.Stage], obs)
}

// Overview computes current compliance for every stage that has a
// target, ordered by stage name.
func (t *SLOTracker) Overview() []*SLOStatus {
	t.mu.Lock()
	stages := make([]string, 0, len(t.targets))
	for stage := range t.targets {
		stages = append(stages, stage)
	}
	t.mu.Unlock()

	sort.Strings(stages)
	out := make([]*SLOStatus, 0, len(stages))
	for _, stage := range stages {
		status, err := t.Status(stage)
		if err != nil {
			continue
		}
		out = append(out, status)
	}
	return out
}

// Status computes current compliance for a stage.
func (t *SLOTracker) Status(stage string) (*SLOStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	target, ok := t.targets[stage]
	if !ok {
		return nil, fmt.Errorf("no SLO target for stage %q", stage)
	}

	now := t.clock()
	windowStart := now.Add(-time.Duration(target.WindowHours) * time.Hour)

	var windowed []SLOObservation
	for _, obs := range t.observations[stage] {
		if obs.Timestamp.After(windowStart) {
			windowed = append(windowed, obs)
		}
	}

	if len(windowed) == 0 {
		return &SLOStatus{
			SLOID:            target.SLOID,
			Stage:            stage,
			InCompliance:     true,
			ErrorBudgetLeft:  100.0,
			ObservationCount: 0,
		}, nil
	}

	successCount := 0
	latencies := make([]float64, len(windowed))
	for i, obs := range windowed {
		if obs.Success {
			successCount++
		}
		latencies[i] = float64(obs.Latency.Milliseconds())
	}
	successRate := float64(successCount) / float64(len(windowed))

	sort.Float64s(latencies)
	p99Index := int(float64(len(latencies)) * 0.99)
	if p99Index >= len(latencies) {
		p99Index = len(latencies) - 1
	}
	p99 := latencies[p99Index]

	latencyOK := p99 <= float64(target.LatencyP99.Milliseconds())
	successOK := successRate >= target.SuccessRate

	errorBudget := 1.0 - target.SuccessRate
	errorRate := 1.0 - successRate
	var burnRate float64
	budgetLeft := 100.0
	if errorBudget > 0 {
		burnRate = errorRate / errorBudget
		budgetLeft = 100.0 * (1.0 - burnRate)
		if budgetLeft < 0 {
			budgetLeft = 0
		}
	}

	return &SLOStatus{
		SLOID:            target.SLOID,
		Stage:            stage,
		CurrentP99:       p99,
		CurrentSuccess:   successRate,
		InCompliance:     latencyOK && successOK,
		BurnRate:         burnRate,
		ErrorBudgetLeft:  budgetLeft,
		ObservationCount: len(windowed),
	}, nil
}
