package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/fairway-labs/fairway/core/pkg/contracts"
)

// Profiles older than this constraint are rejected at load time. The 1.x
// line is the current threshold schema; a 2.0 profile would carry
// incompatible field semantics and must not be silently accepted.
const profileConstraint = ">= 1.0.0, < 2.0.0"

// LendingProfile is a jurisdiction-specific set of underwriting thresholds
// and regulatory limits, loaded from profile_<code>.yaml.
type LendingProfile struct {
	Name       string                                   `yaml:"name" json:"name"`
	Code       string                                   `yaml:"code" json:"code"`
	Version    string                                   `yaml:"version" json:"version"`
	Thresholds map[contracts.LoanType]LoanThresholds    `yaml:"thresholds" json:"thresholds"`
	BaseRates  map[contracts.LoanType]BaseRates         `yaml:"base_rates" json:"base_rates"`
	Limits     RegulatoryLimits                         `yaml:"regulatory_limits" json:"regulatory_limits"`
}

// LoanThresholds are the deterministic underwriting criteria for one loan type.
type LoanThresholds struct {
	MaxDTI         float64 `yaml:"max_dti" json:"max_dti"`
	MaxLTV         float64 `yaml:"max_ltv" json:"max_ltv"`
	MaxFrontend    float64 `yaml:"max_frontend" json:"max_frontend"`
	MinCreditScore float64 `yaml:"min_credit_score" json:"min_credit_score"`
}

// BaseRates are starting interest rates before risk adjustment, in percent.
type BaseRates struct {
	ThirtyYear float64 `yaml:"thirty_year" json:"thirty_year"`
	Other      float64 `yaml:"other" json:"other"`
}

// RegulatoryLimits hold the compliance-side constants.
type RegulatoryLimits struct {
	ConformingLoanLimit    float64 `yaml:"conforming_loan_limit" json:"conforming_loan_limit"`
	FHALoanLimit           float64 `yaml:"fha_loan_limit" json:"fha_loan_limit"`
	HOEPARateThreshold     float64 `yaml:"hoepa_rate_threshold" json:"hoepa_rate_threshold"`
	QMPointsFeesCap        float64 `yaml:"qm_points_fees_cap" json:"qm_points_fees_cap"`
	DocConfidenceThreshold float64 `yaml:"doc_confidence_threshold" json:"doc_confidence_threshold"`
}

// DefaultProfile returns the built-in US profile used when no profiles
// directory is configured.
func DefaultProfile() *LendingProfile {
	return &LendingProfile{
		Name:    "United States (built-in)",
		Code:    "us",
		Version: "1.0.0",
		Thresholds: map[contracts.LoanType]LoanThresholds{
			contracts.LoanConventional: {MaxDTI: 0.43, MaxLTV: 0.80, MaxFrontend: 0.28, MinCreditScore: 640},
			contracts.LoanFHA:          {MaxDTI: 0.50, MaxLTV: 0.965, MaxFrontend: 0.31, MinCreditScore: 580},
			contracts.LoanVA:           {MaxDTI: 0.60, MaxLTV: 1.0, MaxFrontend: 0.31, MinCreditScore: 580},
		},
		BaseRates: map[contracts.LoanType]BaseRates{
			contracts.LoanConventional: {ThirtyYear: 5.5, Other: 5.0},
			contracts.LoanFHA:          {ThirtyYear: 5.75, Other: 5.25},
			contracts.LoanVA:           {ThirtyYear: 5.25, Other: 4.75},
		},
		Limits: RegulatoryLimits{
			ConformingLoanLimit:    726200,
			FHALoanLimit:           420680,
			HOEPARateThreshold:     10.0,
			QMPointsFeesCap:        0.03,
			DocConfidenceThreshold: 0.7,
		},
	}
}

// ThresholdsFor returns the thresholds for a loan type, falling back to the
// conventional thresholds for unknown types.
func (p *LendingProfile) ThresholdsFor(lt contracts.LoanType) LoanThresholds {
	if t, ok := p.Thresholds[lt]; ok {
		return t
	}
	return p.Thresholds[contracts.LoanConventional]
}

// BaseRateFor returns the base rate for a loan type and term in years.
// Loan types without configured rates get a conservative 6 percent.
func (p *LendingProfile) BaseRateFor(lt contracts.LoanType, termYears int) float64 {
	rates, ok := p.BaseRates[lt]
	if !ok {
		return 6.0
	}
	if termYears == 30 {
		return rates.ThirtyYear
	}
	return rates.Other
}

// LoadProfile loads a lending profile YAML by jurisdiction code from
// profilesDir and validates its schema version.
func LoadProfile(profilesDir, code string) (*LendingProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", code, err)
	}

	var profile LendingProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", code, err)
	}
	if profile.Code == "" {
		profile.Code = code
	}

	if err := profile.validate(); err != nil {
		return nil, fmt.Errorf("profile %q: %w", code, err)
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml from the profiles directory.
func LoadAllProfiles(profilesDir string) (map[string]*LendingProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*LendingProfile, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		code := strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		profile, err := LoadProfile(profilesDir, code)
		if err != nil {
			return nil, err
		}
		profiles[profile.Code] = profile
	}
	return profiles, nil
}

func (p *LendingProfile) validate() error {
	v, err := semver.NewVersion(p.Version)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", p.Version, err)
	}
	c, err := semver.NewConstraint(profileConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("unsupported profile version %s (want %s)", p.Version, profileConstraint)
	}
	if len(p.Thresholds) == 0 {
		return fmt.Errorf("no loan thresholds defined")
	}
	if _, ok := p.Thresholds[contracts.LoanConventional]; !ok {
		return fmt.Errorf("missing %s thresholds (required fallback)", contracts.LoanConventional)
	}
	for lt, t := range p.Thresholds {
		if t.MaxDTI <= 0 || t.MaxLTV <= 0 || t.MaxFrontend <= 0 || t.MinCreditScore <= 0 {
			return fmt.Errorf("thresholds for %s must be positive", lt)
		}
	}
	return nil
}
