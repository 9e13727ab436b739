package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MatchingConfig controls how a cycle builds and solves the graph.
// Values come from MATCH_* env vars and may be overridden by a YAML
// policy file (MATCH_POLICY_FILE).
type MatchingConfig struct {
	// Strategy: blossom or greedy
	Strategy string `yaml:"strategy" validate:"oneof=blossom greedy"`

	// Drought handling
	DroughtPrePass      bool          `yaml:"drought_prepass"`
	DroughtWindowCycles int           `yaml:"drought_window_cycles" validate:"gte=1,lte=52"`
	CycleLength         time.Duration `yaml:"cycle_length" validate:"gt=0"`

	// CohortFilter only allows pairs from the same cohort.
	CohortFilter bool `yaml:"cohort_filter"`

	// Local swap optimizer after the solver
	OptimizerEnabled   bool `yaml:"optimizer_enabled"`
	OptimizerMaxPasses int  `yaml:"optimizer_max_passes" validate:"gte=0,lte=100"`

	// Minimum eligible population for a run to proceed
	MinPopulation int `yaml:"min_population" validate:"gte=2"`

	// Runs stuck in processing longer than this are marked failed
	StaleRunAfter time.Duration `yaml:"stale_run_after" validate:"gt=0"`

	// Distributed lock TTL (Redis)
	LockTTL time.Duration `yaml:"lock_ttl" validate:"gt=0"`

	// Notify candidates that were not matched
	NotifyUnmatched bool `yaml:"notify_unmatched"`
}

func loadMatchingConfig() MatchingConfig {
	return MatchingConfig{
		Strategy:            strings.ToLower(getEnv("MATCH_STRATEGY", "blossom")),
		DroughtPrePass:      getEnvBool("MATCH_DROUGHT_PREPASS", true),
		DroughtWindowCycles: getEnvInt("MATCH_DROUGHT_WINDOW_CYCLES", 5),
		CycleLength:         getEnvDuration("MATCH_CYCLE_LENGTH", 168*time.Hour),
		CohortFilter:        getEnvBool("MATCH_COHORT_FILTER", false),
		OptimizerEnabled:    getEnvBool("MATCH_OPTIMIZER_ENABLED", true),
		OptimizerMaxPasses:  getEnvInt("MATCH_OPTIMIZER_MAX_PASSES", 10),
		MinPopulation:       getEnvInt("MATCH_MIN_POPULATION", 2),
		StaleRunAfter:       getEnvDuration("MATCH_STALE_RUN_AFTER", 2*time.Hour),
		LockTTL:             getEnvDuration("MATCH_LOCK_TTL", 15*time.Minute),
		NotifyUnmatched:     getEnvBool("MATCH_NOTIFY_UNMATCHED", true),
	}
}

// policyFile mirrors MatchingConfig with pointer fields so that only keys
// present in the file override env values.
type policyFile struct {
	Strategy            *string `yaml:"strategy"`
	DroughtPrePass      *bool   `yaml:"drought_prepass"`
	DroughtWindowCycles *int    `yaml:"drought_window_cycles"`
	CycleLength         *string `yaml:"cycle_length"`
	CohortFilter        *bool   `yaml:"cohort_filter"`
	OptimizerEnabled    *bool   `yaml:"optimizer_enabled"`
	OptimizerMaxPasses  *int    `yaml:"optimizer_max_passes"`
	MinPopulation       *int    `yaml:"min_population"`
	StaleRunAfter       *string `yaml:"stale_run_after"`
	LockTTL             *string `yaml:"lock_ttl"`
	NotifyUnmatched     *bool   `yaml:"notify_unmatched"`
}

// ApplyPolicyFile reads a YAML policy and overlays the keys it sets.
//
// Example:
//
//	strategy: greedy
//	cohort_filter: true
//	drought_window_cycles: 3
//	cycle_length: 168h
func (m *MatchingConfig) ApplyPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return m.ApplyPolicy(data)
}

// ApplyPolicy overlays a YAML policy document.
func (m *MatchingConfig) ApplyPolicy(data []byte) error {
	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse policy: %w", err)
	}

	if p.Strategy != nil {
		m.Strategy = strings.ToLower(strings.TrimSpace(*p.Strategy))
	}
	if p.DroughtPrePass != nil {
		m.DroughtPrePass = *p.DroughtPrePass
	}
	if p.DroughtWindowCycles != nil {
		m.DroughtWindowCycles = *p.DroughtWindowCycles
	}
	if p.CohortFilter != nil {
		m.CohortFilter = *p.CohortFilter
	}
	if p.OptimizerEnabled != nil {
		m.OptimizerEnabled = *p.OptimizerEnabled
	}
	if p.OptimizerMaxPasses != nil {
		m.OptimizerMaxPasses = *p.OptimizerMaxPasses
	}
	if p.MinPopulation != nil {
		m.MinPopulation = *p.MinPopulation
	}
	if p.NotifyUnmatched != nil {
		m.NotifyUnmatched = *p.NotifyUnmatched
	}

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"cycle_length", p.CycleLength, &m.CycleLength},
		{"stale_run_after", p.StaleRunAfter, &m.StaleRunAfter},
		{"lock_ttl", p.LockTTL, &m.LockTTL},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("policy %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return nil
}

// validate returns cross-field problems the struct tags cannot express.
func (m MatchingConfig) validate() []string {
	var errs []string
	if m.LockTTL > 0 && m.StaleRunAfter > 0 && m.StaleRunAfter < m.LockTTL {
		errs = append(errs, "MATCH_STALE_RUN_AFTER must not be shorter than MATCH_LOCK_TTL")
	}
	return errs
}
