// Package config loads the declarative YAML collector configuration,
// resolves ${VAR} environment references with injection defenses, and
// decodes the result into a strictly validated schema that rejects
// unknown fields.
package config

import (
	"fmt"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/filter"
)

// FilterSpec is the YAML-facing shape of filter.Criteria; it is
// converted to filter.Criteria by Rule.Criteria() and
// Config.DefaultCriteria(), which the orchestrator calls once per rule.
type FilterSpec struct {
	MaxAgeDays      *int     `mapstructure:"max_age_days"`
	MinScore        *float64 `mapstructure:"min_score"`
	IncludeKeywords []string `mapstructure:"include_keywords"`
	ExcludeKeywords []string `mapstructure:"exclude_keywords"`
}

func (f FilterSpec) toCriteria() filter.Criteria {
	return filter.Criteria{
		MaxAgeDays:      f.MaxAgeDays,
		MinScore:        f.MinScore,
		IncludeKeywords: f.IncludeKeywords,
		ExcludeKeywords: f.ExcludeKeywords,
	}
}

// Rule is one named collection directive, per spec.md §3.
type Rule struct {
	Name          string         `mapstructure:"name"`
	Source        string         `mapstructure:"source"`
	Query         string         `mapstructure:"query"`
	ActionStrings []string       `mapstructure:"actions"`
	MaxItems      int            `mapstructure:"max_items"`
	Filters       FilterSpec     `mapstructure:"filters"`
	SourceOptions map[string]any `mapstructure:"source_options"`

	// Actions is populated by Load (via validate) from ActionStrings, parsed
	// exactly once per spec.md §9.
	Actions []action.Action `mapstructure:"-"`
}

// Criteria returns this rule's filter cascaded on top of defaults,
// per the §3/§4.5 cascade rule.
func (r Rule) Criteria(defaults filter.Criteria) filter.Criteria {
	return filter.Merge(defaults, r.Filters.toCriteria())
}

// Signature identifies rules that can share a single state-key
// computation because their (query, actions, filters) are identical
// (spec.md §4.8's coalescing allowance).
func (r Rule) Signature() string {
	return fmt.Sprintf("%s|%v|%+v", r.Query, r.ActionStrings, r.Filters)
}

// Config is the top-level collector configuration, mirroring spec.md
// §6's recognized keys exactly.
type Config struct {
	OutputDir        string         `mapstructure:"output_dir"`
	StateFile        string         `mapstructure:"state_file"`
	RateLimitSeconds float64        `mapstructure:"rate_limit_seconds"`
	StateRetainCount int            `mapstructure:"state_retain_count"`
	DefaultFilters   FilterSpec     `mapstructure:"default_filters"`
	Rules            []Rule         `mapstructure:"rules"`
	Auth             map[string]any `mapstructure:"auth"`
}

// DefaultCriteria returns the tool-wide default filter criteria.
func (c Config) DefaultCriteria() filter.Criteria {
	return c.DefaultFilters.toCriteria()
}
