package adapter

import (
	"context"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
	"github.com/blackcoderx/corpusctl/pkg/collector/config"
)

// Source is the contract every content source implements. Enumerate
// and Hydrate translate source-specific SDK exceptions into the typed
// cerrors hierarchy at the boundary; the orchestrator never sees a raw
// SDK error.
type Source interface {
	// Name identifies the source for logging and state-record
	// source_type/source_name fields.
	Name() string

	// SupportedActions declares the action kinds this source can
	// execute, checked against rule actions before any rule runs.
	SupportedActions() []action.Kind

	// Enumerate returns a channel of item references honoring
	// rule.MaxItems, closed when enumeration completes or ctx is
	// cancelled. Adapters document their own yield order (spec.md §4.8:
	// "newest-first for time-ordered sources").
	Enumerate(ctx context.Context, rule config.Rule) (<-chan ItemRef, error)

	// Hydrate fetches full content for ref. A ContentError here marks
	// the item skipped without aborting the rule.
	Hydrate(ctx context.Context, ref ItemRef) (Hydrated, error)

	// Execute applies a single action to item. One action failing does
	// not prevent the orchestrator from attempting the others in the
	// rule's action list.
	Execute(ctx context.Context, item Hydrated, act action.Action) error
}

// Registry maps source names to registered Sources and validates that
// every rule's actions are within the capability set the rule's source
// declares; the orchestrator runs that check for every selected rule
// before any rule runs.
type Registry struct {
	sources map[string]Source
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]Source)}
}

// Register adds src under its own Name(), overwriting any prior
// registration for that name.
func (r *Registry) Register(src Source) {
	r.sources[src.Name()] = src
}

// Get returns the registered Source for name.
func (r *Registry) Get(name string) (Source, bool) {
	src, ok := r.sources[name]
	return src, ok
}

// ValidateRule rejects a rule whose actions exceed sourceName's
// declared capability set, or names an unregistered source, as a
// ConfigError.
func (r *Registry) ValidateRule(sourceName string, rule config.Rule) error {
	src, ok := r.sources[sourceName]
	if !ok {
		return cerrors.Config("unknown source: "+sourceName, nil).WithContext("rule", rule.Name)
	}
	supported := make(map[action.Kind]bool, len(src.SupportedActions()))
	for _, k := range src.SupportedActions() {
		supported[k] = true
	}
	for _, a := range rule.Actions {
		if !supported[a.Kind] {
			return cerrors.Config("action not supported by source: "+string(a.Kind), nil).
				WithContext("rule", rule.Name, "source", sourceName)
		}
	}
	return nil
}
