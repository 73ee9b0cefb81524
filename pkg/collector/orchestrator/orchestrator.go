// Package orchestrator composes the security, config, filter, output,
// state, and adapter packages into the canonical per-rule collection
// pipeline: enumerate, filter, check state, hydrate, filter again,
// render, persist, record (spec.md §4.8).
package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/adapter"
	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
	"github.com/blackcoderx/corpusctl/pkg/collector/config"
	"github.com/blackcoderx/corpusctl/pkg/collector/filter"
	"github.com/blackcoderx/corpusctl/pkg/collector/output"
	"github.com/blackcoderx/corpusctl/pkg/collector/render"
	"github.com/blackcoderx/corpusctl/pkg/collector/state"
)

// checkpointEvery is K from spec.md §4.8 ("checkpoint every K items (K
// ≈ 10)").
const checkpointEvery = 10

// Orchestrator runs rules from a loaded Config against registered
// adapter.Sources, using Store for at-most-once tracking and Output
// for materialization. Every dependency is injected; there is no
// package-level singleton (spec.md §9).
type Orchestrator struct {
	Registry *adapter.Registry
	Store    state.Store
	Output   *output.Manager
	Logger   *zap.Logger
	DryRun   bool
}

// New builds an Orchestrator from its dependencies.
func New(registry *adapter.Registry, store state.Store, out *output.Manager, logger *zap.Logger, dryRun bool) *Orchestrator {
	return &Orchestrator{Registry: registry, Store: store, Output: out, Logger: logger, DryRun: dryRun}
}

// Summary is printed by cmd/corpusctl at the end of a run.
type Summary struct {
	RulesProcessed int
	ItemsSaved     int
	ItemsSkipped   int
	ItemsErrored   int
	ActionCounts   map[string]int
}

func newSummary() Summary {
	return Summary{ActionCounts: make(map[string]int)}
}

// Run executes every rule in cfg.Rules whose name is in ruleNames (or
// every rule, if ruleNames is empty), in config order. Every selected
// rule is validated against its source's capability set before any
// rule runs. Rules with identical (Query, Actions, Filters) signatures
// are noted in a debug log; each of them still runs in full.
func (o *Orchestrator) Run(ctx context.Context, cfg *config.Config, ruleNames []string) (Summary, error) {
	summary := newSummary()
	wanted := toSet(ruleNames)
	seenSignatures := make(map[string]bool)

	for _, rule := range cfg.Rules {
		if len(wanted) > 0 && !wanted[rule.Name] {
			continue
		}
		if err := o.Registry.ValidateRule(rule.Source, rule); err != nil {
			return summary, err
		}
	}

	for _, rule := range cfg.Rules {
		if len(wanted) > 0 && !wanted[rule.Name] {
			continue
		}
		sig := rule.Signature()
		if seenSignatures[sig] {
			o.Logger.Debug("coalescing rule with identical signature", zap.String("rule", rule.Name))
		}
		seenSignatures[sig] = true

		aborted, err := o.runRule(ctx, cfg, rule, &summary)
		summary.RulesProcessed++
		if err != nil {
			return summary, err
		}
		if aborted {
			o.Logger.Warn("rule aborted", zap.String("rule", rule.Name))
		}
		if ctx.Err() != nil {
			return summary, nil
		}
	}
	return summary, nil
}

func toSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// runRule executes the pipeline for one rule. It returns aborted=true
// when a rule-scoped error (exhausted rate limiting) stopped the rule
// early without aborting the whole run; it returns a non-nil error
// only for run-scoped failures.
func (o *Orchestrator) runRule(ctx context.Context, cfg *config.Config, rule config.Rule, summary *Summary) (bool, error) {
	src, ok := o.Registry.Get(rule.Source)
	if !ok {
		return false, cerrors.Config("unknown source: "+rule.Source, nil).WithContext("rule", rule.Name)
	}
	criteria := rule.Criteria(cfg.DefaultCriteria())

	refs, err := src.Enumerate(ctx, rule)
	if err != nil {
		return false, err
	}

	var pending []state.Record
	processed := 0
	now := time.Now()

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if o.DryRun {
			pending = nil
			return nil
		}
		if err := o.Store.BulkUpdate(pending); err != nil {
			return err
		}
		pending = nil
		return nil
	}

	for ref := range refs {
		if ctx.Err() != nil {
			break // finish draining is unnecessary: channel close is cooperative via src's own ctx check
		}

		rec, aborted, err := o.processItem(ctx, src, rule, criteria, ref, now, summary)
		if err != nil {
			sev := severityOf(err)
			if sev == cerrors.Run {
				return false, err
			}
			// Rule-scoped (rate limit exhausted): stop this rule, let
			// the run continue with the next one.
			if err := flush(); err != nil {
				return false, err
			}
			return true, nil
		}
		if aborted {
			continue
		}
		if rec != nil {
			pending = append(pending, *rec)
		}

		processed++
		if processed%checkpointEvery == 0 {
			if err := flush(); err != nil {
				return false, err
			}
		}
	}

	if err := flush(); err != nil {
		return false, err
	}
	if !o.DryRun {
		if err := o.Store.Cleanup(cfg.StateRetainCount); err != nil {
			return false, err
		}
	}
	return false, nil
}

func severityOf(err error) cerrors.Severity {
	if ce, ok := cerrors.As(err); ok {
		return ce.Severity()
	}
	return cerrors.Run
}

// processItem runs one item through state-check, hydrate, late
// filter, render, persist, and returns the state.Record to checkpoint
// (nil if nothing should be recorded). aborted=true means the item was
// filtered or already fully processed — not an error, just nothing to
// record.
func (o *Orchestrator) processItem(ctx context.Context, src adapter.Source, rule config.Rule, criteria filter.Criteria, ref adapter.ItemRef, now time.Time, summary *Summary) (*state.Record, bool, error) {
	itemID := ref.ID()
	logger := o.Logger.With(zap.String("rule", rule.Name), zap.String("item_id", itemID))

	if !filter.Accepts(criteria, ref.View(), now) {
		summary.ItemsSkipped++
		return nil, true, nil
	}

	existing, hasRecord, err := o.Store.Get(itemID)
	if err != nil {
		return nil, false, err
	}
	var toApply []action.Action
	if hasRecord {
		if existing.ActionsApplied.ContainsAll(rule.Actions) {
			summary.ItemsSkipped++
			return nil, true, nil
		}
		toApply = existing.ActionsApplied.Missing(rule.Actions)
	} else {
		toApply = rule.Actions
	}

	hydrated, err := src.Hydrate(ctx, ref)
	if err != nil {
		if sev := severityOf(err); sev != cerrors.Item {
			return nil, false, err
		}
		logger.Warn("hydrate failed, skipping item", zap.Error(err))
		summary.ItemsErrored++
		return nil, true, nil
	}

	if !filter.Accepts(criteria, hydrated.View(), now) {
		summary.ItemsSkipped++
		return nil, true, nil
	}

	applied := action.NewSet()
	for _, act := range toApply {
		if act.Kind == action.Save {
			if err := o.persistSave(rule, src.Name(), hydrated, hasRecord); err != nil {
				logger.Warn("save failed, treating as item-fatal", zap.Error(err))
				continue
			}
			applied.Add(act)
			summary.ItemsSaved++
			summary.ActionCounts[string(act.Kind)]++
			continue
		}

		if !o.DryRun {
			if err := src.Execute(ctx, hydrated, act); err != nil {
				if sev := severityOf(err); sev != cerrors.Item {
					return nil, false, err
				}
				logger.Warn("action execution failed, will retry next run", zap.String("action", act.String()), zap.Error(err))
				continue
			}
		}
		applied.Add(act)
		summary.ActionCounts[string(act.Kind)]++
	}

	if len(applied.Slice()) == 0 {
		return nil, true, nil
	}
	if o.DryRun {
		return nil, true, nil
	}

	return &state.Record{
		ItemID:         itemID,
		SourceType:     src.Name(),
		SourceName:     rule.Name,
		ActionsApplied: applied,
		LastProcessed:  time.Now(),
	}, false, nil
}

// persistSave renders and writes the markdown artifact for item,
// updating in place when a record for it already exists (spec.md's
// "enrich" resolution of the output manager's update-vs-replace open
// question).
func (o *Orchestrator) persistSave(rule config.Rule, sourceName string, item adapter.Hydrated, update bool) error {
	view := item.View()
	createdAt := view.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	meta, body, err := render.Compose(item, rule, sourceName, "", createdAt, nil)
	if err != nil {
		return err
	}
	if o.DryRun {
		return nil
	}

	dateStr := createdAt.UTC().Format("2006-01-02")
	dir, err := o.Output.EnsureFolder(rule.Name, dateStr)
	if err != nil {
		return err
	}
	filename := output.ItemFilename(dateStr, view.Title, item.ID())
	return o.Output.WriteMarkdown(filepath.Join(dir, filename), meta, body, update)
}
