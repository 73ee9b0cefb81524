// Package state tracks which actions have already been applied to
// which items, across two interchangeable backends selected by the
// state file's extension (spec.md §4.7).
package state

import (
	"time"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
)

// Record is one item's processing history.
type Record struct {
	ItemID         string
	SourceType     string
	SourceName     string
	ActionsApplied *action.Set
	LastProcessed  time.Time
	Metadata       map[string]any
}

// Store is the interface shared by the document and relational
// backends. Implementations never log; callers (the orchestrator)
// decide what a StateError means.
type Store interface {
	// IsProcessed reports whether every action in required is already
	// present in the stored record for itemID.
	IsProcessed(itemID string, required *action.Set) (bool, error)

	// Get returns the stored record for itemID, or ok=false if none
	// exists.
	Get(itemID string) (Record, bool, error)

	// MarkProcessed union-merges actionsApplied into the stored record
	// for itemID, creating it if absent, and refreshes LastProcessed.
	MarkProcessed(itemID, sourceType, sourceName string, actionsApplied *action.Set, metadata map[string]any) error

	// BulkUpdate applies MarkProcessed for every record in one durable
	// flush; used by the orchestrator's periodic checkpoint.
	BulkUpdate(records []Record) error

	// Cleanup prunes the oldest records (by LastProcessed) beyond
	// retainCount. retainCount <= 0 means no pruning.
	Cleanup(retainCount int) error

	// Close releases any held resources (locks, connections).
	Close() error
}
