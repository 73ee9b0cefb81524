// Package fixture is a small JSON-file-backed reference adapter: a
// worked example of the adapter.Source contract, used by the
// orchestrator's own tests and as a template for real sources. It is
// not a production source.
package fixture

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/adapter"
	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
	"github.com/blackcoderx/corpusctl/pkg/collector/config"
	"github.com/blackcoderx/corpusctl/pkg/collector/filter"
)

// record is the on-disk shape of one fixture item.
type record struct {
	RecordID  string  `json:"id"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Body      string  `json:"body"`
	IsHTML    bool    `json:"is_html"`
	CreatedAt string  `json:"created_at"`
	Score     *float64 `json:"score,omitempty"`
	URL       string  `json:"url,omitempty"`
}

// Source reads items from a JSON file at Path; every yielded ItemRef
// gets a freshly generated uuid if the fixture record omits one, so
// the adapter can double as a generator for test corpora.
type Source struct {
	Path       string
	Executed   map[string][]action.Action // test hook: records Execute calls by item id
}

// New builds a fixture Source reading from path.
func New(path string) *Source {
	return &Source{Path: path, Executed: make(map[string][]action.Action)}
}

func (s *Source) Name() string { return "fixture" }

func (s *Source) SupportedActions() []action.Kind {
	return []action.Kind{action.Save, action.Archive, action.Label, action.Forward, action.Delete, action.MarkRead}
}

func (s *Source) loadRecords() ([]record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, cerrors.Content("failed to read fixture file", err).WithContext("path", s.Path)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, cerrors.Content("fixture file is not valid JSON", err).WithContext("path", s.Path)
	}
	return records, nil
}

// Enumerate yields every record in the fixture file, in file order
// (documented as the adapter's "newest-first" convention: callers are
// expected to list fixtures newest first), capped at rule.MaxItems.
func (s *Source) Enumerate(ctx context.Context, rule config.Rule) (<-chan adapter.ItemRef, error) {
	records, err := s.loadRecords()
	if err != nil {
		return nil, err
	}

	out := make(chan adapter.ItemRef)
	go func() {
		defer close(out)
		for i, r := range records {
			if rule.MaxItems > 0 && i >= rule.MaxItems {
				return
			}
			id := r.RecordID
			if id == "" {
				id = uuid.NewString()
			}
			select {
			case out <- &item{record: r, id: id}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Hydrate returns ref unchanged: the fixture stores full content
// up-front, so hydration is a type assertion rather than a fetch.
func (s *Source) Hydrate(ctx context.Context, ref adapter.ItemRef) (adapter.Hydrated, error) {
	it, ok := ref.(*item)
	if !ok {
		return nil, cerrors.Content("fixture adapter received a foreign ItemRef", nil)
	}
	return it, nil
}

// Execute records the action against the item id so tests can assert
// on what the orchestrator asked the adapter to do; it never fails.
func (s *Source) Execute(ctx context.Context, hydrated adapter.Hydrated, act action.Action) error {
	s.Executed[hydrated.ID()] = append(s.Executed[hydrated.ID()], act)
	return nil
}

// item implements both adapter.ItemRef and adapter.Hydrated.
type item struct {
	record
	id string
}

func (it *item) ID() string { return it.id }

func (it *item) View() filter.ItemView {
	createdAt, _ := time.Parse(time.RFC3339, it.CreatedAt)
	return filter.ItemView{
		Title:     it.Title,
		Body:      it.Body,
		CreatedAt: createdAt,
		Score:     it.Score,
	}
}

func (it *item) Body() string              { return it.record.Body }
func (it *item) BodyIsHTML() bool          { return it.IsHTML }
func (it *item) Attachments() []adapter.Attachment { return nil }
