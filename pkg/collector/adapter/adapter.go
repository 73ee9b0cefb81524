// Package adapter defines the narrow interface every content source
// implements. Adapters never touch the state store directly; they are
// driven exclusively by the orchestrator (spec.md §9: "do not let
// adapters read the state store directly — they go through the
// orchestrator").
package adapter

import "github.com/blackcoderx/corpusctl/pkg/collector/filter"

// ItemRef is a lightweight handle to an item, materialized by
// enumeration and cheap to produce in bulk; it carries only the
// metadata needed for the early filter pass.
type ItemRef interface {
	ID() string
	View() filter.ItemView
}

// Hydrated is a fully-fetched item: ItemRef's metadata plus the full
// body and any attachments, produced by hydration and consumed once by
// the renderer.
type Hydrated interface {
	ItemRef
	Body() string
	BodyIsHTML() bool
	Attachments() []Attachment
}

// Attachment is a handle to ancillary content (an image, a PDF) the
// renderer or an adapter's action executor may need; the adapter
// contract does not prescribe how attachments are fetched.
type Attachment struct {
	Name        string
	URL         string
	ContentType string
}
