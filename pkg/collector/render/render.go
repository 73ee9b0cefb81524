// Package render composes a hydrated item into the frontmatter +
// markdown body pair the output manager persists (spec.md §2's
// renderer.compose pipeline step).
package render

import (
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/blackcoderx/corpusctl/pkg/collector/adapter"
	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
	"github.com/blackcoderx/corpusctl/pkg/collector/config"
	"github.com/blackcoderx/corpusctl/pkg/collector/output"
)

// Compose builds the Tier-1 frontmatter and markdown body for item,
// collected under rule. sourceURL is the item's canonical URL, if any
// (empty when the source has none). sourceFields carries any
// additional, source-specific frontmatter the adapter wants recorded.
// Compose does not check sourceFields against the Tier-1 names; a
// collision is rejected as a ContentError when the frontmatter is
// written by output.Manager.WriteMarkdown.
func Compose(item adapter.Hydrated, rule config.Rule, sourceName, sourceURL string, createdAt time.Time, sourceFields map[string]any) (output.Frontmatter, string, error) {
	body := item.Body()
	if item.BodyIsHTML() {
		converted, err := htmltomarkdown.ConvertString(body)
		if err != nil {
			return output.Frontmatter{}, "", cerrors.Content("failed to convert item body to markdown", err).
				WithContext("item_id", item.ID())
		}
		body = converted
	}

	meta := output.Frontmatter{
		Title:         item.View().Title,
		Source:        sourceName,
		CreatedDate:   createdAt,
		CollectedDate: timeNow(),
		URL:           sourceURL,
		Extra:         sourceFields,
	}
	return meta, body, nil
}

// timeNow is a seam so tests can freeze the collected_date value.
var timeNow = time.Now
