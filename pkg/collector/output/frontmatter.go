package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
	"github.com/blackcoderx/corpusctl/pkg/collector/security"
)

// Frontmatter is the metadata block prepended to every output
// artifact. Tier1 fields are required by spec.md §4.6/§6; Extra holds
// source-specific fields and must not collide with a Tier-1 name.
type Frontmatter struct {
	Title         string
	Source        string
	CreatedDate   time.Time
	CollectedDate time.Time
	URL           string // optional; required only "where applicable"
	Extra         map[string]any
}

var tier1Names = map[string]bool{
	"title": true, "source": true, "created_date": true,
	"collected_date": true, "url": true,
}

// toMap flattens Frontmatter into the key/value pairs that get
// rendered, validating Tier-1 completeness and the no-collision rule.
func (f Frontmatter) toMap() (map[string]string, error) {
	if f.Title == "" {
		return nil, cerrors.Content("frontmatter missing required field: title", nil)
	}
	if f.Source == "" {
		return nil, cerrors.Content("frontmatter missing required field: source", nil)
	}
	if f.CreatedDate.IsZero() {
		return nil, cerrors.Content("frontmatter missing required field: created_date", nil)
	}
	if f.CollectedDate.IsZero() {
		return nil, cerrors.Content("frontmatter missing required field: collected_date", nil)
	}

	out := map[string]string{
		"title":          f.Title,
		"source":         f.Source,
		"created_date":   f.CreatedDate.UTC().Format(time.RFC3339),
		"collected_date": f.CollectedDate.UTC().Format(time.RFC3339),
	}
	if f.URL != "" {
		out["url"] = f.URL
	}
	for k, v := range f.Extra {
		if tier1Names[k] {
			return nil, cerrors.Content("source field collides with a Tier-1 frontmatter key: "+k, nil)
		}
		out[k] = scalarString(v)
	}
	return out, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// render builds the "---\n...\n---\n" block from kv, with keys sorted
// and string values quoted; multi-line values are block-indented.
func render(kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("---\n")
	for _, k := range keys {
		v := kv[k]
		if strings.Contains(v, "\n") {
			b.WriteString(k)
			b.WriteString(": |\n")
			for _, line := range strings.Split(v, "\n") {
				b.WriteString("  ")
				b.WriteString(line)
				b.WriteString("\n")
			}
			continue
		}
		b.WriteString(k)
		b.WriteString(": \"")
		b.WriteString(security.SanitizeForFrontmatter(v))
		b.WriteString("\"\n")
	}
	b.WriteString("---\n")
	return b.String()
}
