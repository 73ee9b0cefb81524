// Package filter implements the query-independent content filtering
// engine: age, score, and include/exclude keyword predicates with
// wildcard matching, plus the cascade rule that merges tool-wide
// defaults with rule-level overrides.
package filter

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gobwas/glob"
)

// Criteria is the filter-criteria record from spec.md §3. Scalar
// fields are pointers so Merge can distinguish "unset" (inherit the
// default) from "explicitly zero".
type Criteria struct {
	MaxAgeDays      *int
	MinScore        *float64
	IncludeKeywords []string
	ExcludeKeywords []string
}

// ItemView is the minimal projection of an item the filter needs,
// satisfied by both lightweight item references (early filter) and
// fully hydrated items (late filter).
type ItemView struct {
	Title     string
	Body      string
	CreatedAt time.Time
	Score     *float64
}

// Merge computes the effective filter as tool-wide defaults cascaded
// with rule-level overrides: scalar fields use override semantics
// (override wins when set), list fields use union. This is the sole
// legitimate place the effective filter is materialized — callers
// compute it once per rule and reuse the result.
func Merge(defaults, override Criteria) Criteria {
	out := Criteria{
		MaxAgeDays: defaults.MaxAgeDays,
		MinScore:   defaults.MinScore,
	}
	if override.MaxAgeDays != nil {
		out.MaxAgeDays = override.MaxAgeDays
	}
	if override.MinScore != nil {
		out.MinScore = override.MinScore
	}
	out.IncludeKeywords = unionKeywords(defaults.IncludeKeywords, override.IncludeKeywords)
	out.ExcludeKeywords = unionKeywords(defaults.ExcludeKeywords, override.ExcludeKeywords)
	return out
}

func unionKeywords(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, kw := range list {
			key := strings.ToLower(strings.TrimSpace(kw))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kw)
		}
	}
	return out
}

// Accepts evaluates item against criteria, applying all four
// predicates: age, score, include keywords, exclude keywords.
func Accepts(c Criteria, item ItemView, now time.Time) bool {
	if c.MaxAgeDays != nil {
		cutoff := now.UTC().AddDate(0, 0, -*c.MaxAgeDays)
		if item.CreatedAt.UTC().Before(cutoff) {
			return false
		}
	}
	if c.MinScore != nil {
		if item.Score == nil || *item.Score < *c.MinScore {
			return false
		}
	}

	haystack := strings.ToLower(stripHTML(item.Title + "\n" + item.Body))

	if len(c.ExcludeKeywords) > 0 && anyMatch(c.ExcludeKeywords, haystack) {
		return false
	}
	if len(c.IncludeKeywords) > 0 && !anyMatch(c.IncludeKeywords, haystack) {
		return false
	}
	return true
}

// anyMatch reports whether any glob pattern in patterns matches
// anywhere within haystack (substring semantics: patterns are not
// anchored). Case folding is the caller's responsibility; haystack is
// expected to already be lowercased.
func anyMatch(patterns []string, haystack string) bool {
	for _, raw := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(raw))
		if pattern == "" {
			continue
		}
		g, err := glob.Compile("*" + pattern + "*")
		if err != nil {
			// An invalid pattern can never match; skip it rather
			// than aborting the whole filter evaluation.
			continue
		}
		if g.Match(haystack) {
			return true
		}
	}
	return false
}

// stripHTML removes markup from s, leaving only its rendered text, so
// keyword matching never matches inside a tag name or attribute.
func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
