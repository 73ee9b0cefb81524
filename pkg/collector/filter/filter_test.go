package filter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blackcoderx/corpusctl/pkg/collector/filter"
)

func intp(i int) *int          { return &i }
func f64p(f float64) *float64  { return &f }

func TestMergeCascade(t *testing.T) {
	defaults := filter.Criteria{
		MaxAgeDays:      intp(30),
		ExcludeKeywords: []string{"*promotional*"},
	}
	override := filter.Criteria{
		MaxAgeDays:      intp(7),
		ExcludeKeywords: []string{"*draft*"},
	}
	merged := filter.Merge(defaults, override)
	assert.Equal(t, 7, *merged.MaxAgeDays) // scalar override wins
	assert.ElementsMatch(t, []string{"*promotional*", "*draft*"}, merged.ExcludeKeywords)
}

func TestMergeInheritsUnsetScalar(t *testing.T) {
	defaults := filter.Criteria{MinScore: f64p(5)}
	merged := filter.Merge(defaults, filter.Criteria{})
	require := assert.New(t)
	require.NotNil(merged.MinScore)
	require.Equal(5.0, *merged.MinScore)
}

func TestAcceptsAgeAndScore(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	criteria := filter.Criteria{
		MaxAgeDays: intp(7),
		MinScore:   f64p(10),
	}

	fresh := filter.ItemView{Title: "ok", CreatedAt: now.AddDate(0, 0, -1), Score: f64p(20)}
	assert.True(t, filter.Accepts(criteria, fresh, now))

	stale := filter.ItemView{Title: "old", CreatedAt: now.AddDate(0, 0, -8), Score: f64p(20)}
	assert.False(t, filter.Accepts(criteria, stale, now))

	lowScore := filter.ItemView{Title: "low", CreatedAt: now, Score: f64p(1)}
	assert.False(t, filter.Accepts(criteria, lowScore, now))

	noScore := filter.ItemView{Title: "none", CreatedAt: now}
	assert.False(t, filter.Accepts(criteria, noScore, now))
}

func TestAcceptsKeywordCascadeUnion(t *testing.T) {
	now := time.Now()
	criteria := filter.Criteria{
		ExcludeKeywords: []string{"*promotional*", "*draft*"},
	}
	cases := map[string]bool{
		"Q4 promotional":    false,
		"Final draft":       false,
		"Summary of results": true,
	}
	for title, want := range cases {
		item := filter.ItemView{Title: title, CreatedAt: now}
		assert.Equal(t, want, filter.Accepts(criteria, item, now), title)
	}
}

func TestAcceptsStripsHTMLBeforeMatching(t *testing.T) {
	now := time.Now()
	criteria := filter.Criteria{IncludeKeywords: []string{"golang"}}
	item := filter.ItemView{Title: "x", Body: "<p>I love <b>golang</b> tooling</p>", CreatedAt: now}
	assert.True(t, filter.Accepts(criteria, item, now))
}
