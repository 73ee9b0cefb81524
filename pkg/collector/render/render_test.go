package render_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcoderx/corpusctl/pkg/collector/adapter"
	"github.com/blackcoderx/corpusctl/pkg/collector/config"
	"github.com/blackcoderx/corpusctl/pkg/collector/filter"
	"github.com/blackcoderx/corpusctl/pkg/collector/render"
)

type fakeItem struct {
	id     string
	title  string
	body   string
	isHTML bool
}

func (f fakeItem) ID() string { return f.id }
func (f fakeItem) View() filter.ItemView {
	return filter.ItemView{Title: f.title, Body: f.body, CreatedAt: time.Now()}
}
func (f fakeItem) Body() string                     { return f.body }
func (f fakeItem) BodyIsHTML() bool                  { return f.isHTML }
func (f fakeItem) Attachments() []adapter.Attachment { return nil }

func TestComposeConvertsHTMLBody(t *testing.T) {
	item := fakeItem{id: "1", title: "Hello", body: "<p>world</p>", isHTML: true}
	meta, body, err := render.Compose(item, config.Rule{Name: "r"}, "fixture", "https://example.com/1", time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", meta.Title)
	assert.Equal(t, "fixture", meta.Source)
	assert.NotContains(t, body, "<p>")
	assert.Contains(t, body, "world")
}

func TestComposePassesThroughPlainBody(t *testing.T) {
	item := fakeItem{id: "1", title: "Hello", body: "plain text", isHTML: false}
	_, body, err := render.Compose(item, config.Rule{Name: "r"}, "fixture", "", time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", body)
}
