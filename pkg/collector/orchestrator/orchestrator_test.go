package orchestrator_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/adapter"
	"github.com/blackcoderx/corpusctl/pkg/collector/config"
	"github.com/blackcoderx/corpusctl/pkg/collector/orchestrator"
	"github.com/blackcoderx/corpusctl/pkg/collector/output"
	"github.com/blackcoderx/corpusctl/pkg/collector/sources/fixture"
	"github.com/blackcoderx/corpusctl/pkg/collector/state"
)

type fixtureRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Body      string `json:"body"`
	IsHTML    bool   `json:"is_html"`
	CreatedAt string `json:"created_at"`
}

func writeFixtureFile(t *testing.T, now time.Time, offsets []time.Duration) string {
	t.Helper()
	records := make([]fixtureRecord, len(offsets))
	for i, off := range offsets {
		records[i] = fixtureRecord{
			ID:        []string{"id1", "id2", "id3"}[i],
			Title:     []string{"First", "Second", "Third"}[i],
			Body:      "plain body text",
			CreatedAt: now.Add(off).UTC().Format(time.RFC3339),
		}
	}
	data, err := json.Marshal(records)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, data, 0o640))
	return path
}

func buildOrchestrator(t *testing.T, fixturePath, outputDir, statePath string) (*orchestrator.Orchestrator, *adapter.Registry) {
	t.Helper()
	registry := adapter.NewRegistry()
	registry.Register(fixture.New(fixturePath))

	store, err := state.Open(statePath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	out := output.New(outputDir)
	logger := zap.NewNop()
	return orchestrator.New(registry, store, out, logger, false), registry
}

func TestRunSavesAndFiltersByAge(t *testing.T) {
	now := time.Now()
	fixturePath := writeFixtureFile(t, now, []time.Duration{-24 * time.Hour, -8 * 24 * time.Hour, -3 * 24 * time.Hour})
	outputDir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.json")

	orch, _ := buildOrchestrator(t, fixturePath, outputDir, statePath)

	maxAge := 7
	cfg := &config.Config{
		OutputDir:        outputDir,
		StateFile:        statePath,
		StateRetainCount: 100,
		Rules: []config.Rule{
			{
				Name:    "x",
				Source:  "fixture",
				Query:   "q",
				Actions: mustActions(t, "save"),
				Filters: config.FilterSpec{MaxAgeDays: &maxAge},
			},
		},
	}

	summary, err := orch.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemsSaved) // id1 (-1d) and id3 (-3d); id2 (-8d) filtered

	// Second run: state already satisfies the rule, zero new writes.
	orch2, _ := buildOrchestrator(t, fixturePath, outputDir, statePath)
	summary2, err := orch2.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary2.ItemsSaved)
	assert.Equal(t, 3, summary2.ItemsSkipped) // id2 early-filtered, id1/id3 already fully processed
}

func TestRunDryRunWritesNothing(t *testing.T) {
	now := time.Now()
	fixturePath := writeFixtureFile(t, now, []time.Duration{-time.Hour})
	outputDir := t.TempDir()
	statePath := filepath.Join(t.TempDir(), "state.json")

	registry := adapter.NewRegistry()
	registry.Register(fixture.New(fixturePath))
	store, err := state.Open(statePath)
	require.NoError(t, err)
	defer store.Close()
	out := output.New(outputDir)
	orch := orchestrator.New(registry, store, out, zap.NewNop(), true)

	cfg := &config.Config{
		OutputDir: outputDir,
		StateFile: statePath,
		Rules: []config.Rule{
			{Name: "x", Source: "fixture", Query: "q", Actions: mustActions(t, "save")},
		},
	}
	summary, err := orch.Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ItemsSaved)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry run must not write any files")

	_, ok, err := store.Get("id1")
	require.NoError(t, err)
	assert.False(t, ok, "dry run must not record state")
}

func mustActions(t *testing.T, strs ...string) []action.Action {
	t.Helper()
	parsed, err := action.ParseAll(strs)
	require.NoError(t, err)
	return parsed
}
