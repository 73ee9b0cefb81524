package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/state"
)

func TestDocumentStoreMarkAndIsProcessed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := state.OpenDocumentStore(path)
	require.NoError(t, err)
	defer store.Close()

	save := action.Action{Kind: action.Save}
	archive := action.Action{Kind: action.Archive}

	require.NoError(t, store.MarkProcessed("item-1", "fixture", "rule-a", action.NewSet(save), nil))

	done, err := store.IsProcessed("item-1", action.NewSet(save))
	require.NoError(t, err)
	assert.True(t, done)

	done, err = store.IsProcessed("item-1", action.NewSet(save, archive))
	require.NoError(t, err)
	assert.False(t, done, "archive was never applied")

	require.NoError(t, store.MarkProcessed("item-1", "fixture", "rule-a", action.NewSet(archive), nil))
	done, err = store.IsProcessed("item-1", action.NewSet(save, archive))
	require.NoError(t, err)
	assert.True(t, done)
}

func TestDocumentStoreActionsNeverShrink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := state.OpenDocumentStore(path)
	require.NoError(t, err)
	defer store.Close()

	save := action.Action{Kind: action.Save}
	require.NoError(t, store.MarkProcessed("item-1", "fixture", "rule-a", action.NewSet(save), nil))
	require.NoError(t, store.MarkProcessed("item-1", "fixture", "rule-a", action.NewSet(), nil))

	rec, ok, err := store.Get("item-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, rec.ActionsApplied.Strings(), "save")
}

func TestDocumentStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := state.OpenDocumentStore(path)
	require.NoError(t, err)

	save := action.Action{Kind: action.Save}
	require.NoError(t, store.MarkProcessed("item-1", "fixture", "rule-a", action.NewSet(save), map[string]any{"k": "v"}))
	require.NoError(t, store.Close())

	reopened, err := state.OpenDocumentStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, ok, err := reopened.Get("item-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"save"}, rec.ActionsApplied.Strings())
	assert.Equal(t, "v", rec.Metadata["k"])
}

func TestDocumentStoreCleanupRetainsMostRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := state.OpenDocumentStore(path)
	require.NoError(t, err)
	defer store.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.MarkProcessed(
			[]string{"a", "b", "c", "d", "e"}[i], "fixture", "rule", action.NewSet(action.Action{Kind: action.Save}), nil))
	}
	require.NoError(t, store.Cleanup(2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\"d\"")
	assert.Contains(t, string(data), "\"e\"")
	assert.NotContains(t, string(data), "\"a\":")
}

func TestDocumentStoreMigratesLegacyListShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{"version":"0.1","_created":"2020-01-01T00:00:00Z","_last_updated":"2020-01-01T00:00:00Z","processed_messages":["item-1","item-2"]}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o640))

	store, err := state.OpenDocumentStore(path)
	require.NoError(t, err)
	defer store.Close()

	rec, ok, err := store.Get("item-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"save"}, rec.ActionsApplied.Strings())
}
