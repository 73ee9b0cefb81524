package state_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcoderx/corpusctl/pkg/collector/action"
	"github.com/blackcoderx/corpusctl/pkg/collector/state"
)

func TestSQLStoreMarkAndIsProcessed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := state.Open(path)
	require.NoError(t, err)
	defer store.Close()

	save := action.Action{Kind: action.Save}
	archive := action.Action{Kind: action.Archive}

	require.NoError(t, store.MarkProcessed("item-1", "fixture", "rule-a", action.NewSet(save), map[string]any{"k": "v"}))

	done, err := store.IsProcessed("item-1", action.NewSet(save))
	require.NoError(t, err)
	assert.True(t, done)

	done, err = store.IsProcessed("item-1", action.NewSet(save, archive))
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, store.MarkProcessed("item-1", "fixture", "rule-a", action.NewSet(archive), nil))
	rec, ok, err := store.Get("item-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"save", "archive"}, rec.ActionsApplied.Strings())
	assert.Equal(t, "v", rec.Metadata["k"]) // metadata survives the second, metadata-less update
}

func TestSQLStoreCleanup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := state.Open(path)
	require.NoError(t, err)
	defer store.Close()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.MarkProcessed(id, "fixture", "rule", action.NewSet(action.Action{Kind: action.Save}), nil))
	}
	require.NoError(t, store.Cleanup(1))

	_, ok, err := store.Get("a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.Get("c")
	require.NoError(t, err)
	assert.True(t, ok)
}
