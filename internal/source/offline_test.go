package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSnapshot(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "corpus_roots.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestOfflineHitAndMiss(t *testing.T) {
	path := writeSnapshot(t, t.TempDir(),
		`{"metadata":{"total_words":2},"roots":{"1:1:0":"سمو","2:5:3":"كتب"}}`)
	o := NewOffline(path, zap.NewNop())
	require.Equal(t, 2, o.Len())

	obs := o.Fetch(context.Background(), "بسم", &Location{Sura: 1, Aya: 1, Position: 0})
	assert.True(t, obs.Success)
	assert.Equal(t, "سمو", obs.Root)
	assert.Equal(t, offlineName, obs.Source)

	obs = o.Fetch(context.Background(), "بسم", &Location{Sura: 9, Aya: 9, Position: 9})
	assert.False(t, obs.Success)
	assert.Contains(t, obs.Err, "not in snapshot")
}

func TestOfflineRequiresLocation(t *testing.T) {
	path := writeSnapshot(t, t.TempDir(), `{"roots":{"1:1:0":"سمو"}}`)
	o := NewOffline(path, zap.NewNop())

	obs := o.Fetch(context.Background(), "بسم", nil)
	assert.False(t, obs.Success)
	assert.Contains(t, obs.Err, "location required")
}

func TestOfflineMissingFileDegrades(t *testing.T) {
	o := NewOffline(filepath.Join(t.TempDir(), "absent.json"), zap.NewNop())
	assert.Equal(t, 0, o.Len())

	obs := o.Fetch(context.Background(), "بسم", &Location{Sura: 1, Aya: 1, Position: 0})
	assert.False(t, obs.Success)
}

func TestOfflineReload(t *testing.T) {
	dir := t.TempDir()
	path := writeSnapshot(t, dir, `{"roots":{"1:1:0":"سمو"}}`)
	o := NewOffline(path, zap.NewNop())
	require.Equal(t, 1, o.Len())

	writeSnapshot(t, dir, `{"roots":{"1:1:0":"سمو","1:1:1":"اله"}}`)
	require.NoError(t, o.reload())
	assert.Equal(t, 2, o.Len())

	obs := o.Fetch(context.Background(), "الله", &Location{Sura: 1, Aya: 1, Position: 1})
	assert.True(t, obs.Success)
	assert.Equal(t, "اله", obs.Root)
}
