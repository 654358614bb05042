package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, os.IsNotExist(err), "missing file must stay distinguishable from malformed")
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.False(t, os.IsNotExist(err))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	r := &Report{
		RunID:     "run-1",
		Timestamp: "2026-08-30T12:00:00Z",
		Items: []Item{
			{Mod: "mymod", File: "a.yml", Key: "EVENT.1", Message: "원문 텍스트"},
		},
	}
	require.NoError(t, r.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, r, loaded)
}

func TestToBatchGroupsByModInFirstSeenOrder(t *testing.T) {
	r := &Report{
		Timestamp: "2026-08-30T12:00:00Z",
		Items: []Item{
			{Mod: "b", Key: "B.1"},
			{Mod: "a", Key: "A.1"},
			{Mod: "b", Key: "B.2"},
		},
	}
	batch := r.ToBatch()

	assert.Equal(t, []string{"b", "a"}, batch.Mods)
	assert.Equal(t, []string{"B.1", "B.2"}, []string{batch.ByMod["b"][0].Key, batch.ByMod["b"][1].Key})
	assert.False(t, batch.Empty())
	assert.Equal(t, r.Timestamp, batch.Timestamp)
}

func TestEmptyBatch(t *testing.T) {
	assert.True(t, EmptyBatch("2026-08-30T12:00:00Z").Empty())
	assert.True(t, (&Report{}).ToBatch().Empty())
}

func TestCollector(t *testing.T) {
	c := NewCollector()
	assert.Equal(t, 0, c.Len())

	c.Add(Item{Mod: "m", Key: "K.1", Message: "x"})
	c.Add(Item{Mod: "m", Key: "K.2", Message: "y"})

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	r := c.Report(now)
	assert.Equal(t, "2026-08-30T12:00:00Z", r.Timestamp)
	assert.NotEmpty(t, r.RunID)
	require.Len(t, r.Items, 2)

	// The snapshot is detached from the collector.
	c.Add(Item{Mod: "m", Key: "K.3"})
	assert.Len(t, r.Items, 2)
}
