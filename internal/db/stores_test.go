package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := NewDatabase(filepath.Join(t.TempDir(), "murmurlink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestConnectionHistory(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.RecordConnection("voice.example.com:64738", "alice"))
	require.NoError(t, d.RecordConnection("voice.example.com:64738", "alice"))
	require.NoError(t, d.RecordConnection("other.example.com:64738", "alice"))

	records, err := d.ConnectionHistory(10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	byAddr := map[string]ConnectionRecord{}
	for _, r := range records {
		byAddr[r.Address] = r
	}
	assert.Equal(t, 2, byAddr["voice.example.com:64738"].ConnectCount)
	assert.Equal(t, 1, byAddr["other.example.com:64738"].ConnectCount)
}

func TestVolumeOverrides(t *testing.T) {
	d := openTestDB(t)

	require.NoError(t, d.SetVolumeOverride("alice", 0.5))
	require.NoError(t, d.SetVolumeOverride("bob", 1.5))
	require.NoError(t, d.SetVolumeOverride("alice", 0.75))

	overrides, err := d.VolumeOverrides()
	require.NoError(t, err)
	assert.Equal(t, map[string]float32{"alice": 0.75, "bob": 1.5}, overrides)

	require.NoError(t, d.DeleteVolumeOverride("bob"))
	overrides, err = d.VolumeOverrides()
	require.NoError(t, err)
	assert.Equal(t, map[string]float32{"alice": 0.75}, overrides)
}
