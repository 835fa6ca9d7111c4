package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneRecordings(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	write := func(rel string, age time.Duration) string {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("RIFF"), 0o644))
		mt := now.Add(-age)
		require.NoError(t, os.Chtimes(p, mt, mt))
		return p
	}

	old := write("ae-1/old.wav", 48*time.Hour)
	fresh := write("ae-1/fresh.wav", time.Hour)
	oldOther := write("ae-2/OLD.WAV", 72*time.Hour)
	notes := write("ae-2/notes.txt", 72*time.Hour)

	n, err := PruneRecordings(root, 24*time.Hour, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoFileExists(t, old)
	assert.NoFileExists(t, oldOther)
	assert.FileExists(t, fresh)
	assert.FileExists(t, notes)
}

func TestPruneRecordingsMissingRoot(t *testing.T) {
	n, err := PruneRecordings(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPruneRecordingsDisabled(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "a.wav")
	require.NoError(t, os.WriteFile(p, []byte("RIFF"), 0o644))

	n, err := PruneRecordings(root, 0, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, p)
}
