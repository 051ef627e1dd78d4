package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "kwpulse.toml")

	require.NoError(t, WriteDefault(path, false))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	report, err := CheckFile(path)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report)
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kwpulse.toml")
	writeFile(t, path, "[database]\npath = \"mine.db\"\n")

	err := WriteDefault(path, false)
	require.Error(t, err)

	require.NoError(t, WriteDefault(path, true))
	backup, err := os.ReadFile(path + ".back1")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "mine.db")
}

func TestCreateBackup_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kwpulse.toml")

	for _, content := range []string{"one", "two", "three", "four"} {
		writeFile(t, path, content)
		require.NoError(t, createBackup(path))
	}

	for suffix, want := range map[string]string{".back1": "four", ".back2": "three", ".back3": "two"} {
		got, err := os.ReadFile(path + suffix)
		require.NoError(t, err)
		assert.Equal(t, want, string(got), suffix)
	}
}

func TestCheckFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("unknown keys", func(t *testing.T) {
		path := filepath.Join(dir, "unknown.toml")
		writeFile(t, path, `
[discovery]
keyword_delay = 5

[server]
port = 8080
`)
		report, err := CheckFile(path)
		require.NoError(t, err)
		assert.False(t, report.OK())
		assert.Contains(t, report.UnknownKeys, "discovery.keyword_delay")
		assert.Contains(t, report.UnknownKeys, "server.port")
	})

	t.Run("invalid value", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.toml")
		writeFile(t, path, "[catalog.cache]\nbackend = \"memcached\"\n")

		report, err := CheckFile(path)
		require.NoError(t, err)
		assert.Empty(t, report.UnknownKeys)
		assert.Error(t, report.Err)
		assert.False(t, report.OK())
	})

	t.Run("syntax error", func(t *testing.T) {
		path := filepath.Join(dir, "broken.toml")
		writeFile(t, path, "[[[discovery\n")

		_, err := CheckFile(path)
		assert.Error(t, err)
	})
}
