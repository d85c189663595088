package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
transcript_root = "/srv/transcripts"
remote_url = "https://backend.example.com"
debounce = "250ms"
session_ttl = "2m"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/transcripts", cfg.TranscriptRoot)
	assert.Equal(t, "https://backend.example.com", cfg.RemoteURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 2*time.Minute, cfg.SessionTTL)
	// Untouched fields keep their defaults.
	assert.Equal(t, 200*time.Millisecond, cfg.Stabilize)
	assert.Equal(t, 30*time.Second, cfg.MessageTTL)
	assert.NotEmpty(t, cfg.IndexPath)
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`debounce = "soonish"`), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
