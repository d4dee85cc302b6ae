package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://api.example.com
  timeout: 5s
push:
  url: wss://push.example.com/events
timeline:
  page_size: 25
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	require.Equal(t, 5*time.Second, cfg.API.Timeout)
	require.Equal(t, "wss://push.example.com/events", cfg.Push.URL)
	require.Equal(t, 10*time.Second, cfg.Push.HandshakeTimeout, "unset fields keep defaults")
	require.Equal(t, 25, cfg.Timeline.PageSize)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvVarOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeline:\n  page_size: 25\n"), 0o644))

	t.Setenv("SEAM_TIMELINE_PAGE_SIZE", "10")
	t.Setenv("SEAM_LOGGING_LEVEL", "warn")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Timeline.PageSize)
	require.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeline:\n  page_size: 0\n"), 0o644))

	_, err := LoadFromFile(path)
	require.ErrorContains(t, err, "page_size")
}

func TestExplicitMissingFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateRejectsBadURLs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "ftp://example.com"
	require.ErrorContains(t, cfg.Validate(), "api.base_url")

	cfg = DefaultConfig()
	cfg.Push.URL = "https://not-a-socket.example.com"
	require.ErrorContains(t, cfg.Validate(), "push.url")
}

func TestValidateRejectsUnknownTimezone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timeline.Timezone = "Mars/Olympus_Mons"
	require.ErrorContains(t, cfg.Validate(), "timezone")
}

func TestLocationFallsBackToLocal(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, time.Local, cfg.Location())

	cfg.Timeline.Timezone = "Europe/Oslo"
	loc := cfg.Location()
	require.Equal(t, "Europe/Oslo", loc.String())
}
