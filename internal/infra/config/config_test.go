package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SPOTIFY_CLIENT_ID", "SPOTIFY_CLIENT_SECRET", "SPOTIFY_REFRESH_TOKEN", "LASTFM_API_KEY", "TUNEDL_DOWNLOAD_PATH"} {
		t.Setenv(k, "")
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Server.ShutdownTimeoutSec)
	assert.Equal(t, 3, cfg.Queue.ConcurrencyLimit)
	assert.Equal(t, 100, cfg.Queue.MaxItems)
	assert.Equal(t, "downloads", cfg.Download.Path)
	assert.Equal(t, "high", cfg.Download.Quality)
	assert.Equal(t, "mp3", cfg.Download.Format)
	assert.Equal(t, "ytdlp", cfg.Dispatch.Backend)
	assert.Equal(t, 500, cfg.Dispatch.YtDlp.ProgressIntervalMs)
	assert.Equal(t, "%(artist)s/%(title)s.%(ext)s", cfg.Dispatch.YtDlp.OutputTemplate)
	assert.Equal(t, 10, cfg.Dispatch.Simulated.Steps)
	assert.Equal(t, "data/tunedl.db", cfg.Store.Path)
	assert.Equal(t, "US", cfg.Spotify.Market)
	assert.False(t, cfg.Spotify.Enabled())
	assert.False(t, cfg.LastFM.Enabled())
	assert.Equal(t, time.Hour, cfg.Watch.Interval())
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Metrics.Disabled)
}

func TestParse_Values(t *testing.T) {
	clearEnv(t)

	data := []byte(`
server:
  addr: ":9090"
  hooks:
    on_started: ["echo started"]
queue:
  concurrency_limit: 5
  max_items: 50
download:
  path: /music
  quality: lossless
  format: flac
dispatch:
  backend: simulated
  simulated:
    step_ms: 10
    steps: 3
spotify:
  client_id: id
  client_secret: secret
  refresh_token: token
  market: JP
watch:
  enabled: true
  interval_sec: 600
filters:
  source_host_filter:
    enabled: true
    settings:
      allowed_hosts: [spotify.com]
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"echo started"}, cfg.Server.Hooks.OnStarted)
	assert.Equal(t, 5, cfg.Queue.ConcurrencyLimit)
	assert.Equal(t, 50, cfg.Queue.MaxItems)
	assert.Equal(t, "/music", cfg.Download.Path)
	assert.Equal(t, "lossless", cfg.Download.Quality)
	assert.Equal(t, "flac", cfg.Download.Format)
	assert.Equal(t, "simulated", cfg.Dispatch.Backend)
	assert.Equal(t, 10, cfg.Dispatch.Simulated.StepMs)
	assert.True(t, cfg.Spotify.Enabled())
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.True(t, cfg.Watch.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Watch.Interval())
	assert.True(t, cfg.IsFilterEnabled("source_host_filter"))
	assert.False(t, cfg.IsFilterEnabled("kind_limit_filter"))
	assert.Equal(t, []any{"spotify.com"}, cfg.Filters["source_host_filter"].Settings["allowed_hosts"])
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"concurrency above max", "queue: {concurrency_limit: 11}"},
		{"negative concurrency", "queue: {concurrency_limit: -1}"},
		{"unknown quality", "download: {quality: ultra}"},
		{"unknown format", "download: {format: wav}"},
		{"unknown backend", "dispatch: {backend: torrent}"},
		{"partial spotify credentials", "spotify: {client_id: only-id}"},
		{"bad market", "spotify: {market: JPN}"},
		{"watch without spotify", "watch: {enabled: true}"},
		{"watch interval too short", "watch: {interval_sec: 5}"},
		{"metrics path without slash", "metrics: {path: metrics}"},
		{"broken yaml", "queue: ["},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "env-secret")
	t.Setenv("SPOTIFY_REFRESH_TOKEN", "env-token")
	t.Setenv("LASTFM_API_KEY", "env-key")
	t.Setenv("TUNEDL_DOWNLOAD_PATH", "/env/music")

	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("spotify:\n  client_id: file-id\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-id", cfg.Spotify.ClientID)
	assert.Equal(t, "env-secret", cfg.Spotify.ClientSecret)
	assert.Equal(t, "env-token", cfg.Spotify.RefreshToken)
	assert.True(t, cfg.LastFM.Enabled())
	assert.Equal(t, "/env/music", cfg.Download.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
