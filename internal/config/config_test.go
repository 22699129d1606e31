package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/config")

	cfg, err := Load(afero.NewMemMapFs(), "", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultOutputFolder(), cfg.Output.Folder)
	assert.Equal(t, "mp3", cfg.Download.Format)
	assert.Equal(t, "192k", cfg.Download.Bitrate)
	assert.Equal(t, "yt-dlp", cfg.Download.YtDlp)
	assert.Equal(t, "ffmpeg", cfg.Download.FFmpeg)
	assert.Zero(t, cfg.Download.MaxPasses)
	assert.Equal(t, 2*time.Second, cfg.Download.RetryCooldown)
	assert.Equal(t, time.Minute, cfg.Download.RetryCooldownMax)
	assert.True(t, cfg.Metadata.Enabled)
	assert.Equal(t, 720*time.Hour, cfg.Metadata.CacheTTL)
	assert.InDelta(t, 0.8, cfg.Playback.Volume, 1e-9)
	assert.Equal(t, 500*time.Millisecond, cfg.Playback.ProgressInterval)
	assert.True(t, cfg.Playback.PauseFirstTrack)
	assert.False(t, cfg.Presence.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Presence.Interval)
	assert.Equal(t, "alt+p", cfg.Hotkeys.Play)
	assert.Equal(t, "alt+k", cfg.Hotkeys.Bindings()["quit"])
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_PresenceAndHotkeys(t *testing.T) {
	t.Setenv("TUBETUNE_PRESENCE_TOKEN", "secret")

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte(`
presence:
  enabled: true
  interval: 30s
hotkeys:
  play: space
  mute: ""
`), 0o644))

	cfg, err := Load(fs, "/c.yaml", nil)
	require.NoError(t, err)
	assert.True(t, cfg.Presence.Enabled)
	assert.Equal(t, "secret", cfg.Presence.Token)
	assert.Equal(t, 30*time.Second, cfg.Presence.Interval)

	bindings := cfg.Hotkeys.Bindings()
	assert.Equal(t, "space", bindings["play"])
	assert.Empty(t, bindings["mute"])
	assert.Equal(t, "alt+n", bindings["skip"])
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/config")
	t.Setenv("TUBETUNE_DOWNLOAD_BITRATE", "320k")

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/config", AppName, "config.yaml"), []byte(`
output:
  folder: /srv/music
download:
  format: FLAC
  bitrate: 128k
  max_passes: 3
  retry_cooldown: 5s
metadata:
  enabled: false
playback:
  volume: 0.5
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(fs, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "/srv/music", cfg.Output.Folder)
	assert.Equal(t, "320k", cfg.Download.Bitrate, "environment wins over the file")
	assert.Equal(t, 3, cfg.Download.MaxPasses)
	assert.InDelta(t, 0.5, cfg.Playback.Volume, 1e-9)

	params := cfg.DownloadParams()
	assert.Equal(t, domain.DownloadParams{
		Format:           "flac",
		Bitrate:          "320k",
		MaxPasses:        3,
		RetryCooldown:    5 * time.Second,
		RetryExponent:    2,
		RetryCooldownMax: time.Minute,
	}, params)

	logCfg := cfg.Logger()
	assert.Equal(t, slog.LevelDebug, logCfg.Level)
	assert.Equal(t, "json", logCfg.Format)
}

func TestLoad_ExplicitPath(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(fs, "/etc/tubetune.yaml", nil)
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/etc/tubetune.yaml", []byte("download:\n  format: wav\n"), 0o644))
	cfg, err := Load(fs, "/etc/tubetune.yaml", nil)
	require.NoError(t, err)
	assert.Equal(t, "wav", cfg.Download.Format)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"volume too loud", "playback:\n  volume: 1.5\n", "playback.volume"},
		{"negative passes", "download:\n  max_passes: -1\n", "download.max_passes"},
		{"shrinking cooldown", "download:\n  retry_exponent: 0.5\n", "download.retry_exponent"},
		{"unknown log format", "log:\n  format: xml\n", "log.format"},
		{"empty format", "download:\n  format: \"\"\n", "download.format"},
		{"presence without token", "presence:\n  enabled: true\n", "presence.token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/c.yaml", []byte(tt.yaml), 0o644))

			_, err := Load(fs, "/c.yaml", nil)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLoad_FlagsWin(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/config")
	t.Setenv("TUBETUNE_OUTPUT_FOLDER", "/from/env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("library", "", "")
	flags.String("log-format", "text", "")
	require.NoError(t, flags.Parse([]string{"--library", "/from/flag"}))

	cfg, err := Load(afero.NewMemMapFs(), "", map[string]*pflag.Flag{
		"output.folder": flags.Lookup("library"),
		"log.format":    flags.Lookup("log-format"),
	})
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.Output.Folder)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestEnvKeyReplacer(t *testing.T) {
	assert.Equal(t, "download_retry_cooldown", EnvKeyReplacer.Replace("download.retry_cooldown"))
}
