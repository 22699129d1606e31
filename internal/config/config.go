// Package config loads the TubeTune settings with viper: defaults, then the config file,
// then TUBETUNE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tejashwikalptaru/tubetune/internal/domain"
	"github.com/tejashwikalptaru/tubetune/internal/logger"
)

const (
	// AppName names the config directory and the env prefix.
	AppName = "tubetune"

	fileName = "config"
	fileType = "yaml"
)

// EnvKeyReplacer maps config keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config is the typed view of every setting.
type Config struct {
	Output   OutputConfig   `mapstructure:"output"`
	Download DownloadConfig `mapstructure:"download"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Presence PresenceConfig `mapstructure:"presence"`
	Hotkeys  HotkeyConfig   `mapstructure:"hotkeys"`
	Log      LogConfig      `mapstructure:"log"`
}

// OutputConfig locates the library on disk.
type OutputConfig struct {
	Folder string `mapstructure:"folder"`
}

// DownloadConfig drives the download worker and the external tools.
type DownloadConfig struct {
	Format           string        `mapstructure:"format"`
	Bitrate          string        `mapstructure:"bitrate"`
	YtDlp            string        `mapstructure:"ytdlp"`
	FFmpeg           string        `mapstructure:"ffmpeg"`
	MaxPasses        int           `mapstructure:"max_passes"`
	RetryCooldown    time.Duration `mapstructure:"retry_cooldown"`
	RetryExponent    float64       `mapstructure:"retry_exponent"`
	RetryCooldownMax time.Duration `mapstructure:"retry_cooldown_max"`
}

// MetadataConfig controls album lookups.
type MetadataConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	UserAgent string        `mapstructure:"user_agent"`
}

// PlaybackConfig tunes the sequencer.
type PlaybackConfig struct {
	Volume           float64       `mapstructure:"volume"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	PauseFirstTrack  bool          `mapstructure:"pause_first_track"`
}

// PresenceConfig controls the "listening to" status shown on Discord.
type PresenceConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Token    string        `mapstructure:"token"`
	Interval time.Duration `mapstructure:"interval"`
}

// HotkeyConfig binds key combos to actions in key mode; an empty combo leaves the action unbound.
type HotkeyConfig struct {
	Play     string `mapstructure:"play"`
	Skip     string `mapstructure:"skip"`
	Previous string `mapstructure:"previous"`
	Shuffle  string `mapstructure:"shuffle"`
	Loop     string `mapstructure:"loop"`
	Mute     string `mapstructure:"mute"`
	Home     string `mapstructure:"home"`
	Quit     string `mapstructure:"quit"`
}

// Bindings maps action names to combos.
func (h HotkeyConfig) Bindings() map[string]string {
	return map[string]string{
		"play":     h.Play,
		"skip":     h.Skip,
		"previous": h.Previous,
		"shuffle":  h.Shuffle,
		"loop":     h.Loop,
		"mute":     h.Mute,
		"home":     h.Home,
		"quit":     h.Quit,
	}
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the value of every key before the file and the environment apply.
func Defaults() map[string]any {
	return map[string]any{
		"output.folder":               DefaultOutputFolder(),
		"download.format":             "mp3",
		"download.bitrate":            "192k",
		"download.ytdlp":              "yt-dlp",
		"download.ffmpeg":             "ffmpeg",
		"download.max_passes":         0,
		"download.retry_cooldown":     2 * time.Second,
		"download.retry_exponent":     2.0,
		"download.retry_cooldown_max": time.Minute,
		"metadata.enabled":            true,
		"metadata.cache_ttl":          720 * time.Hour,
		"metadata.user_agent":         "TubeTune/dev ( https://github.com/tejashwikalptaru/tubetune )",
		"playback.volume":             0.8,
		"playback.progress_interval":  500 * time.Millisecond,
		"playback.pause_first_track":  true,
		"presence.enabled":            false,
		"presence.token":              "",
		"presence.interval":           15 * time.Second,
		"hotkeys.play":                "alt+p",
		"hotkeys.skip":                "alt+n",
		"hotkeys.previous":            "alt+o",
		"hotkeys.shuffle":             "alt+s",
		"hotkeys.loop":                "alt+l",
		"hotkeys.mute":                "alt+u",
		"hotkeys.home":                "alt+h",
		"hotkeys.quit":                "alt+k",
		"log.level":                   "INFO",
		"log.format":                  "text",
	}
}

// DefaultOutputFolder is ~/Music/TubeTune, or a relative folder when there is no home.
func DefaultOutputFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "TubeTune"
	}
	return filepath.Join(home, "Music", "TubeTune")
}

// Dir is the directory searched for config.yaml.
func Dir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, AppName)
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(dir, AppName)
}

// Load reads the configuration from fs. An empty path searches Dir() and tolerates a missing
// file; an explicit path must exist. flags maps config keys to command line flags, which win
// over every other source once set.
func Load(fs afero.Fs, path string, flags map[string]*pflag.Flag) (Config, error) {
	v := New(fs)
	for key, flag := range flags {
		if err := v.BindPFlag(key, flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", key, err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(fileName)
		v.SetConfigType(fileType)
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return Decode(v)
}

// New returns a viper instance over fs with the defaults and env bindings in place.
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()
	v.SetTypeByDefaultValue(true)
	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	return v
}

// Decode unmarshals v and validates the result.
func Decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the components cannot work with.
func (c Config) Validate() error {
	switch {
	case c.Output.Folder == "":
		return domain.NewValidationError("output.folder", c.Output.Folder, "must not be empty")
	case c.Download.Format == "":
		return domain.NewValidationError("download.format", c.Download.Format, "must not be empty")
	case c.Download.MaxPasses < 0:
		return domain.NewValidationError("download.max_passes", c.Download.MaxPasses, "must not be negative")
	case c.Download.RetryCooldown < 0:
		return domain.NewValidationError("download.retry_cooldown", c.Download.RetryCooldown, "must not be negative")
	case c.Download.RetryExponent < 1:
		return domain.NewValidationError("download.retry_exponent", c.Download.RetryExponent, "must be at least 1")
	case c.Playback.Volume < 0 || c.Playback.Volume > 1:
		return domain.NewValidationError("playback.volume", c.Playback.Volume, "must be between 0.0 and 1.0")
	case c.Presence.Enabled && c.Presence.Token == "":
		return domain.NewValidationError("presence.token", "", "must be set when presence is enabled")
	case c.Presence.Interval < 0:
		return domain.NewValidationError("presence.interval", c.Presence.Interval, "must not be negative")
	case c.Log.Format != "text" && c.Log.Format != "json":
		return domain.NewValidationError("log.format", c.Log.Format, "must be text or json")
	}
	return nil
}

// DownloadParams are the parameters sent with every download command.
func (c Config) DownloadParams() domain.DownloadParams {
	return domain.DownloadParams{
		Format:            strings.ToLower(c.Download.Format),
		Bitrate:           c.Download.Bitrate,
		UseMetadataLookup: c.Metadata.Enabled,
		MaxPasses:         c.Download.MaxPasses,
		RetryCooldown:     c.Download.RetryCooldown,
		RetryExponent:     c.Download.RetryExponent,
		RetryCooldownMax:  c.Download.RetryCooldownMax,
	}
}

// Logger returns the logger configuration; unknown levels fall back to INFO.
func (c Config) Logger() logger.Config {
	return logger.Config{
		Level:  logger.ParseLevel(c.Log.Level, slog.LevelInfo),
		Format: c.Log.Format,
	}
}
