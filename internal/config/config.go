package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "VOICEMEMO"

// Config is the resolved configuration used by every command.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Player   PlayerConfig   `mapstructure:"player" yaml:"player"`
	Screen   ScreenConfig   `mapstructure:"screen" yaml:"screen"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`

	// Profile is the name of the profile that was overlaid, empty for none.
	Profile string `mapstructure:"-" yaml:"profile,omitempty"`
}

// RootConfig mirrors the file layout: base settings plus named profiles.
type RootConfig struct {
	ActiveConfig string                    `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]map[string]any `mapstructure:"configs" yaml:"configs"`
}

type StorageConfig struct {
	Directory      string `mapstructure:"directory" yaml:"directory"`
	Extension      string `mapstructure:"extension" yaml:"extension"`
	ProbeDurations bool   `mapstructure:"probe_durations" yaml:"probe_durations"`
	ProbeWorkers   int    `mapstructure:"probe_workers" yaml:"probe_workers"`
}

type RecorderConfig struct {
	Backend     string        `mapstructure:"backend" yaml:"backend"` // "auto", "pulse", "alsa", "avfoundation"
	Device      string        `mapstructure:"device" yaml:"device"`
	Encoding    string        `mapstructure:"encoding" yaml:"encoding"`
	Source      string        `mapstructure:"source" yaml:"source"`
	SampleRate  int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels    int           `mapstructure:"channels" yaml:"channels"`
	Bitrate     string        `mapstructure:"bitrate" yaml:"bitrate"`
	Binary      string        `mapstructure:"binary" yaml:"binary"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

type PlayerConfig struct {
	Players     []string `mapstructure:"players" yaml:"players"` // in order of preference
	ProbeBinary string   `mapstructure:"probe_binary" yaml:"probe_binary"`
}

type ScreenConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	WatchDirectory bool          `mapstructure:"watch_directory" yaml:"watch_directory"`
}

type ServerConfig struct {
	Port string `mapstructure:"port" yaml:"port"`
}

// LogConfig enables a rotated log file next to stderr output.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"` // empty disables file logging
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

var supportedBackends = []string{"auto", "pulse", "alsa", "avfoundation"}

// DefaultPath returns the config file used when --config is not given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/voicememo.yaml")
}

func setDefaults(v *viper.Viper) {
	home := os.Getenv("HOME")

	v.SetDefault("storage.directory", filepath.Join(home, "Audio", "VoiceMemo"))
	v.SetDefault("storage.extension", ".aac")
	v.SetDefault("storage.probe_durations", true)
	v.SetDefault("storage.probe_workers", 4)

	v.SetDefault("recorder.backend", "auto")
	v.SetDefault("recorder.device", "default")
	v.SetDefault("recorder.encoding", "aac")
	v.SetDefault("recorder.source", "microphone")
	v.SetDefault("recorder.sample_rate", 44100)
	v.SetDefault("recorder.channels", 1)
	v.SetDefault("recorder.bitrate", "128k")
	v.SetDefault("recorder.binary", "ffmpeg")
	v.SetDefault("recorder.stop_timeout", 5*time.Second)

	v.SetDefault("player.players", []string{"ffplay", "mpv", "vlc"})
	v.SetDefault("player.probe_binary", "ffprobe")

	v.SetDefault("screen.tick_interval", time.Second)
	v.SetDefault("screen.watch_directory", false)

	v.SetDefault("server.port", "8080")

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
}

// Load reads configFile (if it exists) and overlays the active profile.
func Load(configFile string) (*Config, error) {
	return LoadWithProfile(configFile, "")
}

// LoadWithProfile resolves the configuration: defaults, then the file's base
// settings, then the selected profile, then VOICEMEMO_* environment variables.
// A missing file is only an error when it is not the default path.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			if !os.IsNotExist(err) || configFile != DefaultPath() {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		} else {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	configName := profile
	if configName == "" {
		configName = root.ActiveConfig
	}
	if configName != "" {
		overlay, exists := root.Configs[configName]
		if !exists {
			return nil, fmt.Errorf("configuration profile '%s' not found (available: %s)",
				configName, strings.Join(root.ProfileNames(), ", "))
		}
		if err := v.MergeConfigMap(overlay); err != nil {
			return nil, fmt.Errorf("error resolving configuration profile '%s': %w", configName, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Profile = configName

	cfg.Storage.Directory = expandPath(cfg.Storage.Directory)
	cfg.Storage.Extension = normalizeExtension(cfg.Storage.Extension)
	cfg.Log.File = expandPath(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadRoot reads the file layout (active profile and profile overlays)
// without resolving it. A missing file yields an empty RootConfig.
func LoadRoot(configFile string) (*RootConfig, error) {
	root := &RootConfig{}
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return root, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	if err := v.Unmarshal(root); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return root, nil
}

// ProfileNames returns the configured profile names, sorted.
func (r RootConfig) ProfileNames() []string {
	names := make([]string, 0, len(r.Configs))
	for name := range r.Configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the resolved configuration for values the recorder,
// player and screen cannot work with.
func (c *Config) Validate() error {
	if c.Storage.Directory == "" {
		return fmt.Errorf("storage.directory is required")
	}
	if c.Storage.Extension == "" || c.Storage.Extension == "." {
		return fmt.Errorf("storage.extension is required")
	}
	// the recorder always writes an ADTS AAC stream
	if c.Storage.Extension != ".aac" {
		return fmt.Errorf("storage.extension '%s' is not supported (only .aac)", c.Storage.Extension)
	}
	if c.Storage.ProbeWorkers < 1 {
		return fmt.Errorf("storage.probe_workers must be at least 1, got %d", c.Storage.ProbeWorkers)
	}

	if !contains(supportedBackends, strings.ToLower(c.Recorder.Backend)) {
		return fmt.Errorf("recorder.backend '%s' is not supported (valid: %s)",
			c.Recorder.Backend, strings.Join(supportedBackends, ", "))
	}
	if !strings.EqualFold(c.Recorder.Encoding, "aac") {
		return fmt.Errorf("recorder.encoding '%s' is not supported (only aac)", c.Recorder.Encoding)
	}
	if !strings.EqualFold(c.Recorder.Source, "microphone") {
		return fmt.Errorf("recorder.source '%s' is not supported (only microphone)", c.Recorder.Source)
	}
	if c.Recorder.SampleRate < 8000 || c.Recorder.SampleRate > 192000 {
		return fmt.Errorf("recorder.sample_rate %d out of range (8000-192000)", c.Recorder.SampleRate)
	}
	if c.Recorder.Channels != 1 && c.Recorder.Channels != 2 {
		return fmt.Errorf("recorder.channels must be 1 or 2, got %d", c.Recorder.Channels)
	}
	if c.Recorder.Binary == "" {
		return fmt.Errorf("recorder.binary is required")
	}
	if c.Recorder.StopTimeout <= 0 {
		return fmt.Errorf("recorder.stop_timeout must be positive")
	}

	if len(c.Player.Players) == 0 {
		return fmt.Errorf("player.players must list at least one player")
	}

	if c.Screen.TickInterval <= 0 {
		return fmt.Errorf("screen.tick_interval must be positive")
	}

	if c.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}

	if c.Log.File != "" && c.Log.MaxSizeMB < 1 {
		return fmt.Errorf("log.max_size_mb must be at least 1 when log.file is set")
	}

	return nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	// Separate instance so defaults are not written back
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
