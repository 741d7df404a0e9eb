package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the typed view of the viper configuration.
type Config struct {
	TTS      TTSConfig      `mapstructure:"tts"`
	Progress ProgressConfig `mapstructure:"progress"`
	Library  LibraryConfig  `mapstructure:"library"`
	Log      LogConfig      `mapstructure:"log"`
}

type TTSConfig struct {
	Type         string  `mapstructure:"type"`
	Voice        string  `mapstructure:"voice"`
	Speed        float64 `mapstructure:"speed"`
	Volume       float64 `mapstructure:"volume"`
	Pitch        float64 `mapstructure:"pitch"`
	Language     string  `mapstructure:"language"`
	SleepMinutes int     `mapstructure:"sleep_minutes"`
	CachePath    string  `mapstructure:"cache_path"`
	// Watchdog fails an utterance that never reports back. Zero disables it.
	Watchdog time.Duration `mapstructure:"watchdog"`
}

type ProgressConfig struct {
	Backend string      `mapstructure:"backend"` // file, redis or memory
	Path    string      `mapstructure:"path"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LibraryConfig struct {
	// Location is a directory or base URL holding library.json.
	Location    string        `mapstructure:"location"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// CacheMaxAge is how long a remote library.json is trusted. Zero disables the cache.
	CacheMaxAge time.Duration `mapstructure:"cache_max_age"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("tts.type", "auto") // Auto-select best engine
	v.SetDefault("tts.voice", "default")
	v.SetDefault("tts.speed", 1.0)
	v.SetDefault("tts.volume", 1.0)
	v.SetDefault("tts.pitch", 1.0)
	v.SetDefault("tts.language", "")
	v.SetDefault("tts.sleep_minutes", 0)
	v.SetDefault("tts.cache_path", filepath.Join(DataDir(), "audio"))
	v.SetDefault("tts.watchdog", time.Duration(0))

	v.SetDefault("progress.backend", "file")
	v.SetDefault("progress.path", DataDir())
	v.SetDefault("progress.redis.addr", "localhost:6379")
	v.SetDefault("progress.redis.prefix", "readaloud")

	v.SetDefault("library.location", "texts")
	v.SetDefault("library.timeout", 30*time.Second)
	v.SetDefault("library.cache_max_age", 24*time.Hour)

	v.SetDefault("log.level", "warn")
}

// Init points the global viper instance at readaloud.yaml and READALOUD_ env
// vars. A missing config file is not an error.
func Init(configFile string) error {
	v := viper.GetViper()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("readaloud")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.readaloud")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("READALOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		logrus.Debug("No config file found, using defaults")
	}
	return nil
}

// Load decodes the global viper instance.
func Load() (*Config, error) {
	return decode(viper.GetViper())
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks ranges and clamps soft values.
func (c *Config) Validate() error {
	switch c.Progress.Backend {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("invalid progress backend: %s (must be 'file', 'redis' or 'memory')", c.Progress.Backend)
	}
	if c.Progress.Backend == "file" && c.Progress.Path == "" {
		return fmt.Errorf("progress.path is required for the file backend")
	}
	if c.Progress.Backend == "redis" && c.Progress.Redis.Addr == "" {
		return fmt.Errorf("progress.redis.addr is required for the redis backend")
	}

	if c.TTS.Speed <= 0 || c.TTS.Speed > 10 {
		return fmt.Errorf("tts.speed must be in (0, 10]: %v", c.TTS.Speed)
	}
	if c.TTS.Volume < 0 || c.TTS.Volume > 1 {
		return fmt.Errorf("tts.volume must be in [0, 1]: %v", c.TTS.Volume)
	}
	if c.TTS.Pitch < 0 || c.TTS.Pitch > 2 {
		return fmt.Errorf("tts.pitch must be in [0, 2]: %v", c.TTS.Pitch)
	}
	if c.TTS.SleepMinutes < 0 {
		c.TTS.SleepMinutes = 0
	}
	return nil
}

// ConfigureLogging applies log.level to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		logrus.WithError(err).WithField("level", c.Log.Level).Warn("Unknown log level, keeping default")
		return
	}
	logrus.SetLevel(level)
}

// DataDir returns the directory for progress and cached audio.
func DataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "readaloud")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".readaloud")
	}
	return ".readaloud"
}
