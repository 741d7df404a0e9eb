package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func TestDecode_Defaults(t *testing.T) {
	cfg, err := decode(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.TTS.Type)
	assert.Equal(t, 1.0, cfg.TTS.Speed)
	assert.Equal(t, 1.0, cfg.TTS.Pitch)
	assert.Equal(t, time.Duration(0), cfg.TTS.Watchdog)
	assert.Equal(t, "file", cfg.Progress.Backend)
	assert.Equal(t, DataDir(), cfg.Progress.Path)
	assert.Equal(t, "readaloud", cfg.Progress.Redis.Prefix)
	assert.Equal(t, 30*time.Second, cfg.Library.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Library.CacheMaxAge)
}

func TestDecode_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readaloud.yaml")
	yaml := `
tts:
  type: mock
  speed: 1.5
  language: zh-TW
  watchdog: 45s
progress:
  backend: redis
  redis:
    addr: 127.0.0.1:6390
    ttl: 720h
library:
  location: https://example.com/texts
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	v := newTestViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.TTS.Type)
	assert.Equal(t, 1.5, cfg.TTS.Speed)
	assert.Equal(t, "zh-TW", cfg.TTS.Language)
	assert.Equal(t, 45*time.Second, cfg.TTS.Watchdog)
	assert.Equal(t, "redis", cfg.Progress.Backend)
	assert.Equal(t, "127.0.0.1:6390", cfg.Progress.Redis.Addr)
	assert.Equal(t, 720*time.Hour, cfg.Progress.Redis.TTL)
	assert.Equal(t, "https://example.com/texts", cfg.Library.Location)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Progress.Backend = "s3" }, true},
		{"file without path", func(c *Config) { c.Progress.Path = "" }, true},
		{"redis without addr", func(c *Config) {
			c.Progress.Backend = "redis"
			c.Progress.Redis.Addr = ""
		}, true},
		{"zero speed", func(c *Config) { c.TTS.Speed = 0 }, true},
		{"loud volume", func(c *Config) { c.TTS.Volume = 1.5 }, true},
		{"pitch out of range", func(c *Config) { c.TTS.Pitch = 3 }, true},
		{"negative sleep is clamped", func(c *Config) { c.TTS.SleepMinutes = -5 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := decode(newTestViper())
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.GreaterOrEqual(t, cfg.TTS.SleepMinutes, 0)
		})
	}
}
