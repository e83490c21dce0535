package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleConfig struct {
	HTTP struct {
		Port string `yaml:"port" env:"SAMPLE_HTTP_PORT"`
	} `yaml:"http"`
	Session struct {
		TickInterval time.Duration `yaml:"tickInterval"`
		SyncLogs     bool          `yaml:"syncLogs"`
	} `yaml:"session"`
	Ratio   float64  `yaml:"ratio"`
	Brokers []string `yaml:"brokers"`
	Secret  string   `env:"-"`
}

func mapLookup(values map[string]string) lookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestPopulateFromEnv(t *testing.T) {
	var cfg sampleConfig
	cfg.Secret = "keep"

	err := populateFromEnv(reflect.ValueOf(&cfg).Elem(), "", mapLookup(map[string]string{
		"SAMPLE_HTTP_PORT":     "9090",
		"SESSION_TICKINTERVAL": "250ms",
		"SESSION_SYNCLOGS":     "true",
		"RATIO":                "0.75",
		"BROKERS":              "a:1, b:2,",
		"SECRET":               "overwritten",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.TickInterval)
	assert.True(t, cfg.Session.SyncLogs)
	assert.InDelta(t, 0.75, cfg.Ratio, 1e-9)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Brokers)
	assert.Equal(t, "keep", cfg.Secret)
}

func TestPopulateFromEnvReportsKey(t *testing.T) {
	var cfg sampleConfig
	err := populateFromEnv(reflect.ValueOf(&cfg).Elem(), "", mapLookup(map[string]string{
		"SESSION_SYNCLOGS": "maybe",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SYNCLOGS")
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: \"7000\"\nsession:\n  tickInterval: 2s\n"), 0o600))

	t.Setenv(PathEnv, path)
	t.Setenv("SAMPLE_HTTP_PORT", "7001")

	var cfg sampleConfig
	require.NoError(t, LoadConfig(&cfg))
	assert.Equal(t, "7001", cfg.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.Session.TickInterval)
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	assert.Error(t, LoadConfig(nil))
	assert.Error(t, LoadConfig(sampleConfig{}))
}

func TestPopulateFromEnvIgnoresEmptyValues(t *testing.T) {
	var cfg sampleConfig
	cfg.HTTP.Port = "8000"
	err := populateFromEnv(reflect.ValueOf(&cfg).Elem(), "", mapLookup(map[string]string{
		"SAMPLE_HTTP_PORT": "",
		"SESSION_SYNCLOGS": "  ",
	}))
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.HTTP.Port)
}
