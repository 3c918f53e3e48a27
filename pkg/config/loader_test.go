package config_test

import (
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/config"
)

type cachedConfig struct {
	Value string `env:"NOTIFYKIT_TEST_CACHED" envDefault:"default"`
}

type parsedConfig struct {
	Queue   string   `env:"QUEUE" envDefault:"notifications.email"`
	Workers int      `env:"WORKERS" envDefault:"4"`
	Tags    []string `env:"TAGS" envSeparator:","`
}

type requiredConfig struct {
	URL string `env:"NOTIFYKIT_TEST_REQUIRED_URL,required"`
}

func TestLoad(t *testing.T) {
	t.Setenv("NOTIFYKIT_TEST_CACHED", "first")

	var cfg cachedConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "first", cfg.Value)

	t.Setenv("NOTIFYKIT_TEST_CACHED", "second")
	var again cachedConfig
	require.NoError(t, config.Load(&again))
	assert.Equal(t, "first", again.Value, "config types are parsed once")
}

func TestLoadRequiredMissing(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)
	assert.Panics(t, func() { config.MustLoad(&cfg) })
}

func TestLoadNil(t *testing.T) {
	assert.ErrorIs(t, config.Load[cachedConfig](nil), config.ErrNilPointer)
}

func TestParseWithPrefix(t *testing.T) {
	t.Setenv("SMS_QUEUE", "notifications.sms")
	t.Setenv("SMS_TAGS", "a,b")

	var cfg parsedConfig
	require.NoError(t, config.Parse(&cfg, env.Options{Prefix: "SMS_"}))
	assert.Equal(t, "notifications.sms", cfg.Queue)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"a", "b"}, cfg.Tags)
}
