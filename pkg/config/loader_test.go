package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/config"
)

// No t.Parallel: the tests mutate process environment via t.Setenv.

type workerConfig struct {
	Count       int           `env:"TEST_WORKER_COUNT" envDefault:"4"`
	SendTimeout time.Duration `env:"TEST_SEND_TIMEOUT" envDefault:"10s"`
}

type requiredConfig struct {
	Token string `env:"TEST_REQUIRED_TOKEN,required"`
}

func TestLoad(t *testing.T) {
	t.Run("nil pointer", func(t *testing.T) {
		err := config.Load[workerConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})

	t.Run("defaults and overrides", func(t *testing.T) {
		t.Setenv("TEST_WORKER_COUNT", "8")

		var cfg workerConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 8, cfg.Count)
		assert.Equal(t, 10*time.Second, cfg.SendTimeout)
	})

	t.Run("cached after first load", func(t *testing.T) {
		// The previous subtest parsed workerConfig with TEST_WORKER_COUNT=8;
		// later environment changes must not leak into new loads.
		t.Setenv("TEST_WORKER_COUNT", "99")

		var cfg workerConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, 8, cfg.Count)
	})

	t.Run("missing required variable", func(t *testing.T) {
		var cfg requiredConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})
}

func TestMustLoad(t *testing.T) {
	t.Run("panics on failure", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg requiredConfig
			config.MustLoad(&cfg)
		})
	})
}
