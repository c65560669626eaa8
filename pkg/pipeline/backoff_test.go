package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/notifykit/notifykit/pkg/pipeline"
)

func TestBackoff_Delay(t *testing.T) {
	t.Parallel()

	t.Run("exponential with jitter bounds", func(t *testing.T) {
		t.Parallel()

		b := pipeline.Backoff{Base: time.Second}
		for attempt := range 5 {
			expected := time.Second << uint(attempt)
			for range 50 {
				d := b.Delay(attempt)
				assert.GreaterOrEqual(t, d, expected, "attempt %d", attempt)
				assert.Less(t, d, expected+time.Second, "attempt %d", attempt)
			}
		}
	})

	t.Run("max caps the delay", func(t *testing.T) {
		t.Parallel()

		b := pipeline.Backoff{Base: time.Second, Max: 5 * time.Second}
		for range 50 {
			assert.LessOrEqual(t, b.Delay(10), 5*time.Second)
		}
	})

	t.Run("zero base falls back to default", func(t *testing.T) {
		t.Parallel()

		d := pipeline.Backoff{}.Delay(0)
		assert.GreaterOrEqual(t, d, pipeline.DefaultBackoffBase)
		assert.Less(t, d, 2*pipeline.DefaultBackoffBase)
	})

	t.Run("negative attempt is clamped", func(t *testing.T) {
		t.Parallel()

		b := pipeline.Backoff{Base: time.Second}
		d := b.Delay(-3)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 2*time.Second)
	})

	t.Run("huge attempt does not overflow", func(t *testing.T) {
		t.Parallel()

		b := pipeline.Backoff{Base: time.Second}
		assert.Positive(t, b.Delay(1 << 30))
	})
}
