package notification_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/notification"
)

func TestNew(t *testing.T) {
	t.Parallel()

	n := notification.New(notification.ChannelTelegram, notification.PriorityHigh, "12345", notification.Payload{Body: "hi"})

	assert.NotEqual(t, uuid.Nil, n.ID)
	assert.Equal(t, notification.StatusPending, n.Status)
	assert.Equal(t, notification.DefaultMaxAttempts, n.MaxAttempts)
	assert.Zero(t, n.AttemptCount)
	assert.False(t, n.CreatedAt.IsZero())
}

func TestNotification_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *notification.Notification {
		return notification.New(notification.ChannelTelegram, notification.PriorityNormal, "12345", notification.Payload{Body: "hi"})
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		require.NoError(t, valid().Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()
		n := valid()
		n.ID = uuid.Nil
		assert.ErrorIs(t, n.Validate(), notification.ErrMissingID)
	})

	t.Run("unknown channel", func(t *testing.T) {
		t.Parallel()
		n := valid()
		n.Channel = "carrier-pigeon"
		assert.ErrorIs(t, n.Validate(), notification.ErrInvalidChannel)
	})

	t.Run("priority out of range", func(t *testing.T) {
		t.Parallel()
		n := valid()
		n.Priority = 42
		assert.ErrorIs(t, n.Validate(), notification.ErrInvalidPriority)
	})

	t.Run("empty recipient", func(t *testing.T) {
		t.Parallel()
		n := valid()
		n.Recipient = ""
		assert.ErrorIs(t, n.Validate(), notification.ErrMissingRecipient)
	})

	t.Run("non-positive max attempts", func(t *testing.T) {
		t.Parallel()
		n := valid()
		n.MaxAttempts = 0
		assert.ErrorIs(t, n.Validate(), notification.ErrInvalidMaxAttempts)
	})
}

func TestStatus_Transitions(t *testing.T) {
	t.Parallel()

	allowed := []struct {
		from, to notification.Status
	}{
		{notification.StatusPending, notification.StatusQueued},
		{notification.StatusQueued, notification.StatusProcessing},
		{notification.StatusProcessing, notification.StatusDelivered},
		{notification.StatusProcessing, notification.StatusSent},
		{notification.StatusProcessing, notification.StatusFailed},
		{notification.StatusProcessing, notification.StatusQueued}, // stale-lock reclaim
		{notification.StatusSent, notification.StatusDelivered},
		{notification.StatusFailed, notification.StatusRetrying},
		{notification.StatusFailed, notification.StatusDead},
		{notification.StatusRetrying, notification.StatusQueued},
		{notification.StatusDead, notification.StatusQueued}, // operator requeue
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be allowed", tc.from, tc.to)
	}

	forbidden := []struct {
		from, to notification.Status
	}{
		{notification.StatusPending, notification.StatusProcessing},
		{notification.StatusQueued, notification.StatusDelivered},
		{notification.StatusDelivered, notification.StatusQueued},
		{notification.StatusDelivered, notification.StatusDead},
		{notification.StatusRetrying, notification.StatusProcessing},
		{notification.StatusProcessing, notification.StatusDead}, // must pass through failed
	}
	for _, tc := range forbidden {
		assert.False(t, tc.from.CanTransitionTo(tc.to), "%s -> %s should be forbidden", tc.from, tc.to)
	}
}

func TestNotification_TransitionTo(t *testing.T) {
	t.Parallel()

	n := notification.New(notification.ChannelEmail, notification.PriorityLow, "user@example.com", notification.Payload{Body: "hi"})

	require.NoError(t, n.TransitionTo(notification.StatusQueued))
	require.NoError(t, n.TransitionTo(notification.StatusProcessing))

	err := n.TransitionTo(notification.StatusDead)
	require.ErrorIs(t, err, notification.ErrInvalidTransition)
	assert.Equal(t, notification.StatusProcessing, n.Status, "failed transition must not change status")
}

func TestNotification_IsExpired(t *testing.T) {
	t.Parallel()

	n := notification.New(notification.ChannelSMS, notification.PriorityUrgent, "+123", notification.Payload{Body: "hi"})
	now := time.Now()

	assert.False(t, n.IsExpired(now), "no deadline means never expired")

	past := now.Add(-time.Minute)
	n.ExpiresAt = &past
	assert.True(t, n.IsExpired(now))

	future := now.Add(time.Minute)
	n.ExpiresAt = &future
	assert.False(t, n.IsExpired(now))
}

func TestLanes_Order(t *testing.T) {
	t.Parallel()

	lanes := notification.Lanes()
	require.Len(t, lanes, 4)
	assert.Equal(t, notification.PriorityUrgent, lanes[0])
	assert.Equal(t, notification.PriorityLow, lanes[3])
	for i := 1; i < len(lanes); i++ {
		assert.Greater(t, lanes[i-1], lanes[i], "lanes must be ordered highest priority first")
	}
}
