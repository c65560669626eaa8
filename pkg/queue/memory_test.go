package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/queue"
)

func newNotification(priority notification.Priority) *notification.Notification {
	return notification.New(notification.ChannelTelegram, priority, "12345", notification.Payload{Body: "hi"})
}

func mustEnqueue(t *testing.T, ms *queue.MemoryStorage, priority notification.Priority) *notification.Notification {
	t.Helper()
	n := newNotification(priority)
	require.NoError(t, ms.Enqueue(context.Background(), n))
	return n
}

func mustClaim(t *testing.T, ms *queue.MemoryStorage) *notification.Notification {
	t.Helper()
	claimed, err := ms.Claim(context.Background(), uuid.New(), time.Minute)
	require.NoError(t, err)
	return claimed
}

func TestMemoryStorage_Enqueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("persists and transitions to queued", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		n := mustEnqueue(t, ms, notification.PriorityNormal)
		assert.Equal(t, notification.StatusQueued, n.Status)

		stored, err := ms.Get(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, notification.StatusQueued, stored.Status)
	})

	t.Run("rejects duplicate id", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		n := mustEnqueue(t, ms, notification.PriorityNormal)

		dup := newNotification(notification.PriorityNormal)
		dup.ID = n.ID
		assert.ErrorIs(t, ms.Enqueue(ctx, dup), queue.ErrDuplicateID)
	})

	t.Run("rejects non-pending", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		n := newNotification(notification.PriorityNormal)
		n.Status = notification.StatusQueued
		assert.ErrorIs(t, ms.Enqueue(ctx, n), queue.ErrNotPending)
	})
}

func TestMemoryStorage_Claim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty storage", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		_, err := ms.Claim(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoneAvailable)
	})

	t.Run("strict priority order across lanes", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		low := mustEnqueue(t, ms, notification.PriorityLow)
		normal := mustEnqueue(t, ms, notification.PriorityNormal)
		urgent := mustEnqueue(t, ms, notification.PriorityUrgent)
		high := mustEnqueue(t, ms, notification.PriorityHigh)

		want := []uuid.UUID{urgent.ID, high.ID, normal.ID, low.ID}
		for _, expected := range want {
			claimed := mustClaim(t, ms)
			assert.Equal(t, expected, claimed.ID)
		}
	})

	t.Run("fifo within a lane", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		first := mustEnqueue(t, ms, notification.PriorityNormal)
		second := mustEnqueue(t, ms, notification.PriorityNormal)

		assert.Equal(t, first.ID, mustClaim(t, ms).ID)
		assert.Equal(t, second.ID, mustClaim(t, ms).ID)
	})

	t.Run("records lock and attempt", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		mustEnqueue(t, ms, notification.PriorityNormal)

		workerID := uuid.New()
		claimed, err := ms.Claim(ctx, workerID, time.Minute)
		require.NoError(t, err)

		assert.Equal(t, notification.StatusProcessing, claimed.Status)
		assert.Equal(t, notification.StatusQueued, claimed.PreviousStatus)
		assert.Equal(t, 1, claimed.AttemptCount)
		require.NotNil(t, claimed.LockedBy)
		assert.Equal(t, workerID, *claimed.LockedBy)
		require.NotNil(t, claimed.LockedUntil)
		assert.WithinDuration(t, time.Now().Add(time.Minute), *claimed.LockedUntil, 5*time.Second)
	})

	t.Run("concurrent claims never hand out the same notification", func(t *testing.T) {
		t.Parallel()

		ms := queue.NewMemoryStorage()
		const total = 50
		for range total {
			mustEnqueue(t, ms, notification.PriorityNormal)
		}

		var mu sync.Mutex
		seen := make(map[uuid.UUID]int)
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					claimed, err := ms.Claim(ctx, uuid.New(), time.Minute)
					if err != nil {
						return
					}
					mu.Lock()
					seen[claimed.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, total)
		for id, count := range seen {
			assert.Equal(t, 1, count, "notification %s claimed %d times", id, count)
		}
	})
}

func TestMemoryStorage_Complete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	mustEnqueue(t, ms, notification.PriorityNormal)
	claimed := mustClaim(t, ms)

	require.NoError(t, ms.Complete(ctx, claimed.ID, notification.StatusDelivered))

	stored, err := ms.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDelivered, stored.Status)
	assert.Nil(t, stored.LockedBy)

	t.Run("rejects double complete", func(t *testing.T) {
		assert.ErrorIs(t, ms.Complete(ctx, claimed.ID, notification.StatusDelivered), queue.ErrNotProcessing)
	})

	t.Run("rejects non-terminal status", func(t *testing.T) {
		assert.ErrorIs(t, ms.Complete(ctx, claimed.ID, notification.StatusQueued), queue.ErrInvalidCompleteStatus)
	})

	t.Run("rejects unclaimed id", func(t *testing.T) {
		assert.ErrorIs(t, ms.Complete(ctx, uuid.New(), notification.StatusDelivered), queue.ErrNotFound)
	})
}

func TestMemoryStorage_RetryFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	mustEnqueue(t, ms, notification.PriorityHigh)
	claimed := mustClaim(t, ms)

	nextAttempt := time.Now().Add(-time.Second) // already due
	require.NoError(t, ms.ScheduleRetry(ctx, claimed.ID, nextAttempt, "timeout"))

	stored, err := ms.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusRetrying, stored.Status)
	assert.Equal(t, "timeout", stored.LastError)

	// Nothing claimable while parked in the delayed set.
	_, err = ms.Claim(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoneAvailable)

	moved, err := ms.ReleaseDue(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	// A second sweep finds nothing: the move is idempotent.
	moved, err = ms.ReleaseDue(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Zero(t, moved)

	// The sweep moves only the id; the record stays retrying until claimed.
	stored, err = ms.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusRetrying, stored.Status)

	reclaimed := mustClaim(t, ms)
	assert.Equal(t, claimed.ID, reclaimed.ID)
	assert.Equal(t, 2, reclaimed.AttemptCount)
	assert.Equal(t, notification.StatusRetrying, reclaimed.PreviousStatus,
		"claim reports the pre-claim status for the audit trail")
	assert.Equal(t, notification.PriorityHigh, reclaimed.Priority, "retry keeps its original priority")
}

func TestMemoryStorage_ReleaseDue_NotYetDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	mustEnqueue(t, ms, notification.PriorityNormal)
	claimed := mustClaim(t, ms)

	require.NoError(t, ms.ScheduleRetry(ctx, claimed.ID, time.Now().Add(time.Hour), "timeout"))

	moved, err := ms.ReleaseDue(ctx, time.Now(), 100)
	require.NoError(t, err)
	assert.Zero(t, moved, "future retries must stay parked")
}

func TestMemoryStorage_DeadLetterFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	mustEnqueue(t, ms, notification.PriorityNormal)
	claimed := mustClaim(t, ms)

	require.NoError(t, ms.MoveToDeadLetter(ctx, claimed.ID, "invalid recipient"))

	stored, err := ms.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusDead, stored.Status)

	count, err := ms.DeadLetterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	letters, err := ms.ListDeadLetters(ctx, queue.DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, claimed.ID, letters[0].Notification.ID)
	assert.Equal(t, "invalid recipient", letters[0].Reason)

	// Dead letters are never claimable.
	_, err = ms.Claim(ctx, uuid.New(), time.Minute)
	assert.ErrorIs(t, err, queue.ErrNoneAvailable)

	t.Run("requeue resets attempts and returns to lane", func(t *testing.T) {
		require.NoError(t, ms.RequeueDeadLetter(ctx, claimed.ID))

		count, err := ms.DeadLetterCount(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)

		again := mustClaim(t, ms)
		assert.Equal(t, claimed.ID, again.ID)
		assert.Equal(t, 1, again.AttemptCount, "attempt count restarts after requeue")
	})

	t.Run("requeue of unknown id", func(t *testing.T) {
		assert.ErrorIs(t, ms.RequeueDeadLetter(ctx, claimed.ID), queue.ErrNotDeadLettered)
	})
}

func TestMemoryStorage_ListDeadLetters_Filter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()

	tg := notification.New(notification.ChannelTelegram, notification.PriorityNormal, "123", notification.Payload{Body: "a"})
	em := notification.New(notification.ChannelEmail, notification.PriorityUrgent, "u@example.com", notification.Payload{Body: "b"})
	for _, n := range []*notification.Notification{tg, em} {
		require.NoError(t, ms.Enqueue(ctx, n))
	}
	for range 2 {
		claimed := mustClaim(t, ms)
		require.NoError(t, ms.MoveToDeadLetter(ctx, claimed.ID, "boom"))
	}

	byChannel, err := ms.ListDeadLetters(ctx, queue.DeadLetterFilter{Channel: notification.ChannelEmail})
	require.NoError(t, err)
	require.Len(t, byChannel, 1)
	assert.Equal(t, em.ID, byChannel[0].Notification.ID)

	pri := notification.PriorityNormal
	byPriority, err := ms.ListDeadLetters(ctx, queue.DeadLetterFilter{Priority: &pri})
	require.NoError(t, err)
	require.Len(t, byPriority, 1)
	assert.Equal(t, tg.ID, byPriority[0].Notification.ID)

	limited, err := ms.ListDeadLetters(ctx, queue.DeadLetterFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStorage_ReclaimStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	mustEnqueue(t, ms, notification.PriorityNormal)

	// Claim with an already-expired lock to simulate a crashed worker.
	claimed, err := ms.Claim(ctx, uuid.New(), -time.Second)
	require.NoError(t, err)

	reclaimed, err := ms.ReclaimStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	// The notification is claimable again; failure history is preserved.
	again := mustClaim(t, ms)
	assert.Equal(t, claimed.ID, again.ID)
	assert.Equal(t, 2, again.AttemptCount)
	assert.Equal(t, notification.StatusProcessing, again.PreviousStatus,
		"claim reports the interrupted attempt for the audit trail")

	t.Run("live locks are left alone", func(t *testing.T) {
		reclaimed, err := ms.ReclaimStale(ctx, time.Now())
		require.NoError(t, err)
		assert.Zero(t, reclaimed)
	})
}

func TestMemoryStorage_Release(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	mustEnqueue(t, ms, notification.PriorityNormal)
	claimed := mustClaim(t, ms)

	require.NoError(t, ms.Release(ctx, claimed.ID))

	stored, err := ms.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, notification.StatusQueued, stored.Status)
	assert.Nil(t, stored.LockedBy)

	again := mustClaim(t, ms)
	assert.Equal(t, claimed.ID, again.ID)
}

func TestMemoryStorage_LaneDepths(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	mustEnqueue(t, ms, notification.PriorityUrgent)
	mustEnqueue(t, ms, notification.PriorityUrgent)
	mustEnqueue(t, ms, notification.PriorityLow)

	depths, err := ms.LaneDepths(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depths[notification.PriorityUrgent])
	assert.Equal(t, 0, depths[notification.PriorityHigh])
	assert.Equal(t, 0, depths[notification.PriorityNormal])
	assert.Equal(t, 1, depths[notification.PriorityLow])
}

func TestMemoryStorage_AttemptCountClamped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	ms := queue.NewMemoryStorage()
	n := newNotification(notification.PriorityNormal)
	n.MaxAttempts = 1
	require.NoError(t, ms.Enqueue(ctx, n))

	claimed := mustClaim(t, ms)
	assert.Equal(t, 1, claimed.AttemptCount)

	// Crash + reclaim + reclaim again must never push the count past the
	// ceiling.
	_, err := ms.ReclaimStale(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	claimed = mustClaim(t, ms)
	assert.Equal(t, 1, claimed.AttemptCount)
	assert.LessOrEqual(t, claimed.AttemptCount, claimed.MaxAttempts)
}
