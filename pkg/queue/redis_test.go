package queue_test

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/notification"
	"github.com/notifykit/notifykit/pkg/queue"
)

// unreachableClient points at a port nothing listens on, so every command
// fails with a transport error. Full RedisStorage semantics need a live
// server; what can be tested without one is the error contract.
func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:         "127.0.0.1:1",
		DialTimeout:  50 * time.Millisecond,
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: 50 * time.Millisecond,
		MaxRetries:   -1,
	})
}

func TestNewRedisStorage(t *testing.T) {
	t.Parallel()

	t.Run("nil client", func(t *testing.T) {
		t.Parallel()

		_, err := queue.NewRedisStorage(nil)
		assert.ErrorIs(t, err, queue.ErrStorageNil)
	})
}

func TestRedisStorage_Enqueue_StorageDown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client := unreachableClient()
	t.Cleanup(func() { _ = client.Close() })

	store, err := queue.NewRedisStorage(client)
	require.NoError(t, err)

	n := newNotification(notification.PriorityNormal)

	// An infrastructure failure surfaces to the caller and must leave the
	// notification pending so the same object can be retried.
	err = store.Enqueue(ctx, n)
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrNotPending)
	assert.Equal(t, notification.StatusPending, n.Status)

	// The retry hits the same transport error, not a state error.
	err = store.Enqueue(ctx, n)
	require.Error(t, err)
	assert.NotErrorIs(t, err, queue.ErrNotPending)
	assert.Equal(t, notification.StatusPending, n.Status)
}
