package queue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/notifykit/notifykit/pkg/queue"
)

// MockSchedulerRepository is a mock implementation of SchedulerRepository.
type MockSchedulerRepository struct {
	mock.Mock
}

func (m *MockSchedulerRepository) ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error) {
	args := m.Called(ctx, now, limit)
	return args.Int(0), args.Error(1)
}

func (m *MockSchedulerRepository) ReclaimStale(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func TestNewScheduler(t *testing.T) {
	t.Parallel()

	t.Run("nil storage", func(t *testing.T) {
		t.Parallel()

		_, err := queue.NewScheduler(nil)
		assert.ErrorIs(t, err, queue.ErrStorageNil)
	})

	t.Run("with options", func(t *testing.T) {
		t.Parallel()

		s, err := queue.NewScheduler(new(MockSchedulerRepository),
			queue.WithSweepInterval(100*time.Millisecond),
			queue.WithSweepBatch(10),
		)
		require.NoError(t, err)
		require.NotNil(t, s)
	})
}

func TestScheduler_Sweep(t *testing.T) {
	t.Parallel()

	t.Run("runs both sweeps and wakes workers", func(t *testing.T) {
		t.Parallel()

		repo := new(MockSchedulerRepository)
		defer repo.AssertExpectations(t)
		repo.On("ReleaseDue", mock.Anything, mock.Anything, 500).Return(3, nil).Once()
		repo.On("ReclaimStale", mock.Anything, mock.Anything).Return(2, nil).Once()

		var woken atomic.Int64
		s, err := queue.NewScheduler(repo, queue.WithWakeFunc(func(released int) {
			woken.Add(int64(released))
		}))
		require.NoError(t, err)

		s.Sweep(context.Background())
		assert.Equal(t, int64(5), woken.Load())
	})

	t.Run("no wake when nothing moved", func(t *testing.T) {
		t.Parallel()

		repo := new(MockSchedulerRepository)
		repo.On("ReleaseDue", mock.Anything, mock.Anything, mock.Anything).Return(0, nil).Once()
		repo.On("ReclaimStale", mock.Anything, mock.Anything).Return(0, nil).Once()

		s, err := queue.NewScheduler(repo, queue.WithWakeFunc(func(int) {
			t.Error("wake func must not fire on an empty sweep")
		}))
		require.NoError(t, err)

		s.Sweep(context.Background())
	})

	t.Run("storage errors do not stop the sweep", func(t *testing.T) {
		t.Parallel()

		repo := new(MockSchedulerRepository)
		defer repo.AssertExpectations(t)
		repo.On("ReleaseDue", mock.Anything, mock.Anything, mock.Anything).Return(0, errors.New("redis down")).Once()
		repo.On("ReclaimStale", mock.Anything, mock.Anything).Return(0, errors.New("redis down")).Once()

		s, err := queue.NewScheduler(repo)
		require.NoError(t, err)

		// Both sweeps still run; errors are logged, not returned.
		s.Sweep(context.Background())
	})
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	repo := new(MockSchedulerRepository)
	repo.On("ReleaseDue", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)
	repo.On("ReclaimStale", mock.Anything, mock.Anything).Return(0, nil)

	s, err := queue.NewScheduler(repo, queue.WithSweepInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}

	repo.AssertCalled(t, "ReleaseDue", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertCalled(t, "ReclaimStale", mock.Anything, mock.Anything)
}
