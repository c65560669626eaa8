package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/pkg/notification"
)

// EnqueueRepository defines durable admission of new work. Enqueue must not
// return success before the notification is persisted; a storage failure here
// is surfaced to the caller so the pipeline never silently drops work it did
// not durably accept.
type EnqueueRepository interface {
	// Enqueue persists the notification and appends it to the tail of its
	// priority lane. The notification must be in StatusPending; it is
	// transitioned to StatusQueued as part of the write.
	Enqueue(ctx context.Context, n *notification.Notification) error
}

// WorkerRepository defines the claim/ack lifecycle used by pipeline workers.
// The lock recorded at claim time is the ack token: whoever holds it owns the
// notification until one of the three outcome calls, or until the lock
// expires and the reclaim sweep takes it back.
type WorkerRepository interface {
	// Claim atomically takes the next notification from the highest-priority
	// non-empty lane, marks it processing, locks it to workerID for
	// lockDuration, and durably increments its attempt count (clamped at
	// MaxAttempts). Sweeps move ids without rewriting records, so the
	// returned copy carries the pre-claim status in PreviousStatus for the
	// caller's audit trail. Returns ErrNoneAvailable when all lanes are
	// empty.
	Claim(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*notification.Notification, error)

	// Complete records a successful attempt and releases the claim. Status
	// must be StatusDelivered or StatusSent. The record is retained for
	// status lookups but leaves every queue permanently.
	Complete(ctx context.Context, id uuid.UUID, status notification.Status) error

	// ScheduleRetry releases the claim and parks the notification in the
	// delayed set until nextAttemptAt, recording the failure reason.
	ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, reason string) error

	// MoveToDeadLetter releases the claim and moves the notification to the
	// dead-letter sink, recording the failure reason. Dead letters are never
	// processed again until an operator requeues them.
	MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error

	// Release returns a claimed notification to the tail of its lane without
	// consuming the attempt's outcome, used when a worker abandons an
	// attempt during shutdown.
	Release(ctx context.Context, id uuid.UUID) error
}

// SchedulerRepository defines the background sweeps. Both operations are
// atomic per item and idempotent, so multiple scheduler instances may sweep
// concurrently without double-moving anything.
type SchedulerRepository interface {
	// ReleaseDue moves notifications whose next attempt time has passed from
	// the delayed set back into their priority lane, up to limit items. Only
	// the id moves; the record keeps its retrying status until claimed.
	// Returns the number moved.
	ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error)

	// ReclaimStale returns notifications whose claim lock expired before now
	// back to their priority lane. This is what preserves at-least-once
	// delivery across worker crashes. Returns the number reclaimed.
	ReclaimStale(ctx context.Context, now time.Time) (int, error)
}

// DeadLetterFilter narrows ListDeadLetters results. Zero values match
// everything; Limit <= 0 means no limit.
type DeadLetterFilter struct {
	Channel  notification.Channel
	Priority *notification.Priority
	Limit    int
}

// ReadRepository defines the observability and operator-recovery surface.
type ReadRepository interface {
	// Get returns the current record for a notification, whatever its state.
	Get(ctx context.Context, id uuid.UUID) (*notification.Notification, error)

	// LaneDepths returns the number of ready notifications per lane.
	LaneDepths(ctx context.Context) (map[notification.Priority]int, error)

	// ListDeadLetters returns dead-lettered notifications matching the filter.
	ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]DeadLetter, error)

	// DeadLetterCount returns the size of the dead-letter sink.
	DeadLetterCount(ctx context.Context) (int, error)

	// RequeueDeadLetter is the operator recovery path: it resets the
	// notification's attempt count to zero and returns it to the tail of its
	// priority lane. Returns ErrNotDeadLettered if the id is not in the sink.
	RequeueDeadLetter(ctx context.Context, id uuid.UUID) error
}

// Storage combines every repository interface for single-binary deployments.
type Storage interface {
	EnqueueRepository
	WorkerRepository
	SchedulerRepository
	ReadRepository
}

// DeadLetter is a notification held in the dead-letter sink together with
// the failure that put it there.
type DeadLetter struct {
	Notification notification.Notification `json:"notification"`
	Reason       string                    `json:"reason"`
	FailedAt     time.Time                 `json:"failed_at"`
}
