package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifykit/notifykit/pkg/notification"
)

// MemoryStorage implements Storage in memory for tests and local development.
// All operations run under a single mutex; a notification id lives in at most
// one of lanes/delayed/processing/deadLetters at any instant.
type MemoryStorage struct {
	mu sync.Mutex

	records     map[uuid.UUID]*notification.Notification
	lanes       map[notification.Priority][]uuid.UUID
	delayed     map[uuid.UUID]struct{}
	processing  map[uuid.UUID]struct{}
	deadLetters map[uuid.UUID]*DeadLetter
	deadOrder   []uuid.UUID
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records:     make(map[uuid.UUID]*notification.Notification),
		lanes:       make(map[notification.Priority][]uuid.UUID),
		delayed:     make(map[uuid.UUID]struct{}),
		processing:  make(map[uuid.UUID]struct{}),
		deadLetters: make(map[uuid.UUID]*DeadLetter),
	}
}

// Enqueue implements EnqueueRepository.
func (ms *MemoryStorage) Enqueue(_ context.Context, n *notification.Notification) error {
	if n == nil {
		return ErrNotFound
	}
	if n.Status != notification.StatusPending {
		return ErrNotPending
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.records[n.ID]; exists {
		return ErrDuplicateID
	}

	if err := n.TransitionTo(notification.StatusQueued); err != nil {
		return err
	}

	// Store a copy so the caller cannot mutate queued state from outside.
	rec := *n
	ms.records[n.ID] = &rec
	ms.lanes[n.Priority] = append(ms.lanes[n.Priority], n.ID)

	return nil
}

// Claim implements WorkerRepository. Lanes are scanned in strict priority
// order; within a lane the head of the list is the oldest item.
func (ms *MemoryStorage) Claim(_ context.Context, workerID uuid.UUID, lockDuration time.Duration) (*notification.Notification, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, lane := range notification.Lanes() {
		ids := ms.lanes[lane]
		if len(ids) == 0 {
			continue
		}

		id := ids[0]
		ms.lanes[lane] = ids[1:]

		rec := ms.records[id]
		prev := rec.Status

		// Sweeps park ids in the lanes without touching records; walk a
		// swept record to queued first so the claim transition is legal.
		switch prev {
		case notification.StatusRetrying, notification.StatusProcessing:
			if err := rec.TransitionTo(notification.StatusQueued); err != nil {
				return nil, err
			}
		}
		if err := rec.TransitionTo(notification.StatusProcessing); err != nil {
			return nil, err
		}

		lockedUntil := time.Now().Add(lockDuration)
		rec.LockedUntil = &lockedUntil
		rec.LockedBy = &workerID
		if rec.AttemptCount < rec.MaxAttempts {
			rec.AttemptCount++
		}
		ms.processing[id] = struct{}{}

		cp := *rec
		cp.PreviousStatus = prev
		return &cp, nil
	}

	return nil, ErrNoneAvailable
}

// Complete implements WorkerRepository.
func (ms *MemoryStorage) Complete(_ context.Context, id uuid.UUID, status notification.Status) error {
	if status != notification.StatusDelivered && status != notification.StatusSent {
		return ErrInvalidCompleteStatus
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, err := ms.claimed(id)
	if err != nil {
		return err
	}

	if err := rec.TransitionTo(status); err != nil {
		return err
	}
	rec.LockedUntil = nil
	rec.LockedBy = nil
	delete(ms.processing, id)

	return nil
}

// ScheduleRetry implements WorkerRepository.
func (ms *MemoryStorage) ScheduleRetry(_ context.Context, id uuid.UUID, nextAttemptAt time.Time, reason string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, err := ms.claimed(id)
	if err != nil {
		return err
	}

	if err := rec.TransitionTo(notification.StatusFailed); err != nil {
		return err
	}
	if err := rec.TransitionTo(notification.StatusRetrying); err != nil {
		return err
	}

	rec.NextAttemptAt = &nextAttemptAt
	rec.LastError = reason
	rec.LockedUntil = nil
	rec.LockedBy = nil

	delete(ms.processing, id)
	ms.delayed[id] = struct{}{}

	return nil
}

// MoveToDeadLetter implements WorkerRepository.
func (ms *MemoryStorage) MoveToDeadLetter(_ context.Context, id uuid.UUID, reason string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, err := ms.claimed(id)
	if err != nil {
		return err
	}

	if err := rec.TransitionTo(notification.StatusFailed); err != nil {
		return err
	}
	if err := rec.TransitionTo(notification.StatusDead); err != nil {
		return err
	}

	rec.LastError = reason
	rec.LockedUntil = nil
	rec.LockedBy = nil
	delete(ms.processing, id)

	ms.deadLetters[id] = &DeadLetter{
		Notification: *rec,
		Reason:       reason,
		FailedAt:     time.Now().UTC(),
	}
	ms.deadOrder = append(ms.deadOrder, id)

	return nil
}

// Release implements WorkerRepository.
func (ms *MemoryStorage) Release(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, err := ms.claimed(id)
	if err != nil {
		return err
	}

	if err := rec.TransitionTo(notification.StatusQueued); err != nil {
		return err
	}
	rec.LockedUntil = nil
	rec.LockedBy = nil

	delete(ms.processing, id)
	ms.lanes[rec.Priority] = append(ms.lanes[rec.Priority], id)

	return nil
}

// ReleaseDue implements SchedulerRepository.
func (ms *MemoryStorage) ReleaseDue(_ context.Context, now time.Time, limit int) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	moved := 0
	for id := range ms.delayed {
		if limit > 0 && moved >= limit {
			break
		}

		rec := ms.records[id]
		if rec.NextAttemptAt == nil || rec.NextAttemptAt.After(now) {
			continue
		}

		// The record keeps its retrying status until it is claimed; the
		// sweep only moves the id, same as the Redis backend.
		delete(ms.delayed, id)
		ms.lanes[rec.Priority] = append(ms.lanes[rec.Priority], id)
		moved++
	}

	return moved, nil
}

// ReclaimStale implements SchedulerRepository.
func (ms *MemoryStorage) ReclaimStale(_ context.Context, now time.Time) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	reclaimed := 0
	for id := range ms.processing {
		rec := ms.records[id]
		if rec.LockedUntil == nil || rec.LockedUntil.After(now) {
			continue
		}

		// The stale lock and processing status stay on the record until the
		// next claim overwrites them; the sweep only moves the id.
		delete(ms.processing, id)
		ms.lanes[rec.Priority] = append(ms.lanes[rec.Priority], id)
		reclaimed++
	}

	return reclaimed, nil
}

// Get implements ReadRepository.
func (ms *MemoryStorage) Get(_ context.Context, id uuid.UUID) (*notification.Notification, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	rec, exists := ms.records[id]
	if !exists {
		return nil, ErrNotFound
	}

	cp := *rec
	return &cp, nil
}

// LaneDepths implements ReadRepository.
func (ms *MemoryStorage) LaneDepths(_ context.Context) (map[notification.Priority]int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	depths := make(map[notification.Priority]int, 4)
	for _, lane := range notification.Lanes() {
		depths[lane] = len(ms.lanes[lane])
	}
	return depths, nil
}

// ListDeadLetters implements ReadRepository. Results are ordered oldest
// failure first.
func (ms *MemoryStorage) ListDeadLetters(_ context.Context, filter DeadLetterFilter) ([]DeadLetter, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]DeadLetter, 0, len(ms.deadOrder))
	for _, id := range ms.deadOrder {
		dl, exists := ms.deadLetters[id]
		if !exists {
			continue
		}
		if filter.Channel != "" && dl.Notification.Channel != filter.Channel {
			continue
		}
		if filter.Priority != nil && dl.Notification.Priority != *filter.Priority {
			continue
		}
		out = append(out, *dl)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// DeadLetterCount implements ReadRepository.
func (ms *MemoryStorage) DeadLetterCount(_ context.Context) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.deadLetters), nil
}

// RequeueDeadLetter implements ReadRepository.
func (ms *MemoryStorage) RequeueDeadLetter(_ context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.deadLetters[id]; !exists {
		return ErrNotDeadLettered
	}

	rec := ms.records[id]
	if err := rec.TransitionTo(notification.StatusQueued); err != nil {
		return err
	}
	rec.AttemptCount = 0
	rec.NextAttemptAt = nil
	rec.LastError = ""

	delete(ms.deadLetters, id)
	ms.deadOrder = slices.DeleteFunc(ms.deadOrder, func(other uuid.UUID) bool {
		return other == id
	})
	ms.lanes[rec.Priority] = append(ms.lanes[rec.Priority], id)

	return nil
}

// claimed returns the record for id if it is currently claimed.
// Callers must hold the mutex.
func (ms *MemoryStorage) claimed(id uuid.UUID) (*notification.Notification, error) {
	rec, exists := ms.records[id]
	if !exists {
		return nil, ErrNotFound
	}
	if _, inFlight := ms.processing[id]; !inFlight {
		return nil, ErrNotProcessing
	}
	return rec, nil
}
