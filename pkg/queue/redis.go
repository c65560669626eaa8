package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/notifykit/notifykit/pkg/notification"
)

// Lua scripts keep multi-structure moves atomic so that a notification id is
// a member of exactly one lane/delayed/processing structure at any instant.
// Concurrent sweeps from multiple scheduler instances serialize inside Redis,
// which is what makes them idempotent: the second sweep simply finds nothing
// left to move.
var (
	// claimScript pops the oldest id from the highest-priority non-empty
	// lane and parks it in the processing set.
	// KEYS[1..4] lanes in priority order, KEYS[5] processing set.
	// ARGV[1] lock expiry (unix ms), ARGV[2..5] lane priority tags.
	claimScript = redis.NewScript(`
for i = 1, 4 do
	local id = redis.call('LPOP', KEYS[i])
	if id then
		redis.call('ZADD', KEYS[5], ARGV[1], ARGV[1 + i] .. '|' .. id)
		return id
	end
end
return false
`)

	// enqueueScript stores the record and appends the id to its lane.
	// KEYS[1] record, KEYS[2] lane. ARGV[1] record JSON, ARGV[2] id.
	enqueueScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX') == false then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[2])
return 1
`)

	// completeScript releases the claim and finalizes the record. Returns 0
	// if the claim was already gone (lock expired and reclaimed).
	// KEYS[1] processing, KEYS[2] record.
	// ARGV[1] member, ARGV[2] record JSON, ARGV[3] record TTL seconds.
	completeScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call('EXPIRE', KEYS[2], ARGV[3])
end
return 1
`)

	// retryScript moves the claim into the delayed set.
	// KEYS[1] processing, KEYS[2] delayed, KEYS[3] record.
	// ARGV[1] member, ARGV[2] next attempt (unix ms), ARGV[3] record JSON.
	retryScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
redis.call('SET', KEYS[3], ARGV[3])
return 1
`)

	// deadLetterScript moves the claim into the dead-letter hash.
	// KEYS[1] processing, KEYS[2] dead hash, KEYS[3] record.
	// ARGV[1] member, ARGV[2] id, ARGV[3] dead-letter JSON, ARGV[4] record JSON.
	deadLetterScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('SET', KEYS[3], ARGV[4])
return 1
`)

	// releaseScript returns an abandoned claim to the tail of its lane.
	// KEYS[1] processing, KEYS[2] lane, KEYS[3] record.
	// ARGV[1] member, ARGV[2] id, ARGV[3] record JSON.
	releaseScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[2])
redis.call('SET', KEYS[3], ARGV[3])
return 1
`)

	// sweepScript moves due members of a sorted set back into their lanes.
	// Shared by the delayed-retry release and the stale-claim reclaim, which
	// differ only in the source set and the meaning of the score.
	// KEYS[1] source set, KEYS[2..5] lanes.
	// ARGV[1] now (unix ms), ARGV[2] limit, ARGV[3..6] lane priority tags.
	sweepScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local moved = 0
for _, member in ipairs(due) do
	if redis.call('ZREM', KEYS[1], member) == 1 then
		local sep = string.find(member, '|', 1, true)
		local pri = string.sub(member, 1, sep - 1)
		local id = string.sub(member, sep + 1)
		for i = 2, 5 do
			if ARGV[i + 1] == pri then
				redis.call('RPUSH', KEYS[i], id)
				moved = moved + 1
				break
			end
		end
	end
end
return moved
`)

	// requeueDeadScript is the operator recovery path.
	// KEYS[1] dead hash, KEYS[2] lane, KEYS[3] record.
	// ARGV[1] id, ARGV[2] record JSON.
	requeueDeadScript = redis.NewScript(`
if redis.call('HDEL', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('RPUSH', KEYS[2], ARGV[1])
redis.call('SET', KEYS[3], ARGV[2])
return 1
`)
)

const defaultReclaimBatch = 1000

// RedisStorage implements Storage on top of Redis. See the package
// documentation for the key layout and the durability caveat.
type RedisStorage struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// RedisOption configures a RedisStorage.
type RedisOption func(*RedisStorage)

// WithKeyPrefix sets the key namespace, default "notify".
func WithKeyPrefix(prefix string) RedisOption {
	return func(rs *RedisStorage) {
		if prefix != "" {
			rs.prefix = prefix
		}
	}
}

// WithRecordRetention sets how long terminal (delivered/sent) records are
// kept for status lookups before expiring. Zero keeps them forever.
func WithRecordRetention(d time.Duration) RedisOption {
	return func(rs *RedisStorage) {
		if d >= 0 {
			rs.retention = d
		}
	}
}

// NewRedisStorage creates a Redis-backed storage using an established client.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisOption) (*RedisStorage, error) {
	if client == nil {
		return nil, ErrStorageNil
	}

	rs := &RedisStorage{
		client:    client,
		prefix:    "notify",
		retention: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs, nil
}

func (rs *RedisStorage) recordKey(id uuid.UUID) string {
	return rs.prefix + ":record:" + id.String()
}

func (rs *RedisStorage) laneKey(p notification.Priority) string {
	return rs.prefix + ":lane:" + p.String()
}

func (rs *RedisStorage) processingKey() string { return rs.prefix + ":processing" }
func (rs *RedisStorage) delayedKey() string    { return rs.prefix + ":delayed" }
func (rs *RedisStorage) deadKey() string       { return rs.prefix + ":dead" }

func (rs *RedisStorage) laneKeys() []string {
	lanes := notification.Lanes()
	keys := make([]string, len(lanes))
	for i, lane := range lanes {
		keys[i] = rs.laneKey(lane)
	}
	return keys
}

func laneTags() []string {
	lanes := notification.Lanes()
	tags := make([]string, len(lanes))
	for i, lane := range lanes {
		tags[i] = strconv.Itoa(int(lane))
	}
	return tags
}

func member(p notification.Priority, id uuid.UUID) string {
	return strconv.Itoa(int(p)) + "|" + id.String()
}

// Enqueue implements EnqueueRepository.
func (rs *RedisStorage) Enqueue(ctx context.Context, n *notification.Notification) error {
	if n == nil {
		return ErrNotFound
	}
	if n.Status != notification.StatusPending {
		return ErrNotPending
	}

	// Marshal a queued copy and transition the caller's notification only
	// once Redis has accepted it: a failed enqueue must leave the
	// notification pending so the caller can retry it.
	rec := *n
	if err := rec.TransitionTo(notification.StatusQueued); err != nil {
		return err
	}
	payload, err := json.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.ID, err)
	}

	created, err := enqueueScript.Run(ctx, rs.client,
		[]string{rs.recordKey(n.ID), rs.laneKey(n.Priority)},
		payload, n.ID.String(),
	).Int()
	if err != nil {
		return fmt.Errorf("enqueue notification %s: %w", n.ID, err)
	}
	if created == 0 {
		return ErrDuplicateID
	}
	return n.TransitionTo(notification.StatusQueued)
}

// Claim implements WorkerRepository.
func (rs *RedisStorage) Claim(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*notification.Notification, error) {
	lockedUntil := time.Now().Add(lockDuration)

	keys := append(rs.laneKeys(), rs.processingKey())
	argv := make([]any, 0, 5)
	argv = append(argv, lockedUntil.UnixMilli())
	for _, tag := range laneTags() {
		argv = append(argv, tag)
	}

	raw, err := claimScript.Run(ctx, rs.client, keys, argv...).Text()
	if err == redis.Nil {
		return nil, ErrNoneAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("claim notification: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("claimed malformed id %q: %w", raw, err)
	}

	rec, err := rs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// A record still carries the status it had before a sweep moved the id
	// back into a lane; walk it to queued first so the claim transition is
	// legal.
	prev := rec.Status
	switch prev {
	case notification.StatusRetrying, notification.StatusProcessing:
		if err := rec.TransitionTo(notification.StatusQueued); err != nil {
			return nil, err
		}
	}
	if err := rec.TransitionTo(notification.StatusProcessing); err != nil {
		return nil, err
	}

	rec.LockedUntil = &lockedUntil
	rec.LockedBy = &workerID
	if rec.AttemptCount < rec.MaxAttempts {
		rec.AttemptCount++
	}

	if err := rs.saveRecord(ctx, rec); err != nil {
		return nil, err
	}
	rec.PreviousStatus = prev
	return rec, nil
}

// Complete implements WorkerRepository.
func (rs *RedisStorage) Complete(ctx context.Context, id uuid.UUID, status notification.Status) error {
	if status != notification.StatusDelivered && status != notification.StatusSent {
		return ErrInvalidCompleteStatus
	}

	rec, err := rs.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rec.TransitionTo(status); err != nil {
		return err
	}
	rec.LockedUntil = nil
	rec.LockedBy = nil

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", id, err)
	}

	released, err := completeScript.Run(ctx, rs.client,
		[]string{rs.processingKey(), rs.recordKey(id)},
		member(rec.Priority, id), payload, int(rs.retention.Seconds()),
	).Int()
	if err != nil {
		return fmt.Errorf("complete notification %s: %w", id, err)
	}
	if released == 0 {
		return ErrNotProcessing
	}
	return nil
}

// ScheduleRetry implements WorkerRepository.
func (rs *RedisStorage) ScheduleRetry(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time, reason string) error {
	rec, err := rs.Get(ctx, id)
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

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", id, err)
	}

	moved, err := retryScript.Run(ctx, rs.client,
		[]string{rs.processingKey(), rs.delayedKey(), rs.recordKey(id)},
		member(rec.Priority, id), nextAttemptAt.UnixMilli(), payload,
	).Int()
	if err != nil {
		return fmt.Errorf("schedule retry for %s: %w", id, err)
	}
	if moved == 0 {
		return ErrNotProcessing
	}
	return nil
}

// MoveToDeadLetter implements WorkerRepository.
func (rs *RedisStorage) MoveToDeadLetter(ctx context.Context, id uuid.UUID, reason string) error {
	rec, err := rs.Get(ctx, id)
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

	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", id, err)
	}
	deadJSON, err := json.Marshal(DeadLetter{
		Notification: *rec,
		Reason:       reason,
		FailedAt:     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter %s: %w", id, err)
	}

	moved, err := deadLetterScript.Run(ctx, rs.client,
		[]string{rs.processingKey(), rs.deadKey(), rs.recordKey(id)},
		member(rec.Priority, id), id.String(), deadJSON, recordJSON,
	).Int()
	if err != nil {
		return fmt.Errorf("dead-letter notification %s: %w", id, err)
	}
	if moved == 0 {
		return ErrNotProcessing
	}
	return nil
}

// Release implements WorkerRepository.
func (rs *RedisStorage) Release(ctx context.Context, id uuid.UUID) error {
	rec, err := rs.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rec.TransitionTo(notification.StatusQueued); err != nil {
		return err
	}
	rec.LockedUntil = nil
	rec.LockedBy = nil

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", id, err)
	}

	released, err := releaseScript.Run(ctx, rs.client,
		[]string{rs.processingKey(), rs.laneKey(rec.Priority), rs.recordKey(id)},
		member(rec.Priority, id), id.String(), payload,
	).Int()
	if err != nil {
		return fmt.Errorf("release notification %s: %w", id, err)
	}
	if released == 0 {
		return ErrNotProcessing
	}
	return nil
}

// ReleaseDue implements SchedulerRepository.
func (rs *RedisStorage) ReleaseDue(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultReclaimBatch
	}
	return rs.sweep(ctx, rs.delayedKey(), now, limit)
}

// ReclaimStale implements SchedulerRepository. Claims are scored by lock
// expiry, so a sweep of everything scored before now is exactly the set of
// stale claims.
func (rs *RedisStorage) ReclaimStale(ctx context.Context, now time.Time) (int, error) {
	return rs.sweep(ctx, rs.processingKey(), now, defaultReclaimBatch)
}

func (rs *RedisStorage) sweep(ctx context.Context, source string, now time.Time, limit int) (int, error) {
	keys := append([]string{source}, rs.laneKeys()...)
	argv := make([]any, 0, 6)
	argv = append(argv, now.UnixMilli(), limit)
	for _, tag := range laneTags() {
		argv = append(argv, tag)
	}

	moved, err := sweepScript.Run(ctx, rs.client, keys, argv...).Int()
	if err != nil {
		return 0, fmt.Errorf("sweep %s: %w", source, err)
	}
	return moved, nil
}

// Get implements ReadRepository.
func (rs *RedisStorage) Get(ctx context.Context, id uuid.UUID) (*notification.Notification, error) {
	raw, err := rs.client.Get(ctx, rs.recordKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}

	var rec notification.Notification
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal notification %s: %w", id, err)
	}
	return &rec, nil
}

// LaneDepths implements ReadRepository.
func (rs *RedisStorage) LaneDepths(ctx context.Context) (map[notification.Priority]int, error) {
	pipe := rs.client.Pipeline()
	cmds := make(map[notification.Priority]*redis.IntCmd, 4)
	for _, lane := range notification.Lanes() {
		cmds[lane] = pipe.LLen(ctx, rs.laneKey(lane))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("lane depths: %w", err)
	}

	depths := make(map[notification.Priority]int, 4)
	for lane, cmd := range cmds {
		depths[lane] = int(cmd.Val())
	}
	return depths, nil
}

// ListDeadLetters implements ReadRepository. Results are ordered oldest
// failure first.
func (rs *RedisStorage) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]DeadLetter, error) {
	raw, err := rs.client.HVals(ctx, rs.deadKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	out := make([]DeadLetter, 0, len(raw))
	for _, item := range raw {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			return nil, fmt.Errorf("unmarshal dead letter: %w", err)
		}
		if filter.Channel != "" && dl.Notification.Channel != filter.Channel {
			continue
		}
		if filter.Priority != nil && dl.Notification.Priority != *filter.Priority {
			continue
		}
		out = append(out, dl)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].FailedAt.Before(out[j].FailedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeadLetterCount implements ReadRepository.
func (rs *RedisStorage) DeadLetterCount(ctx context.Context) (int, error) {
	n, err := rs.client.HLen(ctx, rs.deadKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("dead letter count: %w", err)
	}
	return int(n), nil
}

// RequeueDeadLetter implements ReadRepository.
func (rs *RedisStorage) RequeueDeadLetter(ctx context.Context, id uuid.UUID) error {
	rec, err := rs.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rec.TransitionTo(notification.StatusQueued); err != nil {
		return err
	}
	rec.AttemptCount = 0
	rec.NextAttemptAt = nil
	rec.LastError = ""

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", id, err)
	}

	moved, err := requeueDeadScript.Run(ctx, rs.client,
		[]string{rs.deadKey(), rs.laneKey(rec.Priority), rs.recordKey(id)},
		id.String(), payload,
	).Int()
	if err != nil {
		return fmt.Errorf("requeue dead letter %s: %w", id, err)
	}
	if moved == 0 {
		return ErrNotDeadLettered
	}
	return nil
}

func (rs *RedisStorage) saveRecord(ctx context.Context, rec *notification.Notification) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", rec.ID, err)
	}
	if err := rs.client.Set(ctx, rs.recordKey(rec.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("save notification %s: %w", rec.ID, err)
	}
	return nil
}
