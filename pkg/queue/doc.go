// Package queue provides the durable storage abstraction behind the delivery
// pipeline: four priority lanes of ready work, a delayed set for scheduled
// retries, a dead-letter sink, and the sweeps that keep them consistent.
//
// Components interact only through small per-consumer repository interfaces,
// keeping pipeline logic decoupled from persistence:
//
//   - EnqueueRepository   — durable admission of new notifications
//   - WorkerRepository    — claim/complete/retry/dead-letter lifecycle
//   - SchedulerRepository — due-retry release and stale-claim reclaim sweeps
//   - ReadRepository      — status lookups, lane depths, dead-letter recovery
//
// Two implementations ship with the package. MemoryStorage backs tests and
// local development. RedisStorage is the production store: one list per lane,
// a sorted set keyed by next-attempt time for delayed retries, a sorted set
// keyed by lock expiry for in-flight claims, and a hash for dead letters.
// Multi-step moves between those structures run as Lua scripts so that a
// notification lives in exactly one place at any instant, which is what makes
// the sweeps safe to run concurrently from several processes.
//
// Delivery semantics are at-least-once: a claim only locks a notification, it
// does not remove it. The claim is released either by an explicit Complete /
// ScheduleRetry / MoveToDeadLetter call or, after a crash, by the stale-claim
// reclaim sweep once the lock expires. A crash between claim and completion
// therefore results in redelivery, never loss.
//
// Note on Redis durability: the guarantees above are only as strong as the
// Redis persistence configuration. Run with AOF enabled (appendfsync everysec
// or stricter) when crash-safety of accepted work matters.
package queue
