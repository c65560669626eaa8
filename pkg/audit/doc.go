// Package audit persists every notification status transition as an
// append-only log for external querying.
//
// The pipeline emits one Record per transition through an AsyncWriter, which
// batches records off the hot path: delivery latency never waits for audit
// storage, and an audit outage degrades to dropped records (counted and
// logged) rather than failed deliveries.
//
// Two stores ship with the package: MemoryStore for tests and local
// development, and PostgresStore for production, which bulk-loads batches
// with COPY. The log is append-only; records are never updated in place.
package audit
