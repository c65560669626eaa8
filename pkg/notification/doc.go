// Package notification defines the domain model for the delivery pipeline:
// the Notification record, its channel/priority/status enums, and the status
// state machine every component must respect.
//
// A Notification is the unit of work. It is created by the pipeline's Enqueue,
// mutated only by workers and the retry scheduler, and reaches one of two
// terminal states: StatusDelivered or StatusDead. The valid transitions are
// encoded in the package-level transition table and enforced via
// Status.CanTransitionTo; components never set a status directly without
// checking it.
//
// Two statuses never hit durable storage:
//
//   - StatusPending exists only between construction and the first durable
//     enqueue.
//   - StatusFailed exists only between a failed delivery attempt and the
//     retry/dead-letter decision made in the same worker iteration.
//
// Both still appear in audit records so that the full transition history is
// reconstructible.
package notification
