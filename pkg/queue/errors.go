package queue

import "errors"

var (
	// ErrNoneAvailable is returned by Claim when every lane is empty. It is
	// the normal idle signal, not a failure.
	ErrNoneAvailable = errors.New("no notification available to claim")

	// ErrNotFound is returned when the notification id is unknown.
	ErrNotFound = errors.New("notification not found")

	// ErrDuplicateID is returned when enqueueing an id that already exists.
	ErrDuplicateID = errors.New("notification id already exists")

	// ErrNotPending is returned when enqueueing a notification that is not
	// in the pending state.
	ErrNotPending = errors.New("notification is not pending")

	// ErrNotProcessing is returned for outcome calls against a notification
	// that is not currently claimed.
	ErrNotProcessing = errors.New("notification is not being processed")

	// ErrNotDeadLettered is returned when requeueing an id that is not in
	// the dead-letter sink.
	ErrNotDeadLettered = errors.New("notification is not dead-lettered")

	// ErrInvalidCompleteStatus is returned when Complete is called with a
	// status other than delivered or sent.
	ErrInvalidCompleteStatus = errors.New("complete status must be delivered or sent")

	// ErrStorageNil is returned when a component is constructed without a
	// storage backend.
	ErrStorageNil = errors.New("storage cannot be nil")
)
