package notification

import "errors"

var (
	// ErrMissingID is returned when a notification has no identifier.
	ErrMissingID = errors.New("notification id is required")

	// ErrInvalidChannel is returned for an unknown delivery channel.
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrInvalidPriority is returned when the priority maps to no lane.
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrMissingRecipient is returned when the destination is empty.
	ErrMissingRecipient = errors.New("recipient is required")

	// ErrInvalidMaxAttempts is returned for a non-positive attempt ceiling.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrInvalidTransition is returned when a status change would violate
	// the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)
