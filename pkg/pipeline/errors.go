package pipeline

import "errors"

var (
	// ErrStorageNil is returned when the pipeline is created without storage.
	ErrStorageNil = errors.New("pipeline: storage is nil")
	// ErrNoProviders is returned when no channel providers are registered.
	ErrNoProviders = errors.New("pipeline: no channel providers registered")
	// ErrDuplicateProvider is returned when two providers claim the same channel.
	ErrDuplicateProvider = errors.New("pipeline: duplicate provider for channel")
	// ErrNilNotification is returned when Enqueue receives a nil notification.
	ErrNilNotification = errors.New("pipeline: notification is nil")
	// ErrAlreadyStarted is returned when Start is called on a running pipeline.
	ErrAlreadyStarted = errors.New("pipeline: already started")
	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("pipeline: not started")
	// ErrShutdownTimeout is returned when workers do not drain within the
	// shutdown grace period. In-flight claims are recovered by the stale-lock
	// sweep on the next run.
	ErrShutdownTimeout = errors.New("pipeline: shutdown grace period exceeded")
)
