package channel

import "errors"

var (
	// ErrInvalidProviderConfig is returned when a provider is constructed
	// with incomplete configuration.
	ErrInvalidProviderConfig = errors.New("invalid provider configuration")

	// ErrNoProviderForChannel is returned when a notification targets a
	// channel no registered provider serves.
	ErrNoProviderForChannel = errors.New("no provider registered for channel")
)
