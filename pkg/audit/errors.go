package audit

import "errors"

var (
	// ErrRecordValidation is returned for records missing required fields.
	ErrRecordValidation = errors.New("audit record validation failed")

	// ErrStoreNil is returned when a writer is constructed without a store.
	ErrStoreNil = errors.New("audit store cannot be nil")

	// ErrWriterClosed is returned when recording after Close.
	ErrWriterClosed = errors.New("audit writer is closed")
)
