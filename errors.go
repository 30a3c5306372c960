package askdb

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request failed validation.
	ErrValidation = errors.New("validation error")

	// ErrBusy indicates Send() was called while a turn was in flight.
	ErrBusy = errors.New("session busy: turn already in flight")

	// ErrStreamClosed indicates an operation on a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrConversationNotFound indicates the server no longer recognizes a
	// conversation id. Callers treat the id as stale and discard it.
	ErrConversationNotFound = errors.New("conversation not found")
)
