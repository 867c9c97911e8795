package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrMalformedRequest is returned when the opaque request body lacks the
	// minimum required shape (a model identifier and at least one message).
	// Never retried; the job fails immediately without spending network time.
	ErrMalformedRequest = errors.New("malformed upstream request")

	// ErrTransientFailure is returned for temporary upstream errors
	// (429, 5xx, timeouts, transport failures) once the retry budget is
	// exhausted.
	ErrTransientFailure = errors.New("transient upstream error")

	// ErrTerminalFailure is returned for upstream responses that retrying
	// cannot fix (4xx other than 429).
	ErrTerminalFailure = errors.New("terminal upstream error")

	// ErrInvalidConfig is returned when the generator configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)
