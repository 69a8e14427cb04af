package apperrors

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrUnsupported marks a connector capability that a dialect has not
	// implemented. Callers must treat it as "feature unavailable", not as
	// a transient failure.
	ErrUnsupported = errors.New("operation not supported by this connector")

	// ErrNoConnector is returned when no registered connector claims a
	// configured service endpoint.
	ErrNoConnector = errors.New("no connector can handle service")
)
