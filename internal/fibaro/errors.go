package fibaro

import "errors"

var (
	// ErrStaleCursor is returned when the controller rejects the poll cursor.
	ErrStaleCursor = errors.New("fibaro: stale poll cursor")

	// ErrRequestFailed is returned for any other non-2xx response.
	ErrRequestFailed = errors.New("fibaro: request failed")

	// ErrNotFound is returned when the addressed object does not exist.
	ErrNotFound = errors.New("fibaro: not found")

	// ErrInvalidConfig is returned by NewClient for unusable settings.
	ErrInvalidConfig = errors.New("fibaro: invalid config")
)
