package model

import "errors"

// Error kinds. Handlers select status codes with errors.Is; everything else
// wraps one of these.
var (
	// ErrInvalidInput covers validation failures: empty batches, malformed
	// GPX, out-of-range coordinates. Raised before any state is mutated.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when a route is requested in strict mode and
	// no route is loaded for the (event, detail) pair.
	ErrNotFound = errors.New("not found")

	// ErrTransient covers store timeouts and failures. The pipeline logs
	// these and continues with degraded behaviour.
	ErrTransient = errors.New("transient store error")
)
