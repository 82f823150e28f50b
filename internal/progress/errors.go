// File: internal/progress/errors.go
// Brief: Sentinel errors reported when a progress event or catalog is rejected.

package progress

import "errors"

var (
	// ErrInvalidConfiguration is returned by Start when the step catalog is unusable.
	ErrInvalidConfiguration = errors.New("invalid step catalog")
	// ErrAlreadyStarted is returned when Start is called on a tracker that is already tracking.
	ErrAlreadyStarted = errors.New("tracker already started")
	// ErrNotReady is returned by Result before the terminal event arrived.
	ErrNotReady = errors.New("deployment result not ready")
	// ErrUnknownStep marks an event naming a step outside the catalog.
	ErrUnknownStep = errors.New("unknown deployment step")
	// ErrMalformedEvent marks a frame that is not a recognised event shape.
	ErrMalformedEvent = errors.New("malformed progress event")
	// ErrNotStarted marks an event applied before Start.
	ErrNotStarted = errors.New("tracker not started")
)
