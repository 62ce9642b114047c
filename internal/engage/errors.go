// File: internal/engage/errors.go
package engage

import "errors"

var (
	// ErrSessionInvalid marks an expired or missing credential. Fatal to
	// the surface; retries cannot fix it.
	ErrSessionInvalid = errors.New("engage: session invalid or logged out")

	// ErrSurfaceAborted marks an escalation after repeated consecutive
	// primitive failures. The session or device itself is presumed
	// unusable, which is more severe than being rate limited.
	ErrSurfaceAborted = errors.New("engage: surface aborted after consecutive primitive errors")

	// ErrDeviceUnavailable marks a failed environment start or reset on
	// the mobile surface.
	ErrDeviceUnavailable = errors.New("engage: device environment unavailable")
)
