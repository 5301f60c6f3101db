package matter

import "errors"

// Domain errors for the Matter bridge package.
var (
	// ErrNotBridged is returned when a device has no dynamic endpoint.
	ErrNotBridged = errors.New("matterbridge: device not bridged")

	// ErrAlreadyBridged is returned when a device already has a dynamic endpoint.
	ErrAlreadyBridged = errors.New("matterbridge: device already bridged")

	// ErrNotRunning is returned when an operation needs a started bridge.
	ErrNotRunning = errors.New("matterbridge: bridge not running")

	// ErrInvalidRequest is returned for malformed request messages.
	ErrInvalidRequest = errors.New("matterbridge: invalid request")
)
