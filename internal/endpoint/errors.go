package endpoint

import "errors"

// Domain errors for the endpoint package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, endpoint.ErrNoCapacity) {
//	    // every dynamic slot is taken
//	}
var (
	// ErrNoCapacity is returned when no dynamic slot is free, or when every
	// identifier in the dynamic range collided with a live registration.
	ErrNoCapacity = errors.New("endpoint: no dynamic endpoints available")

	// ErrEndpointExists is returned by a Stack when the requested endpoint
	// identifier is already registered. The registry retries with the next id.
	ErrEndpointExists = errors.New("endpoint: identifier already in use")

	// ErrRegistrationFailed wraps any other failure reported by the Stack.
	ErrRegistrationFailed = errors.New("endpoint: registration failed")

	// ErrDeviceNotFound is returned by Remove when the device holds no slot.
	ErrDeviceNotFound = errors.New("endpoint: device not registered")

	// ErrLockTimeout is returned when the stack lock could not be acquired
	// before the context or configured timeout expired. It is retryable.
	ErrLockTimeout = errors.New("endpoint: stack lock timeout")

	// ErrNotInitialised is returned when Add or Remove run before Init.
	ErrNotInitialised = errors.New("endpoint: registry not initialised")

	// ErrAlreadyInitialised is returned by a second call to Init.
	ErrAlreadyInitialised = errors.New("endpoint: registry already initialised")

	// ErrNoStaticEndpoints is returned by Init when the stack reports no
	// fixed endpoints to derive the dynamic range from.
	ErrNoStaticEndpoints = errors.New("endpoint: no static endpoints")

	// ErrNilDevice is returned when Add or Remove receive a nil device.
	ErrNilDevice = errors.New("endpoint: nil device")

	// ErrInvalidOptions is returned by New for unusable options.
	ErrInvalidOptions = errors.New("endpoint: invalid options")
)
