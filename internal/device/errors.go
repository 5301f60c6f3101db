package device

import (
	"errors"
	"fmt"
)

// Catalogue errors. Check them with errors.Is; use IsValidationError to
// test for any rejected device definition.
var (
	ErrDeviceNotFound = errors.New("device: not found")
	ErrDeviceExists   = errors.New("device: already exists")

	// ErrInvalidDevice is the parent of every definition error below except
	// name, slug and type, which callers report with their own messages.
	ErrInvalidDevice = errors.New("device: invalid")

	// ErrInvalidDeviceType is returned when a device type has no Matter profile.
	ErrInvalidDeviceType = errors.New("device: invalid type")

	// ErrInvalidName is returned for an empty name or one longer than the
	// 32 bytes Matter allows for NodeLabel.
	ErrInvalidName = errors.New("device: invalid name")

	ErrInvalidSlug = errors.New("device: invalid slug")

	// ErrInvalidLabel is returned when location, vendor or product text
	// does not fit a Basic Information attribute.
	ErrInvalidLabel = fmt.Errorf("%w label", ErrInvalidDevice)

	// ErrInvalidConfig is returned when the free-form config map is too
	// large.
	ErrInvalidConfig = fmt.Errorf("%w config", ErrInvalidDevice)
)

// IsValidationError reports whether err rejects a device definition, as
// opposed to a storage or lookup failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidDevice) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidSlug) ||
		errors.Is(err, ErrInvalidDeviceType)
}
