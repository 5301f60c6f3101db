package matter

import "errors"

// Domain errors for the matter package.
var (
	// ErrInvalidIndex is returned for a dynamic slot index outside the table.
	ErrInvalidIndex = errors.New("matter: invalid dynamic endpoint index")

	// ErrIndexOccupied is returned when registering into a slot already in use.
	ErrIndexOccupied = errors.New("matter: dynamic endpoint index occupied")

	// ErrInvalidEndpoint is returned when registering the reserved invalid id.
	ErrInvalidEndpoint = errors.New("matter: invalid endpoint id")

	// ErrInvalidDescriptor is returned for a missing or empty cluster descriptor.
	ErrInvalidDescriptor = errors.New("matter: invalid endpoint descriptor")

	// ErrDataVersionStorage is returned when fewer data versions than
	// clusters are supplied.
	ErrDataVersionStorage = errors.New("matter: data version storage too small")

	// ErrInvalidFixedEndpoints is returned by NewEndpointTable for an unusable
	// fixed endpoint list.
	ErrInvalidFixedEndpoints = errors.New("matter: invalid fixed endpoints")
)
