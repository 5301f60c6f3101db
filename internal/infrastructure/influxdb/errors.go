package influxdb

import "errors"

var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")

	// ErrWriteFailed wraps batch failures passed to the SetOnError callback.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrInvalidRange is returned for history queries with an empty or
	// inverted time range, or a non-positive window.
	ErrInvalidRange = errors.New("influxdb: invalid query range")

	ErrQueryFailed = errors.New("influxdb: query failed")
)
