package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when no device matches an ID or external ID.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrDeviceExists is returned when registering an external ID that is already taken.
	ErrDeviceExists = errors.New("device: already exists")

	// ErrInvalidExternalID is returned when an external ID is empty, too long,
	// or contains characters that cannot appear in a topic level.
	ErrInvalidExternalID = errors.New("device: invalid external id")

	// ErrInvalidStatus is returned for status codes outside the known set.
	ErrInvalidStatus = errors.New("device: invalid status")

	// ErrInvalidSensorKind is returned for sensor kind codes outside the known set.
	ErrInvalidSensorKind = errors.New("device: invalid sensor kind")

	// ErrInvalidReading is returned when a reading fails validation.
	ErrInvalidReading = errors.New("device: invalid reading")
)
