package device

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxExternalIDLength  = 128
	maxNameLength        = 100
	maxLocationLength    = 200
	maxMeasurementLength = 256
)

// ValidateExternalID checks that id can be used as a single MQTT topic level.
func ValidateExternalID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidExternalID)
	}
	if len(id) > maxExternalIDLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidExternalID, maxExternalIDLength)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: must not contain '/', '+' or '#'", ErrInvalidExternalID)
	}
	if strings.ContainsRune(id, 0) || !utf8.ValidString(id) {
		return fmt.Errorf("%w: must be valid UTF-8 without NUL", ErrInvalidExternalID)
	}
	return nil
}

// ValidateReading checks the fields an ingested measurement writes.
func ValidateReading(r Reading) error {
	if !r.Status.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidReading, ErrInvalidStatus)
	}
	if !r.SensorKind.Valid() {
		return fmt.Errorf("%w: %w", ErrInvalidReading, ErrInvalidSensorKind)
	}
	if utf8.RuneCountInString(r.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidReading, maxNameLength)
	}
	if utf8.RuneCountInString(r.Location) > maxLocationLength {
		return fmt.Errorf("%w: location exceeds %d characters", ErrInvalidReading, maxLocationLength)
	}
	if len(r.Measurement) > maxMeasurementLength {
		return fmt.Errorf("%w: measurement exceeds %d bytes", ErrInvalidReading, maxMeasurementLength)
	}
	if r.At.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidReading)
	}
	return nil
}
