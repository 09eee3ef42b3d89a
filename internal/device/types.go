package device

import (
	"fmt"
	"time"
)

// Device is one registered sensor unit. This matches the devices table in
// migrations/20260301_120000_initial_schema.up.sql.
type Device struct {
	ID int64 `json:"id"`

	// ExternalID is the identifier the device uses on the broker. It is
	// unique and never changes after registration.
	ExternalID string `json:"external_id"`

	Name     string `json:"name"`
	Location string `json:"location"`

	SensorKind SensorKind `json:"sensor_kind"`
	Status     Status     `json:"status"`

	// LastMeasurement is kept verbatim; its meaning depends on SensorKind.
	LastMeasurement string `json:"last_measurement"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy of the Device.
// Device has no reference fields today; callers use DeepCopy anyway so the
// cache stays isolated if that changes.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cpy := *d
	return &cpy
}

// Reading is the set of fields an ingested measurement overwrites.
type Reading struct {
	Name        string
	Location    string
	SensorKind  SensorKind
	Status      Status
	Measurement string
	At          time.Time
}

// Status is the lifecycle state of a device. Values are the integer codes
// used on the wire and in the database.
type Status int

const (
	StatusAwaitingData Status = 0
	StatusConnected    Status = 1
	StatusDisconnected Status = 2
	StatusError        Status = 3
)

// AllStatuses returns every known Status.
func AllStatuses() []Status {
	return []Status{StatusAwaitingData, StatusConnected, StatusDisconnected, StatusError}
}

var statusLabels = map[Status]string{
	StatusAwaitingData: "AguardandoDados",
	StatusConnected:    "Conectado",
	StatusDisconnected: "Desconectado",
	StatusError:        "Erro",
}

// String returns the operator-facing label.
func (s Status) String() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Valid reports whether s is one of the known codes.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseStatus converts a wire code to a Status.
// Returns ErrInvalidStatus for codes outside the closed set.
func ParseStatus(code int) (Status, error) {
	s := Status(code)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidStatus, code)
	}
	return s, nil
}

// SensorKind identifies what a device measures.
type SensorKind int

const (
	// SensorKindLoading marks a device whose first reading has not arrived.
	SensorKindLoading         SensorKind = 0
	SensorKindTemperature     SensorKind = 1
	SensorKindElectricCurrent SensorKind = 2
	SensorKindHumidity        SensorKind = 3
	SensorKindPressure        SensorKind = 4
	SensorKindVibration       SensorKind = 5
)

// AllSensorKinds returns every known SensorKind.
func AllSensorKinds() []SensorKind {
	return []SensorKind{
		SensorKindLoading,
		SensorKindTemperature,
		SensorKindElectricCurrent,
		SensorKindHumidity,
		SensorKindPressure,
		SensorKindVibration,
	}
}

var sensorKindLabels = map[SensorKind]string{
	SensorKindLoading:         "Carregando",
	SensorKindTemperature:     "Temperatura",
	SensorKindElectricCurrent: "CorrenteEletrica",
	SensorKindHumidity:        "Umidade",
	SensorKindPressure:        "Pressao",
	SensorKindVibration:       "Vibracao",
}

// String returns the operator-facing label, which also appears in risk
// messages ("Temperatura Excedeu 250 °C").
func (k SensorKind) String() string {
	if label, ok := sensorKindLabels[k]; ok {
		return label
	}
	return fmt.Sprintf("SensorKind(%d)", int(k))
}

// Valid reports whether k is one of the known codes.
func (k SensorKind) Valid() bool {
	_, ok := sensorKindLabels[k]
	return ok
}

// ParseSensorKind converts a wire code to a SensorKind.
// Returns ErrInvalidSensorKind for codes outside the closed set.
func ParseSensorKind(code int) (SensorKind, error) {
	k := SensorKind(code)
	if !k.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSensorKind, code)
	}
	return k, nil
}
