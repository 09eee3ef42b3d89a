package realtime

import (
	"time"

	"github.com/nerrad567/vigilant-core/internal/device"
)

// EventEquipmentUpdate is pushed once per accepted reading.
const EventEquipmentUpdate = "ReceberAtualizacaoEquipamento"

// TimestampLayout formats ultimaAtualizacao (dd/MM/yyyy HH:mm:ss).
const TimestampLayout = "02/01/2006 15:04:05"

// EquipmentUpdate is the payload of EventEquipmentUpdate.
type EquipmentUpdate struct {
	ID          int64         `json:"id"`
	Name        string        `json:"nome"`
	Location    string        `json:"localizacao"`
	Status      device.Status `json:"status"`
	LastUpdate  string        `json:"ultimaAtualizacao"`
	Measurement string        `json:"valorMedicao"`
}

// NewEquipmentUpdate builds the push payload for d as of at, rendered in loc.
// A nil loc means local time.
func NewEquipmentUpdate(d *device.Device, at time.Time, loc *time.Location) EquipmentUpdate {
	if loc == nil {
		loc = time.Local
	}
	return EquipmentUpdate{
		ID:          d.ID,
		Name:        d.Name,
		Location:    d.Location,
		Status:      d.Status,
		LastUpdate:  at.In(loc).Format(TimestampLayout),
		Measurement: d.LastMeasurement,
	}
}
