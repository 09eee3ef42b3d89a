package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nerrad567/vigilant-core/internal/device"
)

var (
	// ErrInvalidPayload is the root of every decode failure.
	ErrInvalidPayload = errors.New("ingest: invalid payload")

	// ErrMissingField is returned when a required field is absent or null.
	ErrMissingField = errors.New("ingest: missing field")
)

// Payload is a decoded device reading as published on the data topic.
type Payload struct {
	Identifier  string
	Name        string
	Location    string
	Status      device.Status
	SensorKind  device.SensorKind
	Measurement string
}

// wirePayload mirrors the JSON a device publishes. Pointers tell an absent
// field apart from a zero value.
type wirePayload struct {
	Identificador *string `json:"identificador"`
	Nome          *string `json:"nome"`
	Localizacao   *string `json:"localizacao"`
	Status        *int    `json:"status"`
	TipoSensor    *int    `json:"tipoSensor"`
	ValorMedicao  *string `json:"valorMedicao"`
}

// Decode strictly parses a device payload.
//
// Every field is required, unknown fields are rejected, and status and
// tipoSensor must be known enum codes. Anything after the JSON object other
// than whitespace is an error.
func Decode(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var w wirePayload
	if err := dec.Decode(&w); err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Payload{}, fmt.Errorf("%w: trailing data after object", ErrInvalidPayload)
	}

	if missing := w.missing(); len(missing) > 0 {
		return Payload{}, fmt.Errorf("%w: %w: %s", ErrInvalidPayload, ErrMissingField, strings.Join(missing, ", "))
	}

	if strings.TrimSpace(*w.Identificador) == "" {
		return Payload{}, fmt.Errorf("%w: identificador is empty", ErrInvalidPayload)
	}

	status, err := device.ParseStatus(*w.Status)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	kind, err := device.ParseSensorKind(*w.TipoSensor)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	return Payload{
		Identifier:  *w.Identificador,
		Name:        *w.Nome,
		Location:    *w.Localizacao,
		Status:      status,
		SensorKind:  kind,
		Measurement: *w.ValorMedicao,
	}, nil
}

func (w *wirePayload) missing() []string {
	var names []string
	if w.Identificador == nil {
		names = append(names, "identificador")
	}
	if w.Nome == nil {
		names = append(names, "nome")
	}
	if w.Localizacao == nil {
		names = append(names, "localizacao")
	}
	if w.Status == nil {
		names = append(names, "status")
	}
	if w.TipoSensor == nil {
		names = append(names, "tipoSensor")
	}
	if w.ValorMedicao == nil {
		names = append(names, "valorMedicao")
	}
	return names
}
