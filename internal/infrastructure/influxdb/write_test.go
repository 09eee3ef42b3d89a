package influxdb

import (
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func TestMeasurementPoint(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tests := []struct {
		name    string
		m       Measurement
		want    []string
		notWant []string
	}{
		{
			name: "numeric",
			m: Measurement{
				DeviceID: 3, ExternalID: "SENS_03", Location: "Linha 2", SensorKind: "CorrenteEletrica",
				Status: "Conectado", Raw: "45.5", Value: 45.5, HasValue: true, At: at,
			},
			want: []string{"device_measurements,", "device_id=3", "external_id=SENS_03", `location=Linha\ 2`, "value=45.5", `raw="45.5"`, "1700000000000000000"},
		},
		{
			name:    "non-numeric keeps raw only",
			m:       Measurement{DeviceID: 4, ExternalID: "SENS_04", SensorKind: "Vibracao", Raw: "N/A", At: at},
			want:    []string{`raw="N/A"`},
			notWant: []string{"value=", "location="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := write.PointToLineProtocol(measurementPoint(tt.m), time.Nanosecond)
			for _, w := range tt.want {
				if !strings.Contains(line, w) {
					t.Errorf("line %q missing %q", line, w)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(line, w) {
					t.Errorf("line %q should not contain %q", line, w)
				}
			}
		})
	}
}
