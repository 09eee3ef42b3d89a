package api

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/vigilant-core/internal/audit"
	"github.com/nerrad567/vigilant-core/internal/auth"
	"github.com/nerrad567/vigilant-core/internal/broker"
	"github.com/nerrad567/vigilant-core/internal/device"
)

func TestConnectDevice(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, auth.RoleCollaborator, http.MethodPost, "/api/v1/devices", map[string]string{"external_id": "SENS_01"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /devices status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var dev device.Device
	decodeBody(t, rec, &dev)
	if dev.ID != 1 || dev.ExternalID != "SENS_01" || dev.Status != device.StatusAwaitingData {
		t.Errorf("created device = %+v", dev)
	}

	if got := env.broker.sent(); len(got) != 1 || got[0] != "SENS_01:CONECTAR" {
		t.Errorf("commands = %v, want [SENS_01:CONECTAR]", got)
	}

	res, err := env.audit.List(context.Background(), audit.Filter{EntityID: "SENS_01"})
	if err != nil {
		t.Fatalf("audit List() error = %v", err)
	}
	if res.Total != 2 {
		t.Errorf("audit entries = %d, want 2 (connect + command)", res.Total)
	}
}

func TestConnectDevice_Rejects(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.registry.Connect(context.Background(), "SENS_01"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"malformed json", "{", http.StatusBadRequest, ErrCodeBadRequest},
		{"missing id", map[string]string{}, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"blank id", map[string]string{"external_id": "   "}, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"wildcard in id", map[string]string{"external_id": "SENS/#"}, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"duplicate", map[string]string{"external_id": "SENS_01"}, http.StatusConflict, ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/v1/devices", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantErr {
				t.Errorf("error code = %q, want %q", code, tt.wantErr)
			}
		})
	}

	if got := env.broker.sent(); len(got) != 0 {
		t.Errorf("commands = %v, want none", got)
	}
}

func TestConnectDevice_BrokerDownKeepsRegistration(t *testing.T) {
	env := newTestEnv(t)
	env.broker.setSendErr(broker.ErrNotConnected)

	rec := env.do(t, auth.RoleCollaborator, http.MethodPost, "/api/v1/devices", map[string]string{"external_id": "SENS_02"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 (body %s)", rec.Code, rec.Body.String())
	}

	var body errorResponse
	decodeBody(t, rec, &body)
	if body.Error.Code != ErrCodeBrokerUnavailable {
		t.Errorf("code = %q, want %q", body.Error.Code, ErrCodeBrokerUnavailable)
	}
	if body.Error.Details["device_id"] != float64(1) {
		t.Errorf("details = %v, want device_id 1", body.Error.Details)
	}

	if _, err := env.registry.GetByExternalID(context.Background(), "SENS_02"); err != nil {
		t.Fatalf("registration should be kept: %v", err)
	}

	// Broker back: the re-send endpoint delivers the command.
	env.broker.setSendErr(nil)
	rec = env.do(t, auth.RoleCollaborator, http.MethodPost, "/api/v1/devices/1/connect", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("re-send status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := env.broker.sent(); len(got) != 1 || got[0] != "SENS_02:CONECTAR" {
		t.Errorf("commands = %v, want [SENS_02:CONECTAR]", got)
	}
}

func TestResendConnect_Failures(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.registry.Connect(context.Background(), "SENS_01"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if rec := env.do(t, auth.RoleCollaborator, http.MethodPost, "/api/v1/devices/9/connect", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}

	env.broker.setSendErr(errors.New("broker: publish failed"))
	if rec := env.do(t, auth.RoleCollaborator, http.MethodPost, "/api/v1/devices/1/connect", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("broker down status = %d, want 503", rec.Code)
	}
}

func TestListAndGetDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, id := range []string{"SENS_01", "SENS_02"} {
		if _, err := env.registry.Connect(ctx, id); err != nil {
			t.Fatalf("Connect(%s) error = %v", id, err)
		}
	}

	rec := env.do(t, auth.RoleCollaborator, http.MethodGet, "/api/v1/devices", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /devices status = %d", rec.Code)
	}
	var list struct {
		Devices []device.Device `json:"devices"`
		Count   int             `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 2 || len(list.Devices) != 2 {
		t.Errorf("list = %+v, want 2 devices", list)
	}

	tests := []struct {
		path     string
		wantCode int
	}{
		{"/api/v1/devices/2", http.StatusOK},
		{"/api/v1/devices/99", http.StatusNotFound},
		{"/api/v1/devices/abc", http.StatusBadRequest},
		{"/api/v1/devices/0", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(t, auth.RoleCollaborator, http.MethodGet, tt.path, nil)
			if rec.Code != tt.wantCode {
				t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.wantCode)
			}
		})
	}
}

func TestDeleteDevice(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.registry.Connect(context.Background(), "SENS_01"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if rec := env.do(t, auth.RoleCollaborator, http.MethodDelete, "/api/v1/devices/1", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("colaborador delete status = %d, want 403", rec.Code)
	}

	if rec := env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/v1/devices/1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("admin delete status = %d, want 204", rec.Code)
	}
	if _, err := env.registry.GetDevice(context.Background(), 1); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("GetDevice() after delete error = %v, want ErrDeviceNotFound", err)
	}
	if got := env.broker.sent(); len(got) != 0 {
		t.Errorf("delete sent commands %v, want none", got)
	}

	if rec := env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/v1/devices/1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestDeviceRealtimeSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	dev, err := env.registry.Connect(ctx, "SENS_01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	_, err = env.registry.ApplyReading(ctx, dev.ID, device.Reading{
		Name:        "Forno 1",
		Location:    "Galpão A",
		SensorKind:  device.SensorKindTemperature,
		Status:      device.StatusConnected,
		Measurement: "251.3",
		At:          time.Date(2026, 3, 9, 14, 5, 7, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("ApplyReading() error = %v", err)
	}

	rec := env.do(t, auth.RoleCollaborator, http.MethodGet, "/api/v1/devices/1/realtime", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var snap map[string]string
	decodeBody(t, rec, &snap)
	want := map[string]string{
		"nome":              "Forno 1",
		"localizacao":       "Galpão A",
		"status":            "Conectado",
		"tipoSensor":        "Temperatura",
		"ultimaAtualizacao": "09/03/2026 14:05:07",
		"valorMedicao":      "251.3",
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("%s = %q, want %q", k, snap[k], v)
		}
	}
}

func TestDeviceRisk(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.registry.Connect(ctx, "SENS_01"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Awaiting data: placeholder measurement is not numeric.
	rec := env.do(t, auth.RoleCollaborator, http.MethodGet, "/api/v1/devices/1/risk", nil)
	var resp riskResponse
	decodeBody(t, rec, &resp)
	if rec.Code != http.StatusOK || resp.Evaluated || resp.Result != nil {
		t.Fatalf("awaiting data: status = %d, resp = %+v", rec.Code, resp)
	}

	_, err := env.registry.ApplyReading(ctx, 1, device.Reading{
		Name:        "Forno 1",
		SensorKind:  device.SensorKindTemperature,
		Status:      device.StatusConnected,
		Measurement: "251,3",
		At:          time.Now(),
	})
	if err != nil {
		t.Fatalf("ApplyReading() error = %v", err)
	}

	rec = env.do(t, auth.RoleCollaborator, http.MethodGet, "/api/v1/devices/1/risk", nil)
	var body struct {
		Evaluated bool `json:"evaluated"`
		Result    struct {
			IsRisk   bool   `json:"is_risk"`
			Severity string `json:"severity"`
			Message  string `json:"message"`
		} `json:"result"`
	}
	decodeBody(t, rec, &body)
	if !body.Evaluated || !body.Result.IsRisk || body.Result.Severity != "Alto" {
		t.Errorf("risk = %+v, want evaluated high risk", body)
	}
	if body.Result.Message != "Temperatura Excedeu 250 °C" {
		t.Errorf("message = %q", body.Result.Message)
	}
}
