package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/vigilant-core/internal/audit"
	"github.com/nerrad567/vigilant-core/internal/device"
	"github.com/nerrad567/vigilant-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/vigilant-core/internal/realtime"
	"github.com/nerrad567/vigilant-core/internal/risk"
)

// connectRequest is the body of POST /devices.
type connectRequest struct {
	ExternalID string `json:"external_id"`
}

// realtimeSnapshot is the body of GET /devices/{id}/realtime. Status and
// sensor kind are rendered as their labels.
type realtimeSnapshot struct {
	Name        string `json:"nome"`
	Location    string `json:"localizacao"`
	Status      string `json:"status"`
	SensorKind  string `json:"tipoSensor"`
	LastUpdate  string `json:"ultimaAtualizacao"`
	Measurement string `json:"valorMedicao"`
}

// riskResponse is the body of GET /devices/{id}/risk.
type riskResponse struct {
	DeviceID    int64        `json:"device_id"`
	SensorKind  string       `json:"sensor_kind"`
	Measurement string       `json:"measurement"`
	Evaluated   bool         `json:"evaluated"`
	Result      *risk.Result `json:"result,omitempty"`
}

// handleListDevices returns every registered device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

// handleConnectDevice registers a device and tells it to start reporting.
//
// The registration is kept when the command cannot be published: the
// response is 503 with the new device id so the operator can retry through
// POST /devices/{id}/connect once the broker is back.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.ExternalID = strings.TrimSpace(req.ExternalID)
	if req.ExternalID == "" {
		writeValidationError(w, "external_id is required")
		return
	}

	ctx := r.Context()
	dev, err := s.registry.Connect(ctx, req.ExternalID)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidExternalID):
			writeValidationError(w, err.Error())
		case errors.Is(err, device.ErrDeviceExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "a device with this external_id is already registered")
		default:
			s.logger.Error("registering device", "external_id", req.ExternalID, "error", err)
			writeInternalError(w, "failed to register device")
		}
		return
	}

	subject := subjectFromContext(ctx)
	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionConnect,
		EntityType: audit.EntityDevice,
		EntityID:   dev.ExternalID,
		Subject:    subject,
		Details:    map[string]any{"id": dev.ID},
	})

	if !s.sendConnect(w, r, dev) {
		return
	}

	writeJSON(w, http.StatusCreated, dev)
}

// handleResendConnect publishes the connect command again for a registered
// device.
func (s *Server) handleResendConnect(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	if !s.sendConnect(w, r, dev) {
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "sent",
		"device_id":   dev.ID,
		"external_id": dev.ExternalID,
	})
}

// sendConnect publishes CONECTAR for dev and records the attempt. On failure
// it writes the 503 response and returns false.
func (s *Server) sendConnect(w http.ResponseWriter, r *http.Request, dev *device.Device) bool {
	ctx := r.Context()
	err := s.broker.SendCommand(ctx, dev.ExternalID, mqtt.CommandConnect)

	details := map[string]any{"id": dev.ID, "command": mqtt.CommandConnect, "sent": err == nil}
	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionCommand,
		EntityType: audit.EntityDevice,
		EntityID:   dev.ExternalID,
		Subject:    subjectFromContext(ctx),
		Details:    details,
	})

	if err != nil {
		s.logger.Warn("connect command not sent",
			"device_id", dev.ID,
			"external_id", dev.ExternalID,
			"error", err,
		)
		writeBrokerUnavailable(w,
			"device registered but the broker is unavailable; retry the connect command once it is back",
			map[string]any{"device_id": dev.ID, "external_id": dev.ExternalID},
		)
		return false
	}
	return true
}

// handleDeleteDevice removes a device. Nothing is sent to the broker.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := s.registry.DeleteDevice(ctx, dev.ID); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("deleting device", "device_id", dev.ID, "error", err)
		writeInternalError(w, "failed to delete device")
		return
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionDelete,
		EntityType: audit.EntityDevice,
		EntityID:   dev.ExternalID,
		Subject:    subjectFromContext(ctx),
		Details:    map[string]any{"id": dev.ID},
	})

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceRealtime returns the current values of a device as a polling
// fallback for clients without a realtime session.
func (s *Server) handleDeviceRealtime(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, realtimeSnapshot{
		Name:        dev.Name,
		Location:    dev.Location,
		Status:      dev.Status.String(),
		SensorKind:  dev.SensorKind.String(),
		LastUpdate:  dev.UpdatedAt.In(s.location).Format(realtime.TimestampLayout),
		Measurement: dev.LastMeasurement,
	})
}

// handleDeviceRisk evaluates the last measurement of a device. A measurement
// that is not numeric (a device still awaiting data) is reported as not
// evaluated rather than as an error.
func (s *Server) handleDeviceRisk(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.loadDevice(w, r)
	if !ok {
		return
	}

	resp := riskResponse{
		DeviceID:    dev.ID,
		SensorKind:  dev.SensorKind.String(),
		Measurement: dev.LastMeasurement,
	}
	if value, err := risk.ParseMeasurement(dev.LastMeasurement); err == nil {
		result := s.rules.Evaluate(dev.SensorKind, value)
		resp.Evaluated = true
		resp.Result = &result
	}

	writeJSON(w, http.StatusOK, resp)
}

// loadDevice resolves the {id} URL parameter. It writes the error response
// and returns false when the id is malformed or unknown.
func (s *Server) loadDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeBadRequest(w, "device id must be a positive integer")
		return nil, false
	}

	dev, err := s.registry.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		s.logger.Error("loading device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return dev, true
}
